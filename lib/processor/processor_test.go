package processor

import (
	"slices"
	"strings"
	"testing"

	"github.com/ValentinKolb/dStats/lib/db"
	"github.com/ValentinKolb/dStats/lib/db/engines/maple"
	"github.com/ValentinKolb/dStats/lib/defaults"
	"github.com/ValentinKolb/dStats/lib/record"
	"github.com/ValentinKolb/dStats/lib/runtime"
	"github.com/ValentinKolb/dStats/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDefaults = `
releases:
  - release_name: Havana
    end_date: 2013-Oct-17
  - release_name: Icehouse
    end_date: 2014-Apr-17
repos:
  - uri: git://git.openstack.org/openstack/nova.git
    module: nova
    aliases: [compute]
  - uri: git://git.openstack.org/openstack/sahara.git
    module: sahara
    aliases: [savanna]
  - uri: git://git.openstack.org/openstack/python-novaclient.git
    module: python-novaclient
companies:
  - company_name: "*independent"
    domains: [""]
  - company_name: IBM
    domains: [ibm.com]
  - company_name: Mirantis
    domains: [mirantis.com]
    aliases: [Mirantis Inc.]
  - company_name: CompanyX
    domains: [a.com]
users:
  - launchpad_id: john_doe
    user_name: John Doe
    emails: [johndoe@gmail.com, jdoe@super.no]
    companies:
      - company_name: "*independent"
        end_date: 2013-Jan-01
      - company_name: Mirantis
        end_date: null
`

const (
	jan2013 = 1356998400
	dec2013 = 1387000000
	oct2012 = 1350000000
)

func newTestProcessor(t *testing.T) (*Processor, *runtime.Storage) {
	t.Helper()
	d, err := defaults.Load(strings.NewReader(testDefaults))
	require.NoError(t, err)
	s := runtime.New(lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) }))
	require.NoError(t, d.Store(s))
	p, err := New(s, d)
	require.NoError(t, err)
	return p, s
}

func process(t *testing.T, p *Processor, events ...record.Event) []*record.Record {
	t.Helper()
	out := slices.Collect(p.Process(slices.Values(events)))
	require.NoError(t, p.Err())
	return out
}

// ingest processes events and writes the records the way the ingest command does
func ingest(t *testing.T, p *Processor, s *runtime.Storage, events ...record.Event) []*record.Record {
	t.Helper()
	records := process(t, p, events...)
	_, err := s.SetRecords(slices.Values(records), record.MergeSource)
	require.NoError(t, err)
	return records
}

func commitEvent(id, email string, date int64) record.Event {
	return record.Event{Type: record.TypeCommit, Commit: &record.RawCommit{
		CommitID:    id,
		AuthorName:  "Author " + id,
		AuthorEmail: email,
		Date:        date,
		Module:      "nova",
		Branches:    []string{"master"},
	}}
}

func account(email, username string) record.RawAccount {
	return record.RawAccount{Name: strings.ToUpper(username), Email: email, Username: username}
}

func reviewEvent(id string, owner record.RawAccount, created int64, patchSets ...record.RawPatchSet) record.Event {
	return record.Event{Type: record.TypeReview, Review: &record.RawReview{
		ID:          id,
		Subject:     "Fix " + id,
		Owner:       owner,
		CreatedOn:   created,
		LastUpdated: created + 100,
		Status:      "NEW",
		Module:      "nova",
		Branch:      "master",
		PatchSets:   patchSets,
	}}
}

func approval(by record.RawAccount, value int, granted int64) record.RawApproval {
	return record.RawApproval{Type: MarkCodeReview, Value: record.FlexInt(value), GrantedOn: granted, By: by}
}

func byPrimaryKey(records []*record.Record) map[string]*record.Record {
	out := make(map[string]*record.Record, len(records))
	for _, r := range records {
		out[r.PrimaryKey] = r
	}
	return out
}

// --------------------------------------------------------------------------
// Identity
// --------------------------------------------------------------------------

func TestExistingUser(t *testing.T) {
	p, s := newTestProcessor(t)
	records := process(t, p, commitEvent("c1", "JohnDoe@gmail.com", dec2013))

	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "john_doe", r.UserID)
	assert.Equal(t, "John Doe", r.UserName)
	assert.Equal(t, "Mirantis", r.CompanyName)
	assert.Equal(t, "icehouse", r.Release)

	count, err := s.UserCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestExistingUserOldJob(t *testing.T) {
	p, _ := newTestProcessor(t)
	records := process(t, p, commitEvent("c1", "johndoe@gmail.com", oct2012))

	require.Len(t, records, 1)
	assert.Equal(t, "john_doe", records[0].UserID)
	assert.Equal(t, record.CompanyIndependent, records[0].CompanyName)
	assert.Equal(t, "havana", records[0].Release)
}

func TestNewUserKnownCompany(t *testing.T) {
	p, s := newTestProcessor(t)
	records := process(t, p, commitEvent("c1", "johndoe@ibm.com", dec2013))

	require.Len(t, records, 1)
	assert.Equal(t, "johndoe@ibm.com", records[0].UserID)
	assert.Equal(t, "IBM", records[0].CompanyName)

	u, err := s.GetUser("johndoe@ibm.com")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), u.Seq)
	assert.Equal(t, []record.Affiliation{{CompanyName: "IBM"}}, u.Companies)
}

func TestNewUserUnknownDomain(t *testing.T) {
	p, s := newTestProcessor(t)
	records := process(t, p, commitEvent("c1", "smith@example.com", dec2013))

	require.Len(t, records, 1)
	assert.Equal(t, "smith@example.com", records[0].UserID)
	assert.Equal(t, record.CompanyIndependent, records[0].CompanyName)

	u, err := s.GetUser("smith@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Author c1", u.UserName)
}

func TestKnownDomainOverridesHistory(t *testing.T) {
	p, _ := newTestProcessor(t)
	// jdoe@super.no belongs to john_doe (Mirantis); a new ibm.com email of
	// the same directory id is attributed to IBM
	records := process(t, p, reviewEvent("r1", account("jdoe@ibm.com", "john_doe"), dec2013))

	require.Len(t, records, 1)
	assert.Equal(t, "john_doe", records[0].UserID)
	assert.Equal(t, "IBM", records[0].CompanyName)
}

func TestInvalidEmailIsAnonymous(t *testing.T) {
	p, s := newTestProcessor(t)
	records := process(t, p, commitEvent("c1", "not-an-email", dec2013))

	require.Len(t, records, 1)
	assert.Equal(t, record.UserAnonymous, records[0].UserID)
	assert.Equal(t, record.CompanyIndependent, records[0].CompanyName)

	count, err := s.UserCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count, "anonymous identities are not persisted")
}

func TestEmailThenReviewAdoptsExternalID(t *testing.T) {
	p, s := newTestProcessor(t)
	email := record.Event{Type: record.TypeEmail, Email: &record.RawEmail{
		MessageID:   "<m1@example.com>",
		AuthorName:  "Jane",
		AuthorEmail: "jane@ibm.com",
		Date:        dec2013,
		Subject:     "hello",
	}}
	records := process(t, p, email, reviewEvent("r1", account("jane@ibm.com", "jane"), dec2013+10))

	require.Len(t, records, 2)
	assert.Equal(t, "jane@ibm.com", records[0].UserID, "records are rewritten by Finalize only")
	assert.Equal(t, "jane", records[1].UserID)

	u, err := s.GetUser("jane@ibm.com")
	require.NoError(t, err)
	assert.Equal(t, "jane", u.UserID)
	assert.Equal(t, uint64(2), u.Seq)
}

func TestMergeUsers(t *testing.T) {
	p, s := newTestProcessor(t)
	records := process(t, p,
		commitEvent("c1", "bob@mirantis.com", dec2013),
		reviewEvent("r1", account("bob@example.com", "bob"), dec2013+10),
		reviewEvent("r2", account("bob@mirantis.com", "bob"), dec2013+20),
	)
	require.Len(t, records, 3)

	u, err := s.GetUser("bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), u.Seq, "the older user survives")
	assert.Equal(t, "bob", u.UserID)
	assert.ElementsMatch(t, []string{"bob@mirantis.com", "bob@example.com"}, u.Emails)
	assert.Equal(t, []record.Affiliation{{CompanyName: "Mirantis"}}, u.Companies)

	_, err = s.GetUser("3")
	assert.ErrorIs(t, err, runtime.ErrNotFound, "the merged slot is cleared")

	viaOtherEmail, err := s.GetUser("bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), viaOtherEmail.Seq)
}

// --------------------------------------------------------------------------
// Per Type Processing
// --------------------------------------------------------------------------

func TestCommitFields(t *testing.T) {
	p, _ := newTestProcessor(t)
	ev := commitEvent("c1", "smith@example.com", dec2013)
	ev.Commit.Message = "Fix the thing\n\nCloses-Bug: #1234\nImplements: blueprint fancy-api\nbug 1234"
	ev.Commit.LinesAdded = 10
	ev.Commit.LinesDeleted = 4
	ev.Commit.Branches = []string{"stable/havana", "master", "master"}
	ev.Commit.ReleaseName = "Havana"

	records := process(t, p, ev)
	require.Len(t, records, 1)
	c := records[0]
	assert.Equal(t, "c1", c.PrimaryKey)
	assert.Equal(t, 14, c.Commit.Loc)
	assert.Equal(t, []string{"1234"}, c.Commit.BugIDs)
	assert.Equal(t, []string{"nova:fancy-api"}, c.BlueprintIDs)
	assert.Equal(t, []string{"master", "stable/havana"}, c.Commit.Branches)
	assert.Equal(t, "havana", c.Release, "explicit release wins over the date")
}

func TestCoauthors(t *testing.T) {
	p, _ := newTestProcessor(t)
	ev := commitEvent("abc", "smith@example.com", dec2013)
	ev.Commit.Coauthors = []record.RawAuthor{
		{AuthorName: "Homer", AuthorEmail: "homer@ibm.com"},
		{AuthorName: "Bart", AuthorEmail: "bart@mirantis.com"},
	}

	records := process(t, p, ev)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"abc:homer@ibm.com", "abc:bart@mirantis.com", "abc"},
		[]string{records[0].PrimaryKey, records[1].PrimaryKey, records[2].PrimaryKey})
	assert.Equal(t, []string{"IBM", "Mirantis", record.CompanyIndependent},
		[]string{records[0].CompanyName, records[1].CompanyName, records[2].CompanyName})

	for _, r := range records {
		require.Len(t, r.Commit.Coauthors, 3)
		ids := []string{r.Commit.Coauthors[0].UserID, r.Commit.Coauthors[1].UserID, r.Commit.Coauthors[2].UserID}
		assert.Equal(t, []string{"homer@ibm.com", "bart@mirantis.com", "smith@example.com"}, ids)
		assert.NoError(t, r.Validate())
	}
}

func TestReviewFanOut(t *testing.T) {
	p, _ := newTestProcessor(t)
	owner := account("smith@example.com", "smith")
	homer := account("homer@ibm.com", "homer")
	records := process(t, p, reviewEvent("I1", owner, dec2013,
		record.RawPatchSet{Number: 1, Revision: "r1", Ref: "refs/changes/1", Uploader: owner, CreatedOn: dec2013,
			Approvals: []record.RawApproval{approval(homer, -1, dec2013+100)}},
		record.RawPatchSet{Number: 2, Revision: "r2", Ref: "refs/changes/2", Uploader: owner, CreatedOn: dec2013 + 200},
	))

	require.Len(t, records, 4)
	got := byPrimaryKey(records)

	review := got["I1"]
	require.NotNil(t, review)
	assert.Equal(t, record.TypeReview, review.Type)
	assert.Equal(t, "smith", review.UserID)
	assert.Equal(t, "master", review.Branch)

	require.NotNil(t, got["I1:1"])
	require.NotNil(t, got["I1:2"])
	assert.Equal(t, 2, got["I1:2"].Patch.Number)

	mark := got["I1:1:homer:Code-Review"]
	require.NotNil(t, mark)
	assert.Equal(t, "homer", mark.UserID)
	assert.Equal(t, "IBM", mark.CompanyName)
	assert.Equal(t, -1, mark.Mark.Value)
	assert.Equal(t, int64(dec2013+100), mark.Date)

	for _, r := range records {
		assert.NoError(t, r.Validate())
	}
}

func TestMailModuleGuessing(t *testing.T) {
	p, _ := newTestProcessor(t)
	mail := func(id, subject, module string) record.Event {
		return record.Event{Type: record.TypeEmail, Email: &record.RawEmail{
			MessageID:   id,
			AuthorEmail: "smith@example.com",
			Date:        dec2013,
			Subject:     subject,
			Module:      module,
			Body:        "see https://blueprints.launchpad.net/nova/+spec/fancy-api",
		}}
	}
	records := process(t, p,
		mail("m1", "[openstack-dev] [Savanna] question", "nova"),
		mail("m2", "[openstack-dev][Nova][compute] both match", ""),
		mail("m3", "[python-novaclient] no client modules", ""),
		mail("m4", "no tags", "Glance"),
	)

	require.Len(t, records, 4)
	assert.Equal(t, "sahara", records[0].Module, "aliases resolve to the module")
	assert.Equal(t, "nova", records[1].Module)
	assert.Equal(t, record.ModuleUnknown, records[2].Module)
	assert.Equal(t, "glance", records[3].Module)
	assert.Equal(t, []string{"nova:fancy-api"}, records[0].BlueprintIDs)
}

func TestBlueprints(t *testing.T) {
	p, _ := newTestProcessor(t)
	bp := &record.RawBlueprint{
		Name:                 "fancy-api",
		Module:               "nova",
		Title:                "Fancy API",
		DefinitionStatus:     "Approved",
		ImplementationStatus: "Implemented",
		Owner:                "john_doe",
		Assignee:             "john_doe",
		DateCreated:          dec2013,
		DateCompleted:        dec2013 + 1000,
	}
	records := process(t, p, record.Event{Type: record.TypeBlueprintDraft, Blueprint: bp})

	require.Len(t, records, 2)
	got := byPrimaryKey(records)
	draft, done := got["bpd:nova:fancy-api"], got["bpc:nova:fancy-api"]
	require.NotNil(t, draft)
	require.NotNil(t, done)
	assert.Equal(t, "john_doe", draft.UserID)
	assert.Equal(t, "Mirantis", draft.CompanyName)
	assert.Equal(t, []string{"nova:fancy-api"}, draft.BlueprintIDs)
	assert.Equal(t, int64(dec2013+1000), done.Date)

	bp.ImplementationStatus = "Started"
	records = process(t, p, record.Event{Type: record.TypeBlueprintDraft, Blueprint: bp})
	assert.Len(t, records, 1, "no completion before the blueprint is implemented")
}

func memberEvent(id, name, company string) record.Event {
	return record.Event{Type: record.TypeMember, Member: &record.RawMember{
		MemberID:     id,
		MemberName:   name,
		MemberURI:    "https://www.openstack.org/community/members/profile/" + id,
		DateJoined:   jan2013,
		CompanyDraft: company,
		Email:        "member" + id + "@example.com",
	}}
}

func TestMemberCreateAndUpdate(t *testing.T) {
	p, s := newTestProcessor(t)

	records := process(t, p, memberEvent("123", "John Smith", "Mirantis Inc."))
	require.Len(t, records, 1)
	assert.Equal(t, "member:123", records[0].PrimaryKey)
	assert.Equal(t, "member:123", records[0].UserID)
	assert.Equal(t, "Mirantis", records[0].CompanyName, "company aliases resolve")

	records = process(t, p, memberEvent("123", "Johnny Smith", "IBM"))
	require.Len(t, records, 1)
	assert.Equal(t, "IBM", records[0].CompanyName)

	u, err := s.GetUser("member:123")
	require.NoError(t, err)
	assert.Equal(t, "Johnny Smith", u.UserName)
	assert.Equal(t, []record.Affiliation{{CompanyName: "IBM"}}, u.Companies)
}

func TestMemberWithLdapID(t *testing.T) {
	p, _ := newTestProcessor(t)
	ev := memberEvent("7", "Lisa", "")
	ev.Member.LdapID = "lisa"

	records := process(t, p, ev)
	require.Len(t, records, 1)
	assert.Equal(t, "lisa", records[0].UserID)
	assert.Equal(t, record.CompanyIndependent, records[0].CompanyName)
}

func TestTranslationAndCI(t *testing.T) {
	p, _ := newTestProcessor(t)
	records := process(t, p,
		record.Event{Type: record.TypeTranslation, Translation: &record.RawTranslation{
			UserID: "John_Doe", Date: dec2013, Language: "de", Module: "Nova", Translated: 10,
		}},
		record.Event{Type: record.TypeCI, CI: &record.RawCI{
			ReviewID: "I1", Patch: 3, DriverName: "Jenkins-CI", DriverCompany: "IBM", Success: true, Date: dec2013, Module: "nova",
		}},
	)

	require.Len(t, records, 2)
	tr := records[0]
	assert.Equal(t, "i18n:john_doe:nova:de:1387000000", tr.PrimaryKey)
	assert.Equal(t, "john_doe", tr.UserID)
	assert.Equal(t, "Mirantis", tr.CompanyName)

	ci := records[1]
	assert.Equal(t, "ci:I1:3:Jenkins-CI", ci.PrimaryKey)
	assert.Equal(t, "jenkins-ci", ci.UserID)
	assert.Equal(t, "IBM", ci.CompanyName)
	assert.Equal(t, 1, ci.CI.Value)
}
