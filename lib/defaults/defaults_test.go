package defaults

import (
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dStats/lib/db"
	"github.com/ValentinKolb/dStats/lib/db/engines/maple"
	"github.com/ValentinKolb/dStats/lib/record"
	"github.com/ValentinKolb/dStats/lib/runtime"
	"github.com/ValentinKolb/dStats/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDefaults = `
releases:
  - release_name: Icehouse
    end_date: 2014-Apr-17
  - release_name: Havana
    end_date: 2013-Oct-17
  - release_name: Juno
    end_date: null
repos:
  - uri: git://git.openstack.org/openstack/nova.git
    module: Nova
    organization: openstack
    aliases: [Compute]
companies:
  - company_name: IBM
    domains: [IBM.com]
  - company_name: Mirantis
    domains: [mirantis.com, mirantis.ru]
users:
  - launchpad_id: John_Doe
    user_name: John Doe
    emails: [John_Doe@ibm.com]
    companies:
      - company_name: Mirantis
        end_date: 2013-01-01
      - company_name: IBM
        end_date:
  - launchpad_id: ghost
    emails: []
  - launchpad_id: smith
    emails: [smith@example.com]
    companies:
      - company_name: Acme
`

func loadTestDefaults(t *testing.T) *Defaults {
	t.Helper()
	d, err := Load(strings.NewReader(testDefaults))
	require.NoError(t, err)
	return d
}

func TestLoadNormalizes(t *testing.T) {
	d := loadTestDefaults(t)

	require.Len(t, d.Releases, 3)
	assert.Equal(t, []string{"havana", "icehouse", "juno"}, []string{d.Releases[0].Name, d.Releases[1].Name, d.Releases[2].Name})
	assert.Equal(t, Date(time.Date(2013, time.October, 17, 0, 0, 0, 0, time.UTC).Unix()), d.Releases[0].EndDate)
	assert.Equal(t, Date(0), d.Releases[2].EndDate)

	assert.Equal(t, "nova", d.Repos[0].Module)
	assert.Equal(t, []string{"compute"}, d.Repos[0].Aliases)
	assert.Equal(t, []string{"ibm.com"}, d.Companies[0].Domains)

	require.Len(t, d.Users, 2, "user without emails is dropped")
	assert.Equal(t, record.CompanyIndependent, d.Users[1].Companies[0].CompanyName, "unknown company")
}

func TestRecordUsers(t *testing.T) {
	users := loadTestDefaults(t).RecordUsers()
	require.Len(t, users, 2)

	john := users[0]
	assert.Equal(t, "john_doe", john.UserID)
	assert.Equal(t, []string{"john_doe@ibm.com"}, john.Emails)
	require.Len(t, john.Companies, 2)
	assert.Equal(t, "Mirantis", john.Companies[0].CompanyName)
	assert.Equal(t, "IBM", john.Companies[1].CompanyName)
	assert.Equal(t, int64(0), john.Companies[1].EndDate)
}

func TestReleaseAt(t *testing.T) {
	d := loadTestDefaults(t)
	havanaEnd := int64(d.Releases[0].EndDate)
	assert.Equal(t, "havana", d.ReleaseAt(havanaEnd-1))
	assert.Equal(t, "icehouse", d.ReleaseAt(havanaEnd))
	assert.Equal(t, "juno", d.ReleaseAt(int64(d.Releases[1].EndDate)+1), "open ended release catches the rest")

	d.Releases = d.Releases[:2]
	assert.Equal(t, "", d.ReleaseAt(int64(d.Releases[1].EndDate)+1))
}

func TestParseDate(t *testing.T) {
	tests := map[string]int64{
		"":                     0,
		"null":                 0,
		"1385490000":           1385490000,
		"2013-Nov-26":          time.Date(2013, time.November, 26, 0, 0, 0, 0, time.UTC).Unix(),
		"2013-11-26":           time.Date(2013, time.November, 26, 0, 0, 0, 0, time.UTC).Unix(),
		"2013-11-26T18:20:00Z": time.Date(2013, time.November, 26, 18, 20, 0, 0, time.UTC).Unix(),
		"August 01, 2012":      time.Date(2012, time.August, 1, 0, 0, 0, 0, time.UTC).Unix(),
	}
	for in, want := range tests {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDate("yesterday")
	assert.Error(t, err)

	_, err = Load(strings.NewReader("releases:\n  - release_name: x\n    end_date: soon\n"))
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	s := runtime.New(lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) }))

	// john was already seen under a private address before the defaults knew him
	require.NoError(t, s.StoreUser(&record.User{ExternalID: "john_doe", Emails: []string{"jd@gmail.com"}}))

	d := loadTestDefaults(t)
	require.NoError(t, d.Store(s))

	john, err := s.GetUser("john_doe@ibm.com")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), john.Seq)
	assert.ElementsMatch(t, []string{"john_doe@ibm.com", "jd@gmail.com"}, john.Emails)
	assert.Equal(t, "John Doe", john.UserName)

	smith, err := s.GetUser("smith")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), smith.Seq)

	stored, err := LoadStored(s)
	require.NoError(t, err)
	assert.Equal(t, d.Releases, stored.Releases)
	assert.Equal(t, d.Repos, stored.Repos)
	assert.Equal(t, d.Companies, stored.Companies)
}
