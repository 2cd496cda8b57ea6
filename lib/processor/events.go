package processor

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/ValentinKolb/dStats/lib/record"
)

var (
	bugRe           = regexp.MustCompile(`(?i)\bbug[\s#:]*(\d+)`)
	blueprintRe     = regexp.MustCompile(`(?i)\b(?:blueprint|bp)\b[ \t]*[#:]?[ \t]*([\w-]+)`)
	blueprintLinkRe = regexp.MustCompile(`https?://blueprints\.launchpad\.net/([\w-]+)/\+spec/([\w-]+)`)
)

// blueprintID builds the id <module>:<name> of a blueprint
func blueprintID(module, name string) string {
	return strings.ToLower(module) + ":" + strings.ToLower(name)
}

// release returns the explicit release name or the release dated at date
func (p *Processor) release(name string, date int64) string {
	if name != "" {
		return strings.ToLower(name)
	}
	return p.defaults.ReleaseAt(date)
}

// --------------------------------------------------------------------------
// Commits
// --------------------------------------------------------------------------

// processCommit emits one record per author. Coauthors come first in their
// order, the author last; all share the coauthor list.
func (p *Processor) processCommit(c *record.RawCommit) ([]*record.Record, error) {
	authors := slices.Concat(c.Coauthors, []record.RawAuthor{{AuthorName: c.AuthorName, AuthorEmail: c.AuthorEmail}})
	module := strings.ToLower(c.Module)

	var bugs, blueprints []string
	for _, m := range bugRe.FindAllStringSubmatch(c.Message, -1) {
		if !slices.Contains(bugs, m[1]) {
			bugs = append(bugs, m[1])
		}
	}
	if module != "" {
		for _, m := range blueprintRe.FindAllStringSubmatch(c.Message, -1) {
			if id := blueprintID(module, m[1]); !slices.Contains(blueprints, id) {
				blueprints = append(blueprints, id)
			}
		}
	}
	branches := slices.Clone(c.Branches)
	slices.Sort(branches)
	branches = slices.Compact(branches)

	records := make([]*record.Record, 0, len(authors))
	coauthors := make([]record.Coauthor, 0, len(authors))
	for i, a := range authors {
		id := newIdentity(a.AuthorEmail, "", a.AuthorName)
		_, userID, name, company, err := p.resolve(id, c.Date)
		if err != nil {
			return nil, err
		}
		pk := c.CommitID
		if i < len(authors)-1 {
			pk = c.CommitID + ":" + id.email
		}
		coauthors = append(coauthors, record.Coauthor{UserID: userID, UserName: name, AuthorEmail: id.email})
		records = append(records, &record.Record{
			PrimaryKey:   pk,
			Type:         record.TypeCommit,
			Date:         c.Date,
			UserID:       userID,
			UserName:     name,
			AuthorEmail:  id.email,
			CompanyName:  company,
			Module:       module,
			Release:      p.release(c.ReleaseName, c.Date),
			BlueprintIDs: blueprints,
			Commit: &record.Commit{
				CommitID:     c.CommitID,
				ChangeIDs:    c.ChangeIDs,
				Branches:     branches,
				Subject:      c.Subject,
				Message:      c.Message,
				LinesAdded:   c.LinesAdded,
				LinesDeleted: c.LinesDeleted,
				FilesChanged: c.FilesChanged,
				Loc:          c.LinesAdded + c.LinesDeleted,
				BugIDs:       bugs,
			},
		})
	}
	for _, r := range records {
		r.Commit.Coauthors = coauthors
	}
	return records, nil
}

// --------------------------------------------------------------------------
// Reviews
// --------------------------------------------------------------------------

// processReview emits the review for its owner, one patch record per patch
// set and one mark per approval.
func (p *Processor) processReview(rv *record.RawReview) ([]*record.Record, error) {
	module := strings.ToLower(rv.Module)
	release := p.release("", rv.CreatedOn)

	owner := newIdentity(rv.Owner.Email, rv.Owner.Username, rv.Owner.Name)
	_, userID, name, company, err := p.resolve(owner, rv.CreatedOn)
	if err != nil {
		return nil, err
	}
	records := []*record.Record{{
		PrimaryKey:  rv.ID,
		Type:        record.TypeReview,
		Date:        rv.CreatedOn,
		UserID:      userID,
		UserName:    name,
		AuthorEmail: owner.email,
		CompanyName: company,
		Module:      module,
		Branch:      rv.Branch,
		Release:     release,
		Review: &record.Review{
			ID:          rv.ID,
			Subject:     rv.Subject,
			Status:      rv.Status,
			URL:         rv.URL,
			CreatedOn:   rv.CreatedOn,
			LastUpdated: rv.LastUpdated,
		},
	}}

	for _, ps := range rv.PatchSets {
		number := int(ps.Number)
		uploader := newIdentity(ps.Uploader.Email, ps.Uploader.Username, ps.Uploader.Name)
		_, userID, name, company, err := p.resolve(uploader, ps.CreatedOn)
		if err != nil {
			return nil, err
		}
		records = append(records, &record.Record{
			PrimaryKey:  fmt.Sprintf("%s:%d", rv.ID, number),
			Type:        record.TypePatch,
			Date:        ps.CreatedOn,
			UserID:      userID,
			UserName:    name,
			AuthorEmail: uploader.email,
			CompanyName: company,
			Module:      module,
			Branch:      rv.Branch,
			Release:     p.release("", ps.CreatedOn),
			Patch:       &record.Patch{ReviewID: rv.ID, Number: number, Revision: ps.Revision, Ref: ps.Ref},
		})

		for _, a := range ps.Approvals {
			reviewer := newIdentity(a.By.Email, a.By.Username, a.By.Name)
			_, userID, name, company, err := p.resolve(reviewer, a.GrantedOn)
			if err != nil {
				return nil, err
			}
			records = append(records, &record.Record{
				PrimaryKey:  fmt.Sprintf("%s:%d:%s:%s", rv.ID, number, reviewer.key(userID), a.Type),
				Type:        record.TypeMark,
				Date:        a.GrantedOn,
				UserID:      userID,
				UserName:    name,
				AuthorEmail: reviewer.email,
				CompanyName: company,
				Module:      module,
				Branch:      rv.Branch,
				Release:     p.release("", a.GrantedOn),
				Mark:        &record.Mark{ReviewID: rv.ID, Patch: number, Type: a.Type, Value: int(a.Value)},
			})
		}
	}
	return records, nil
}

// --------------------------------------------------------------------------
// Mailing List
// --------------------------------------------------------------------------

// processEmail guesses the module from the subject tags. A tag naming a
// module wins over the module of the event, "unknown" is the fallback.
func (p *Processor) processEmail(e *record.RawEmail) ([]*record.Record, error) {
	module := p.modules.guess(e.Subject)
	if module == "" {
		module = strings.ToLower(e.Module)
	}
	if module == "" {
		module = record.ModuleUnknown
	}

	var blueprints []string
	for _, m := range blueprintLinkRe.FindAllStringSubmatch(e.Body, -1) {
		if id := blueprintID(m[1], m[2]); !slices.Contains(blueprints, id) {
			blueprints = append(blueprints, id)
		}
	}

	id := newIdentity(e.AuthorEmail, "", e.AuthorName)
	_, userID, name, company, err := p.resolve(id, e.Date)
	if err != nil {
		return nil, err
	}
	return []*record.Record{{
		PrimaryKey:   e.MessageID,
		Type:         record.TypeEmail,
		Date:         e.Date,
		UserID:       userID,
		UserName:     name,
		AuthorEmail:  id.email,
		CompanyName:  company,
		Module:       module,
		Release:      p.release("", e.Date),
		BlueprintIDs: blueprints,
		Email:        &record.Email{MessageID: e.MessageID, Subject: e.Subject, Body: e.Body},
	}}, nil
}

// --------------------------------------------------------------------------
// Blueprints
// --------------------------------------------------------------------------

// processBlueprint emits a draft record for the owner and, once the
// blueprint is implemented, a completion record for the assignee.
func (p *Processor) processBlueprint(t record.Type, b *record.RawBlueprint) ([]*record.Record, error) {
	bpID := blueprintID(b.Module, b.Name)
	build := func(t record.Type, author string, date int64, status string) (*record.Record, error) {
		_, userID, name, company, err := p.resolve(newIdentity("", author, ""), date)
		if err != nil {
			return nil, err
		}
		return &record.Record{
			PrimaryKey:   string(t) + ":" + bpID,
			Type:         t,
			Date:         date,
			UserID:       userID,
			UserName:     name,
			CompanyName:  company,
			Module:       strings.ToLower(b.Module),
			Release:      p.release("", date),
			BlueprintIDs: []string{bpID},
			Blueprint: &record.Blueprint{
				ID:     bpID,
				Name:   b.Name,
				Title:  b.Title,
				Status: status,
			},
		}, nil
	}

	var records []*record.Record
	if t == record.TypeBlueprintDraft {
		r, err := build(record.TypeBlueprintDraft, b.Owner, b.DateCreated, b.DefinitionStatus)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	implemented := strings.EqualFold(b.ImplementationStatus, "implemented") && b.Assignee != "" && b.DateCompleted > 0
	if t == record.TypeBlueprintCompletion || implemented {
		r, err := build(record.TypeBlueprintCompletion, b.Assignee, b.DateCompleted, b.ImplementationStatus)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// --------------------------------------------------------------------------
// Members, Translations, CI
// --------------------------------------------------------------------------

// processMember keys the user by the directory id (ldap id if given, else
// member:<id>) and makes the draft company the user's only affiliation.
func (p *Processor) processMember(m *record.RawMember) ([]*record.Record, error) {
	externalID := m.LdapID
	if externalID == "" {
		externalID = "member:" + m.MemberID
	}
	id := newIdentity(m.Email, externalID, m.MemberName)
	u, err := p.resolveUser(id)
	if err != nil {
		return nil, err
	}

	company := p.independent
	if draft := strings.TrimSpace(m.CompanyDraft); draft != "" {
		company = draft
		if name, ok := p.companyAliases[strings.ToLower(draft)]; ok {
			company = name
		}
	}

	userID, name := record.UserAnonymous, id.name
	if u != nil {
		if id.name != "" {
			u.UserName = id.name
		}
		u.Companies = []record.Affiliation{{CompanyName: company}}
		if err := p.storage.StoreUser(u); err != nil {
			return nil, err
		}
		p.indexUser(u)
		userID, name = u.UserID, u.UserName
	}

	return []*record.Record{{
		PrimaryKey:  "member:" + m.MemberID,
		Type:        record.TypeMember,
		Date:        m.DateJoined,
		UserID:      userID,
		UserName:    name,
		AuthorEmail: id.email,
		CompanyName: company,
		Member:      &record.Member{MemberID: m.MemberID, MemberURI: m.MemberURI, Country: m.Country},
	}}, nil
}

func (p *Processor) processTranslation(t *record.RawTranslation) ([]*record.Record, error) {
	module := strings.ToLower(t.Module)
	if module == "" {
		module = strings.ToLower(t.Project)
	}
	_, userID, name, company, err := p.resolve(newIdentity("", t.UserID, ""), t.Date)
	if err != nil {
		return nil, err
	}
	return []*record.Record{{
		PrimaryKey:  fmt.Sprintf("i18n:%s:%s:%s:%d", strings.ToLower(t.UserID), module, t.Language, t.Date),
		Type:        record.TypeTranslation,
		Date:        t.Date,
		UserID:      userID,
		UserName:    name,
		CompanyName: company,
		Module:      module,
		Branch:      t.Branch,
		Release:     p.release("", t.Date),
		Translation: &record.Translation{
			Language:   t.Language,
			Project:    t.Project,
			Translated: t.Translated,
			Approved:   t.Approved,
		},
	}}, nil
}

// processCI attributes a CI vote to its driver. Drivers are not users, the
// record carries the driver's company.
func (p *Processor) processCI(c *record.RawCI) []*record.Record {
	company := c.DriverCompany
	if company == "" {
		company = p.independent
	}
	value := -1
	if c.Success {
		value = 1
	}
	patch := int(c.Patch)
	return []*record.Record{{
		PrimaryKey:  fmt.Sprintf("ci:%s:%d:%s", c.ReviewID, patch, c.DriverName),
		Type:        record.TypeCI,
		Date:        c.Date,
		UserID:      strings.ToLower(c.DriverName),
		UserName:    c.DriverName,
		CompanyName: company,
		Module:      strings.ToLower(c.Module),
		Branch:      c.Branch,
		Release:     p.release("", c.Date),
		CI:          &record.CI{ReviewID: c.ReviewID, Patch: patch, Driver: c.DriverName, Value: value, Message: c.Message},
	}}
}
