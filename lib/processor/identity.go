package processor

import (
	"regexp"
	"slices"
	"strings"

	"github.com/ValentinKolb/dStats/lib/record"
	"golang.org/x/text/unicode/norm"
)

var emailRe = regexp.MustCompile(`^[\w.-]+@([\w.-]+\.)+\w+$`)

// identity is what an event tells about its author
type identity struct {
	email      string
	externalID string
	name       string
}

func newIdentity(email, externalID, name string) identity {
	return identity{
		email:      strings.ToLower(strings.TrimSpace(email)),
		externalID: strings.ToLower(strings.TrimSpace(externalID)),
		name:       norm.NFC.String(strings.TrimSpace(name)),
	}
}

// key is the stable name of the identity in primary keys: the external id,
// else the email. Resolved user ids change when users merge, these do not.
func (id identity) key(fallback string) string {
	switch {
	case id.externalID != "":
		return id.externalID
	case id.email != "":
		return id.email
	}
	return fallback
}

// --------------------------------------------------------------------------
// Company Resolution
// --------------------------------------------------------------------------

// domainIndex maps email domains to company names
type domainIndex map[string]string

// companyByEmail returns the company of the longest domain suffix of email
// that is known, "" if none is. Suffixes have at least two labels.
func (di domainIndex) companyByEmail(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return ""
	}
	parts := strings.Split(strings.ToLower(domain), ".")
	for i := 0; i < len(parts)-1; i++ {
		if company, ok := di[strings.Join(parts[i:], ".")]; ok {
			return company
		}
	}
	return ""
}

// companyByDate returns the affiliation in effect at date: the first entry
// (ascending end date, open-ended last) whose end date lies after date, else
// the last entry.
func companyByDate(companies []record.Affiliation, date int64) string {
	if len(companies) == 0 {
		return record.CompanyIndependent
	}
	for _, c := range companies {
		if c.EndDate != 0 && date < c.EndDate {
			return c.CompanyName
		}
	}
	return companies[len(companies)-1].CompanyName
}

// companyFor resolves the company of an event of u sent from email at date.
// A known email domain wins over the user's history.
func (p *Processor) companyFor(u *record.User, email string, date int64) string {
	if company := p.domains.companyByEmail(email); company != "" {
		return company
	}
	if u == nil {
		return p.independent
	}
	return companyByDate(u.Companies, date)
}

// --------------------------------------------------------------------------
// User Resolution
// --------------------------------------------------------------------------

// resolveUser finds or creates the user behind id. Unknown identities become
// new users, a known directory id with a new email gains the email and two
// known users proven to be the same are merged. It returns nil for an
// identity that has neither a valid email nor an external id.
func (p *Processor) resolveUser(id identity) (*record.User, error) {
	if id.email != "" && !emailRe.MatchString(id.email) {
		log.Debugf("invalid email %q", id.email)
		id.email = ""
	}
	if id.email == "" && id.externalID == "" {
		return nil, nil
	}

	var byEmail, byExt *record.User
	if id.email != "" {
		byEmail = p.users[id.email]
	}
	if id.externalID != "" {
		byExt = p.users[id.externalID]
	}

	switch {
	case byEmail == nil && byExt == nil:
		return p.createUser(id)

	case byExt == nil:
		changed := false
		if id.externalID != "" && byEmail.ExternalID == "" {
			byEmail.ExternalID = id.externalID
			changed = true
		}
		return byEmail, p.refreshUser(byEmail, id, changed)

	case byEmail == nil:
		changed := byExt.AddEmail(id.email)
		return byExt, p.refreshUser(byExt, id, changed)

	case byEmail.Seq == byExt.Seq:
		return byEmail, p.refreshUser(byEmail, id, false)

	case byEmail.ExternalID != "" && byEmail.ExternalID != byExt.ExternalID:
		// two directory ids claim the email, trust the directory id
		log.Warningf("email %s belongs to %s but was used by %s", id.email, byEmail.UserID, byExt.UserID)
		return byExt, nil

	default:
		return p.mergeUsers(byEmail, byExt)
	}
}

func (p *Processor) createUser(id identity) (*record.User, error) {
	company := p.domains.companyByEmail(id.email)
	if company == "" {
		company = p.independent
	}
	u := &record.User{
		ExternalID: id.externalID,
		UserName:   id.name,
		Companies:  []record.Affiliation{{CompanyName: company}},
	}
	if id.email != "" {
		u.Emails = []string{id.email}
	}
	if err := p.storage.StoreUser(u); err != nil {
		return nil, err
	}
	p.indexUser(u)
	usersCreated.Inc()
	log.Debugf("created user %s (seq %d, %s)", u.UserID, u.Seq, company)
	return u, nil
}

// refreshUser fills a missing name and persists u if anything changed
func (p *Processor) refreshUser(u *record.User, id identity, changed bool) error {
	if u.UserName == "" && id.name != "" {
		u.UserName = id.name
		changed = true
	}
	if !changed {
		return nil
	}
	if err := p.storage.StoreUser(u); err != nil {
		return err
	}
	p.indexUser(u)
	return nil
}

// mergeUsers folds the younger of a and b into the older one. The survivor
// takes all emails, the external id and the company history of the other.
// Records of the merged user are rewritten by Finalize.
func (p *Processor) mergeUsers(a, b *record.User) (*record.User, error) {
	survivor, merged := a, b
	if b.Seq < a.Seq {
		survivor, merged = b, a
	}
	log.Infof("merging user %s (seq %d) into %s (seq %d)", merged.UserID, merged.Seq, survivor.UserID, survivor.Seq)

	if survivor.ExternalID == "" {
		survivor.ExternalID = merged.ExternalID
	}
	if survivor.UserName == "" {
		survivor.UserName = merged.UserName
	}
	for _, e := range merged.Emails {
		survivor.AddEmail(e)
	}
	survivor.Companies = mergeAffiliations(survivor.Companies, merged.Companies, p.independent)
	for _, c := range merged.Core {
		if !slices.Contains(survivor.Core, c) {
			survivor.Core = append(survivor.Core, c)
		}
	}

	if err := p.storage.StoreUser(survivor); err != nil {
		return nil, err
	}
	if err := p.storage.DeleteUser(merged); err != nil {
		return nil, err
	}
	p.mergedIDs[merged.UserID] = survivor
	for _, key := range []string{merged.UserID, merged.ExternalID} {
		if key != "" {
			p.users[key] = survivor
		}
	}
	p.indexUser(survivor)
	return survivor, nil
}

// mergeAffiliations combines two company histories. Independent entries are
// dropped if a real company is known.
func mergeAffiliations(a, b []record.Affiliation, independent string) []record.Affiliation {
	out := make([]record.Affiliation, 0, len(a)+len(b))
	for _, c := range slices.Concat(a, b) {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	known := slices.DeleteFunc(slices.Clone(out), func(c record.Affiliation) bool {
		return c.CompanyName == independent
	})
	if len(known) > 0 {
		out = known
	}
	record.SortAffiliations(out)
	return out
}

// indexUser points every identifier of u at u
func (p *Processor) indexUser(u *record.User) {
	p.users[u.UserID] = u
	if u.ExternalID != "" {
		p.users[u.ExternalID] = u
	}
	for _, e := range u.Emails {
		p.users[e] = u
	}
}

// lookupUser finds a user by any identifier, falling back to the store
func (p *Processor) lookupUser(key string) *record.User {
	key = strings.ToLower(key)
	if u, ok := p.users[key]; ok {
		return u
	}
	if u, ok := p.mergedIDs[key]; ok {
		return u
	}
	u, err := p.storage.GetUser(key)
	if err != nil {
		return nil
	}
	p.indexUser(u)
	return u
}
