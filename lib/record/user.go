package record

import (
	"slices"
	"strings"
)

// Affiliation is one entry of a user's employment history. EndDate 0 means
// the affiliation is still current.
type Affiliation struct {
	CompanyName string `json:"company_name"`
	EndDate     int64  `json:"end_date"`
}

// CoreEntry marks a user as core reviewer of a module branch.
type CoreEntry struct {
	Module string `json:"module"`
	Branch string `json:"branch"`
}

// User is a canonical contributor identity.
type User struct {
	Seq        uint64        `json:"seq"`
	UserID     string        `json:"user_id"`
	ExternalID string        `json:"external_id,omitempty"`
	UserName   string        `json:"user_name,omitempty"`
	Emails     []string      `json:"emails,omitempty"`
	Companies  []Affiliation `json:"companies,omitempty"`
	Core       []CoreEntry   `json:"core,omitempty"`
}

// Normalize lower-cases ids and emails, drops duplicate emails, sorts the
// companies by end date (open-ended last) and derives UserID.
func (u *User) Normalize() {
	u.ExternalID = strings.ToLower(strings.TrimSpace(u.ExternalID))
	emails := make([]string, 0, len(u.Emails))
	for _, e := range u.Emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !slices.Contains(emails, e) {
			emails = append(emails, e)
		}
	}
	u.Emails = emails
	SortAffiliations(u.Companies)

	switch {
	case u.ExternalID != "":
		u.UserID = u.ExternalID
	case len(u.Emails) > 0:
		u.UserID = u.Emails[0]
	default:
		u.UserID = strings.ToLower(u.UserID)
	}
}

// HasEmail reports whether email (case-insensitive) belongs to u.
func (u *User) HasEmail(email string) bool {
	return slices.Contains(u.Emails, strings.ToLower(email))
}

// AddEmail appends email if it is not yet known and reports whether u changed.
func (u *User) AddEmail(email string) bool {
	email = strings.ToLower(email)
	if email == "" || u.HasEmail(email) {
		return false
	}
	u.Emails = append(u.Emails, email)
	return true
}

// IsCore reports whether u is core reviewer of module on branch.
func (u *User) IsCore(module, branch string) bool {
	return slices.Contains(u.Core, CoreEntry{Module: module, Branch: branch})
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	c := *u
	c.Emails = slices.Clone(u.Emails)
	c.Companies = slices.Clone(u.Companies)
	c.Core = slices.Clone(u.Core)
	return &c
}

// SortAffiliations orders companies by ascending end date with open-ended (0) entries last.
// The sort is stable so equal end dates keep their order.
func SortAffiliations(companies []Affiliation) {
	slices.SortStableFunc(companies, func(a, b Affiliation) int {
		return compareEndDate(a.EndDate, b.EndDate)
	})
}

func compareEndDate(a, b int64) int {
	switch {
	case a == b:
		return 0
	case a == 0:
		return 1
	case b == 0:
		return -1
	case a < b:
		return -1
	default:
		return 1
	}
}
