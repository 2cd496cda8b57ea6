package defaults

import (
	"bytes"
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/ValentinKolb/dStats/lib/record"
	"github.com/lni/dragonboat/v4/logger"
	"gopkg.in/yaml.v3"
)

var log = logger.GetLogger("defaults")

// Defaults are the static tables that seed identity resolution.
type Defaults struct {
	Releases  []Release `yaml:"releases" json:"releases"`
	Repos     []Repo    `yaml:"repos" json:"repos"`
	Companies []Company `yaml:"companies" json:"companies"`
	Users     []User    `yaml:"users" json:"users"`
}

type Release struct {
	Name    string `yaml:"release_name" json:"release_name"`
	EndDate Date   `yaml:"end_date" json:"end_date"`
}

// RepoRelease maps a release to a tag range of a repository.
type RepoRelease struct {
	Name    string `yaml:"release_name" json:"release_name"`
	Branch  string `yaml:"branch" json:"branch,omitempty"`
	TagFrom string `yaml:"tag_from" json:"tag_from,omitempty"`
	TagTo   string `yaml:"tag_to" json:"tag_to,omitempty"`
}

type Repo struct {
	URI          string        `yaml:"uri" json:"uri"`
	Module       string        `yaml:"module" json:"module"`
	Organization string        `yaml:"organization" json:"organization"`
	Aliases      []string      `yaml:"aliases" json:"aliases,omitempty"`
	Releases     []RepoRelease `yaml:"releases" json:"releases,omitempty"`
}

type Company struct {
	Name    string   `yaml:"company_name" json:"company_name"`
	Domains []string `yaml:"domains" json:"domains"`
	Aliases []string `yaml:"aliases" json:"aliases,omitempty"`
}

type UserCompany struct {
	CompanyName string `yaml:"company_name" json:"company_name"`
	EndDate     Date   `yaml:"end_date" json:"end_date"`
}

type User struct {
	ExternalID string        `yaml:"launchpad_id" json:"launchpad_id"`
	UserName   string        `yaml:"user_name" json:"user_name"`
	Emails     []string      `yaml:"emails" json:"emails"`
	Companies  []UserCompany `yaml:"companies" json:"companies"`
}

// --------------------------------------------------------------------------
// Loading
// --------------------------------------------------------------------------

// Load decodes and normalizes defaults from YAML (or JSON, which is valid YAML).
func Load(r io.Reader) (*Defaults, error) {
	d := new(Defaults)
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(d); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode defaults: %w", err)
	}
	d.Normalize()
	return d, nil
}

// LoadFile loads defaults from a file.
func LoadFile(path string) (*Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}
	return Load(bytes.NewReader(data))
}

// Normalize lower-cases module and release names, sorts releases by end
// date, drops users without any email and points users at unknown
// companies to the independent sentinel.
func (d *Defaults) Normalize() {
	for i := range d.Releases {
		d.Releases[i].Name = strings.ToLower(d.Releases[i].Name)
	}
	// open ended releases (end date 0) go last
	slices.SortStableFunc(d.Releases, func(a, b Release) int {
		switch {
		case a.EndDate == b.EndDate:
			return 0
		case a.EndDate == 0:
			return 1
		case b.EndDate == 0:
			return -1
		}
		return cmp.Compare(a.EndDate, b.EndDate)
	})

	for i := range d.Repos {
		repo := &d.Repos[i]
		repo.Module = strings.ToLower(repo.Module)
		for j := range repo.Aliases {
			repo.Aliases[j] = strings.ToLower(repo.Aliases[j])
		}
		for j := range repo.Releases {
			repo.Releases[j].Name = strings.ToLower(repo.Releases[j].Name)
		}
	}

	known := make(map[string]bool, len(d.Companies))
	for i := range d.Companies {
		c := &d.Companies[i]
		known[strings.ToLower(c.Name)] = true
		for j := range c.Domains {
			c.Domains[j] = strings.ToLower(c.Domains[j])
		}
	}

	users := d.Users[:0]
	for _, u := range d.Users {
		if len(u.Emails) == 0 {
			log.Warningf("skipping user without emails: %q", u.ExternalID)
			continue
		}
		for j := range u.Companies {
			name := u.Companies[j].CompanyName
			if !known[strings.ToLower(name)] && name != record.CompanyIndependent {
				log.Warningf("user %q: unknown company %q, using %s", u.Emails[0], name, record.CompanyIndependent)
				u.Companies[j].CompanyName = record.CompanyIndependent
			}
		}
		users = append(users, u)
	}
	d.Users = users
}

// RecordUsers converts the user table into normalized record.User values.
func (d *Defaults) RecordUsers() []*record.User {
	out := make([]*record.User, 0, len(d.Users))
	for _, u := range d.Users {
		ru := &record.User{
			ExternalID: u.ExternalID,
			UserName:   u.UserName,
			Emails:     slices.Clone(u.Emails),
		}
		for _, c := range u.Companies {
			ru.Companies = append(ru.Companies, record.Affiliation{CompanyName: c.CompanyName, EndDate: int64(c.EndDate)})
		}
		if len(ru.Companies) == 0 {
			ru.Companies = []record.Affiliation{{CompanyName: record.CompanyIndependent}}
		}
		ru.Normalize()
		out = append(out, ru)
	}
	return out
}

// ReleaseAt returns the name of the release a change dated at date belongs
// to: the first release whose end date lies after date. It returns "" if
// date is past every release.
func (d *Defaults) ReleaseAt(date int64) string {
	for _, r := range d.Releases {
		if int64(r.EndDate) > date || r.EndDate == 0 {
			return r.Name
		}
	}
	return ""
}
