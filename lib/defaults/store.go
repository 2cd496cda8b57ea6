package defaults

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dStats/lib/record"
	"github.com/ValentinKolb/dStats/lib/runtime"
)

// Store writes the release, repo and company tables as settings and merges
// the user table into the stored users. A stored user found by any of the
// default user's identifiers keeps its seq and gains the new emails; the
// company history and name of the defaults win.
func (d *Defaults) Store(s *runtime.Storage) error {
	settings := map[string]any{
		runtime.SettingReleases:  d.Releases,
		runtime.SettingRepos:     d.Repos,
		runtime.SettingCompanies: d.Companies,
	}
	for key, v := range settings {
		if err := s.SetSetting(key, v); err != nil {
			return err
		}
	}

	for _, u := range d.RecordUsers() {
		existing, err := findUser(s, u)
		if err != nil {
			return err
		}
		if existing != nil {
			u.Seq = existing.Seq
			u.Core = existing.Core
			for _, e := range existing.Emails {
				u.AddEmail(e)
			}
		}
		if err := s.StoreUser(u); err != nil {
			return fmt.Errorf("store default user %q: %w", u.UserID, err)
		}
	}
	log.Infof("stored defaults: %d releases, %d repos, %d companies, %d users",
		len(d.Releases), len(d.Repos), len(d.Companies), len(d.Users))
	return nil
}

// LoadStored reads the tables written by Store. Users are not part of the
// result, they are read through the runtime storage.
func LoadStored(s *runtime.Storage) (*Defaults, error) {
	d := new(Defaults)
	targets := map[string]any{
		runtime.SettingReleases:  &d.Releases,
		runtime.SettingRepos:     &d.Repos,
		runtime.SettingCompanies: &d.Companies,
	}
	for key, v := range targets {
		if _, err := s.GetSetting(key, v); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func findUser(s *runtime.Storage, u *record.User) (*record.User, error) {
	keys := append([]string{u.ExternalID}, u.Emails...)
	for _, key := range keys {
		if key == "" {
			continue
		}
		existing, err := s.GetUser(key)
		if errors.Is(err, runtime.ErrNotFound) {
			continue
		}
		return existing, err
	}
	return nil, nil
}
