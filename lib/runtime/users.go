package runtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/ValentinKolb/dStats/lib/record"
)

// --------------------------------------------------------------------------
// Users
// --------------------------------------------------------------------------

// Users live under user:<seq>. Every user id, email and external id of a
// user points to the seq under user:<key>.

// GetUser looks up a user by seq, user id, email or external id. Unknown
// keys return ErrNotFound.
func (s *Storage) GetUser(key string) (*record.User, error) {
	key = strings.ToLower(key)
	data, ok, err := s.store.Get(userIndexKey(key))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %q: %w", key, ErrNotFound)
	}
	if bytes.HasPrefix(data, []byte("{")) {
		// key was a seq
		return record.DecodeUser(data)
	}

	seq, err := parseCounter(userIndexKey(key), data)
	if err != nil {
		return nil, err
	}
	data, ok, err = s.store.Get(userSeqKey(seq))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %q (seq %d): %w", key, seq, ErrNotFound)
	}
	return record.DecodeUser(data)
}

// StoreUser normalizes and writes u. A user without seq gets the next one.
// All identifiers of u are (re)pointed to its seq.
func (s *Storage) StoreUser(u *record.User) error {
	u.Normalize()
	if u.UserID == "" {
		return fmt.Errorf("store user: user has neither external id nor email")
	}
	if u.Seq == 0 {
		seq, err := s.store.Incr(keyUserCount, 1)
		if err != nil {
			return fmt.Errorf("allocate user seq: %w", err)
		}
		u.Seq = seq
	}

	data, err := record.EncodeUser(u)
	if err != nil {
		return err
	}
	seq := formatCounter(u.Seq)
	entries := map[string][]byte{userSeqKey(u.Seq): data}
	for _, key := range userKeys(u) {
		entries[userIndexKey(key)] = seq
	}
	return s.store.SetMulti(entries)
}

// DeleteUser clears the slot of u and every identifier that still points to it.
func (s *Storage) DeleteUser(u *record.User) error {
	keys := userKeys(u)
	indexKeys := make([]string, len(keys))
	for i, key := range keys {
		indexKeys[i] = userIndexKey(key)
	}
	values, err := s.getMulti(indexKeys)
	if err != nil {
		return err
	}

	seq := formatCounter(u.Seq)
	remove := []string{userSeqKey(u.Seq)}
	for _, key := range indexKeys {
		if v, ok := values[key]; ok && bytes.Equal(v, seq) {
			remove = append(remove, key)
		}
	}
	return s.store.DeleteMulti(remove)
}

// GetAllUsers iterates over all users in seq order.
func (s *Storage) GetAllUsers() iter.Seq2[*record.User, error] {
	return func(yield func(*record.User, error) bool) {
		count, err := s.counter(keyUserCount)
		if err != nil {
			yield(nil, err)
			return
		}
		seqs := idRange(1, count+1)
		for start := 0; start < len(seqs); start += readBatchSize {
			chunk := seqs[start:min(start+readBatchSize, len(seqs))]
			keys := make([]string, len(chunk))
			for i, seq := range chunk {
				keys[i] = userSeqKey(seq)
			}
			values, err := s.store.GetMulti(keys)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, key := range keys {
				data, ok := values[key]
				if !ok {
					continue
				}
				u, err := record.DecodeUser(data)
				if !yield(u, err) || err != nil {
					return
				}
			}
		}
	}
}

// UserCorrection overrides fields of the user known as UserID. Fields is a
// JSON object in the stored user layout (e.g. {"companies": [...]}).
type UserCorrection struct {
	UserID string
	Fields json.RawMessage
}

// ApplyUserCorrections patches stored users. The seq cannot be overridden.
// Identifiers dropped by a patch no longer resolve to the user. Corrections
// without user id, for unknown users or leaving the user without any id are
// logged and skipped. It returns the number of changed users.
func (s *Storage) ApplyUserCorrections(corrections []UserCorrection) (int, error) {
	n := 0
	for _, c := range corrections {
		if c.UserID == "" {
			log.Warningf("skipping user correction: %v", ErrMissingUserID)
			continue
		}
		existing, err := s.GetUser(c.UserID)
		if errors.Is(err, ErrNotFound) {
			log.Warningf("skipping user correction for unknown user %q", c.UserID)
			continue
		}
		if err != nil {
			return n, err
		}

		next := existing.Clone()
		if err := json.Unmarshal(c.Fields, next); err != nil {
			log.Warningf("skipping user correction for %q: %v", c.UserID, err)
			continue
		}
		next.Seq = existing.Seq
		// the user id follows from the external id and emails
		next.UserID = ""
		next.Normalize()
		if next.UserID == "" {
			log.Warningf("skipping user correction for %q: no id left", c.UserID)
			continue
		}

		before, err := record.EncodeUser(existing)
		if err != nil {
			return n, err
		}
		after, err := record.EncodeUser(next)
		if err != nil {
			return n, err
		}
		if bytes.Equal(before, after) {
			continue
		}

		if err := s.StoreUser(next); err != nil {
			return n, err
		}
		if err := s.dropUserKeys(next.Seq, userKeys(existing), userKeys(next)); err != nil {
			return n, err
		}
		n++
	}
	userCorrections.Add(n)
	return n, nil
}

// dropUserKeys removes the index keys in old but not in kept that still point to seq
func (s *Storage) dropUserKeys(seq uint64, old, kept []string) error {
	var stale []string
	for _, key := range old {
		if !slices.Contains(kept, key) {
			stale = append(stale, userIndexKey(key))
		}
	}
	if len(stale) == 0 {
		return nil
	}
	values, err := s.getMulti(stale)
	if err != nil {
		return err
	}
	want := formatCounter(seq)
	var remove []string
	for _, key := range stale {
		if v, ok := values[key]; ok && bytes.Equal(v, want) {
			remove = append(remove, key)
		}
	}
	if len(remove) == 0 {
		return nil
	}
	return s.store.DeleteMulti(remove)
}

// UserCount returns the number of user seqs handed out so far.
func (s *Storage) UserCount() (uint64, error) {
	return s.counter(keyUserCount)
}

func userKeys(u *record.User) []string {
	keys := make([]string, 0, len(u.Emails)+2)
	add := func(k string) {
		if k == "" {
			return
		}
		for _, existing := range keys {
			if existing == k {
				return
			}
		}
		keys = append(keys, k)
	}
	add(u.UserID)
	add(u.ExternalID)
	for _, e := range u.Emails {
		add(e)
	}
	return keys
}
