package processor

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/ValentinKolb/dStats/lib/record"
	gometrics "github.com/rcrowley/go-metrics"
)

const (
	// MarkCodeReview is the approval type core reviewers are recognized by
	MarkCodeReview = "Code-Review"

	// coreWindow is how far back from the newest mark a ±2 vote counts
	coreWindow = 90 * 24 * 60 * 60
)

// Finalize recomputes the facts that need the complete record set. It
// re-reads every record and user from the store, runs the phases in order
// and writes back the records that changed. It returns their number.
//
//  1. user rewrite
//  2. commit merge date
//  3. review numbering per module
//  4. core reviewer guess
//  5. disagreement fold
//  6. blueprint mention counting
func (p *Processor) Finalize() (int, error) {
	for u, err := range p.storage.GetAllUsers() {
		if err != nil {
			return 0, fmt.Errorf("finalize: load users: %w", err)
		}
		p.indexUser(u)
	}

	var records []*record.Record
	var before [][]byte
	for r, err := range p.storage.GetAllRecords() {
		if err != nil {
			return 0, fmt.Errorf("finalize: load records: %w", err)
		}
		if r.Deleted {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return 0, err
		}
		records = append(records, r)
		before = append(before, data)
	}
	log.Infof("finalizing %d records", len(records))

	p.phase("users", func() { p.rewriteUsers(records) })
	p.phase("merge_date", func() { mergeDates(records) })
	p.phase("review_numbers", func() { numberReviews(records) })
	var err error
	p.phase("core", func() { err = p.guessCore(records) })
	if err != nil {
		return 0, fmt.Errorf("finalize: store core reviewers: %w", err)
	}
	p.phase("disagreement", func() { p.foldDisagreement(records) })
	p.phase("mentions", func() { countMentions(records) })

	var changed []*record.Record
	for i, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return 0, err
		}
		if !bytes.Equal(data, before[i]) {
			changed = append(changed, r)
		}
	}
	n, err := p.storage.SetRecords(slices.Values(changed), record.MergeRecords)
	if err != nil {
		return n, fmt.Errorf("finalize: write records: %w", err)
	}
	log.Infof("finalize rewrote %d of %d records", n, len(records))
	return n, nil
}

// Timers returns the registry holding the finalize phase timers
func (p *Processor) Timers() gometrics.Registry {
	return p.timers
}

func (p *Processor) phase(name string, fn func()) {
	t := gometrics.GetOrRegisterTimer("finalize."+name, p.timers)
	start := time.Now()
	fn()
	t.UpdateSince(start)
	log.Infof("finalize phase %s took %s", name, time.Since(start))
}

// --------------------------------------------------------------------------
// Phases
// --------------------------------------------------------------------------

// rewriteUsers points every record at the current canonical user and
// recomputes its company. Members keep the affiliation of the directory.
// CI records and anonymous authors have no user.
func (p *Processor) rewriteUsers(records []*record.Record) {
	for _, r := range records {
		if r.Type == record.TypeCI || r.UserID == record.UserAnonymous {
			continue
		}
		u := p.lookupUser(r.UserID)
		if u == nil && r.AuthorEmail != "" {
			u = p.lookupUser(r.AuthorEmail)
		}
		if u == nil {
			log.Debugf("record %s: user %s is gone", r.PrimaryKey, r.UserID)
			continue
		}
		r.UserID = u.UserID
		if u.UserName != "" {
			r.UserName = u.UserName
		}
		if r.Type == record.TypeMember {
			r.CompanyName = companyByDate(u.Companies, r.Date)
		} else {
			r.CompanyName = p.companyFor(u, r.AuthorEmail, r.Date)
		}

		if r.Commit == nil {
			continue
		}
		for i, c := range r.Commit.Coauthors {
			if cu := p.lookupUser(c.AuthorEmail); cu != nil {
				r.Commit.Coauthors[i].UserID = cu.UserID
			}
		}
	}
}

// mergeDates dates a commit at the last update of the merged review it
// belongs to
func mergeDates(records []*record.Record) {
	merged := make(map[string]int64)
	for _, r := range records {
		if r.Review != nil && r.Review.Status == "MERGED" {
			merged[r.Review.ID] = r.Review.LastUpdated
		}
	}
	for _, r := range records {
		if r.Commit == nil {
			continue
		}
		for _, id := range r.Commit.ChangeIDs {
			if date, ok := merged[id]; ok && date != 0 {
				r.Date = date
				break
			}
		}
	}
}

// numberReviews numbers the reviews of every module from 1 by creation time
func numberReviews(records []*record.Record) {
	byModule := make(map[string][]*record.Record)
	for _, r := range records {
		if r.Review != nil {
			byModule[r.Module] = append(byModule[r.Module], r)
		}
	}
	for _, reviews := range byModule {
		slices.SortFunc(reviews, func(a, b *record.Record) int {
			return cmp.Or(cmp.Compare(a.Review.CreatedOn, b.Review.CreatedOn), cmp.Compare(a.PrimaryKey, b.PrimaryKey))
		})
		for i, r := range reviews {
			r.Review.ReviewNumber = i + 1
		}
	}
}

// guessCore makes every user who cast a ±2 code review vote within
// coreWindow of the newest mark a core reviewer of that module branch.
// Users whose core list changed are stored.
func (p *Processor) guessCore(records []*record.Record) error {
	var newest int64
	for _, r := range records {
		if r.Mark != nil {
			newest = max(newest, r.Date)
		}
	}

	core := make(map[string][]record.CoreEntry)
	for _, r := range records {
		m := r.Mark
		if m == nil || m.Type != MarkCodeReview || (m.Value != 2 && m.Value != -2) || r.Date < newest-coreWindow {
			continue
		}
		entry := record.CoreEntry{Module: r.Module, Branch: r.Branch}
		if !slices.Contains(core[r.UserID], entry) {
			core[r.UserID] = append(core[r.UserID], entry)
		}
	}

	seen := make(map[uint64]bool)
	for _, u := range p.users {
		if seen[u.Seq] {
			continue
		}
		seen[u.Seq] = true
		entries := core[u.UserID]
		slices.SortFunc(entries, func(a, b record.CoreEntry) int {
			return cmp.Or(cmp.Compare(a.Module, b.Module), cmp.Compare(a.Branch, b.Branch))
		})
		if slices.Equal(entries, u.Core) {
			continue
		}
		u.Core = entries
		if err := p.storage.StoreUser(u); err != nil {
			return err
		}
	}
	return nil
}

// foldDisagreement flags every core code review mark whose sign differs from
// the previous core mark on the same review. Marks are folded in time order;
// non-core marks neither get flagged nor reset the fold.
func (p *Processor) foldDisagreement(records []*record.Record) {
	byReview := make(map[string][]*record.Record)
	for _, r := range records {
		if r.Mark == nil {
			continue
		}
		r.Mark.Disagreement = false
		if r.Mark.Type == MarkCodeReview && r.Mark.Value != 0 {
			byReview[r.Mark.ReviewID] = append(byReview[r.Mark.ReviewID], r)
		}
	}

	for _, marks := range byReview {
		slices.SortFunc(marks, func(a, b *record.Record) int {
			return cmp.Or(cmp.Compare(a.Date, b.Date), cmp.Compare(a.PrimaryKey, b.PrimaryKey))
		})
		last := 0
		for _, r := range marks {
			u := p.lookupUser(r.UserID)
			if u == nil || !u.IsCore(r.Module, r.Branch) {
				continue
			}
			if last != 0 && (last > 0) != (r.Mark.Value > 0) {
				r.Mark.Disagreement = true
			}
			last = r.Mark.Value
		}
	}
}

// countMentions drops references to unknown blueprints and counts the
// remaining references of every non-review record on the blueprint records
func countMentions(records []*record.Record) {
	type mention struct {
		count int
		date  int64
	}
	mentions := make(map[string]*mention)
	for _, r := range records {
		if r.Blueprint != nil {
			mentions[r.Blueprint.ID] = &mention{}
		}
	}

	for _, r := range records {
		if r.IsBlueprint() || len(r.BlueprintIDs) == 0 {
			continue
		}
		ids := slices.DeleteFunc(slices.Clone(r.BlueprintIDs), func(id string) bool {
			return mentions[id] == nil
		})
		if len(ids) != len(r.BlueprintIDs) {
			log.Debugf("record %s: dropping %d unknown blueprints", r.PrimaryKey, len(r.BlueprintIDs)-len(ids))
			r.BlueprintIDs = ids
			if len(ids) == 0 {
				r.BlueprintIDs = nil
			}
		}
		if r.Review != nil {
			continue
		}
		for _, id := range ids {
			m := mentions[id]
			m.count++
			m.date = max(m.date, r.Date)
		}
	}

	for _, r := range records {
		if r.Blueprint == nil {
			continue
		}
		m := mentions[r.Blueprint.ID]
		r.Blueprint.MentionCount = m.count
		r.Blueprint.MentionDate = m.date
	}
}
