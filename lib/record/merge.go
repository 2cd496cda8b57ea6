package record

import (
	"bytes"
	"encoding/json"
	"slices"
)

// MergeFunc merges incoming into existing in place and reports whether
// existing changed. Record id, primary key and type of existing are kept.
type MergeFunc func(existing, incoming *Record) (changed bool)

// MergeCommitBranches unions the branch sets of two observations of the same
// commit. Every other field of existing stays as it is, so merging a subset
// of the known branches is a no-op.
func MergeCommitBranches(existing, incoming *Record) bool {
	if existing.Commit == nil || incoming.Commit == nil {
		return false
	}
	merged := unionSorted(existing.Commit.Branches, incoming.Commit.Branches)
	if slices.Equal(merged, existing.Commit.Branches) {
		return false
	}
	existing.Commit.Branches = merged
	return true
}

// MergeSource refreshes existing with a new crawl of the same source object.
// Commits are immutable apart from their branch set. Every other type takes
// the source fields of incoming but keeps what Finalize owns: the resolved
// user and company, the checked blueprint references, the review number,
// the disagreement flag and the mention counters. Member records take the
// company of incoming since the member directory is its source. A record
// retracted by a correction stays retracted.
func MergeSource(existing, incoming *Record) bool {
	if existing.Type == TypeCommit {
		return MergeCommitBranches(existing, incoming)
	}

	next := incoming.Clone()
	next.UserID = existing.UserID
	next.UserName = existing.UserName
	if existing.Type != TypeMember {
		next.CompanyName = existing.CompanyName
	}
	next.BlueprintIDs = slices.Clone(existing.BlueprintIDs)
	next.Deleted = existing.Deleted
	if existing.Review != nil && next.Review != nil {
		next.Review.ReviewNumber = existing.Review.ReviewNumber
	}
	if existing.Mark != nil && next.Mark != nil {
		next.Mark.Disagreement = existing.Mark.Disagreement
	}
	if existing.Blueprint != nil && next.Blueprint != nil {
		next.Blueprint.MentionCount = existing.Blueprint.MentionCount
		next.Blueprint.MentionDate = existing.Blueprint.MentionDate
	}
	return replace(existing, next)
}

// MergeRecords overwrites existing with every field of incoming. Commit
// branches are unioned instead of overwritten. It reports a change only if
// the stored form of existing differs afterwards.
func MergeRecords(existing, incoming *Record) bool {
	next := incoming.Clone()
	if existing.Commit != nil && next.Commit != nil {
		next.Commit.Branches = unionSorted(existing.Commit.Branches, next.Commit.Branches)
	}
	return replace(existing, next)
}

// replace moves next into existing under the identity of existing if their
// stored forms differ
func replace(existing, next *Record) bool {
	next.RecordID = existing.RecordID
	next.PrimaryKey = existing.PrimaryKey
	next.Type = existing.Type

	before, err1 := json.Marshal(existing)
	after, err2 := json.Marshal(next)
	if err1 == nil && err2 == nil && bytes.Equal(before, after) {
		return false
	}
	*existing = *next
	return true
}

// unionSorted returns the sorted union of a and b without duplicates
func unionSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.Sort(out)
	return slices.Compact(out)
}
