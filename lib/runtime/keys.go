package runtime

import (
	"net/url"
	"strconv"
)

// Key families of the record store. Counters hold decimal ASCII values.
const (
	keyRecordCount     = "record:count"
	keyUpdateCount     = "update:count"
	keyUserCount       = "user:count"
	keyPIDs            = "pids"
	keyFirstValidEntry = "first_valid_update_id"

	prefixRecord     = "record:"
	prefixUpdate     = "update:"
	prefixPrimaryKey = "primary_key:"
	prefixPID        = "pid:"
	prefixUser       = "user:"

	// WriterLockKey is the lease that guards the single writer of a store.
	WriterLockKey = "lock:writer"
)

// Setting keys written by the ingest pipeline.
const (
	SettingReleases  = "releases"
	SettingRepos     = "repos"
	SettingCompanies = "companies"
)

func recordKey(id uint64) string { return prefixRecord + strconv.FormatUint(id, 10) }
func updateKey(pos uint64) string { return prefixUpdate + strconv.FormatUint(pos, 10) }
func primaryKeyKey(pk string) string { return prefixPrimaryKey + pk }
func pidKey(pid string) string { return prefixPID + pid }
func userSeqKey(seq uint64) string { return prefixUser + strconv.FormatUint(seq, 10) }
func userIndexKey(key string) string { return prefixUser + key }

// CursorKind names a family of per-source cursors.
type CursorKind string

const (
	CursorVCS CursorKind = "vcs" // last seen head commit of a repository branch
	CursorRCS CursorKind = "rcs" // last seen review update of a repository branch
)

func cursorKey(kind CursorKind, uri, branch string) string {
	return string(kind) + ":" + url.QueryEscape(uri) + ":" + branch
}
