package memstore

import (
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/ValentinKolb/dStats/lib/record"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/text/cases"
)

var log = logger.GetLogger("memstore")

// ModuleRelease is the key of the (module, release) index.
type ModuleRelease struct {
	Module  string
	Release string
}

// fieldIndex maps a field value to the ids of the records carrying it
type fieldIndex[K comparable] map[K]IDSet

func (fi fieldIndex[K]) add(key K, id uint64) {
	set, ok := fi[key]
	if !ok {
		set = make(IDSet)
		fi[key] = set
	}
	set[id] = struct{}{}
}

// remove drops id from key and reports whether the key became empty
func (fi fieldIndex[K]) remove(key K, id uint64) bool {
	set, ok := fi[key]
	if !ok {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(fi, key)
		return true
	}
	return false
}

// union of the sets of all keys
func (fi fieldIndex[K]) union(keys ...K) IDSet {
	out := make(IDSet)
	for _, key := range keys {
		for id := range fi[key] {
			out[id] = struct{}{}
		}
	}
	return out
}

// Index is the in-memory multi-index of a reader. It holds every indexed
// record by id and one set index per field. Records of the robots company
// and tombstones are never indexed.
//
// All methods are safe for concurrent use.
type Index struct {
	mu sync.RWMutex

	records      map[uint64]*record.Record
	primaryKeys  map[string]uint64
	modules      fieldIndex[string]
	types        fieldIndex[record.Type]
	companies    fieldIndex[string] // original company name
	userIDs      fieldIndex[string]
	releases     fieldIndex[string]
	moduleRel    fieldIndex[ModuleRelease]
	blueprintIDs fieldIndex[string]

	// case folded company name -> first seen original name
	companyNames map[string]string
}

// New returns an empty index.
func New() *Index {
	return &Index{
		records:      make(map[uint64]*record.Record),
		primaryKeys:  make(map[string]uint64),
		modules:      make(fieldIndex[string]),
		types:        make(fieldIndex[record.Type]),
		companies:    make(fieldIndex[string]),
		userIDs:      make(fieldIndex[string]),
		releases:     make(fieldIndex[string]),
		moduleRel:    make(fieldIndex[ModuleRelease]),
		blueprintIDs: make(fieldIndex[string]),
		companyNames: make(map[string]string),
	}
}

// foldCompany normalizes a company name for case insensitive lookups
func foldCompany(name string) string {
	// a Caser is stateful, so every call gets its own
	return cases.Fold().String(name)
}

// --------------------------------------------------------------------------
// Update
// --------------------------------------------------------------------------

// Update merges records into the index. A record already indexed under its
// id is removed from every index first and then inserted with its current
// field values. It reports whether the index changed.
func (idx *Index) Update(records iter.Seq[*record.Record]) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	changed := false
	added, removed := 0, 0
	for r := range records {
		if old, ok := idx.records[r.RecordID]; ok {
			idx.remove(old)
			removed++
			changed = true
		}
		if r.Deleted || r.CompanyName == record.CompanyRobots {
			continue
		}
		idx.insert(r)
		added++
		changed = true
	}
	if changed {
		log.Debugf("index update: %d removed, %d inserted, %d records", removed, added, len(idx.records))
	}
	return changed
}

func (idx *Index) insert(r *record.Record) {
	id := r.RecordID
	idx.records[id] = r
	idx.primaryKeys[r.PrimaryKey] = id
	idx.types.add(r.Type, id)
	if r.Module != "" {
		idx.modules.add(r.Module, id)
	}
	if r.CompanyName != "" {
		idx.companies.add(r.CompanyName, id)
		folded := foldCompany(r.CompanyName)
		if _, ok := idx.companyNames[folded]; !ok {
			idx.companyNames[folded] = r.CompanyName
		}
	}
	if r.UserID != "" {
		idx.userIDs.add(r.UserID, id)
	}
	if r.Release != "" {
		idx.releases.add(r.Release, id)
		idx.moduleRel.add(ModuleRelease{Module: r.Module, Release: r.Release}, id)
	}
	for _, bp := range r.BlueprintIDs {
		idx.blueprintIDs.add(bp, id)
	}
}

func (idx *Index) remove(r *record.Record) {
	id := r.RecordID
	delete(idx.records, id)
	if idx.primaryKeys[r.PrimaryKey] == id {
		delete(idx.primaryKeys, r.PrimaryKey)
	}
	idx.types.remove(r.Type, id)
	idx.modules.remove(r.Module, id)
	if idx.companies.remove(r.CompanyName, id) {
		folded := foldCompany(r.CompanyName)
		if idx.companyNames[folded] == r.CompanyName {
			delete(idx.companyNames, folded)
			// another casing of the same company may still be indexed
			for name := range idx.companies {
				if foldCompany(name) == folded {
					idx.companyNames[folded] = name
					break
				}
			}
		}
	}
	idx.userIDs.remove(r.UserID, id)
	idx.releases.remove(r.Release, id)
	idx.moduleRel.remove(ModuleRelease{Module: r.Module, Release: r.Release}, id)
	for _, bp := range r.BlueprintIDs {
		idx.blueprintIDs.remove(bp, id)
	}
}

// --------------------------------------------------------------------------
// Per-field Queries
// --------------------------------------------------------------------------

// RecordIDsByModules returns the union of the records of all modules.
func (idx *Index) RecordIDsByModules(modules ...string) IDSet {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.modules.union(modules...)
}

func (idx *Index) RecordIDsByTypes(types ...record.Type) IDSet {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.types.union(types...)
}

// RecordIDsByCompanies matches company names case-insensitively.
func (idx *Index) RecordIDsByCompanies(companies ...string) IDSet {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	keys := make([]string, len(companies))
	for i, c := range companies {
		keys[i] = idx.originalCompanyName(c)
	}
	return idx.companies.union(keys...)
}

func (idx *Index) RecordIDsByUserIDs(userIDs ...string) IDSet {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.userIDs.union(userIDs...)
}

func (idx *Index) RecordIDsByReleases(releases ...string) IDSet {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.releases.union(releases...)
}

func (idx *Index) RecordIDsByModuleReleases(pairs ...ModuleRelease) IDSet {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.moduleRel.union(pairs...)
}

func (idx *Index) RecordIDsByBlueprintIDs(blueprintIDs ...string) IDSet {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.blueprintIDs.union(blueprintIDs...)
}

// RecordIDsByDate returns the records with start <= date < end. An end of 0
// means no upper bound. This scans all records.
func (idx *Index) RecordIDsByDate(start, end int64) IDSet {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(IDSet)
	for id, r := range idx.records {
		if r.Date >= start && (end == 0 || r.Date < end) {
			out[id] = struct{}{}
		}
	}
	return out
}

// RecordIDs returns the ids of all indexed records.
func (idx *Index) RecordIDs() IDSet {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(IDSet, len(idx.records))
	for id := range idx.records {
		out[id] = struct{}{}
	}
	return out
}

// --------------------------------------------------------------------------
// Record Access
// --------------------------------------------------------------------------

// Records returns the indexed records of ids ordered by id. Unknown ids are skipped.
func (idx *Index) Records(ids IDSet) []*record.Record {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]*record.Record, 0, len(ids))
	for _, id := range ids.Sorted() {
		if r, ok := idx.records[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (idx *Index) RecordByPrimaryKey(pk string) (*record.Record, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	id, ok := idx.primaryKeys[pk]
	if !ok {
		return nil, false
	}
	return idx.records[id], true
}

// Len returns the number of indexed records.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

// OriginalCompanyName maps a company name in any casing to the casing seen
// in the records. Unknown names come back lower-cased.
func (idx *Index) OriginalCompanyName(name string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.originalCompanyName(name)
}

func (idx *Index) originalCompanyName(name string) string {
	folded := foldCompany(name)
	if original, ok := idx.companyNames[folded]; ok {
		return original
	}
	return strings.ToLower(name)
}

// Companies returns all indexed company names, sorted.
func (idx *Index) Companies() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return slices.Sorted(maps.Keys(idx.companies))
}

func (idx *Index) Modules() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return slices.Sorted(maps.Keys(idx.modules))
}

func (idx *Index) UserIDs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return slices.Sorted(maps.Keys(idx.userIDs))
}

// FirstRecordDate returns the smallest date of all indexed records, 0 if the index is empty.
func (idx *Index) FirstRecordDate() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var first int64
	seen := false
	for _, r := range idx.records {
		if !seen || r.Date < first {
			first, seen = r.Date, true
		}
	}
	return first
}
