package memstore

import (
	"slices"
	"testing"

	"github.com/ValentinKolb/dStats/lib/db"
	"github.com/ValentinKolb/dStats/lib/db/engines/maple"
	"github.com/ValentinKolb/dStats/lib/record"
	"github.com/ValentinKolb/dStats/lib/runtime"
	"github.com/ValentinKolb/dStats/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mark(id uint64, module, company, user string) *record.Record {
	return &record.Record{
		RecordID:    id,
		PrimaryKey:  "pk" + string(rune('a'+id)),
		Type:        record.TypeMark,
		Date:        int64(1000 + id),
		Module:      module,
		CompanyName: company,
		UserID:      user,
		Release:     "icehouse",
		Mark:        &record.Mark{ReviewID: "I1", Type: "Code-Review", Value: 1},
	}
}

func update(idx *Index, records ...*record.Record) bool {
	return idx.Update(slices.Values(records))
}

func TestUpdateIndexesAllFields(t *testing.T) {
	idx := New()
	r := mark(0, "nova", "IBM", "john")
	r.BlueprintIDs = []string{"nova:a", "nova:b"}
	assert.True(t, update(idx, r, mark(1, "glance", "Red Hat", "jane")))

	assert.Equal(t, NewIDSet(0), idx.RecordIDsByModules("nova"))
	assert.Equal(t, NewIDSet(0, 1), idx.RecordIDsByModules("nova", "glance"))
	assert.Equal(t, NewIDSet(0, 1), idx.RecordIDsByTypes(record.TypeMark))
	assert.Empty(t, idx.RecordIDsByTypes(record.TypeCommit))
	assert.Equal(t, NewIDSet(1), idx.RecordIDsByUserIDs("jane"))
	assert.Equal(t, NewIDSet(0, 1), idx.RecordIDsByReleases("icehouse"))
	assert.Equal(t, NewIDSet(1), idx.RecordIDsByModuleReleases(ModuleRelease{Module: "glance", Release: "icehouse"}))
	assert.Equal(t, NewIDSet(0), idx.RecordIDsByBlueprintIDs("nova:b"))
	assert.Equal(t, NewIDSet(0), idx.RecordIDsByDate(1000, 1001))
	assert.Equal(t, NewIDSet(0, 1), idx.RecordIDsByDate(0, 0))
	assert.Equal(t, int64(1000), idx.FirstRecordDate())

	got, ok := idx.RecordByPrimaryKey("pkb")
	require.True(t, ok)
	assert.Equal(t, uint64(1), got.RecordID)
	_, ok = idx.RecordByPrimaryKey("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"IBM", "Red Hat"}, idx.Companies())
	assert.Equal(t, []string{"glance", "nova"}, idx.Modules())
	assert.Equal(t, []string{"jane", "john"}, idx.UserIDs())
}

func TestUpdateRemovesStaleMembership(t *testing.T) {
	idx := New()
	update(idx, mark(0, "nova", "IBM", "john"))

	moved := mark(0, "glance", "HP", "john")
	moved.BlueprintIDs = []string{"glance:x"}
	assert.True(t, update(idx, moved))

	assert.Empty(t, idx.RecordIDsByModules("nova"))
	assert.Empty(t, idx.RecordIDsByCompanies("IBM"))
	assert.Equal(t, NewIDSet(0), idx.RecordIDsByModules("glance"))
	assert.Equal(t, NewIDSet(0), idx.RecordIDsByCompanies("hp"))
	assert.Equal(t, []string{"HP"}, idx.Companies())
	assert.Equal(t, 1, idx.Len())
}

func TestUpdateFiltersRobotsAndTombstones(t *testing.T) {
	idx := New()
	assert.False(t, update(idx, mark(0, "nova", record.CompanyRobots, "jenkins")))
	assert.Equal(t, 0, idx.Len())

	update(idx, mark(1, "nova", "IBM", "john"))
	tombstone := mark(1, "nova", "IBM", "john")
	tombstone.Deleted = true
	assert.True(t, update(idx, tombstone))
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.RecordIDsByModules("nova"))
	assert.Empty(t, idx.RecordIDsByUserIDs("john"))
	assert.Empty(t, idx.RecordIDsByReleases("icehouse"))
	_, ok := idx.RecordByPrimaryKey("pkb")
	assert.False(t, ok)

	// a record moved to the robots company leaves the index
	update(idx, mark(2, "nova", "IBM", "bot"))
	assert.True(t, update(idx, mark(2, "nova", record.CompanyRobots, "bot")))
	assert.Equal(t, 0, idx.Len())
}

func TestCompanyCasing(t *testing.T) {
	idx := New()
	update(idx, mark(0, "nova", "Mirantis", "a"), mark(1, "nova", "Red Hat", "b"))

	assert.Equal(t, "Mirantis", idx.OriginalCompanyName("MIRANTIS"))
	assert.Equal(t, "Red Hat", idx.OriginalCompanyName("red hat"))
	assert.Equal(t, "unknown corp", idx.OriginalCompanyName("Unknown Corp"), "unknown names degrade to the lower-cased string")
	assert.Equal(t, "straße ag", idx.OriginalCompanyName("Straße AG"))
	assert.Equal(t, NewIDSet(0), idx.RecordIDsByCompanies("mirantis"))
	assert.Empty(t, idx.RecordIDsByCompanies("unknown corp"))

	// the first seen casing wins while it is indexed
	update(idx, mark(2, "nova", "MIRANTIS", "c"))
	assert.Equal(t, "Mirantis", idx.OriginalCompanyName("mirantis"))
	tomb := mark(0, "nova", "Mirantis", "a")
	tomb.Deleted = true
	update(idx, tomb)
	assert.Equal(t, "MIRANTIS", idx.OriginalCompanyName("mirantis"))
}

func TestFilter(t *testing.T) {
	var f Filter
	assert.False(t, f.Constrained())
	assert.False(t, f.Empty())
	_, ok := f.IDs()
	assert.False(t, ok)
	assert.Equal(t, NewIDSet(1, 2, 3), f.Resolve(NewIDSet(1, 2, 3)))

	f = f.And(NewIDSet(1, 2, 3))
	f = f.And(NewIDSet(2, 3, 4))
	ids, ok := f.IDs()
	assert.True(t, ok)
	assert.Equal(t, NewIDSet(2, 3), ids)

	f = f.And(NewIDSet(9))
	assert.True(t, f.Constrained())
	assert.True(t, f.Empty(), "constrained and matched nothing")
	assert.Empty(t, f.Resolve(NewIDSet(1, 2, 3)))
}

func TestFilterDoesNotAliasIndex(t *testing.T) {
	idx := New()
	update(idx, mark(0, "nova", "IBM", "john"), mark(1, "nova", "IBM", "jane"))
	f := Filter{}.And(idx.RecordIDsByModules("nova")).And(idx.RecordIDsByUserIDs("jane"))
	ids, _ := f.IDs()
	assert.Equal(t, []uint64{1}, ids.Sorted())
	assert.Equal(t, NewIDSet(0, 1), idx.RecordIDsByModules("nova"))
}

func TestIndexFollowsStore(t *testing.T) {
	storage := runtime.New(lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) }))
	reader := runtime.NewReaderID()
	idx := New()

	records := []*record.Record{
		{PrimaryKey: "c1", Type: record.TypeCommit, Module: "nova", CompanyName: "IBM", Commit: &record.Commit{CommitID: "c1"}},
		{PrimaryKey: "c2", Type: record.TypeCommit, Module: "glance", CompanyName: "HP", Commit: &record.Commit{CommitID: "c2"}},
		{PrimaryKey: "c3", Type: record.TypeCommit, Module: "nova", CompanyName: record.CompanyRobots, Commit: &record.Commit{CommitID: "c3"}},
	}
	_, err := storage.SetRecords(slices.Values(records), nil)
	require.NoError(t, err)

	updates, err := storage.GetUpdate(reader)
	require.NoError(t, err)
	idx.Update(slices.Values(updates))

	for r, err := range storage.GetAllRecords() {
		require.NoError(t, err)
		if r.CompanyName == record.CompanyRobots {
			assert.False(t, idx.RecordIDsByModules(r.Module).Contains(r.RecordID))
			continue
		}
		assert.True(t, idx.RecordIDsByModules(r.Module).Contains(r.RecordID), r.PrimaryKey)
	}

	_, err = storage.ApplyCorrections([]runtime.Correction{{PrimaryKey: "c1", Fields: []byte(`{"deleted":true}`)}})
	require.NoError(t, err)
	updates, err = storage.GetUpdate(reader)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.True(t, idx.Update(slices.Values(updates)))
	assert.Empty(t, idx.RecordIDsByModules("nova"))
	assert.Empty(t, idx.RecordIDsByCompanies("ibm"))
}
