/*
Package memstore implements the in-memory multi-index a reader builds from
the record store.

The index is an arena of record id -> record plus one set index per field:
module, record type, company, user id, release, (module, release) and
blueprint id. A record contributes one key to every single valued index and
any number of keys to the blueprint index.

	idx := memstore.New()
	records, _ := storage.GetUpdate(readerID)
	idx.Update(slices.Values(records))

	var f memstore.Filter
	f = f.And(idx.RecordIDsByModules("nova"))
	f = f.And(idx.RecordIDsByCompanies("ibm"))
	matched := idx.Records(f.Resolve(idx.RecordIDs()))

Queries only return per-field unions; callers combine fields with Filter.
Company names are matched case-insensitively through a map from the case
folded name to the casing first seen in the records.
*/
package memstore
