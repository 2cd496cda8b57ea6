/*
Package record defines the data model shared by the writer and the readers:
the canonical Record (a tagged union of a common base and one payload per
record type), the raw crawler Event, the User identity and the stored codec.

Records are stored as snappy compressed JSON. Users are stored as plain JSON
because the processor rewrites them often and they are small.

Merge functions passed to the runtime's SetRecords decide what happens when a
record with a known primary key is written again:

	MergeCommitBranches  union of the commit branch sets, nothing else
	MergeSource          refresh source fields, keep what Finalize computed
	MergeRecords         overwrite all fields, union commit branches
*/
package record
