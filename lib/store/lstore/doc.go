// Package lstore implements a local, in-memory, single-node key-value store based on the
// store.IStore interface. It is a thin wrapper around any db.KVDB implementation
// with automatic write index management.
//
// Write Index Management: the store keeps an atomic counter that is incremented
// for each write and passed to the engine as the write's logical timestamp.
//
// Feature Detection: before executing an operation the store checks
// SupportsFeature on the engine and returns RetCUnsupportedOperation instead of
// failing silently.
//
// Usage Example:
//
//	st := lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
//	id, err := st.Incr("record:count", 1)
package lstore
