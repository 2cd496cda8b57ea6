// Package client implements RPC clients for the dStats store and lock manager
// shards, plus URI based store resolution.
//
// Key Components:
//
//   - Open / OpenLockManager: resolve a store URI (memory://, tcp://, unix://,
//     http://) to a connected store.IStore or lockmgr.ILockManager. memory:// URIs
//     name process-wide in-memory stores, which is what tests and single-process
//     runs use.
//
//   - NewRPCStore / NewRPCLockMgr: lower level constructors taking an explicit
//     config, transport and serializer.
//
// Usage Example:
//
//	st, err := client.Open("tcp://localhost:8080/100?serializer=snappy")
//	if err != nil {
//	  log.Fatal(err) // unparseable URI or unreachable server
//	}
//	defer st.Close()
//
//	_ = st.Set("mykey", []byte("myvalue"))
//	value, exists, _ := st.Get("mykey")
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization.
package client
