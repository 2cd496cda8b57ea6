package serializer

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/dStats/rpc/common"
)

// recordBatch builds a SetMulti request like the ones SetRecords sends
func recordBatch(n int) common.Message {
	entries := make(map[string][]byte, 3*n)
	for i := 0; i < n; i++ {
		pk := fmt.Sprintf("I%040d", i)
		entries[fmt.Sprintf("record:%d", i)] = []byte(fmt.Sprintf(
			`{"record_id":%d,"primary_key":%q,"record_type":"commit","date":1385490000,"user_id":"john_doe","company_name":"Mirantis","module":"nova","branch":"master","release":"icehouse"}`,
			i, pk))
		entries["primary_key:"+pk] = []byte(fmt.Sprint(i))
		entries[fmt.Sprintf("update:%d", i)] = []byte(fmt.Sprint(i))
	}
	return common.Message{MsgType: common.MsgTKVSetMulti, Entries: entries}
}

// updateRead builds a GetMulti response for n log positions
func updateRead(n int) common.Message {
	entries := make(map[string][]byte, n)
	for i := 0; i < n; i++ {
		entries[fmt.Sprintf("update:%d", i)] = []byte(fmt.Sprint(i * 7))
	}
	return common.Message{MsgType: common.MsgTKVGetMulti, Entries: entries}
}

// benchmarkMessages returns the message shapes of an ingestion run
func benchmarkMessages() map[string]common.Message {
	return map[string]common.Message{
		"Ack":         {MsgType: common.MsgTSuccess},
		"CounterGet":  {MsgType: common.MsgTKVGet, Key: "update:count"},
		"CounterIncr": {MsgType: common.MsgTKVIncr, Key: "record:count", Delta: 1},
		"WriterLease": {MsgType: common.MsgTLCKAcquire, Key: "lock:writer", Value: []byte("0b6d2b4e-3d5e-4a39-9c8e-5f1f6c1f1f1a"), Ok: true},
		"RecordGet": {
			MsgType: common.MsgTKVGet,
			Key:     "record:12",
			Value:   make([]byte, 1024),
			Ok:      true,
		},
		"RecordBatch64":  recordBatch(64),
		"UpdateRead256":  updateRead(256),
		"ReaderCursors":  {MsgType: common.MsgTKVKeys, Keys: []string{"pid:web-1", "pid:web-2", "pid:web-3"}},
		"ErrorResponse":  {MsgType: common.MsgTError, Err: "counter value is not a decimal number: record:count=\"x\""},
		"DatabaseInfo":   {MsgType: common.MsgTKVDBInfo, Meta: []byte(`{"keys":120000,"size_bytes":73400320,"db_type":"maple"}`)},
		"RecordBatch512": recordBatch(512),
	}
}

func BenchmarkSerialize(b *testing.B) {
	for name, factory := range testSerializers {
		for msgName, msg := range benchmarkMessages() {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				s := factory()
				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, err := s.Serialize(msg); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkDeserialize(b *testing.B) {
	for name, factory := range testSerializers {
		for msgName, msg := range benchmarkMessages() {
			s := factory()
			data, err := s.Serialize(msg)
			if err != nil {
				b.Fatalf("serialize %s with %s: %v", msgName, name, err)
			}
			b.Run(name+"_"+msgName, func(b *testing.B) {
				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					var out common.Message
					if err := s.Deserialize(data, &out); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

// BenchmarkSize reports the encoded size per message, the interesting
// number when picking a serializer for record batches
func BenchmarkSize(b *testing.B) {
	for name, factory := range testSerializers {
		s := factory()
		for msgName, msg := range benchmarkMessages() {
			data, err := s.Serialize(msg)
			if err != nil {
				b.Fatalf("serialize %s with %s: %v", msgName, name, err)
			}
			b.Run(name+"_"+msgName, func(b *testing.B) {
				b.ReportMetric(float64(len(data)), "bytes")
				for i := 0; i < b.N; i++ {
					_ = data
				}
			})
		}
	}
}
