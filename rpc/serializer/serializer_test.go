package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/dStats/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Snappy": NewSnappySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Set request
		{
			MsgType: common.MsgTKVSet,
			Key:     "record:12",
			Value:   []byte(`{"record_type":"commit"}`),
		},

		// Get response
		{
			MsgType: common.MsgTKVGet,
			Key:     "record:12",
			Value:   []byte("test-value"),
			Ok:      true,
		},

		// Incr request and response
		{
			MsgType: common.MsgTKVIncr,
			Key:     "update:count",
			Delta:   3,
		},
		{
			MsgType: common.MsgTKVIncr,
			Counter: 42,
		},

		// Multi-key messages
		{
			MsgType: common.MsgTKVSetMulti,
			Entries: map[string][]byte{
				"record:1":        []byte("a"),
				"primary_key:abc": []byte("1"),
			},
		},
		{
			MsgType: common.MsgTKVKeys,
			Keys:    []string{"pid:a", "pid:b"},
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
		},

		// Message with most fields filled
		{
			MsgType: common.MsgTLCKAcquire,
			Key:     "lock:writer",
			Value:   []byte("owner"),
			Ok:      true,
			Meta:    []byte("test-meta-data"),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// MsgTUnknown is skipped since json rejects it
			for msgType := common.MsgTSuccess; msgType <= common.MsgTLCKRelease; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestInvalidSnappyData checks that corrupt frames are rejected
func TestInvalidSnappyData(t *testing.T) {
	serializer := NewSnappySerializer()

	var msg common.Message
	if err := serializer.Deserialize([]byte{0xff, 0xff, 0xff}, &msg); err == nil {
		t.Errorf("Expected error for corrupt data but got none")
	}
}

func TestByName(t *testing.T) {
	if got := Names(); !reflect.DeepEqual(got, []string{"gob", "json", "snappy"}) {
		t.Errorf("Names() = %v", got)
	}
	for _, name := range append(Names(), "SNAPPY") {
		if _, err := ByName(name); err != nil {
			t.Errorf("ByName(%q) failed: %v", name, err)
		}
	}
	if _, err := ByName("binary"); err == nil {
		t.Errorf("Expected error for unknown serializer")
	}
}
