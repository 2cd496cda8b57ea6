package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key     string            `json:"key,omitempty"`     // Used for: Set, SetIfUnset, Incr, Delete, Get, Has, Keys (prefix), Acquire, Release
	Keys    []string          `json:"keys,omitempty"`    // Used for: DeleteMulti, GetMulti (request), Keys (response)
	Entries map[string][]byte `json:"entries,omitempty"` // Used for: SetMulti (request), GetMulti (response)
	Delta   uint64            `json:"delta,omitempty"`   // Used for: Incr (request)
	Counter uint64            `json:"counter,omitempty"` // Used for: Incr (response)
	Value   []byte            `json:"value,omitempty"`   // Used for: Set (request), Get (response), Acquire (response), Release (request)

	// Response only fields
	Ok  bool   `json:"ok,omitempty"`  // Used for: SetIfUnset, Get, Has, Acquire, Release responses
	Err string `json:"err,omitempty"` // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: DBInfo (response, JSON encoded)
}

// withErr sets the error message of a response
func (m *Message) withErr(err error) *Message {
	if err != nil {
		m.Err = err.Error()
	}
	return m
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewSetRequest creates a new Set request
func NewSetRequest(key string, value []byte) *Message {
	return &Message{MsgType: MsgTKVSet, Key: key, Value: value}
}

// NewSetResponse creates a new Set response
func NewSetResponse(err error) *Message {
	return (&Message{MsgType: MsgTKVSet}).withErr(err)
}

// NewSetIfUnsetRequest creates a new SetIfUnset request
func NewSetIfUnsetRequest(key string, value []byte) *Message {
	return &Message{MsgType: MsgTKVSetIfUnset, Key: key, Value: value}
}

// NewSetIfUnsetResponse creates a new SetIfUnset response
func NewSetIfUnsetResponse(stored bool, err error) *Message {
	return (&Message{MsgType: MsgTKVSetIfUnset, Ok: stored}).withErr(err)
}

// NewSetMultiRequest creates a new SetMulti request
func NewSetMultiRequest(entries map[string][]byte) *Message {
	return &Message{MsgType: MsgTKVSetMulti, Entries: entries}
}

// NewSetMultiResponse creates a new SetMulti response
func NewSetMultiResponse(err error) *Message {
	return (&Message{MsgType: MsgTKVSetMulti}).withErr(err)
}

// NewIncrRequest creates a new Incr request
func NewIncrRequest(key string, delta uint64) *Message {
	return &Message{MsgType: MsgTKVIncr, Key: key, Delta: delta}
}

// NewIncrResponse creates a new Incr response
func NewIncrResponse(value uint64, err error) *Message {
	return (&Message{MsgType: MsgTKVIncr, Counter: value}).withErr(err)
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(key string) *Message {
	return &Message{MsgType: MsgTKVDelete, Key: key}
}

// NewDeleteResponse creates a new Delete response
func NewDeleteResponse(err error) *Message {
	return (&Message{MsgType: MsgTKVDelete}).withErr(err)
}

// NewDeleteMultiRequest creates a new DeleteMulti request
func NewDeleteMultiRequest(keys []string) *Message {
	return &Message{MsgType: MsgTKVDeleteMulti, Keys: keys}
}

// NewDeleteMultiResponse creates a new DeleteMulti response
func NewDeleteMultiResponse(err error) *Message {
	return (&Message{MsgType: MsgTKVDeleteMulti}).withErr(err)
}

// NewGetRequest creates a new Get request
func NewGetRequest(key string) *Message {
	return &Message{MsgType: MsgTKVGet, Key: key}
}

// NewGetResponse creates a new Get response
func NewGetResponse(value []byte, ok bool, err error) *Message {
	return (&Message{MsgType: MsgTKVGet, Ok: ok, Value: value}).withErr(err)
}

// NewGetMultiRequest creates a new GetMulti request
func NewGetMultiRequest(keys []string) *Message {
	return &Message{MsgType: MsgTKVGetMulti, Keys: keys}
}

// NewGetMultiResponse creates a new GetMulti response
func NewGetMultiResponse(values map[string][]byte, err error) *Message {
	return (&Message{MsgType: MsgTKVGetMulti, Entries: values}).withErr(err)
}

// NewHasRequest creates a new Has request
func NewHasRequest(key string) *Message {
	return &Message{MsgType: MsgTKVHas, Key: key}
}

// NewHasResponse creates a new Has response
func NewHasResponse(ok bool, err error) *Message {
	return (&Message{MsgType: MsgTKVHas, Ok: ok}).withErr(err)
}

// NewKeysRequest creates a new Keys request
func NewKeysRequest(prefix string) *Message {
	return &Message{MsgType: MsgTKVKeys, Key: prefix}
}

// NewKeysResponse creates a new Keys response
func NewKeysResponse(keys []string, err error) *Message {
	return (&Message{MsgType: MsgTKVKeys, Keys: keys}).withErr(err)
}

// NewDBInfoRequest creates a new DBInfo request
func NewDBInfoRequest() *Message {
	return &Message{MsgType: MsgTKVDBInfo}
}

// NewDBInfoResponse creates a new DBInfo response carrying the JSON encoded info
func NewDBInfoResponse(info []byte, err error) *Message {
	return (&Message{MsgType: MsgTKVDBInfo, Meta: info}).withErr(err)
}

// NewAcquireRequest creates a new Acquire request
func NewAcquireRequest(key string) *Message {
	return &Message{MsgType: MsgTLCKAcquire, Key: key}
}

// NewAcquireResponse creates a new Acquire response
func NewAcquireResponse(ok bool, ownerID []byte, err error) *Message {
	return (&Message{MsgType: MsgTLCKAcquire, Ok: ok, Value: ownerID}).withErr(err)
}

// NewReleaseRequest creates a new Release request
func NewReleaseRequest(key string, ownerID []byte) *Message {
	return &Message{MsgType: MsgTLCKRelease, Key: key, Value: ownerID}
}

// NewReleaseResponse creates a new Release response
func NewReleaseResponse(ok bool, err error) *Message {
	return (&Message{MsgType: MsgTLCKRelease, Ok: ok}).withErr(err)
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{MsgType: MsgTError, Err: err}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations

	MsgTKVSet         // Set a key-value pair
	MsgTKVSetIfUnset  // Set a key-value pair if not already set
	MsgTKVSetMulti    // Set several key-value pairs
	MsgTKVIncr        // Add to a counter
	MsgTKVDelete      // Delete a key-value pair
	MsgTKVDeleteMulti // Delete several keys
	MsgTKVGet         // Get a value by key
	MsgTKVGetMulti    // Get several values
	MsgTKVHas         // Check if a key exists
	MsgTKVKeys        // List keys by prefix
	MsgTKVDBInfo      // Database metadata

	// ILockManager operations

	MsgTLCKAcquire // Acquire a lock
	MsgTLCKRelease // Release a lock
)

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:       "success",
	MsgTError:         "error",
	MsgTKVSet:         "set",
	MsgTKVSetIfUnset:  "setIfUnset",
	MsgTKVSetMulti:    "setMulti",
	MsgTKVIncr:        "incr",
	MsgTKVDelete:      "delete",
	MsgTKVDeleteMulti: "deleteMulti",
	MsgTKVGet:         "get",
	MsgTKVGetMulti:    "getMulti",
	MsgTKVHas:         "has",
	MsgTKVKeys:        "keys",
	MsgTKVDBInfo:      "dbInfo",
	MsgTLCKAcquire:    "acquire",
	MsgTLCKRelease:    "release",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for mt, name := range messageTypeNames {
		if name == s {
			*t = mt
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}
