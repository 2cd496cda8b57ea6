package serializer

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/golang/snappy"
)

// --------------------------------------------------------------------------
// JSON
// --------------------------------------------------------------------------

// NewJSONSerializer creates a serializer using json encoding
func NewJSONSerializer() IRPCSerializer {
	return jsonFormat{}
}

type jsonFormat struct{}

func (jsonFormat) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonFormat) Deserialize(b []byte, msg *common.Message) error {
	return json.Unmarshal(b, msg)
}

// --------------------------------------------------------------------------
// GOB
// --------------------------------------------------------------------------

// NewGOBSerializer creates a serializer using Go's binary gob format.
// Every message carries its own type description, so gob pays off only for
// large messages.
func NewGOBSerializer() IRPCSerializer {
	return gobFormat{}
}

type gobFormat struct{}

func (gobFormat) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobFormat) Deserialize(b []byte, msg *common.Message) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(msg)
}

// --------------------------------------------------------------------------
// Snappy
// --------------------------------------------------------------------------

// NewSnappySerializer creates a serializer that snappy-compresses the json
// encoding. Batches of records repeat the same field names over and over.
func NewSnappySerializer() IRPCSerializer {
	return snappyFormat{inner: jsonFormat{}}
}

// snappyFormat compresses the output of inner
type snappyFormat struct {
	inner IRPCSerializer
}

func (s snappyFormat) Serialize(msg common.Message) ([]byte, error) {
	raw, err := s.inner.Serialize(msg)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func (s snappyFormat) Deserialize(b []byte, msg *common.Message) error {
	raw, err := snappy.Decode(nil, b)
	if err != nil {
		return fmt.Errorf("snappy: %w", err)
	}
	return s.inner.Deserialize(raw, msg)
}
