package record

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
)

// Encode serializes a record to its stored form: JSON compressed with snappy.
func Encode(r *Record) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record %q: %w", r.PrimaryKey, err)
	}
	return snappy.Encode(nil, raw), nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (*Record, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("decompress record: %w", err)
	}
	r := new(Record)
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}

// EncodeUser serializes a user as plain JSON.
func EncodeUser(u *User) ([]byte, error) {
	return json.Marshal(u)
}

func DecodeUser(data []byte) (*User, error) {
	u := new(User)
	if err := json.Unmarshal(data, u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return u, nil
}
