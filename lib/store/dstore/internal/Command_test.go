package internal

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "Single entry with key and value",
			command: Command{
				Type:    CommandTSet,
				Entries: []Entry{{Key: "record:1", Value: []byte("testvalue")}},
			},
			expected: 13 + 4 + 8 + 4 + 9,
		},
		{
			name: "Two entries",
			command: Command{
				Type:    CommandTSet,
				Entries: []Entry{{Key: "a", Value: []byte("1")}, {Key: "bb", Value: nil}},
			},
			expected: 13 + (4 + 1 + 4 + 1) + (4 + 2 + 4 + 0),
		},
		{
			name:     "No entries",
			command:  Command{Type: CommandTDelete},
			expected: 13,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if size := tt.command.SizeBytes(); size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Set with value",
			command: Command{
				Type:    CommandTSet,
				Entries: []Entry{{Key: "record:0", Value: []byte("payload")}},
			},
		},
		{
			name: "Incr with delta",
			command: Command{
				Type:    CommandTIncr,
				Delta:   42,
				Entries: []Entry{{Key: "update:count"}},
			},
		},
		{
			name: "Delete many",
			command: Command{
				Type:    CommandTDelete,
				Entries: []Entry{{Key: "update:0"}, {Key: "update:1"}, {Key: "update:2"}},
			},
		},
		{
			name: "Empty key and unicode",
			command: Command{
				Type:    CommandTSetIfUnset,
				Entries: []Entry{{Key: ""}, {Key: "user:jürgen@例え.jp", Value: []byte{0, 1, 2}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serialized := tt.command.Serialize()
			if len(serialized) != tt.command.SizeBytes() {
				t.Errorf("Serialized length = %d, want %d", len(serialized), tt.command.SizeBytes())
			}

			var got Command
			if err := got.Deserialize(serialized); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if got.Type != tt.command.Type {
				t.Errorf("Type = %v, want %v", got.Type, tt.command.Type)
			}
			if got.Delta != tt.command.Delta {
				t.Errorf("Delta = %v, want %v", got.Delta, tt.command.Delta)
			}
			if len(got.Entries) != len(tt.command.Entries) {
				t.Fatalf("got %d entries, want %d", len(got.Entries), len(tt.command.Entries))
			}
			for i, e := range tt.command.Entries {
				if got.Entries[i].Key != e.Key {
					t.Errorf("entry %d key = %q, want %q", i, got.Entries[i].Key, e.Key)
				}
				if !bytes.Equal(got.Entries[i].Value, e.Value) {
					t.Errorf("entry %d value = %v, want %v", i, got.Entries[i].Value, e.Value)
				}
			}
		})
	}
}

// TestDeserializeErrors tests malformed inputs
func TestDeserializeErrors(t *testing.T) {
	valid := (&Command{Type: CommandTSet, Entries: []Entry{{Key: "k", Value: []byte("v")}}}).Serialize()

	hugeCount := make([]byte, 13)
	binary.BigEndian.PutUint32(hugeCount[9:13], 1<<30)

	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"Header only truncated", valid[:5]},
		{"Truncated entry", valid[:len(valid)-1]},
		{"Trailing bytes", append(append([]byte{}, valid...), 0xff)},
		{"Count larger than data", hugeCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Command
			if err := c.Deserialize(tt.data); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestCommandTypeString(t *testing.T) {
	if CommandTIncr.String() != "Incr" {
		t.Errorf("unexpected name %s", CommandTIncr)
	}
	if _, err := CommandType(99).ToDBFeature(); err == nil {
		t.Errorf("expected unknown command type to have no feature")
	}
}
