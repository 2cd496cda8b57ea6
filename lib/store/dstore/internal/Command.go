package internal

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dStats/lib/db"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTSet        CommandType = iota // Insert or update entries.
	CommandTSetIfUnset                    // Insert an entry if it does not exist.
	CommandTIncr                          // Add Delta to a counter.
	CommandTDelete                        // Delete entries.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTSet:
		return "Set"
	case CommandTSetIfUnset:
		return "SetIfUnset"
	case CommandTIncr:
		return "Incr"
	case CommandTDelete:
		return "Delete"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToDBFeature converts a CommandType to the corresponding db.Feature.
// This can be used for checking if the database supports a certain operation.
func (ct CommandType) ToDBFeature() (db.Feature, error) {
	switch ct {
	case CommandTSet:
		return db.FeatureSet, nil
	case CommandTSetIfUnset:
		return db.FeatureSetIfUnset, nil
	case CommandTIncr:
		return db.FeatureIncr, nil
	case CommandTDelete:
		return db.FeatureDelete, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

// Entry is one key (and value, for writes) carried by a command
type Entry struct {
	Key   string
	Value []byte
}

// Command represents a command to be executed by the state machine (a single entry in the raft log).
// Set and Delete carry any number of entries and are applied as one log entry;
// SetIfUnset and Incr carry exactly one.
type Command struct {
	Type    CommandType
	Delta   uint64
	Entries []Entry
}

const headerSize = 1 + 8 + 4 // Type + Delta + entry count

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	size := headerSize
	for _, e := range command.Entries {
		size += 4 + len(e.Key) + 4 + len(e.Value)
	}
	return size
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes for delta,
// 4 bytes for the number of entries,
// then for each entry 4 bytes key length, key, 4 bytes value length, value.
// All integers are big endian.
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], command.Delta)
	binary.BigEndian.PutUint32(result[9:13], uint32(len(command.Entries)))

	pos := headerSize
	for _, e := range command.Entries {
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(e.Key)))
		pos += 4
		pos += copy(result[pos:], e.Key)
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(e.Value)))
		pos += 4
		pos += copy(result[pos:], e.Value)
	}

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.Delta = binary.BigEndian.Uint64(data[1:9])
	count := binary.BigEndian.Uint32(data[9:13])

	// every entry needs at least its two length fields
	if uint64(count)*8 > uint64(len(data)-headerSize) {
		return fmt.Errorf("entry count %d exceeds data length", count)
	}

	command.Entries = make([]Entry, 0, count)
	pos := headerSize
	for i := uint32(0); i < count; i++ {
		key, next, err := readChunk(data, pos)
		if err != nil {
			return fmt.Errorf("entry %d key: %w", i, err)
		}
		value, next, err := readChunk(data, next)
		if err != nil {
			return fmt.Errorf("entry %d value: %w", i, err)
		}
		pos = next

		var v []byte
		if len(value) > 0 {
			v = make([]byte, len(value))
			copy(v, value)
		}
		command.Entries = append(command.Entries, Entry{Key: string(key), Value: v})
	}

	if pos != len(data) {
		return fmt.Errorf("%d trailing bytes after command", len(data)-pos)
	}
	return nil
}

func readChunk(data []byte, pos int) ([]byte, int, error) {
	if len(data) < pos+4 {
		return nil, 0, fmt.Errorf("data too short for length at offset %d", pos)
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if len(data) < pos+n {
		return nil, 0, fmt.Errorf("data too short for chunk of length %d", n)
	}
	return data[pos : pos+n], pos + n, nil
}
