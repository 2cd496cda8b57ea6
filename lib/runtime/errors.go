package runtime

import (
	"errors"

	"github.com/ValentinKolb/dStats/lib/record"
)

var (
	// ErrNotFound is returned for lookups of unknown records, users or keys.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRecord wraps validation failures of records handed to the store.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrMissingPrimaryKey is reported for corrections without a primary key.
	ErrMissingPrimaryKey = record.ErrMissingPrimaryKey
	// ErrMissingUserID is reported for user corrections without a user id.
	ErrMissingUserID = errors.New("user correction has no user id")
	// ErrWriterLocked is returned by AcquireWriter if another writer holds the lease.
	ErrWriterLocked = errors.New("record store is locked by another writer")
	// ErrCorruptCounter is returned if a counter key holds a non-decimal value.
	ErrCorruptCounter = errors.New("counter value is not a decimal number")
)
