package runtime

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ValentinKolb/dStats/lib/lockmgr"
	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("runtime")

const (
	// writeBatchSize is the number of records written per SetMulti call
	writeBatchSize = 64
	// readBatchSize is the number of keys fetched per GetMulti call
	readBatchSize = 256
)

var (
	recordsWritten  = metrics.GetOrCreateCounter("dstats_records_written_total")
	recordsMerged   = metrics.GetOrCreateCounter("dstats_records_merged_total")
	recordsRejected = metrics.GetOrCreateCounter("dstats_records_rejected_total")
	updateReads     = metrics.GetOrCreateCounter("dstats_update_reads_total")
	fullResyncs     = metrics.GetOrCreateCounter("dstats_update_full_resyncs_total")
	logPurged       = metrics.GetOrCreateCounter("dstats_log_purged_total")
	correctionsDone = metrics.GetOrCreateCounter("dstats_corrections_applied_total")
	userCorrections = metrics.GetOrCreateCounter("dstats_user_corrections_applied_total")
)

// Storage is the update-log client. It is the only component that knows the
// key layout of the record store; writers and readers share it.
//
// A Storage is safe for concurrent use by readers. Writes assume a single
// writer per store (see AcquireWriter).
type Storage struct {
	store store.IStore
	// primary key -> record id, ids never change once assigned
	pkCache *xsync.MapOf[string, uint64]
}

// New creates a Storage on top of st.
func New(st store.IStore) *Storage {
	return &Storage{
		store:   st,
		pkCache: xsync.NewMapOf[string, uint64](),
	}
}

// Store returns the underlying record store.
func (s *Storage) Store() store.IStore {
	return s.store
}

// NewReaderID returns a fresh random reader id for GetUpdate.
func NewReaderID() string {
	return uuid.NewString()
}

// AcquireWriter takes the writer lease of the store behind lm. The returned
// function releases it again.
func AcquireWriter(lm lockmgr.ILockManager) (release func() error, err error) {
	ok, owner, err := lm.AcquireLock(WriterLockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire writer lease: %w", err)
	}
	if !ok {
		return nil, ErrWriterLocked
	}
	log.Infof("acquired writer lease %s, owner %x", WriterLockKey, owner)
	return func() error {
		released, err := lm.ReleaseLock(WriterLockKey, owner)
		if err != nil {
			return fmt.Errorf("release writer lease: %w", err)
		}
		if !released {
			log.Warningf("writer lease was taken over by another owner")
		}
		return nil
	}, nil
}

// --------------------------------------------------------------------------
// Raw Key Access
// --------------------------------------------------------------------------

// GetByKey returns the raw value of key.
func (s *Storage) GetByKey(key string) ([]byte, bool, error) {
	return s.store.Get(key)
}

func (s *Storage) SetByKey(key string, value []byte) error {
	return s.store.Set(key, value)
}

func (s *Storage) DeleteByKey(key string) error {
	return s.store.Delete(key)
}

// GetSetting decodes the JSON setting under key into v and reports whether it exists.
func (s *Storage) GetSetting(key string, v any) (bool, error) {
	data, ok, err := s.store.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode setting %q: %w", key, err)
	}
	return true, nil
}

// SetSetting stores v JSON encoded under key.
func (s *Storage) SetSetting(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode setting %q: %w", key, err)
	}
	return s.store.Set(key, data)
}

// GetCursor returns the source cursor of a repository branch, e.g. the last
// processed head commit.
func (s *Storage) GetCursor(kind CursorKind, uri, branch string) (string, bool, error) {
	data, ok, err := s.store.Get(cursorKey(kind, uri, branch))
	return string(data), ok, err
}

func (s *Storage) SetCursor(kind CursorKind, uri, branch, value string) error {
	return s.store.Set(cursorKey(kind, uri, branch), []byte(value))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// counter reads a decimal counter, a missing key counts as zero
func (s *Storage) counter(key string) (uint64, error) {
	data, ok, err := s.store.Get(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return parseCounter(key, data)
}

func parseCounter(key string, data []byte) (uint64, error) {
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrCorruptCounter, key, data)
	}
	return n, nil
}

func formatCounter(n uint64) []byte {
	return []byte(strconv.FormatUint(n, 10))
}

// getMulti fetches keys in chunks of readBatchSize
func (s *Storage) getMulti(keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for start := 0; start < len(keys); start += readBatchSize {
		end := min(start+readBatchSize, len(keys))
		values, err := s.store.GetMulti(keys[start:end])
		if err != nil {
			return nil, err
		}
		for k, v := range values {
			out[k] = v
		}
	}
	return out, nil
}

// deleteMulti deletes keys in chunks of readBatchSize
func (s *Storage) deleteMulti(keys []string) error {
	for start := 0; start < len(keys); start += readBatchSize {
		end := min(start+readBatchSize, len(keys))
		if err := s.store.DeleteMulti(keys[start:end]); err != nil {
			return err
		}
	}
	return nil
}
