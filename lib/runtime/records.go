package runtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/ValentinKolb/dStats/lib/record"
)

// --------------------------------------------------------------------------
// Writing Records
// --------------------------------------------------------------------------

// SetRecords writes records to the store. A record whose primary key is new
// gets the next record id and one update log entry. A record whose primary
// key is already stored is passed to merge together with the stored version;
// if merge reports a change the stored version is rewritten under its id and
// gets a fresh log entry. Without merge, known primary keys are left alone.
//
// Records are written in batches of 64. An error aborts the call, batches
// written before stay visible. Invalid records are logged and skipped.
// It returns the number of records created or rewritten.
func (s *Storage) SetRecords(records iter.Seq[*record.Record], merge record.MergeFunc) (int, error) {
	w := newBatchWriter(s)
	for r := range records {
		if err := r.Validate(); err != nil {
			recordsRejected.Inc()
			log.Warningf("skipping record %q: %v", r.PrimaryKey, fmt.Errorf("%w: %w", ErrInvalidRecord, err))
			continue
		}
		if err := w.add(r, merge); err != nil {
			return w.written, err
		}
	}
	if err := w.flush(); err != nil {
		return w.written, err
	}
	return w.written, nil
}

// batchWriter collects the key-value pairs of up to writeBatchSize records
type batchWriter struct {
	s       *Storage
	entries map[string][]byte
	pending map[string]*record.Record // primary key -> record written in this batch
	created map[string]uint64         // primary keys created in this batch
	logged  []uint64                  // record ids in log order
	written int
}

func newBatchWriter(s *Storage) *batchWriter {
	w := &batchWriter{s: s}
	w.reset()
	return w
}

func (w *batchWriter) reset() {
	w.entries = make(map[string][]byte)
	w.pending = make(map[string]*record.Record)
	w.created = make(map[string]uint64)
	w.logged = w.logged[:0]
}

func (w *batchWriter) add(r *record.Record, merge record.MergeFunc) error {
	if existing, ok := w.pending[r.PrimaryKey]; ok {
		if merge == nil || !merge(existing, r) {
			return nil
		}
		recordsMerged.Inc()
		return w.write(existing)
	}

	id, found, err := w.s.lookupPrimaryKey(r.PrimaryKey)
	if err != nil {
		return err
	}
	if found {
		if merge == nil {
			return nil
		}
		existing, ok, err := w.s.getRecord(id)
		if err != nil {
			return err
		}
		if !ok {
			// index entry without record, write the incoming record into the slot
			r.RecordID = id
			return w.write(r)
		}
		if !merge(existing, r) {
			return nil
		}
		recordsMerged.Inc()
		return w.write(existing)
	}

	next, err := w.s.store.Incr(keyRecordCount, 1)
	if err != nil {
		return fmt.Errorf("allocate record id: %w", err)
	}
	r.RecordID = next - 1
	w.entries[primaryKeyKey(r.PrimaryKey)] = formatCounter(r.RecordID)
	w.created[r.PrimaryKey] = r.RecordID
	return w.write(r)
}

func (w *batchWriter) write(r *record.Record) error {
	data, err := record.Encode(r)
	if err != nil {
		return err
	}
	w.entries[recordKey(r.RecordID)] = data
	if _, seen := w.pending[r.PrimaryKey]; seen {
		// already logged in this batch, the entry above carries the latest state
		return nil
	}
	w.pending[r.PrimaryKey] = r
	w.logged = append(w.logged, r.RecordID)
	w.written++
	if len(w.logged) >= writeBatchSize {
		return w.flush()
	}
	return nil
}

// flush writes the batch and its log entries, then publishes the new log head.
// Log entries are written before the head moves so readers never see a gap.
func (w *batchWriter) flush() error {
	if len(w.logged) == 0 {
		return nil
	}
	head, err := w.s.counter(keyUpdateCount)
	if err != nil {
		return err
	}
	for i, id := range w.logged {
		w.entries[updateKey(head+uint64(i))] = formatCounter(id)
	}
	if err := w.s.store.SetMulti(w.entries); err != nil {
		return fmt.Errorf("write batch of %d records: %w", len(w.logged), err)
	}
	if _, err := w.s.store.Incr(keyUpdateCount, uint64(len(w.logged))); err != nil {
		return fmt.Errorf("advance update log: %w", err)
	}
	for pk, id := range w.created {
		w.s.pkCache.Store(pk, id)
	}
	recordsWritten.Add(len(w.logged))
	w.reset()
	return nil
}

// --------------------------------------------------------------------------
// Reading Records
// --------------------------------------------------------------------------

// lookupPrimaryKey resolves a primary key to its record id
func (s *Storage) lookupPrimaryKey(pk string) (uint64, bool, error) {
	if id, ok := s.pkCache.Load(pk); ok {
		return id, true, nil
	}
	data, ok, err := s.store.Get(primaryKeyKey(pk))
	if err != nil || !ok {
		return 0, false, err
	}
	id, err := parseCounter(primaryKeyKey(pk), data)
	if err != nil {
		return 0, false, err
	}
	s.pkCache.Store(pk, id)
	return id, true, nil
}

func (s *Storage) getRecord(id uint64) (*record.Record, bool, error) {
	data, ok, err := s.store.Get(recordKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	r, err := record.Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("record %d: %w", id, err)
	}
	return r, true, nil
}

// GetByPrimaryKey returns the stored record with the given primary key or ErrNotFound.
func (s *Storage) GetByPrimaryKey(pk string) (*record.Record, error) {
	id, ok, err := s.lookupPrimaryKey(pk)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("record %q: %w", pk, ErrNotFound)
	}
	r, ok, err := s.getRecord(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("record %q (id %d): %w", pk, id, ErrNotFound)
	}
	return r, nil
}

// RecordCount returns the number of record ids handed out so far.
func (s *Storage) RecordCount() (uint64, error) {
	return s.counter(keyRecordCount)
}

// GetAllRecords iterates over all stored records in record id order.
// A read error is yielded once and ends the iteration.
func (s *Storage) GetAllRecords() iter.Seq2[*record.Record, error] {
	return func(yield func(*record.Record, error) bool) {
		count, err := s.counter(keyRecordCount)
		if err != nil {
			yield(nil, err)
			return
		}
		s.recordsByID(idRange(0, count), yield)
	}
}

// recordsByID yields the records with the given ids in the given order, missing ids are skipped
func (s *Storage) recordsByID(ids []uint64, yield func(*record.Record, error) bool) {
	for start := 0; start < len(ids); start += readBatchSize {
		chunk := ids[start:min(start+readBatchSize, len(ids))]
		keys := make([]string, len(chunk))
		for i, id := range chunk {
			keys[i] = recordKey(id)
		}
		values, err := s.store.GetMulti(keys)
		if err != nil {
			yield(nil, err)
			return
		}
		for i, id := range chunk {
			data, ok := values[keys[i]]
			if !ok {
				continue
			}
			r, err := record.Decode(data)
			if err != nil {
				yield(nil, fmt.Errorf("record %d: %w", id, err))
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

func idRange(from, to uint64) []uint64 {
	if to <= from {
		return nil
	}
	ids := make([]uint64, 0, to-from)
	for id := from; id < to; id++ {
		ids = append(ids, id)
	}
	return ids
}

// --------------------------------------------------------------------------
// Corrections
// --------------------------------------------------------------------------

// Correction overrides fields of the record with PrimaryKey. Fields is a JSON
// object in the stored record layout, payload fields are nested under the
// payload name (e.g. {"commit": {"lines_added": 0}}).
type Correction struct {
	PrimaryKey string
	Fields     json.RawMessage
}

// ApplyCorrections patches stored records. Record id, primary key and type
// cannot be overridden. Corrections without primary key, for unknown records
// or producing an invalid record are logged and skipped. Every changed record
// gets a fresh update log entry. It returns the number of changed records.
func (s *Storage) ApplyCorrections(corrections []Correction) (int, error) {
	patched := make([]*record.Record, 0, len(corrections))
	for _, c := range corrections {
		if c.PrimaryKey == "" {
			log.Warningf("skipping correction: %v", ErrMissingPrimaryKey)
			continue
		}
		existing, err := s.GetByPrimaryKey(c.PrimaryKey)
		if errors.Is(err, ErrNotFound) {
			log.Warningf("skipping correction for unknown record %q", c.PrimaryKey)
			continue
		}
		if err != nil {
			return 0, err
		}

		next := existing.Clone()
		if len(c.Fields) > 0 {
			if err := json.Unmarshal(c.Fields, next); err != nil {
				log.Warningf("skipping correction for %q: %v", c.PrimaryKey, err)
				continue
			}
		}
		next.RecordID, next.PrimaryKey, next.Type = existing.RecordID, existing.PrimaryKey, existing.Type
		if err := next.Validate(); err != nil {
			log.Warningf("skipping correction for %q: %v", c.PrimaryKey, err)
			continue
		}
		patched = append(patched, next)
	}

	n, err := s.SetRecords(slices.Values(patched), replaceRecord)
	correctionsDone.Add(n)
	return n, err
}

// replaceRecord overwrites existing with incoming if their stored forms differ
func replaceRecord(existing, incoming *record.Record) bool {
	before, err1 := json.Marshal(existing)
	after, err2 := json.Marshal(incoming)
	if err1 == nil && err2 == nil && bytes.Equal(before, after) {
		return false
	}
	id := existing.RecordID
	*existing = *incoming.Clone()
	existing.RecordID = id
	return true
}
