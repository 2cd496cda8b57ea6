package runtime

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/ValentinKolb/dStats/lib/record"
)

// --------------------------------------------------------------------------
// Update Log (readers)
// --------------------------------------------------------------------------

// GetUpdate returns every record changed since the last call with the same
// reader id and moves the reader's cursor to the current log head. A reader
// that was never seen, or whose cursor lies below the compaction floor, gets
// all records.
//
// Records are returned in increasing log position order. A record logged
// more than once is returned once, at its latest position, with its current
// value. The cursor is only moved after all records were read.
func (s *Storage) GetUpdate(pid string) ([]*record.Record, error) {
	head, err := s.counter(keyUpdateCount)
	if err != nil {
		return nil, err
	}
	cursor, seen, err := s.readerCursor(pid)
	if err != nil {
		return nil, err
	}
	floor, err := s.counter(keyFirstValidEntry)
	if err != nil {
		return nil, err
	}

	var records []*record.Record
	if !seen || cursor < floor {
		if seen {
			log.Infof("reader %s fell behind the update log (cursor %d < %d), resyncing", pid, cursor, floor)
		}
		fullResyncs.Inc()
		for r, err := range s.GetAllRecords() {
			if err != nil {
				return nil, err
			}
			records = append(records, r)
		}
	} else {
		ids, err := s.loggedRecordIDs(cursor, head)
		if err != nil {
			return nil, err
		}
		records = make([]*record.Record, 0, len(ids))
		var readErr error
		s.recordsByID(ids, func(r *record.Record, err error) bool {
			if err != nil {
				readErr = err
				return false
			}
			records = append(records, r)
			return true
		})
		if readErr != nil {
			return nil, readErr
		}
	}

	if err := s.store.Set(pidKey(pid), formatCounter(head)); err != nil {
		return nil, fmt.Errorf("store cursor of reader %s: %w", pid, err)
	}
	if err := s.registerPID(pid); err != nil {
		return nil, err
	}
	updateReads.Add(len(records))
	return records, nil
}

// loggedRecordIDs returns the record ids logged in [from, to) ordered by
// their latest log position
func (s *Storage) loggedRecordIDs(from, to uint64) ([]uint64, error) {
	positions := idRange(from, to)
	keys := make([]string, len(positions))
	for i, pos := range positions {
		keys[i] = updateKey(pos)
	}
	values, err := s.getMulti(keys)
	if err != nil {
		return nil, err
	}

	latest := make(map[uint64]uint64, len(values))
	for i, pos := range positions {
		data, ok := values[keys[i]]
		if !ok {
			continue
		}
		id, err := parseCounter(keys[i], data)
		if err != nil {
			return nil, err
		}
		latest[id] = pos
	}

	ids := make([]uint64, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uint64) int {
		return cmp.Compare(latest[a], latest[b])
	})
	return ids, nil
}

func (s *Storage) readerCursor(pid string) (uint64, bool, error) {
	data, ok, err := s.store.Get(pidKey(pid))
	if err != nil || !ok {
		return 0, false, err
	}
	cursor, err := parseCounter(pidKey(pid), data)
	return cursor, err == nil, err
}

// --------------------------------------------------------------------------
// Live Readers & Compaction
// --------------------------------------------------------------------------

// ActivePIDs declares the set of live readers. Cursors of all other known
// readers are forgotten. The compaction floor becomes the smallest cursor of
// the live readers (the log head if none has a cursor yet) and all log
// entries below the floor are deleted.
func (s *Storage) ActivePIDs(pids []string) error {
	known, err := s.knownPIDs()
	if err != nil {
		return err
	}
	var stale []string
	for _, pid := range known {
		if !slices.Contains(pids, pid) {
			stale = append(stale, pidKey(pid))
		}
	}
	if err := s.deleteMulti(stale); err != nil {
		return fmt.Errorf("forget stale readers: %w", err)
	}

	head, err := s.counter(keyUpdateCount)
	if err != nil {
		return err
	}
	floor := head
	for _, pid := range pids {
		cursor, ok, err := s.readerCursor(pid)
		if err != nil {
			return err
		}
		if ok && cursor < floor {
			floor = cursor
		}
	}

	first, err := s.counter(keyFirstValidEntry)
	if err != nil {
		return err
	}
	if floor > first {
		purge := make([]string, 0, floor-first)
		for pos := first; pos < floor; pos++ {
			purge = append(purge, updateKey(pos))
		}
		if err := s.deleteMulti(purge); err != nil {
			return fmt.Errorf("purge update log: %w", err)
		}
		if err := s.store.Set(keyFirstValidEntry, formatCounter(floor)); err != nil {
			return err
		}
		logPurged.Add(len(purge))
		log.Debugf("purged update log entries [%d, %d)", first, floor)
	}

	return s.SetSetting(keyPIDs, uniqueSorted(pids))
}

func (s *Storage) knownPIDs() ([]string, error) {
	var pids []string
	if _, err := s.GetSetting(keyPIDs, &pids); err != nil {
		return nil, err
	}
	return pids, nil
}

// registerPID adds pid to the set of known readers
func (s *Storage) registerPID(pid string) error {
	pids, err := s.knownPIDs()
	if err != nil {
		return err
	}
	if slices.Contains(pids, pid) {
		return nil
	}
	return s.SetSetting(keyPIDs, uniqueSorted(append(pids, pid)))
}

// FirstValidUpdate returns the compaction floor of the update log.
func (s *Storage) FirstValidUpdate() (uint64, error) {
	return s.counter(keyFirstValidEntry)
}

func uniqueSorted(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
