package runtime

import (
	"fmt"
	"iter"
)

// Export calls fn for every key of the store in ascending key order.
func (s *Storage) Export(fn func(key string, value []byte) error) error {
	keys, err := s.store.Keys("")
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	for start := 0; start < len(keys); start += readBatchSize {
		chunk := keys[start:min(start+readBatchSize, len(keys))]
		values, err := s.store.GetMulti(chunk)
		if err != nil {
			return err
		}
		for _, key := range chunk {
			value, ok := values[key]
			if !ok {
				// deleted since listing
				continue
			}
			if err := fn(key, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// Import writes all pairs verbatim in batches and returns the number written.
// The primary key cache is dropped since ids may have changed.
func (s *Storage) Import(pairs iter.Seq2[string, []byte]) (int, error) {
	s.pkCache.Clear()
	n := 0
	batch := make(map[string][]byte, writeBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.store.SetMulti(batch); err != nil {
			return fmt.Errorf("import batch: %w", err)
		}
		n += len(batch)
		batch = make(map[string][]byte, writeBatchSize)
		return nil
	}
	for key, value := range pairs {
		batch[key] = value
		if len(batch) >= writeBatchSize {
			if err := flush(); err != nil {
				return n, err
			}
		}
	}
	return n, flush()
}
