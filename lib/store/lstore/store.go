package lstore

import (
	"sync/atomic"

	"github.com/ValentinKolb/dStats/lib/db"
	"github.com/ValentinKolb/dStats/lib/store"
)

type storeImpl struct {
	db    db.KVDB
	index atomic.Uint64
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
func NewLocalStore(factory store.DBFactory) store.IStore {
	return &storeImpl{
		db: factory(),
	}
}

// incAndGetIndex increments the index and returns the new value.
// It is used to ensure that each write operation has a unique index.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) incAndGetIndex() uint64 {
	return s.index.Add(1)
}

func (s *storeImpl) require(feature db.Feature, op string) error {
	if !s.db.SupportsFeature(feature) {
		return store.NewError(store.RetCUnsupportedOperation, op+" operation is not supported")
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	if err := s.require(db.FeatureSet, "Set"); err != nil {
		return err
	}
	s.db.Set(key, value, s.incAndGetIndex())
	return nil
}

func (s *storeImpl) SetIfUnset(key string, value []byte) (bool, error) {
	if err := s.require(db.FeatureSetIfUnset, "SetIfUnset"); err != nil {
		return false, err
	}
	return s.db.SetIfUnset(key, value, s.incAndGetIndex()), nil
}

func (s *storeImpl) SetMulti(entries map[string][]byte) error {
	if err := s.require(db.FeatureSet, "SetMulti"); err != nil {
		return err
	}
	for key, value := range entries {
		s.db.Set(key, value, s.incAndGetIndex())
	}
	return nil
}

func (s *storeImpl) Incr(key string, delta uint64) (uint64, error) {
	if err := s.require(db.FeatureIncr, "Incr"); err != nil {
		return 0, err
	}
	v, ok := s.db.Incr(key, delta, s.incAndGetIndex())
	if !ok {
		return 0, store.NewError(store.RetCInvalidOperation, "value of "+key+" is not a counter")
	}
	return v, nil
}

func (s *storeImpl) Delete(key string) error {
	if err := s.require(db.FeatureDelete, "Delete"); err != nil {
		return err
	}
	s.db.Delete(key, s.incAndGetIndex())
	return nil
}

func (s *storeImpl) DeleteMulti(keys []string) error {
	if err := s.require(db.FeatureDelete, "DeleteMulti"); err != nil {
		return err
	}
	for _, key := range keys {
		s.db.Delete(key, s.incAndGetIndex())
	}
	return nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if err := s.require(db.FeatureGet, "Get"); err != nil {
		return nil, false, err
	}
	val, ok := s.db.Get(key)
	return val, ok, nil
}

func (s *storeImpl) GetMulti(keys []string) (map[string][]byte, error) {
	if err := s.require(db.FeatureGet, "GetMulti"); err != nil {
		return nil, err
	}
	values := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if val, ok := s.db.Get(key); ok {
			values[key] = val
		}
	}
	return values, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	if err := s.require(db.FeatureHas, "Has"); err != nil {
		return false, err
	}
	return s.db.Has(key), nil
}

func (s *storeImpl) Keys(prefix string) ([]string, error) {
	if err := s.require(db.FeatureKeys, "Keys"); err != nil {
		return nil, err
	}
	return s.db.Keys(prefix), nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}
