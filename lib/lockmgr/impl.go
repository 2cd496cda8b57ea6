package lockmgr

import (
	"bytes"

	"github.com/ValentinKolb/dStats/lib/store"
)

type lockMgrImpl struct {
	store store.IStore
}

// NewLockManager creates a lock manager that keeps its locks in st.
func NewLockManager(st store.IStore) ILockManager {
	return &lockMgrImpl{
		store: st,
	}
}

func (lm *lockMgrImpl) AcquireLock(key string) (bool, []byte, error) {
	ownerID := generateOwnerID()

	stored, err := lm.store.SetIfUnset(key, ownerID)
	if err != nil {
		return false, nil, err
	}
	if !stored {
		return false, nil, nil
	}
	return true, ownerID, nil
}

func (lm *lockMgrImpl) ReleaseLock(key string, ownerID []byte) (bool, error) {
	value, ok, err := lm.store.Get(key)
	if err != nil || !ok {
		return err == nil, err
	}

	if !bytes.Equal(ownerID, value) {
		return false, nil
	}

	err = lm.store.Delete(key)
	return err == nil, err
}
