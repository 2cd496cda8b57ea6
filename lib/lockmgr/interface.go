package lockmgr

// ILockManager hands out leases on keys of a store.
type ILockManager interface {
	// AcquireLock tries to take the lock for key.
	// Returns whether the lock was acquired and, if so, the owner ID needed to release it.
	AcquireLock(key string) (ok bool, ownerID []byte, err error)

	// ReleaseLock releases the lock for key if it is held by ownerID.
	// Returns true if the lock was released or did not exist.
	ReleaseLock(key string, ownerID []byte) (ok bool, err error)
}
