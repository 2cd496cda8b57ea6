package lockmgr

import (
	"testing"

	"github.com/ValentinKolb/dStats/lib/db"
	"github.com/ValentinKolb/dStats/lib/db/engines/maple"
	"github.com/ValentinKolb/dStats/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() ILockManager {
	return NewLockManager(lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) }))
}

func TestAcquireRelease(t *testing.T) {
	lm := newTestManager()

	ok, owner, err := lm.AcquireLock("lock:writer")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, owner)

	ok, other, err := lm.AcquireLock("lock:writer")
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while the lock is held")
	assert.Nil(t, other)

	released, err := lm.ReleaseLock("lock:writer", []byte("someone-else"))
	require.NoError(t, err)
	assert.False(t, released, "foreign owner must not release the lock")

	released, err = lm.ReleaseLock("lock:writer", owner)
	require.NoError(t, err)
	assert.True(t, released)

	ok, _, err = lm.AcquireLock("lock:writer")
	require.NoError(t, err)
	assert.True(t, ok, "lock must be free after release")
}

func TestReleaseMissingLock(t *testing.T) {
	released, err := newTestManager().ReleaseLock("lock:none", []byte("x"))
	require.NoError(t, err)
	assert.True(t, released)
}
