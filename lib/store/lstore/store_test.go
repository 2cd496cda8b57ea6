package lstore

import (
	"testing"

	"github.com/ValentinKolb/dStats/lib/db"
	"github.com/ValentinKolb/dStats/lib/db/engines/maple"
	"github.com/ValentinKolb/dStats/lib/store"
	storetesting "github.com/ValentinKolb/dStats/lib/store/testing"
)

func TestLocalStore(t *testing.T) {
	storetesting.RunStoreTests(t, "lstore", func() store.IStore {
		return NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
	})
}
