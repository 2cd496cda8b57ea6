package lockmgr

import (
	"github.com/google/uuid"
)

// generateOwnerID returns a random owner id. It is printable so that a stuck
// lock can be inspected (and force released) with the kv command.
func generateOwnerID() []byte {
	return []byte(uuid.NewString())
}
