// Package util provides small helpers shared by database implementations
// that satisfy the db.KVDB interface: seed generation, key hashing and the
// decimal counter encoding used by Incr.
package util
