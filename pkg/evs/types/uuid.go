package types

import (
	"github.com/google/uuid"
)

// UUID is an opaque, totally ordered peer/view identifier.
// Nil is the distinguished absent value, matching uuid.Nil.
type UUID = uuid.UUID

// Nil is the distinguished nil UUID.
var Nil = uuid.Nil

// NewUUID generates a fresh random identifier for a local peer.
func NewUUID() UUID {
	return uuid.New()
}

// CompareUUID totally orders two UUIDs byte-wise.
func CompareUUID(a, b UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
