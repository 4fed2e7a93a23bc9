// Package uuid generates time-ordered identifiers for database rows.
package uuid

import (
	googleuuid "github.com/google/uuid"
)

// New returns a UUIDv7 string. UUIDv7 keeps rows ordered by creation time,
// which suits append-mostly tables like price points and trade records.
func New() string {
	id, err := googleuuid.NewV7()
	if err != nil {
		// Entropy failure; fall back to a random v4 id.
		return googleuuid.New().String()
	}
	return id.String()
}

