// Package idgen produces short URL-safe identifiers for new users.
package idgen

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// New returns a fresh 16 character identifier. It takes the 96 bits of a
// random UUID that are not version or variant markers.
func New() string {
	id := uuid.New()
	var raw [12]byte
	copy(raw[:6], id[:6])
	copy(raw[6:], id[10:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}
