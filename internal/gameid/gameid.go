// Package gameid generates game identifiers: UUIDv7 values encoded as 26
// lowercase Crockford base32 characters, so ids sort by creation time and are
// safe to use as file names and cache keys.
package gameid

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Base32 alphabet used by TypeID (Crockford's base32)
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

const encodedLen = 26

var encoding = base32.NewEncoding(alphabet).WithPadding(base32.NoPadding)

// Generate creates a new game ID.
func Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic("gameid: generate uuid: " + err.Error())
	}
	return Encode(id)
}

// Encode formats a UUID as a game ID.
func Encode(id uuid.UUID) string {
	return encoding.EncodeToString(id[:])
}

// Parse decodes a game ID back into its UUIDv7.
func Parse(s string) (uuid.UUID, error) {
	if err := Validate(s); err != nil {
		return uuid.Nil, err
	}
	raw, err := encoding.DecodeString(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode game ID: %w", err)
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode game ID: %w", err)
	}
	if id.Version() != 7 {
		return uuid.Nil, fmt.Errorf("game ID is UUID version %d, want 7", id.Version())
	}
	return id, nil
}

// Validate checks if a game ID is valid (26 characters, valid base32)
func Validate(id string) error {
	if len(id) != encodedLen {
		return fmt.Errorf("game ID must be exactly %d characters, got %d", encodedLen, len(id))
	}
	for i, char := range id {
		if !strings.ContainsRune(alphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i)
		}
	}
	// The last character only carries 3 data bits; the rest must be zero.
	if strings.IndexByte(alphabet, id[encodedLen-1])&0x3 != 0 {
		return fmt.Errorf("game ID has non-zero trailing bits")
	}
	return nil
}
