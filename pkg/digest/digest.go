// Package digest computes and validates the content digests anchored on the ledger.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HexLength is the length of a SHA-256 digest in canonical hex form.
const HexLength = sha256.Size * 2

// SHA256Hex returns the lowercase hex SHA-256 of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ValidateHex reports whether s is a canonical digest: 64 lowercase hex characters.
// Uppercase input is rejected rather than normalized so two encodings of the
// same digest never compare unequal on the ledger.
func ValidateHex(s string) error {
	if len(s) != HexLength {
		return fmt.Errorf("digest must be %d hex characters, got %d", HexLength, len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("digest has non lowercase-hex character at offset %d", i)
		}
	}
	return nil
}
