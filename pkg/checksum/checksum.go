// Package checksum holds SHA-256 digest helpers shared by the release
// resolution code and its tests.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// HexLength is the length of a hex-encoded SHA-256 digest.
const HexLength = sha256.Size * 2

// CalculateSHA256 calculates the SHA256 checksum of data from a reader
func CalculateSHA256(reader io.Reader) (string, error) {
	hasher := sha256.New()

	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// IsSHA256Hex reports whether s is a hex-encoded SHA-256 digest, in either case.
func IsSHA256Hex(s string) bool {
	if len(s) != HexLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
