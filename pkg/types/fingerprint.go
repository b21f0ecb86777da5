package types

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// FingerprintSize is the digest length in bytes
const FingerprintSize = md5.Size

// Fingerprint is the content digest that identifies a dataset entry
type Fingerprint [FingerprintSize]byte

// FingerprintOf computes the fingerprint of raw file contents
func FingerprintOf(data []byte) Fingerprint {
	return Fingerprint(md5.Sum(data))
}

// ParseFingerprint decodes the hex form produced by Fingerprint.String
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	s = strings.TrimSpace(s)
	if len(s) != FingerprintSize*2 {
		return fp, fmt.Errorf("%w: fingerprint %q must be %d hex characters", ErrInvalidArgument, s, FingerprintSize*2)
	}
	if _, err := hex.Decode(fp[:], []byte(strings.ToLower(s))); err != nil {
		return fp, fmt.Errorf("%w: fingerprint %q: %w", ErrInvalidArgument, s, err)
	}
	return fp, nil
}

// String returns the lower-case hex encoding
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// IsZero reports whether the fingerprint is unset
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// FileRecord is a single scan hit
type FileRecord struct {
	Fingerprint  Fingerprint
	RelativePath string // Slash separated, relative to the dataset root
}
