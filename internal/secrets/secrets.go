// Package secrets generates the random material used by the login
// protocol: one-time codes, opaque challenge tokens, and session ids.
// Everything here draws from crypto/rand; a drained generator is treated
// as a process-level failure by callers.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

const (
	// DefaultTokenBytes is the raw size of a challenge token before hex
	// encoding (64 hex chars on the wire).
	DefaultTokenBytes = 32

	// CodeDigits is the length of an emailed one-time code.
	CodeDigits = 6
)

type SessionID [16]byte

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// GenerateCode returns a uniformly distributed six-digit decimal code in
// the range 100000..999999.
func GenerateCode() (string, error) {
	span := big.NewInt(900000)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}

	value := n.Int64() + 100000

	var b strings.Builder
	b.Grow(CodeDigits)
	for div := int64(100000); div >= 1; div /= 10 {
		b.WriteByte(byte('0' + (value/div)%10))
	}

	code := b.String()
	if len(code) != CodeDigits {
		return "", errors.New("invalid code generation length")
	}
	return code, nil
}

// GenerateToken returns a hex-encoded token of byteLength random bytes.
// byteLength <= 0 falls back to DefaultTokenBytes.
func GenerateToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = DefaultTokenBytes
	}

	raw := make([]byte, byteLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// HashCode is the one-way hash persisted in place of a code. The code
// itself never reaches a store.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// Fingerprint derives the audit-correlation device tag from request
// metadata. Not a security boundary.
func Fingerprint(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + ":" + userAgent))
	return hex.EncodeToString(sum[:16])
}
