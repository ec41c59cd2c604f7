// Package privacy derives de-identified student tokens and hashes staff
// passwords.
package privacy

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrMalformedHash is returned when a stored value is not "hash:salt".
	ErrMalformedHash = errors.New("privacy: malformed hash, expected hash:salt")
	// ErrEmptyInput is returned for empty identifiers or passwords.
	ErrEmptyInput = errors.New("privacy: empty input")
)

// Params tunes the argon2id derivation.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// DefaultParams returns parameters cheap enough to run on every registration.
func DefaultParams() Params {
	return Params{
		Time:    1,
		Memory:  16 * 1024,
		Threads: 2,
		KeyLen:  32,
		SaltLen: 16,
	}
}

// Hasher produces "hash:salt" tokens for student identifiers. A pepper,
// when set, is mixed into every derivation and never stored.
type Hasher struct {
	params Params
	pepper []byte
}

// NewHasher creates a Hasher.
func NewHasher(pepper string, params Params) *Hasher {
	if params.KeyLen == 0 {
		params = DefaultParams()
	}
	return &Hasher{params: params, pepper: []byte(pepper)}
}

// Hash derives a token with a fresh random salt.
func (h *Hasher) Hash(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrEmptyInput
	}
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("privacy: read salt: %w", err)
	}
	return hex.EncodeToString(h.derive(id, salt)) + ":" + hex.EncodeToString(salt), nil
}

// Verify reports whether stored was produced from id.
func (h *Hasher) Verify(id, stored string) (bool, error) {
	hashHex, saltHex, ok := strings.Cut(stored, ":")
	if !ok || hashHex == "" || saltHex == "" {
		return false, ErrMalformedHash
	}
	want, err := hex.DecodeString(hashHex)
	if err != nil {
		return false, ErrMalformedHash
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false, ErrMalformedHash
	}
	got := h.derive(id, salt)
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

func (h *Hasher) derive(id string, salt []byte) []byte {
	input := append([]byte(id), h.pepper...)
	return argon2.IDKey(input, salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
}

// ─────────────────────────────────────────────────────────────────────────────
// Staff passwords
// ─────────────────────────────────────────────────────────────────────────────

// HashPassword hashes a staff password with bcrypt.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyInput
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("privacy: hash password: %w", err)
	}
	return string(b), nil
}

// CheckPassword compares a bcrypt hash with a candidate password.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
