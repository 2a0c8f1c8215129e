package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptMaxInput is the longest input bcrypt accepts.
const bcryptMaxInput = 72

// MaxWorkFactor caps the bcrypt cost regardless of the configured iterations.
const MaxWorkFactor = 16

// WorkFactor maps an iteration count onto the bcrypt cost scale: each cost
// step doubles the work, starting at 10 below 4096 iterations.
func WorkFactor(iterations int) int {
	switch {
	case iterations < 4096:
		return 10
	case iterations < 8192:
		return 11
	case iterations < 16384:
		return 12
	case iterations < 32768:
		return 13
	case iterations < 65536:
		return 14
	case iterations < 131072:
		return 15
	default:
		return MaxWorkFactor
	}
}

// BcryptHasher hashes passwords with bcrypt.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(iterations int) *BcryptHasher {
	return &BcryptHasher{cost: WorkFactor(iterations)}
}

// NewBcryptHasherWithCost bypasses the iteration mapping; tests use it with bcrypt.MinCost.
func NewBcryptHasherWithCost(cost int) *BcryptHasher {
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Cost() int {
	return h.cost
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify treats every bcrypt error, including a malformed hash, as a mismatch.
func (h *BcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password)) == nil
}

// bcryptInput passes passwords of up to 72 bytes through unchanged. Longer
// ones are reduced to the base64 of their SHA-256 digest so every byte
// still counts.
func bcryptInput(password string) []byte {
	raw := []byte(password)
	if len(raw) <= bcryptMaxInput {
		return raw
	}
	sum := sha256.Sum256(raw)
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
