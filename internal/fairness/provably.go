// Package fairness implements the commit/reveal scheme behind the
// provably-fair crash point: the server commits to a random seed by
// publishing its SHA-256 hash when the round opens, and reveals the
// seed after the crash so anyone can re-derive the crash point.
package fairness

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"

	"github.com/playward/crashpoint/internal/round"
)

// Source derives crash points for the lobby coordinator. Tests swap in
// a fixed implementation.
type Source interface {
	round.CommitmentSource
	CrashPoint(serverSeed, roundID string) float64
}

// HMACSource is the production Source: crash points come from
// HMAC-SHA256(serverSeed, clientSeed|roundID) mapped into
// [1.00, maxMultiplier].
type HMACSource struct {
	clientSeed    string
	maxMultiplier float64
}

// NewHMACSource creates a source. The client seed is public proof
// material, fixed per deployment.
func NewHMACSource(clientSeed string, maxMultiplier float64) *HMACSource {
	return &HMACSource{clientSeed: clientSeed, maxMultiplier: maxMultiplier}
}

// NewCommitment generates a random 32-byte server seed and its public
// commitment hash.
func (s *HMACSource) NewCommitment() (round.Commitment, error) {
	seed, err := GenerateServerSeed()
	if err != nil {
		return round.Commitment{}, err
	}
	return round.Commitment{
		ServerSeed: seed,
		SeedHash:   SeedHash(seed),
	}, nil
}

// CrashPoint derives the round's crash point from the revealed seed.
func (s *HMACSource) CrashPoint(serverSeed, roundID string) float64 {
	return CrashPoint(serverSeed, s.clientSeed, roundID, s.maxMultiplier)
}

// GenerateServerSeed returns a random 32-byte hex seed.
func GenerateServerSeed() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random seed: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// SeedHash returns the SHA-256 commitment hash published at round open.
func SeedHash(seed string) string {
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:])
}

// VerifySeed checks a revealed seed against its published commitment.
func VerifySeed(seed, seedHash string) bool {
	return SeedHash(seed) == seedHash
}

// CrashPoint deterministically maps (serverSeed, clientSeed, roundID)
// into [1.00, maxMultiplier], rounded to two decimals.
func CrashPoint(serverSeed, clientSeed, roundID string, maxMultiplier float64) float64 {
	u := deriveFloat64(serverSeed, clientSeed, roundID)
	v := 1.00 + u*(maxMultiplier-1.00)
	return math.Round(v*100) / 100
}

// deriveFloat64 maps HMAC-SHA256(serverSeed, clientSeed|roundID) into
// [0, 1) by taking the first 8 bytes as an unsigned integer over 2^64.
func deriveFloat64(serverSeed, clientSeed, roundID string) float64 {
	mac := hmac.New(sha256.New, []byte(serverSeed))
	mac.Write([]byte(clientSeed + "|" + roundID))
	sum := mac.Sum(nil)

	n := new(big.Int).SetBytes(sum[:8])
	max := new(big.Int).Lsh(big.NewInt(1), 64)
	f, _ := new(big.Rat).SetFrac(n, max).Float64()
	return f
}
