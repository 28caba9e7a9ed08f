package fairness

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateServerSeed(t *testing.T) {
	a, err := GenerateServerSeed()
	require.NoError(t, err)
	require.Len(t, a, 64) // 32 bytes hex-encoded

	b, err := GenerateServerSeed()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestVerifySeed(t *testing.T) {
	seed, err := GenerateServerSeed()
	require.NoError(t, err)

	hash := SeedHash(seed)
	require.True(t, VerifySeed(seed, hash))
	require.False(t, VerifySeed(seed+"0", hash))
	require.False(t, VerifySeed(seed, "deadbeef"))
}

func TestCrashPointDeterministic(t *testing.T) {
	a := CrashPoint("seed", "client", "round-1", 10.00)
	b := CrashPoint("seed", "client", "round-1", 10.00)
	require.Equal(t, a, b)

	// Any input change changes the outcome.
	require.NotEqual(t, a, CrashPoint("seed2", "client", "round-1", 10.00))
	require.NotEqual(t, a, CrashPoint("seed", "client2", "round-1", 10.00))
	require.NotEqual(t, a, CrashPoint("seed", "client", "round-2", 10.00))
}

func TestCrashPointRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		seed, err := GenerateServerSeed()
		require.NoError(t, err)
		cp := CrashPoint(seed, "client", "round", 10.00)
		require.GreaterOrEqual(t, cp, 1.00)
		require.LessOrEqual(t, cp, 10.00)
	}
}

func TestHMACSource(t *testing.T) {
	source := NewHMACSource("client", 10.00)

	commitment, err := source.NewCommitment()
	require.NoError(t, err)
	require.True(t, VerifySeed(commitment.ServerSeed, commitment.SeedHash))

	// Source output matches the standalone derivation used by /verify.
	cp := source.CrashPoint(commitment.ServerSeed, "round-1")
	require.Equal(t, CrashPoint(commitment.ServerSeed, "client", "round-1", 10.00), cp)
}
