// Package entropy provides the random sources handed to each engine and generator.
// Every consumer owns its own *rand.Rand; nothing reads the global math/rand state.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand"
)

// Stream offsets keep the generators derived from one run seed independent.
const (
	StreamClimate int64 = 100
	StreamSupply  int64 = 300
	StreamNoise   int64 = 400
)

// NewSeed returns a non-zero seed read from crypto/rand.
func NewSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// This should never happen; fall back to a fixed seed so runs still proceed.
		slog.Warn("crypto/rand unavailable, using fixed seed", "error", err)
		return 1
	}
	seed := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if seed == 0 {
		seed = 1
	}
	return seed
}

// Resolve returns seed unchanged, or a fresh random seed when seed is 0.
func Resolve(seed int64) int64 {
	if seed == 0 {
		return NewSeed()
	}
	return seed
}

// Derive returns the seed for an independent stream of a run seed.
func Derive(seed, stream int64) int64 {
	return seed + stream
}

// NewRand creates a generator for one stream of the given run seed.
func NewRand(seed, stream int64) *mrand.Rand {
	return mrand.New(mrand.NewSource(Derive(seed, stream)))
}
