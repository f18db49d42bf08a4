package rules

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// RNG is the randomness port every roll goes through.
//
// Intn must return a value in [0, n). Tests inject scripted implementations so
// every mechanic is reproducible.
type RNG interface {
	Intn(n int) int
}

// NewSeededRNG returns a deterministic math/rand source for the given seed.
func NewSeededRNG(seed int64) RNG {
	return rand.New(rand.NewSource(seed))
}

// NewRNG returns a math/rand source seeded from crypto/rand.
func NewRNG() (RNG, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return NewSeededRNG(seed), nil
}

// NewSeed generates a high-entropy seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// rollDie rolls a die with the provided number of sides.
func rollDie(rng RNG, sides int) int {
	return rng.Intn(sides) + 1
}
