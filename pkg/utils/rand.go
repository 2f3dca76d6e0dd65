package utils

import (
	"math/rand"
)

// RandSource is a seeded pseudorandom stream. It is not safe for concurrent
// use; every simulation run owns its own sources.
type RandSource struct {
	seed int64
	rng  *rand.Rand
}

// NewRandSource creates a new random source with the given seed. The same seed
// always yields the same sequence.
func NewRandSource(seed int64) *RandSource {
	return &RandSource{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Derive returns an independent source for the given stream index. Derived
// seeds are a pure function of (seed, stream), so topologies that create their
// streams in a fixed order replay identically.
func (r *RandSource) Derive(stream int) *RandSource {
	return NewRandSource(mixSeed(r.seed, uint64(stream)))
}

// mixSeed is the splitmix64 finalizer applied to seed+stream.
func mixSeed(seed int64, stream uint64) int64 {
	z := uint64(seed) + (stream+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}

// BernoulliBool returns true with probability p, false otherwise. p <= 0 never
// fires and p >= 1 always fires, without consuming a draw in either case.
func (r *RandSource) BernoulliBool(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return r.rng.Float64() < p
}
