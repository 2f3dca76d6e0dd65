package transport

import (
	"fmt"
	"time"
)

// GrowthLaw decides how the window grows in congestion avoidance and how far
// it shrinks on loss. Windows are in bytes.
type GrowthLaw interface {
	Name() string
	// Increase returns the window after one acknowledged segment
	Increase(cwnd float64, seg int, now, rtt time.Duration) float64
	// Reduce returns the new ssthresh for a loss detected at cwnd
	Reduce(cwnd float64, seg int, now time.Duration) float64
	// Reset forgets the growth epoch after a timeout
	Reset()
}

// NewGrowthLaw returns the law registered under name
func NewGrowthLaw(name string) (GrowthLaw, error) {
	switch name {
	case "reno", "newreno":
		return &Reno{}, nil
	case "cubic":
		return NewCubic(), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport variant %q", ErrInvalidOptions, name)
	}
}

func floorTwoSegments(v float64, seg int) float64 {
	if min := 2 * float64(seg); v < min {
		return min
	}
	return v
}

// Reno grows by one segment per window and halves on loss
type Reno struct{}

// Name returns "reno"
func (*Reno) Name() string { return "reno" }

// Increase adds seg*seg/cwnd
func (*Reno) Increase(cwnd float64, seg int, _, _ time.Duration) float64 {
	s := float64(seg)
	return cwnd + s*s/cwnd
}

// Reduce halves the window, never below two segments
func (*Reno) Reduce(cwnd float64, seg int, _ time.Duration) float64 {
	return floorTwoSegments(cwnd/2, seg)
}

// Reset is a no-op for Reno
func (*Reno) Reset() {}
