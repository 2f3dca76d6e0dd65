// Package link models point-to-point links. A Link is an immutable description
// of rate, delay and loss; a Channel is one installed direction of a link and
// owns the transmitter state.
package link

import (
	"fmt"
	"math"
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/pkg/utils"
)

// DataRate is a transmission rate in bits per second
type DataRate float64

// ParseDataRate parses strings such as "10Mbps" or "500bps"
func ParseDataRate(s string) (DataRate, error) {
	bps, err := utils.ParseDataRate(s)
	if err != nil {
		return 0, err
	}
	return DataRate(bps), nil
}

// TxTime is the serialization time of n bytes at this rate
func (r DataRate) TxTime(n int) time.Duration {
	if r <= 0 {
		return 0
	}
	return time.Duration(math.Round(float64(n) * 8 * 1e9 / float64(r)))
}

func (r DataRate) String() string {
	return utils.FormatDataRate(float64(r))
}

// Frame is anything that can be put on a link
type Frame interface {
	WireSize() int
}

// LossSource decides Bernoulli trials. *utils.RandSource satisfies it.
type LossSource interface {
	BernoulliBool(p float64) bool
}

// Link is immutable once constructed
type Link struct {
	rate  DataRate
	delay time.Duration
	loss  float64
}

// NewLink validates and builds a link
func NewLink(rate DataRate, delay time.Duration, lossProbability float64) (Link, error) {
	if rate <= 0 {
		return Link{}, fmt.Errorf("link rate must be positive, got %v", float64(rate))
	}
	if delay < 0 {
		return Link{}, fmt.Errorf("link delay cannot be negative, got %v", delay)
	}
	if lossProbability < 0 || lossProbability > 1 {
		return Link{}, fmt.Errorf("link loss probability must be in [0, 1], got %g", lossProbability)
	}
	return Link{rate: rate, delay: delay, loss: lossProbability}, nil
}

// Rate returns the link data rate
func (l Link) Rate() DataRate { return l.rate }

// Delay returns the propagation delay
func (l Link) Delay() time.Duration { return l.delay }

// LossProbability returns the per-frame drop probability
func (l Link) LossProbability() float64 { return l.loss }

// Transmit returns when a frame put on the wire at sendTime reaches the far
// end, and whether it survives. A nil loss source never drops.
func (l Link) Transmit(frame Frame, sendTime time.Duration, loss LossSource) (time.Duration, bool) {
	arrival := sendTime + l.rate.TxTime(frame.WireSize()) + l.delay
	if loss != nil && loss.BernoulliBool(l.loss) {
		return arrival, false
	}
	return arrival, true
}

func (l Link) String() string {
	return fmt.Sprintf("%s/%s/loss=%g", l.rate, l.delay, l.loss)
}
