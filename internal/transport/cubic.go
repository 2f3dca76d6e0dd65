package transport

import (
	"math"
	"time"
)

// Cubic implements the RFC 8312 window curve, with the TCP-friendly region
// and fast convergence. Internally it works in segments.
type Cubic struct {
	C               float64
	Beta            float64
	FastConvergence bool

	wMax       float64
	wLastMax   float64
	k          float64
	origin     float64
	wEst       float64
	epochStart time.Duration
	inEpoch    bool
}

// NewCubic returns a law with C = 0.4 and beta = 0.7
func NewCubic() *Cubic {
	return &Cubic{C: 0.4, Beta: 0.7, FastConvergence: true}
}

// Name returns "cubic"
func (*Cubic) Name() string { return "cubic" }

// Increase moves cwnd toward W_cubic(t + rtt) by (target - cwnd)/cwnd segments
func (c *Cubic) Increase(cwnd float64, seg int, now, rtt time.Duration) float64 {
	s := float64(seg)
	w := cwnd / s

	if !c.inEpoch {
		c.inEpoch = true
		c.epochStart = now
		if w < c.wMax {
			c.k = math.Cbrt((c.wMax - w) / c.C)
			c.origin = c.wMax
		} else {
			c.k = 0
			c.origin = w
		}
		c.wEst = w
	}

	t := (now - c.epochStart + rtt).Seconds()
	target := c.origin + c.C*math.Pow(t-c.k, 3)

	var next float64
	if target > w {
		next = w + (target-w)/w
	} else {
		next = w + 0.01/w
	}

	// TCP-friendly region
	c.wEst += 3 * (1 - c.Beta) / (1 + c.Beta) / w
	if c.wEst > next {
		next = c.wEst
	}
	return next * s
}

// Reduce records W_max and returns beta*cwnd, never below two segments
func (c *Cubic) Reduce(cwnd float64, seg int, _ time.Duration) float64 {
	w := cwnd / float64(seg)
	if c.FastConvergence && w < c.wLastMax {
		c.wLastMax = w
		c.wMax = w * (1 + c.Beta) / 2
	} else {
		c.wLastMax = w
		c.wMax = w
	}
	c.inEpoch = false
	return floorTwoSegments(cwnd*c.Beta, seg)
}

// Reset starts a new epoch on the next increase
func (c *Cubic) Reset() {
	c.inEpoch = false
}
