package link

import (
	"time"
)

// Path is an ordered list of channels a frame crosses hop by hop
type Path struct {
	hops []*Channel
}

// NewPath builds a path from its hops
func NewPath(hops ...*Channel) *Path {
	return &Path{hops: hops}
}

// Send forwards frame across every hop and calls deliver at the far end.
// A frame dropped on any hop never reaches deliver.
func (p *Path) Send(frame Frame, deliver func(Frame)) {
	p.forward(0, frame, deliver)
}

func (p *Path) forward(i int, frame Frame, deliver func(Frame)) {
	if i == len(p.hops) {
		deliver(frame)
		return
	}
	p.hops[i].Send(frame, func(f Frame) {
		p.forward(i+1, f, deliver)
	})
}

// PropagationDelay sums the hop delays
func (p *Path) PropagationDelay() time.Duration {
	var d time.Duration
	for _, c := range p.hops {
		d += c.Link().Delay()
	}
	return d
}

// Bottleneck returns the slowest rate along the path
func (p *Path) Bottleneck() DataRate {
	var min DataRate
	for i, c := range p.hops {
		if r := c.Link().Rate(); i == 0 || r < min {
			min = r
		}
	}
	return min
}
