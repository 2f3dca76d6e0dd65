package scenario

import (
	"fmt"
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/internal/engine"
	"github.com/GoSim-25-26J-441/tcpsim/internal/link"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/config"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/utils"
)

// Node ids. The source is always node 0; a p2p topology has only the source
// and NodeN1 as its destination.
const (
	NodeSource = 0
	NodeN1     = 1
	NodeN2     = 2
	NodeDest   = 3
	NodeDest2  = 4
)

// Destination is one receiving node and the paths that reach it
type Destination struct {
	Node    int
	Group   string
	Forward *link.Path
	Reverse *link.Path
}

// Topology is the set of installed channels for one run
type Topology struct {
	Kind         string
	Destinations []Destination
	Channels     []*link.Channel
}

type builder struct {
	eng        *engine.Engine
	rng        *utils.RandSource
	maxWaiting int
	channels   []*link.Channel
}

// duplex installs both directions of a link between nodes a and b. Each
// direction draws its losses from its own derived stream.
func (b *builder) duplex(a, z int, lc config.LinkConfig) (fwd, rev *link.Channel, err error) {
	rate, err := link.ParseDataRate(lc.DataRate)
	if err != nil {
		return nil, nil, err
	}
	delay, err := lc.GetDelay()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid delay %q: %w", lc.Delay, err)
	}
	l, err := link.NewLink(rate, delay, lc.ErrorRate)
	if err != nil {
		return nil, nil, err
	}
	fwd = link.NewChannel(fmt.Sprintf("n%d->n%d", a, z), b.eng, l, b.rng.Derive(len(b.channels)), b.maxWaiting)
	b.channels = append(b.channels, fwd)
	rev = link.NewChannel(fmt.Sprintf("n%d->n%d", z, a), b.eng, l, b.rng.Derive(len(b.channels)), b.maxWaiting)
	b.channels = append(b.channels, rev)
	return fwd, rev, nil
}

// BuildTopology installs the channels of cfg.Topology on eng
func BuildTopology(eng *engine.Engine, cfg *config.Config) (*Topology, error) {
	b := &builder{
		eng:        eng,
		rng:        utils.NewRandSource(cfg.Seed),
		maxWaiting: cfg.QueueLimit,
	}
	topo := &Topology{Kind: cfg.Topology}

	switch cfg.Topology {
	case config.TopologyP2P:
		fwd, rev, err := b.duplex(NodeSource, NodeN1, cfg.Bottleneck)
		if err != nil {
			return nil, fmt.Errorf("bottleneck link: %w", err)
		}
		topo.Destinations = []Destination{{
			Node:    NodeN1,
			Group:   "dest",
			Forward: link.NewPath(fwd),
			Reverse: link.NewPath(rev),
		}}

	case config.TopologyDumbbell, config.TopologyDualDest:
		sN1, n1S, err := b.duplex(NodeSource, NodeN1, cfg.Access)
		if err != nil {
			return nil, fmt.Errorf("access link: %w", err)
		}
		n1N2, n2N1, err := b.duplex(NodeN1, NodeN2, cfg.Bottleneck)
		if err != nil {
			return nil, fmt.Errorf("bottleneck link: %w", err)
		}
		n2D, dN2, err := b.duplex(NodeN2, NodeDest, cfg.Access)
		if err != nil {
			return nil, fmt.Errorf("access link: %w", err)
		}
		group := "dest"
		if cfg.Topology == config.TopologyDualDest {
			group = "dest1"
		}
		topo.Destinations = []Destination{{
			Node:    NodeDest,
			Group:   group,
			Forward: link.NewPath(sN1, n1N2, n2D),
			Reverse: link.NewPath(dN2, n2N1, n1S),
		}}

		if cfg.Topology == config.TopologyDualDest {
			n2D2, d2N2, err := b.duplex(NodeN2, NodeDest2, cfg.SlowAccess)
			if err != nil {
				return nil, fmt.Errorf("slow access link: %w", err)
			}
			topo.Destinations = append(topo.Destinations, Destination{
				Node:    NodeDest2,
				Group:   "dest2",
				Forward: link.NewPath(sN1, n1N2, n2D2),
				Reverse: link.NewPath(d2N2, n2N1, n1S),
			})
		}

	default:
		return nil, fmt.Errorf("%w: unknown topology %q", config.ErrInvalidConfig, cfg.Topology)
	}

	topo.Channels = b.channels
	return topo, nil
}

// DestinationFor assigns flow (1-based) to a destination. Flows are split
// half and half when there are two destinations.
func (t *Topology) DestinationFor(flow, flows int) Destination {
	if len(t.Destinations) == 1 {
		return t.Destinations[0]
	}
	perDest := flows / len(t.Destinations)
	idx := (flow - 1) / perDest
	if idx >= len(t.Destinations) {
		idx = len(t.Destinations) - 1
	}
	return t.Destinations[idx]
}

// BaseRTT is the round-trip propagation delay to d, excluding serialization
func (d Destination) BaseRTT() time.Duration {
	return d.Forward.PropagationDelay() + d.Reverse.PropagationDelay()
}
