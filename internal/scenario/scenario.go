// Package scenario assembles a complete experiment (topology, flows,
// applications, tracing and flow statistics) on a fresh engine and runs it.
package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/internal/app"
	"github.com/GoSim-25-26J-441/tcpsim/internal/engine"
	"github.com/GoSim-25-26J-441/tcpsim/internal/link"
	"github.com/GoSim-25-26J-441/tcpsim/internal/metrics"
	"github.com/GoSim-25-26J-441/tcpsim/internal/trace"
	"github.com/GoSim-25-26J-441/tcpsim/internal/transport"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/config"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/logger"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/models"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/utils"
)

// FlowResult is the outcome of one bulk transfer
type FlowResult struct {
	Flow          int
	Destination   int
	Group         string
	ReceivedBytes int64
	GoodputBps    float64
	BaseRTT       time.Duration
	MeanSRTT      time.Duration
	Bottleneck    link.DataRate
	Sender        transport.SenderStats
	Receiver      transport.ReceiverStats
	FinalState    transport.ConnState
	Err           error
}

// Result holds everything a run produced
type Result struct {
	Config    *config.Config
	Flows     []FlowResult
	Summary   *Summary
	Traces    *trace.Sink
	FlowStats []models.FlowStats
	Monitor   *metrics.FlowMonitor
	Channels  map[string]link.ChannelStats
	Stats     engine.Stats
}

// Failures returns the flows that ended with a connection error
func (r *Result) Failures() []FlowResult {
	var out []FlowResult
	for _, f := range r.Flows {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

type runOptions struct {
	logger           *slog.Logger
	progressInterval time.Duration
	progress         func(time.Duration)
}

// Option customizes Run
type Option func(*runOptions)

// WithLogger sets the logger handed to the engine
func WithLogger(l *slog.Logger) Option {
	return func(o *runOptions) { o.logger = l }
}

// WithProgress calls fn with the simulation time every interval of simulated time
func WithProgress(interval time.Duration, fn func(time.Duration)) Option {
	return func(o *runOptions) {
		o.progressInterval = interval
		o.progress = fn
	}
}

type flowState struct {
	id       int
	dest     Destination
	sender   *transport.Sender
	receiver *transport.Receiver
	bulk     *app.BulkSender
	sink     *app.Sink
}

// Run executes the experiment described by cfg on its own engine. Connection
// failures are reported per flow; only configuration and scheduling errors
// (or ctx cancellation) fail the run.
func Run(ctx context.Context, cfg *config.Config, opts ...Option) (*Result, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	ro := runOptions{logger: logger.Default}
	for _, opt := range opts {
		opt(&ro)
	}

	start, _ := cfg.GetStartTime()
	observation, _ := cfg.GetDuration()
	stop := start + observation

	tcpOpts, err := transportOptions(cfg)
	if err != nil {
		return nil, err
	}

	eng := engine.NewEngine()
	eng.SetLogger(ro.logger.With("experiment", cfg.Name))
	log := eng.Logger()

	topo, err := BuildTopology(eng, cfg)
	if err != nil {
		return nil, err
	}

	sink := trace.NewSink()
	if cfg.Tracing.Enabled {
		sink.SubscribeAll()
	}
	collector := metrics.NewCollector()
	monitor := metrics.NewFlowMonitor(collector)
	for _, ch := range topo.Channels {
		ch.OnDrop(func(f link.Frame, _ link.DropReason) {
			if seg, ok := f.(transport.Segment); ok {
				monitor.OnLost(seg.Flow)
			}
		})
	}

	flows := make([]*flowState, 0, cfg.Flows)
	for id := 1; id <= cfg.Flows; id++ {
		fs, err := installFlow(eng, cfg, topo, id, tcpOpts, sink, collector, monitor)
		if err != nil {
			return nil, fmt.Errorf("flow %d: %w", id, err)
		}
		if err := fs.bulk.Install(start, stop, cfg.MaxBytes); err != nil {
			return nil, fmt.Errorf("flow %d: %w", id, err)
		}
		if _, err := eng.ScheduleAt(stop, engine.EventKindApp, fs.sink.Stop); err != nil {
			return nil, fmt.Errorf("flow %d: %w", id, err)
		}
		flows = append(flows, fs)
	}

	if ro.progress != nil && ro.progressInterval > 0 {
		var tick func()
		tick = func() {
			ro.progress(eng.Now())
			if eng.Now()+ro.progressInterval <= stop {
				_, _ = eng.Schedule(ro.progressInterval, engine.EventKindTrace, tick)
			}
		}
		if _, err := eng.Schedule(0, engine.EventKindTrace, tick); err != nil {
			return nil, err
		}
	}

	log.Info("Experiment started",
		"topology", cfg.Topology,
		"transport", cfg.Transport,
		"flows", cfg.Flows,
		"segment_size", tcpOpts.SegmentSize,
		"stop", stop)

	runErr := eng.Run(ctx, stop)
	stats := eng.Stats()
	if runErr != nil {
		log.Error("Experiment aborted", "error", runErr, "sim_time", stats.SimTime)
		return nil, runErr
	}
	if ro.progress != nil {
		ro.progress(stats.SimTime)
	}

	res := &Result{
		Config:   cfg,
		Traces:   sink,
		Monitor:  monitor,
		Channels: make(map[string]link.ChannelStats, len(topo.Channels)),
		Stats:    stats,
	}
	for _, ch := range topo.Channels {
		cs := ch.Stats()
		res.Channels[ch.Name()] = cs
		labels := metrics.CreateChannelLabels(ch.Name())
		metrics.RecordQueueDrops(collector, cs.QueueDrops, stop, labels)
		metrics.RecordLinkLosses(collector, cs.Lost, stop, labels)
	}
	for _, fs := range flows {
		fr := FlowResult{
			Flow:          fs.id,
			Destination:   fs.dest.Node,
			Group:         fs.dest.Group,
			ReceivedBytes: fs.sink.TotalReceivedBytes(),
			GoodputBps:    fs.sink.Goodput(observation),
			BaseRTT:       fs.dest.BaseRTT(),
			Bottleneck:    fs.dest.Forward.Bottleneck(),
			Sender:        fs.sender.Stats(),
			Receiver:      fs.receiver.Stats(),
			FinalState:    fs.sender.State(),
			Err:           fs.bulk.Err(),
		}
		if agg := collector.GetOrComputeAggregation(metrics.MetricSRTT, metrics.CreateFlowLabels(fs.id)); agg != nil {
			fr.MeanSRTT = time.Duration(agg.Mean * float64(time.Millisecond))
		}
		metrics.RecordGoodput(collector, fr.GoodputBps, stop, metrics.CreateGroupLabels(fs.id, fs.dest.Group))
		res.Flows = append(res.Flows, fr)
	}
	res.FlowStats = monitor.Stats()
	res.Summary = Summarize(cfg.Transport, observation, res.Flows, collector)

	log.Info("Experiment completed",
		"events", stats.EventsProcessed,
		"aggregate_bps", res.Summary.AggregateBps,
		"failed_flows", res.Summary.FailedFlows)
	return res, nil
}

func transportOptions(cfg *config.Config) (transport.Options, error) {
	opts := transport.DefaultOptions()
	seg := cfg.SegmentSize
	if seg == 0 {
		var err error
		if seg, err = transport.DefaultSegmentSize(cfg.MTU); err != nil {
			return opts, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
	}
	initial, min, max, err := cfg.TCP.RTOs()
	if err != nil {
		return opts, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	opts.SegmentSize = seg
	opts.InitialWindow = cfg.TCP.InitialWindow
	opts.InitialRTO = initial
	opts.MinRTO = min
	opts.MaxRTO = max
	opts.MaxRetransmits = cfg.TCP.MaxRetransmits
	opts.DupAckThreshold = cfg.TCP.DupAckThreshold
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	return opts, nil
}

func installFlow(eng *engine.Engine, cfg *config.Config, topo *Topology, id int, opts transport.Options,
	sink *trace.Sink, collector *metrics.Collector, monitor *metrics.FlowMonitor) (*flowState, error) {
	law, err := transport.NewGrowthLaw(cfg.Transport)
	if err != nil {
		return nil, err
	}
	fs := &flowState{
		id:   id,
		dest: topo.DestinationFor(id, cfg.Flows),
		sink: app.NewSink(),
	}
	monitor.Register(id, NodeSource, fs.dest.Node)

	fs.receiver = transport.NewReceiver(eng, id, fs.dest.Node, opts.HeaderBytes, func(a transport.Ack) {
		fs.dest.Reverse.Send(a, func(f link.Frame) { fs.sender.OnAck(f.(transport.Ack)) })
	})
	fs.receiver.OnData(fs.sink.Receive)
	fs.receiver.SetObserver(sink)

	fs.sender, err = transport.NewSender(eng, id, NodeSource, opts, law, func(seg transport.Segment) {
		monitor.OnTx(id, eng.Now(), seg.WireSize())
		fs.dest.Forward.Send(seg, func(f link.Frame) {
			s := f.(transport.Segment)
			monitor.OnRx(id, eng.Now(), s.SentAt, s.WireSize())
			fs.receiver.OnSegment(s)
		})
	})
	if err != nil {
		return nil, err
	}
	fs.sender.SetObserver(transport.Observers{sink, srttRecorder(collector, id)})
	fs.bulk = app.NewBulkSender(eng, fs.sender)
	return fs, nil
}

// srttRecorder feeds the smoothed RTT updates of flow into collector
func srttRecorder(collector *metrics.Collector, flow int) transport.Observer {
	labels := metrics.CreateFlowLabels(flow)
	return transport.ObserverFunc(func(c transport.StateChange) {
		if c.Metric == transport.MetricRTT {
			metrics.RecordSRTT(collector, utils.SecondsToDuration(c.New), c.At, labels)
		}
	})
}

// WriteArtifacts writes the trace files and the flow statistics the
// configuration asks for and returns the written paths
func (r *Result) WriteArtifacts() ([]string, error) {
	var paths []string
	if r.Config.Tracing.Enabled {
		dir := r.Config.Tracing.Dir
		if dir == "" {
			dir = "."
		}
		written, err := r.Traces.WriteAll(dir, r.Config.Tracing.Prefix, r.Config.Tracing.Format)
		paths = append(paths, written...)
		if err != nil {
			return paths, fmt.Errorf("failed to write traces: %w", err)
		}
	}
	if r.Config.FlowMonitor != "" {
		path := r.Config.FlowMonitor
		if err := r.Monitor.Export(path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
