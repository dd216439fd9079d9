package bench

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/vinst-lab/vinst-go/pkg/discovery"
	"github.com/vinst-lab/vinst-go/pkg/dispatch"
	"github.com/vinst-lab/vinst-go/pkg/instrument"
	"github.com/vinst-lab/vinst-go/pkg/scpi"
	"github.com/vinst-lab/vinst-go/pkg/sim"
	"github.com/vinst-lab/vinst-go/pkg/trace"
	"github.com/vinst-lab/vinst-go/pkg/transport"
	"github.com/vinst-lab/vinst-go/pkg/version"
)

// ErrNotRunning indicates an operation on a bench that is not started.
var ErrNotRunning = errors.New("bench not running")

// station is one running instrument: its state model, dispatch loop,
// transport server and physics.
type station struct {
	config  *InstrumentConfig
	inst    *instrument.Instrument
	loop    *dispatch.Loop
	server  *transport.Server
	physics instrument.Physics
}

// Bench runs the instruments declared in a Config.
type Bench struct {
	config *Config
	logger trace.Logger

	mu         sync.Mutex
	running    bool
	stations   map[string]*station
	advertiser *discovery.Advertiser
}

// Option applies a configuration option to a Bench.
type Option func(*Bench)

// WithLogger sets the trace logger shared by all transport servers and
// dispatch loops.
func WithLogger(logger trace.Logger) Option {
	return func(b *Bench) { b.logger = logger }
}

// New creates a bench from a validated configuration.
func New(config *Config, opts ...Option) *Bench {
	b := &Bench{
		config:   config,
		stations: make(map[string]*station),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start builds every instrument, wires physics inputs, and starts one
// dispatch loop and one transport server per instrument. When the config
// enables it, all endpoints are advertised over mDNS.
func (b *Bench) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return errors.New("bench already running")
	}

	if err := b.buildStations(); err != nil {
		b.stations = make(map[string]*station)
		return err
	}
	b.wirePhysics()

	if err := b.startStations(ctx); err != nil {
		b.teardownLocked()
		return err
	}

	if b.config.Advertise {
		if err := b.advertise(ctx); err != nil {
			b.teardownLocked()
			return err
		}
	}

	b.running = true
	return nil
}

// Stop tears down every instrument and stops all advertisements. Errors
// from individual teardowns are aggregated.
func (b *Bench) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil
	}
	b.running = false
	return b.teardownLocked()
}

// Addr reports the bound listen address of a named instrument.
func (b *Bench) Addr(name string) (net.Addr, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.stations[name]
	if !ok || st.server == nil {
		return nil, fmt.Errorf("%w: no instrument %q", ErrNotRunning, name)
	}
	return st.server.Addr(), nil
}

// Instrument returns the state model of a named instrument.
func (b *Bench) Instrument(name string) (*instrument.Instrument, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.stations[name]
	if !ok {
		return nil, false
	}
	return st.inst, true
}

// buildStations constructs every instrument from its declaration.
func (b *Bench) buildStations() error {
	for i := range b.config.Instruments {
		ic := &b.config.Instruments[i]

		builder := instrument.NewBuilder(ic.Name).Identity(ic.Identity)
		for j := range ic.Parameters {
			meta, err := ic.Parameters[j].metadata()
			if err != nil {
				return fmt.Errorf("%w: instrument %s parameter %s: %v",
					ErrInvalidConfig, ic.Name, ic.Parameters[j].Name, err)
			}
			builder.Parameter(meta)
		}

		var physics instrument.Physics
		switch ic.Physics {
		case PhysicsVSource:
			physics = sim.NewVSource()
			builder.Physics(physics)
		case PhysicsMultimeter:
			physics = sim.NewMultimeter()
			builder.Physics(physics).
				Measurement(sim.TargetVolt).
				Measurement(sim.TargetCurr).
				Measurement(sim.TargetRes)
		}

		inst, err := builder.Build()
		if err != nil {
			return fmt.Errorf("failed to build instrument %s: %w", ic.Name, err)
		}

		b.stations[ic.Name] = &station{config: ic, inst: inst, physics: physics}
	}
	return nil
}

// wirePhysics connects sources to their own state and measuring
// instruments to their declared inputs.
func (b *Bench) wirePhysics() {
	for _, st := range b.stations {
		if vs, ok := st.physics.(*sim.VSource); ok {
			vs.Bind(st.inst)
		}
	}
	for _, st := range b.stations {
		if st.config.Input == "" {
			continue
		}
		meter, ok := st.physics.(*sim.Multimeter)
		if !ok {
			continue
		}
		if src, ok := b.stations[st.config.Input]; ok {
			if signal, ok := src.physics.(sim.SignalSource); ok {
				meter.SetInput(signal)
			}
		}
	}
}

// startStations starts the dispatch loop and transport server of every
// instrument.
func (b *Bench) startStations(ctx context.Context) error {
	for _, st := range b.stations {
		st.loop = dispatch.NewLoop(st.inst, dispatch.Config{
			QueueSize: st.config.QueueSize,
			Logger:    b.logger,
		})
		if err := st.loop.Start(ctx); err != nil {
			return fmt.Errorf("failed to start loop for %s: %w", st.config.Name, err)
		}

		address := st.config.Listen
		if address == "" {
			address = "127.0.0.1:0"
		}

		loop := st.loop
		st.server = transport.NewServer(transport.ServerConfig{
			Address:     address,
			Instrument:  st.config.Name,
			IdleTimeout: b.config.IdleTimeout.Std(),
			Logger:      b.logger,
			OnLine: func(sess *transport.Session, line string) {
				routeLine(loop, sess, line)
			},
			OnDisconnect: func(sess *transport.Session) {
				loop.CancelSession(sess.ID())
			},
		})
		if err := st.server.Start(ctx); err != nil {
			return fmt.Errorf("failed to start server for %s: %w", st.config.Name, err)
		}
	}
	return nil
}

// advertise publishes every bound endpoint over mDNS.
func (b *Bench) advertise(ctx context.Context) error {
	b.advertiser = discovery.NewAdvertiser(discovery.AdvertiserConfig{})
	for _, st := range b.stations {
		tcpAddr, ok := st.server.Addr().(*net.TCPAddr)
		if !ok {
			continue
		}
		err := b.advertiser.Advertise(ctx, &discovery.InstrumentInfo{
			Bench:      b.config.Bench,
			Instrument: st.config.Name,
			Identity:   st.inst.Identity(),
			Port:       uint16(tcpAddr.Port),
			Version:    version.Current,
		})
		if err != nil {
			return fmt.Errorf("failed to advertise %s: %w", st.config.Name, err)
		}
	}
	return nil
}

// teardownLocked stops everything that was started. Callers hold b.mu.
func (b *Bench) teardownLocked() error {
	var errs error
	if b.advertiser != nil {
		b.advertiser.StopAll()
		b.advertiser = nil
	}
	for _, st := range b.stations {
		if st.server != nil {
			errs = multierr.Append(errs, st.server.Stop())
		}
		if st.loop != nil {
			errs = multierr.Append(errs, st.loop.Stop())
		}
	}
	b.stations = make(map[string]*station)
	return errs
}

// routeLine parses one received line and plays its commands through the
// dispatch loop, sending one response line per command in command order.
// The session's read loop blocks here, which is what keeps per-session
// ordering; other sessions proceed independently.
func routeLine(loop *dispatch.Loop, sess *transport.Session, line string) {
	reqs, err := scpi.ParseLine(line)
	if err != nil {
		detail := strings.TrimPrefix(err.Error(), scpi.ErrMalformed.Error()+": ")
		_ = sess.Send(scpi.Errorf(scpi.StatusMalformedCommand, "%s", detail).Render())
		return
	}

	chans := make([]<-chan *scpi.Response, 0, len(reqs))
	for _, req := range reqs {
		req.SessionID = sess.ID()
		ch, err := loop.Submit(req)
		if err != nil {
			_ = sess.Send(scpi.Errorf(scpi.StatusSessionClosed, "instrument shutting down").Render())
			break
		}
		chans = append(chans, ch)
	}

	for _, ch := range chans {
		resp, ok := <-ch
		if !ok {
			// Cancelled before executing: the session is gone, nothing to
			// send.
			continue
		}
		_ = sess.Send(resp.Render())
	}
}
