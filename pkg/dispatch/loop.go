package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vinst-lab/vinst-go/pkg/instrument"
	"github.com/vinst-lab/vinst-go/pkg/scpi"
	"github.com/vinst-lab/vinst-go/pkg/trace"
)

// DefaultQueueSize is the default request queue capacity. A full queue makes
// Submit block, which is the "waiting for a turn" suspension point.
const DefaultQueueSize = 64

// Loop errors.
var (
	// ErrStopped indicates a submit on a loop that is not running.
	ErrStopped = errors.New("dispatch loop stopped")

	// ErrBusy indicates a non-blocking submit while the instrument is
	// executing or has queued work. Informational: normal submits queue
	// instead.
	ErrBusy = errors.New("instrument busy")
)

// Config configures a dispatch loop.
type Config struct {
	// QueueSize is the request queue capacity (default 64).
	QueueSize int

	// Logger for dispatch tracing (optional).
	Logger trace.Logger
}

// task is one queued unit of work. The response channel carries exactly one
// response and is then closed; it is closed without a response when the
// request was cancelled before executing.
type task struct {
	req       *scpi.Request
	cancelled *atomic.Bool
	resp      chan *scpi.Response
}

// Loop serializes command execution against one instrument while accepting
// requests from all sessions concurrently.
type Loop struct {
	inst   *instrument.Instrument
	config Config

	tasks chan *task

	// Per-session cancellation flags, keyed by session id. An entry exists
	// only while its session is connected.
	flags   map[string]*atomic.Bool
	flagsMu sync.Mutex

	running   atomic.Bool
	executing atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewLoop creates a dispatch loop for the given instrument.
func NewLoop(inst *instrument.Instrument, config Config) *Loop {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	return &Loop{
		inst:   inst,
		config: config,
		tasks:  make(chan *task, config.QueueSize),
		flags:  make(map[string]*atomic.Bool),
	}
}

// Instrument returns the instrument this loop executes against.
func (l *Loop) Instrument() *instrument.Instrument { return l.inst }

// Start begins processing requests.
func (l *Loop) Start(ctx context.Context) error {
	if l.running.Load() {
		return errors.New("dispatch loop already running")
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.running.Store(true)

	l.wg.Add(1)
	go l.run()
	return nil
}

// Stop stops the loop. Queued requests are discarded; an in-flight request
// completes first.
func (l *Loop) Stop() error {
	if !l.running.Load() {
		return nil
	}
	l.running.Store(false)
	l.cancel()
	l.wg.Wait()
	return nil
}

// Submit enqueues one request. The returned channel delivers exactly one
// response and is then closed; it is closed without a response if the
// request is cancelled before executing.
func (l *Loop) Submit(req *scpi.Request) (<-chan *scpi.Response, error) {
	if !l.running.Load() {
		return nil, ErrStopped
	}

	t := &task{
		req:       req,
		cancelled: l.sessionFlag(req.SessionID),
		resp:      make(chan *scpi.Response, 1),
	}

	select {
	case l.tasks <- t:
		return t.resp, nil
	case <-l.ctx.Done():
		return nil, ErrStopped
	}
}

// TrySubmit is the non-blocking variant: it fails with ErrBusy instead of
// queueing when the instrument is executing or has queued work.
func (l *Loop) TrySubmit(req *scpi.Request) (<-chan *scpi.Response, error) {
	if !l.running.Load() {
		return nil, ErrStopped
	}
	if l.executing.Load() || len(l.tasks) > 0 {
		return nil, ErrBusy
	}
	return l.Submit(req)
}

// CancelSession cancels all not-yet-executed queued requests of a session.
// Call on disconnect; an in-flight request completes regardless.
func (l *Loop) CancelSession(sessionID string) {
	l.flagsMu.Lock()
	defer l.flagsMu.Unlock()
	if flag, ok := l.flags[sessionID]; ok {
		flag.Store(true)
		delete(l.flags, sessionID)
	}
}

// ApplyCount returns the number of requests actually applied.
func (l *Loop) ApplyCount() uint64 { return l.inst.ApplyCount() }

// sessionFlag returns the cancellation flag for a session, creating it on
// first use. Requests without a session id share a flag that is never set.
func (l *Loop) sessionFlag(sessionID string) *atomic.Bool {
	l.flagsMu.Lock()
	defer l.flagsMu.Unlock()
	flag, ok := l.flags[sessionID]
	if !ok {
		flag = &atomic.Bool{}
		l.flags[sessionID] = flag
	}
	return flag
}

// run is the loop body: Idle -> Executing -> Idle, one task at a time.
func (l *Loop) run() {
	defer l.wg.Done()

	for {
		select {
		case <-l.ctx.Done():
			l.drain()
			return
		case t := <-l.tasks:
			l.execute(t)
		}
	}
}

// execute applies one task unless its session was cancelled first.
func (l *Loop) execute(t *task) {
	if t.cancelled.Load() {
		close(t.resp)
		return
	}

	l.executing.Store(true)
	l.logState(t.req, "IDLE", "EXECUTING")

	resp := l.inst.Apply(t.req)

	l.logState(t.req, "EXECUTING", "IDLE")
	l.executing.Store(false)

	t.resp <- resp
	close(t.resp)
}

// drain closes the response channels of all still-queued tasks.
func (l *Loop) drain() {
	for {
		select {
		case t := <-l.tasks:
			close(t.resp)
		default:
			return
		}
	}
}

func (l *Loop) logState(req *scpi.Request, oldState, newState string) {
	if l.config.Logger == nil {
		return
	}
	l.config.Logger.Log(trace.Event{
		Timestamp:  time.Now(),
		SessionID:  req.SessionID,
		Layer:      trace.LayerDispatch,
		Category:   trace.CategoryState,
		Instrument: l.inst.Name(),
		Line:       trace.ClampLine(req.Line),
		StateChange: &trace.StateChangeEvent{
			Entity:   trace.EntityLoop,
			OldState: oldState,
			NewState: newState,
		},
	})
}
