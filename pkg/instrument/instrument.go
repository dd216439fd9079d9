package instrument

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/vinst-lab/vinst-go/pkg/scpi"
)

// DefaultIdentity is returned by *IDN? when no identity was configured.
const DefaultIdentity = "Unknown Instrument - No IDN set"

// Instrument is one simulated device: an ordered set of named parameters,
// an identity string, and an optional Physics capability for measurement
// targets.
//
// Apply is the only mutation path and is called from a single dispatch
// goroutine at a time. The internal lock exists solely so that Physics
// implementations and GUI observers can take consistent reads while a
// command executes.
type Instrument struct {
	mu sync.RWMutex

	name     string
	identity string

	params       map[string]*Parameter
	order        []string
	measurements map[string]struct{}
	physics      Physics

	subs       *subscriberRegistry
	applyCount atomic.Uint64
}

// Name returns the instrument's address/identifier.
func (inst *Instrument) Name() string { return inst.name }

// Identity returns the *IDN? identity string.
func (inst *Instrument) Identity() string { return inst.identity }

// ParameterNames returns the parameter targets in definition order.
func (inst *Instrument) ParameterNames() []string {
	names := make([]string, len(inst.order))
	copy(names, inst.order)
	return names
}

// Parameter returns a parameter by target name.
func (inst *Instrument) Parameter(name string) (*Parameter, bool) {
	p, ok := inst.params[name]
	return p, ok
}

// ApplyCount returns the number of requests applied so far.
func (inst *Instrument) ApplyCount() uint64 { return inst.applyCount.Load() }

// Subscribe registers a change observer. The callback runs synchronously on
// the dispatch goroutine after each accepted mutation; it must not block and
// must never write back into the instrument.
func (inst *Instrument) Subscribe(fn func(Change)) uint64 {
	return inst.subs.subscribe(fn)
}

// Unsubscribe removes a change observer.
func (inst *Instrument) Unsubscribe(id uint64) {
	inst.subs.unsubscribe(id)
}

// Value implements ParameterReader.
func (inst *Instrument) Value(name string) (any, bool) {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	p, ok := inst.params[name]
	if !ok {
		return nil, false
	}
	return p.Value(), true
}

// Number implements ParameterReader.
func (inst *Instrument) Number(name string) (float64, bool) {
	v, ok := inst.Value(name)
	if !ok {
		return 0, false
	}
	return toFloat64(v)
}

// Apply executes one request against the instrument state, synchronously and
// atomically from the caller's point of view. Failures are reported in the
// response and never leave partial state behind.
func (inst *Instrument) Apply(req *scpi.Request) *scpi.Response {
	inst.applyCount.Add(1)

	if resp, handled := inst.applyCommon(req); handled {
		return resp
	}

	if _, ok := inst.measurements[req.Target]; ok {
		if req.Verb != scpi.VerbQuery {
			return scpi.Errorf(scpi.StatusReadOnly, "%s is a measurement", req.Target)
		}
		value, err := inst.physics.Measure(req.Target, inst)
		if err != nil {
			return scpi.Errorf(scpi.StatusUnknownParameter, "%s: %v", req.Target, err)
		}
		return scpi.QueryResult(value)
	}

	p, ok := inst.params[req.Target]
	if !ok {
		return scpi.Errorf(scpi.StatusUnknownParameter, "%s", req.Target)
	}

	switch req.Verb {
	case scpi.VerbQuery:
		inst.mu.RLock()
		defer inst.mu.RUnlock()
		return scpi.QueryResult(p.ValueString())

	case scpi.VerbWrite:
		if !p.Metadata().Access.CanWrite() {
			return scpi.Errorf(scpi.StatusReadOnly, "%s", req.Target)
		}
		value, err := p.parseArgs(req.Args)
		if err != nil {
			return errorResponse(err)
		}
		inst.mu.Lock()
		if p.Metadata().Deferred {
			p.stage(value)
			inst.mu.Unlock()
			return scpi.Ack()
		}
		changed := p.set(value)
		inst.mu.Unlock()
		if changed {
			inst.subs.notify(Change{Name: p.Name(), Value: value})
		}
		return scpi.Ack()
	}

	return scpi.Errorf(scpi.StatusMalformedCommand, "unsupported verb for %s", req.Target)
}

// applyCommon handles the IEEE-488.2 common commands every instrument
// answers regardless of its parameter set.
func (inst *Instrument) applyCommon(req *scpi.Request) (*scpi.Response, bool) {
	switch req.Target {
	case "*IDN":
		if req.Verb != scpi.VerbQuery {
			return scpi.Errorf(scpi.StatusReadOnly, "*IDN"), true
		}
		return scpi.QueryResult(inst.identity), true

	case "*RST":
		inst.Reset()
		return scpi.Ack(), true

	case "*TRG":
		inst.commitStaged()
		return scpi.Ack(), true

	case "*OPC":
		if req.Verb == scpi.VerbQuery {
			return scpi.QueryResult("1"), true
		}
		return scpi.Ack(), true

	case "*CLS", "*WAI":
		return scpi.Ack(), true

	case "*TST", "*ESR", "*STB":
		if req.Verb == scpi.VerbQuery {
			return scpi.QueryResult("1"), true
		}
		return scpi.Ack(), true
	}
	return nil, false
}

// Reset restores every parameter to its default, discards staged writes,
// and resets the physics. Subscribers are notified of each changed value.
func (inst *Instrument) Reset() {
	var changes []Change
	inst.mu.Lock()
	for _, name := range inst.order {
		p := inst.params[name]
		if p.reset() {
			changes = append(changes, Change{Name: name, Value: p.Value()})
		}
	}
	inst.mu.Unlock()

	if inst.physics != nil {
		inst.physics.Reset()
	}
	for _, c := range changes {
		inst.subs.notify(c)
	}
}

// commitStaged applies all writes staged on deferred parameters.
func (inst *Instrument) commitStaged() {
	var changes []Change
	inst.mu.Lock()
	for _, name := range inst.order {
		p := inst.params[name]
		if v, changed := p.commit(); changed {
			changes = append(changes, Change{Name: name, Value: v})
		}
	}
	inst.mu.Unlock()

	for _, c := range changes {
		inst.subs.notify(c)
	}
}

// errorResponse maps a validation error onto the wire status vocabulary.
func errorResponse(err error) *scpi.Response {
	status := scpi.StatusMalformedCommand
	switch {
	case errors.Is(err, ErrTypeMismatch):
		status = scpi.StatusTypeMismatch
	case errors.Is(err, ErrOutOfRange):
		status = scpi.StatusOutOfRange
	case errors.Is(err, ErrNotWritable):
		status = scpi.StatusReadOnly
	case errors.Is(err, ErrUnknownTarget):
		status = scpi.StatusUnknownParameter
	}
	return scpi.Errorf(status, "%v", err)
}
