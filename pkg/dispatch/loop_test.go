package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vinst-lab/vinst-go/pkg/instrument"
	"github.com/vinst-lab/vinst-go/pkg/scpi"
)

func buildPSU(t *testing.T, phys instrument.Physics) *instrument.Instrument {
	t.Helper()
	b := instrument.NewBuilder("PSU1").
		Identity("PFJ Systems Inc., Virtual Voltage Source VVS1, S/N V5437").
		Numeric("VOLT", 0, 30, 0, "V")
	if phys != nil {
		b = b.Physics(phys).Measurement("MEAS:VOLT")
	}
	inst, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return inst
}

func startLoop(t *testing.T, inst *instrument.Instrument) *Loop {
	t.Helper()
	loop := NewLoop(inst, Config{})
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = loop.Stop() })
	return loop
}

func request(t *testing.T, line, sessionID string) *scpi.Request {
	t.Helper()
	req, err := scpi.Parse(line)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", line, err)
	}
	req.SessionID = sessionID
	return req
}

func await(t *testing.T, ch <-chan *scpi.Response) *scpi.Response {
	t.Helper()
	select {
	case resp := <-ch:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
		return nil
	}
}

// gatedPhysics blocks Measure until released, holding the loop in its
// Executing state for as long as a test needs.
type gatedPhysics struct {
	started chan struct{}
	gate    chan struct{}
}

func newGatedPhysics() *gatedPhysics {
	return &gatedPhysics{
		started: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
}

func (g *gatedPhysics) Measure(string, instrument.ParameterReader) (string, error) {
	g.started <- struct{}{}
	<-g.gate
	return "0", nil
}

func (g *gatedPhysics) Reset() {}

func TestConcurrentWritesSerialized(t *testing.T) {
	inst := buildPSU(t, nil)
	loop := startLoop(t, inst)

	const sessions = 8
	issued := make(map[string]bool)
	var issuedMu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value := fmt.Sprintf("%d", i+1)
			issuedMu.Lock()
			issued[value] = true
			issuedMu.Unlock()

			ch, err := loop.Submit(request(t, "VOLT "+value, fmt.Sprintf("session-%d", i)))
			if err != nil {
				t.Errorf("Submit failed: %v", err)
				return
			}
			if resp := await(t, ch); resp.Status != scpi.StatusOK {
				t.Errorf("write rejected: %s", resp.Render())
			}
		}(i)
	}
	wg.Wait()

	if got := loop.ApplyCount(); got != sessions {
		t.Errorf("ApplyCount = %d, want %d", got, sessions)
	}

	ch, err := loop.Submit(request(t, "VOLT?", "observer"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	final := await(t, ch).Render()
	if !issued[final] {
		t.Errorf("final value %q is not one of the issued values", final)
	}
}

func TestPerSessionOrdering(t *testing.T) {
	inst := buildPSU(t, nil)
	loop := startLoop(t, inst)

	const writes = 20
	var chans []<-chan *scpi.Response
	for i := 1; i <= writes; i++ {
		ch, err := loop.Submit(request(t, fmt.Sprintf("VOLT %d", i), "session-a"))
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		chans = append(chans, ch)
	}
	for i, ch := range chans {
		if resp := await(t, ch); resp.Status != scpi.StatusOK {
			t.Fatalf("write %d rejected: %s", i+1, resp.Render())
		}
	}

	ch, err := loop.Submit(request(t, "VOLT?", "session-a"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got := await(t, ch).Render(); got != fmt.Sprintf("%d", writes) {
		t.Errorf("final value = %q, want %d", got, writes)
	}
}

func TestCancelSessionSkipsQueuedRequests(t *testing.T) {
	phys := newGatedPhysics()
	inst := buildPSU(t, phys)
	loop := startLoop(t, inst)

	// Hold the loop in Executing with a measurement from another session.
	measCh, err := loop.Submit(request(t, "MEAS:VOLT?", "session-a"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-phys.started

	// Queue writes from the session about to disconnect.
	const queued = 3
	var chans []<-chan *scpi.Response
	for i := 0; i < queued; i++ {
		ch, err := loop.Submit(request(t, "VOLT 9", "session-b"))
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		chans = append(chans, ch)
	}

	loop.CancelSession("session-b")
	close(phys.gate)

	if resp := await(t, measCh); resp.Status != scpi.StatusOK {
		t.Fatalf("measurement rejected: %s", resp.Render())
	}

	for i, ch := range chans {
		select {
		case resp, ok := <-ch:
			if ok {
				t.Errorf("cancelled request %d produced response %s", i, resp.Render())
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("cancelled request %d never resolved", i)
		}
	}

	// Only the measurement was applied; no cancelled write mutated state.
	if got := loop.ApplyCount(); got != 1 {
		t.Errorf("ApplyCount = %d, want 1", got)
	}
	ch, err := loop.Submit(request(t, "VOLT?", "session-c"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got := await(t, ch).Render(); got != "0" {
		t.Errorf("VOLT after cancelled writes = %q, want 0", got)
	}
}

func TestInFlightRequestCompletesOnCancel(t *testing.T) {
	phys := newGatedPhysics()
	inst := buildPSU(t, phys)
	loop := startLoop(t, inst)

	ch, err := loop.Submit(request(t, "MEAS:VOLT?", "session-a"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-phys.started

	// Cancelling mid-execution must not abort the request; the session
	// layer discards the response instead.
	loop.CancelSession("session-a")
	close(phys.gate)

	if resp := await(t, ch); resp.Status != scpi.StatusOK {
		t.Errorf("in-flight request did not complete: %s", resp.Render())
	}
	if got := loop.ApplyCount(); got != 1 {
		t.Errorf("ApplyCount = %d, want 1", got)
	}
}

func TestTrySubmitWhileBusy(t *testing.T) {
	phys := newGatedPhysics()
	inst := buildPSU(t, phys)
	loop := startLoop(t, inst)

	measCh, err := loop.Submit(request(t, "MEAS:VOLT?", "session-a"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-phys.started

	if _, err := loop.TrySubmit(request(t, "VOLT 1", "session-b")); err != ErrBusy {
		t.Errorf("TrySubmit while executing = %v, want ErrBusy", err)
	}

	close(phys.gate)
	await(t, measCh)

	// Idle again: non-blocking submits are accepted.
	deadline := time.Now().Add(2 * time.Second)
	for {
		ch, err := loop.TrySubmit(request(t, "VOLT 1", "session-b"))
		if err == nil {
			if resp := await(t, ch); resp.Status != scpi.StatusOK {
				t.Fatalf("write rejected: %s", resp.Render())
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("TrySubmit still failing: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFailuresDoNotStopLoop(t *testing.T) {
	inst := buildPSU(t, nil)
	loop := startLoop(t, inst)

	ch, err := loop.Submit(request(t, "NOPE?", "session-a"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if resp := await(t, ch); resp.Status != scpi.StatusUnknownParameter {
		t.Errorf("status = %v, want UNKNOWN_PARAMETER", resp.Status)
	}

	ch, err = loop.Submit(request(t, "VOLT 99", "session-a"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if resp := await(t, ch); resp.Status != scpi.StatusOutOfRange {
		t.Errorf("status = %v, want OUT_OF_RANGE", resp.Status)
	}

	ch, err = loop.Submit(request(t, "VOLT 3", "session-a"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if resp := await(t, ch); resp.Status != scpi.StatusOK {
		t.Errorf("loop unhealthy after error: %s", resp.Render())
	}
}

func TestSubmitAfterStop(t *testing.T) {
	inst := buildPSU(t, nil)
	loop := NewLoop(inst, Config{})
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := loop.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, err := loop.Submit(request(t, "VOLT 1", "session-a")); err != ErrStopped {
		t.Errorf("Submit after stop = %v, want ErrStopped", err)
	}
}

func TestIndependentInstrumentsExecuteConcurrently(t *testing.T) {
	phys := newGatedPhysics()
	busy := buildPSU(t, phys)
	busyLoop := startLoop(t, busy)

	free := buildPSU(t, nil)
	freeLoop := startLoop(t, free)

	measCh, err := busyLoop.Submit(request(t, "MEAS:VOLT?", "session-a"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-phys.started

	// The second instrument is unaffected by the first being busy.
	ch, err := freeLoop.Submit(request(t, "VOLT 2", "session-b"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if resp := await(t, ch); resp.Status != scpi.StatusOK {
		t.Errorf("write on idle instrument rejected: %s", resp.Render())
	}

	close(phys.gate)
	await(t, measCh)
}
