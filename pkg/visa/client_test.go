package visa

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gotmc/query"

	"github.com/vinst-lab/vinst-go/pkg/instrument"
	"github.com/vinst-lab/vinst-go/pkg/scpi"
	"github.com/vinst-lab/vinst-go/pkg/transport"
)

func startInstrumentServer(t *testing.T) *transport.Server {
	t.Helper()

	inst, err := instrument.NewBuilder("PSU1").
		Identity("PFJ Systems Inc., Virtual Voltage Source VVS1, S/N V5437").
		Numeric("VOLT", 0, 30, 0, "V").
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	srv := transport.NewServer(transport.ServerConfig{
		Address: "127.0.0.1:0",
		OnLine: func(sess *transport.Session, line string) {
			reqs, perr := scpi.ParseLine(line)
			if perr != nil {
				_ = sess.Send(scpi.Errorf(scpi.StatusMalformedCommand, "%s", perr).Render())
				return
			}
			for _, req := range reqs {
				_ = sess.Send(inst.Apply(req).Render())
			}
		},
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func dialClient(t *testing.T, srv *transport.Server) *Client {
	t.Helper()
	client, err := Dial(srv.Addr().String(), WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientIdentity(t *testing.T) {
	srv := startInstrumentServer(t)
	client := dialClient(t, srv)

	idn, err := client.Identity()
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	want := "PFJ Systems Inc., Virtual Voltage Source VVS1, S/N V5437"
	if idn != want {
		t.Errorf("identity = %q, want %q", idn, want)
	}
}

func TestClientWriteThenQuery(t *testing.T) {
	srv := startInstrumentServer(t)
	client := dialClient(t, srv)

	if err := client.Write("VOLT 12.5"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := client.Query("VOLT?")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got != "12.5" {
		t.Errorf("VOLT? = %q, want 12.5", got)
	}
}

func TestClientCommandFormats(t *testing.T) {
	srv := startInstrumentServer(t)
	client := dialClient(t, srv)

	if err := client.Command("VOLT %.1f", 7.5); err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	got, err := client.Queryf("%s?", "VOLT")
	if err != nil {
		t.Fatalf("Queryf failed: %v", err)
	}
	if got != "7.5" {
		t.Errorf("VOLT? = %q, want 7.5", got)
	}
}

func TestClientErrorResponseDecoded(t *testing.T) {
	srv := startInstrumentServer(t)
	client := dialClient(t, srv)

	err := client.Write("VOLT 99")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error = %v, want *CommandError", err)
	}
	if cmdErr.Status != scpi.StatusOutOfRange {
		t.Errorf("status = %v, want OUT_OF_RANGE", cmdErr.Status)
	}
	if cmdErr.Detail == "" {
		t.Error("detail is empty")
	}

	// A rejected write leaves the prior value untouched.
	got, err := client.Query("VOLT?")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got != "0" {
		t.Errorf("VOLT? after rejected write = %q, want 0", got)
	}
}

func TestClientUnknownParameter(t *testing.T) {
	srv := startInstrumentServer(t)
	client := dialClient(t, srv)

	_, err := client.Query("CURR?")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error = %v, want *CommandError", err)
	}
	if cmdErr.Status != scpi.StatusUnknownParameter {
		t.Errorf("status = %v, want UNKNOWN_PARAMETER", cmdErr.Status)
	}
}

func TestClientAsQuerier(t *testing.T) {
	srv := startInstrumentServer(t)
	client := dialClient(t, srv)

	if err := client.Write("VOLT 3.25"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := query.Float64(client, "VOLT?")
	if err != nil {
		t.Fatalf("query.Float64 failed: %v", err)
	}
	if got != 3.25 {
		t.Errorf("query.Float64 = %v, want 3.25", got)
	}
}

func TestClientClosed(t *testing.T) {
	srv := startInstrumentServer(t)
	client := dialClient(t, srv)

	if err := client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if err := client.Write("VOLT 1"); err != ErrClientClosed {
		t.Errorf("Write after close = %v, want ErrClientClosed", err)
	}
}
