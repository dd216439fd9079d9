package transport

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/vinst-lab/vinst-go/pkg/trace"
)

// ErrSessionClosed indicates a send on a torn-down session. The response is
// dropped; this is the normal outcome for requests completing after their
// client disconnected.
var ErrSessionClosed = errors.New("session closed")

// Session is one client's logical connection to an instrument's message
// server. It is created on accept and destroyed on disconnect or idle
// timeout; it never outlives its connection.
type Session struct {
	id         string
	conn       net.Conn
	writer     *LineWriter
	server     *Server
	remoteAddr net.Addr

	closeCh   chan struct{}
	closeOnce sync.Once
}

// ID returns the unique session identifier (UUID).
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the client's address.
func (s *Session) RemoteAddr() net.Addr { return s.remoteAddr }

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}

// Send writes one response line to the client. Responses for a closed
// session are dropped with ErrSessionClosed.
func (s *Session) Send(line string) error {
	if s.Closed() {
		return ErrSessionClosed
	}
	if err := s.writer.WriteLine(line); err != nil {
		return err
	}
	if logger := s.server.config.Logger; logger != nil {
		logger.Log(trace.Event{
			Timestamp:  time.Now(),
			SessionID:  s.id,
			Direction:  trace.DirectionOut,
			Layer:      trace.LayerTransport,
			Category:   trace.CategoryCommand,
			Instrument: s.server.config.Instrument,
			RemoteAddr: s.remoteAddr.String(),
			Line:       trace.ClampLine(line),
		})
	}
	return nil
}

// Close tears the session down. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		err = s.conn.Close()
	})
	return err
}
