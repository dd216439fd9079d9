package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vinst-lab/vinst-go/pkg/trace"
)

// ServerConfig configures an instrument's message server.
type ServerConfig struct {
	// Address to listen on (e.g. "127.0.0.1:5025"). Port 0 picks a free
	// port; read it back with Addr after Start.
	Address string

	// Instrument is the owning instrument's identifier, used in trace
	// events only.
	Instrument string

	// MaxLineLen is the maximum command line length (default 4096).
	MaxLineLen int

	// IdleTimeout tears down sessions with no traffic for this long.
	// Zero disables the timeout.
	IdleTimeout time.Duration

	// Logger for protocol tracing (optional).
	Logger trace.Logger

	// OnConnect is called when a new session is established.
	OnConnect func(sess *Session)

	// OnDisconnect is called after a session is torn down.
	OnDisconnect func(sess *Session)

	// OnLine is called for each received command line, in per-session
	// arrival order.
	OnLine func(sess *Session, line string)

	// OnError is called when a session fails (framing violation, socket
	// reset). The session is torn down afterwards.
	OnError func(sess *Session, err error)
}

// Server is a line-oriented message server for one virtual instrument:
// one listening endpoint, many concurrent client sessions.
type Server struct {
	config   ServerConfig
	listener net.Listener

	sessions   map[*Session]struct{}
	sessionsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new message server.
func NewServer(config ServerConfig) *Server {
	if config.Address == "" {
		config.Address = fmt.Sprintf("127.0.0.1:%d", DefaultPort)
	}
	if config.MaxLineLen <= 0 {
		config.MaxLineLen = DefaultMaxLineLen
	}
	return &Server{
		config:   config,
		sessions: make(map[*Session]struct{}),
	}
}

// Start begins accepting sessions.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("server already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop stops the server and tears down all sessions.
func (s *Server) Stop() error {
	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.sessionsMu.Lock()
	for sess := range s.sessions {
		sess.Close()
	}
	s.sessionsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the server's bound listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// SessionCount returns the number of active sessions.
func (s *Server) SessionCount() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

// acceptLoop accepts incoming connections.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() && s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("accept error: %w", err))
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection services a single session for its whole lifetime.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	sess := &Session{
		id:         uuid.New().String(),
		conn:       conn,
		writer:     NewLineWriter(conn),
		server:     s,
		remoteAddr: conn.RemoteAddr(),
		closeCh:    make(chan struct{}),
	}

	s.logState(sess, "", "CONNECTED")

	s.sessionsMu.Lock()
	s.sessions[sess] = struct{}{}
	s.sessionsMu.Unlock()

	if s.config.OnConnect != nil {
		s.config.OnConnect(sess)
	}

	s.readLoop(sess)
	sess.Close()

	s.sessionsMu.Lock()
	delete(s.sessions, sess)
	s.sessionsMu.Unlock()

	s.logState(sess, "CONNECTED", "DISCONNECTED")

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sess)
	}
}

// readLoop delivers received lines until the session ends.
func (s *Server) readLoop(sess *Session) {
	reader := NewLineReaderWithMax(sess.conn, s.config.MaxLineLen)

	for {
		select {
		case <-sess.closeCh:
			return
		case <-s.ctx.Done():
			return
		default:
		}

		if s.config.IdleTimeout > 0 {
			_ = sess.conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout))
		}

		line, err := reader.ReadLine()
		if err != nil {
			if s.running.Load() && !sess.Closed() && s.config.OnError != nil {
				s.config.OnError(sess, err)
			}
			if errors.Is(err, ErrLineTooLong) {
				s.logError(sess, err)
			}
			return
		}

		if logger := s.config.Logger; logger != nil {
			logger.Log(trace.Event{
				Timestamp:  time.Now(),
				SessionID:  sess.id,
				Direction:  trace.DirectionIn,
				Layer:      trace.LayerTransport,
				Category:   trace.CategoryCommand,
				Instrument: s.config.Instrument,
				RemoteAddr: sess.remoteAddr.String(),
				Line:       trace.ClampLine(line),
			})
		}

		if s.config.OnLine != nil {
			s.config.OnLine(sess, line)
		}
	}
}

func (s *Server) logState(sess *Session, oldState, newState string) {
	if s.config.Logger == nil {
		return
	}
	s.config.Logger.Log(trace.Event{
		Timestamp:  time.Now(),
		SessionID:  sess.id,
		Layer:      trace.LayerTransport,
		Category:   trace.CategoryState,
		Instrument: s.config.Instrument,
		RemoteAddr: sess.remoteAddr.String(),
		StateChange: &trace.StateChangeEvent{
			Entity:   trace.EntitySession,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func (s *Server) logError(sess *Session, err error) {
	if s.config.Logger == nil {
		return
	}
	s.config.Logger.Log(trace.Event{
		Timestamp:  time.Now(),
		SessionID:  sess.id,
		Layer:      trace.LayerTransport,
		Category:   trace.CategoryError,
		Instrument: s.config.Instrument,
		RemoteAddr: sess.remoteAddr.String(),
		Error:      &trace.ErrorEvent{Message: err.Error()},
	})
}
