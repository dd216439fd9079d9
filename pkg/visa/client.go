package visa

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gotmc/query"

	"github.com/vinst-lab/vinst-go/pkg/scpi"
	"github.com/vinst-lab/vinst-go/pkg/transport"
)

// DefaultTimeout bounds each command/response exchange.
const DefaultTimeout = 5 * time.Second

// ErrClientClosed indicates an operation on a closed client.
var ErrClientClosed = errors.New("visa client closed")

// CommandError is an error response decoded from the wire.
type CommandError struct {
	// Status classifies the failure.
	Status scpi.Status

	// Detail is the human-readable description sent by the instrument.
	Detail string
}

func (e *CommandError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("instrument error: %s", e.Status)
	}
	return fmt.Sprintf("instrument error: %s: %s", e.Status, e.Detail)
}

// Client is a facade over one instrument connection. All methods are safe
// for concurrent use; exchanges are serialized so that every response pairs
// with the call that sent its command.
type Client struct {
	conn    net.Conn
	reader  *transport.LineReader
	writer  *transport.LineWriter
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// Option applies a configuration option to the client.
type Option func(*clientConfig)

type clientConfig struct {
	timeout    time.Duration
	maxLineLen int
}

// WithTimeout sets the per-exchange deadline (default 5s).
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// WithMaxLineLen sets the maximum accepted response line length.
func WithMaxLineLen(n int) Option {
	return func(c *clientConfig) { c.maxLineLen = n }
}

// Dial connects to an instrument endpoint.
func Dial(addr string, opts ...Option) (*Client, error) {
	config := clientConfig{
		timeout:    DefaultTimeout,
		maxLineLen: transport.DefaultMaxLineLen,
	}
	for _, opt := range opts {
		opt(&config)
	}

	conn, err := net.DialTimeout("tcp", addr, config.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to instrument: %w", err)
	}

	return &Client{
		conn:    conn,
		reader:  transport.NewLineReaderWithMax(conn, config.maxLineLen),
		writer:  transport.NewLineWriter(conn),
		timeout: config.timeout,
	}, nil
}

// RemoteAddr returns the remote endpoint address.
func (c *Client) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Write sends a settings command and waits for its acknowledgement. An
// error response line is returned as *CommandError.
func (c *Client) Write(cmd string) error {
	_, err := c.exchange(cmd)
	return err
}

// Command formats according to a format specifier if provided and sends the
// result as a settings command.
func (c *Client) Command(format string, a ...any) error {
	cmd := format
	if a != nil {
		cmd = fmt.Sprintf(format, a...)
	}
	return c.Write(cmd)
}

// Query sends a query command and returns the response value. An error
// response line is returned as *CommandError.
func (c *Client) Query(cmd string) (string, error) {
	return c.exchange(cmd)
}

// Queryf formats according to a format specifier and sends the result as a
// query command.
func (c *Client) Queryf(format string, a ...any) (string, error) {
	return c.Query(fmt.Sprintf(format, a...))
}

// Identity queries the instrument identification string.
func (c *Client) Identity() (string, error) {
	return c.Query("*IDN?")
}

// Reset restores the instrument to its power-on state.
func (c *Client) Reset() error {
	return c.Write("*RST")
}

// Trigger fires the instrument trigger, committing deferred settings.
func (c *Client) Trigger() error {
	return c.Write("*TRG")
}

// Close closes the connection. Further calls fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// exchange performs one strict command/response round trip.
func (c *Client) exchange(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClientClosed
	}

	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return "", fmt.Errorf("failed to set deadline: %w", err)
	}
	if err := c.writer.WriteLine(strings.TrimSpace(cmd)); err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}

	line, err := c.reader.ReadLine()
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if status, detail, ok := scpi.ParseErrorLine(line); ok {
		return "", &CommandError{Status: status, Detail: detail}
	}
	return line, nil
}

// The client satisfies the querier contract used by instrument drivers, so
// helpers like query.Float64 work against it directly.
var _ query.Querier = (*Client)(nil)
