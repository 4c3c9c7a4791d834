package openocd

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/crashprobe/internal/logging"
)

const terminator = 0x1a

// Config holds OpenOCD connection settings.
type Config struct {
	// Host is the hostname/IP where OpenOCD is running.
	// Default: "localhost"
	Host string

	// Port is the Tcl server port.
	// Default: 6666
	Port int

	// DialTimeout bounds connection setup.
	// Default: 5 seconds
	DialTimeout time.Duration

	// CommandTimeout bounds each command round trip when the context has
	// no earlier deadline.
	// Default: 10 seconds
	CommandTimeout time.Duration

	// ChunkSize is the largest transfer sent in one command.
	// Default: 1024
	ChunkSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           6666,
		DialTimeout:    5 * time.Second,
		CommandTimeout: 10 * time.Second,
		ChunkSize:      1024,
	}
}

func (c Config) address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client is a connection to the OpenOCD Tcl server. Commands are
// serialized; the Tcl protocol has no request IDs, so a failed round trip
// leaves the stream out of step and the client is closed.
type Client struct {
	config Config
	logger *zap.Logger

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	broken error
}

// Dial connects to OpenOCD.
func Dial(ctx context.Context, config Config, logger *zap.Logger) (*Client, error) {
	d := DefaultConfig()
	if config.Host == "" {
		config.Host = d.Host
	}
	if config.Port == 0 {
		config.Port = d.Port
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = d.DialTimeout
	}
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = d.CommandTimeout
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = d.ChunkSize
	}
	logger = logging.OrNop(logger)

	dialer := net.Dialer{Timeout: config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", config.address())
	if err != nil {
		return nil, &ConnectionError{Host: config.Host, Port: config.Port, Err: err}
	}

	logger.Debug("Connected to OpenOCD", zap.String("address", config.address()))
	return &Client{
		config: config,
		logger: logger,
		conn:   conn,
		reader: bufio.NewReader(conn),
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken != nil {
		return nil
	}
	c.broken = net.ErrClosed
	return c.conn.Close()
}

// fail closes the connection after a transport error. Any reply still in
// flight belongs to the failed command, so the stream cannot be reused.
func (c *Client) fail(err error) {
	if c.broken == nil {
		c.broken = err
		_ = c.conn.Close()
		c.logger.Debug("OpenOCD connection closed", zap.Error(err))
	}
}

// Command sends one Tcl command and returns the raw response.
func (c *Client) Command(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip(ctx, cmd)
}

func (c *Client) roundTrip(ctx context.Context, cmd string) (string, error) {
	if c.broken != nil {
		return "", &ConnectionError{Host: c.config.Host, Port: c.config.Port, Err: c.broken}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	deadline := time.Now().Add(c.config.CommandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.fail(err)
		return "", fmt.Errorf("failed to set deadline: %w", err)
	}

	c.logger.Debug("OpenOCD command", zap.String("cmd", cmd))
	if _, err := c.conn.Write(append([]byte(cmd), terminator)); err != nil {
		c.fail(err)
		return "", fmt.Errorf("failed to send %q: %w", cmd, err)
	}

	resp, err := c.reader.ReadString(terminator)
	if err != nil {
		c.fail(err)
		return "", fmt.Errorf("failed to read response to %q: %w", cmd, err)
	}
	resp = resp[:len(resp)-1]
	c.logger.Debug("OpenOCD response", zap.String("cmd", cmd), zap.Int("length", len(resp)))
	return resp, nil
}

// Version returns the OpenOCD version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	resp, err := c.Command(ctx, "version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

// ReadMemory implements memory.Interface.
func (c *Client) ReadMemory(ctx context.Context, addr uint64, length int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]byte, 0, length)
	for done := 0; done < length; {
		n := min(length-done, c.config.ChunkSize)
		cmd := fmt.Sprintf("read_memory 0x%x 8 %d", addr+uint64(done), n)
		resp, err := c.roundTrip(ctx, cmd)
		if err != nil {
			return nil, err
		}
		chunk, err := parseBytes(resp, n)
		if err != nil {
			return nil, &CommandError{Command: cmd, Response: strings.TrimSpace(resp)}
		}
		out = append(out, chunk...)
		done += n
	}
	logging.MemoryAccess(c.logger, "read", addr, out)
	return out, nil
}

// WriteMemory implements memory.Interface.
func (c *Client) WriteMemory(ctx context.Context, addr uint64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for done := 0; done < len(data); {
		n := min(len(data)-done, c.config.ChunkSize)
		cmd := fmt.Sprintf("write_memory 0x%x 8 {%s}", addr+uint64(done), formatBytes(data[done:done+n]))
		resp, err := c.roundTrip(ctx, cmd)
		if err != nil {
			return err
		}
		if strings.TrimSpace(resp) != "" {
			return &CommandError{Command: cmd, Response: strings.TrimSpace(resp)}
		}
		done += n
	}
	logging.MemoryAccess(c.logger, "write", addr, data)
	return nil
}

// parseBytes decodes a read_memory reply: a Tcl list of numbers.
func parseBytes(resp string, want int) ([]byte, error) {
	fields := strings.Fields(resp)
	if len(fields) != want {
		return nil, fmt.Errorf("expected %d values, got %d", want, len(fields))
	}
	out := make([]byte, want)
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 0, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

func formatBytes(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "0x%02x", b)
	}
	return sb.String()
}
