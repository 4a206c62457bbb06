package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/dreamware/knotdc/internal/ai"
	"github.com/dreamware/knotdc/internal/crystal"
)

// DefaultTimeout bounds a single request when the context has no deadline.
const DefaultTimeout = 5 * time.Second

// Client sends one command per connection to a datacenter server.
type Client struct {
	Addr    string        // host:port of the server
	Timeout time.Duration // Per-request timeout
}

// NewClient returns a client for addr. A non-positive timeout selects
// DefaultTimeout.
func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{Addr: addr, Timeout: timeout}
}

// Do sends a raw command and returns the raw response, which may be an
// error line. Socket failures are wrapped with ErrTransientIO.
func (c *Client) Do(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w: %v", c.Addr, ErrTransientIO, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := io.WriteString(conn, command); err != nil {
		return "", fmt.Errorf("send %q: %w: %v", command, ErrTransientIO, err)
	}
	// Half-close so the server sees the end of the session after replying.
	if hc, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = hc.CloseWrite()
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("read %q: %w: %v", command, ErrTransientIO, err)
	}
	return string(data), nil
}

// DoJSON sends a command and decodes a JSON response into out. An error
// line is returned as an ErrProtocol error carrying the server message.
func (c *Client) DoJSON(ctx context.Context, command string, out any) error {
	resp, err := c.Do(ctx, command)
	if err != nil {
		return err
	}
	if IsError(resp) {
		return fmt.Errorf("%s: %w: %s", command, ErrProtocol, strings.TrimSpace(resp))
	}
	if err := json.Unmarshal([]byte(resp), out); err != nil {
		return fmt.Errorf("%s: %w: decode: %v", command, ErrProtocol, err)
	}
	return nil
}

// Status runs STATUS.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var st StatusResponse
	err := c.DoJSON(ctx, CmdStatus, &st)
	return st, err
}

// List runs LIST.
func (c *Client) List(ctx context.Context) ([]string, error) {
	resp, err := c.Do(ctx, CmdList)
	if err != nil {
		return nil, err
	}
	if IsError(resp) {
		return nil, fmt.Errorf("%s: %w: %s", CmdList, ErrProtocol, resp)
	}
	return SplitList(resp), nil
}

// Info runs INFO for one crystal. An unknown crystal yields
// ErrCrystalNotFound.
func (c *Client) Info(ctx context.Context, name string) (crystal.State, error) {
	var st crystal.State
	command := CmdInfo + " " + name
	resp, err := c.Do(ctx, command)
	if err != nil {
		return st, err
	}
	if resp == CrystalNotFound(name) {
		return st, fmt.Errorf("%s: %w: %s", command, ErrCrystalNotFound, name)
	}
	if IsError(resp) {
		return st, fmt.Errorf("%s: %w: %s", command, ErrProtocol, strings.TrimSpace(resp))
	}
	if err := json.Unmarshal([]byte(resp), &st); err != nil {
		return st, fmt.Errorf("%s: %w: decode: %v", command, ErrProtocol, err)
	}
	return st, nil
}

// AIStatus runs AI_STATUS.
func (c *Client) AIStatus(ctx context.Context) (ai.Metrics, error) {
	var m ai.Metrics
	err := c.DoJSON(ctx, CmdAIStatus, &m)
	return m, err
}

// AIReport runs AI_REPORT.
func (c *Client) AIReport(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, CmdAIReport)
	if err != nil {
		return "", err
	}
	if IsError(resp) {
		return "", fmt.Errorf("%s: %w: %s", CmdAIReport, ErrProtocol, resp)
	}
	return resp, nil
}

// AIOptimize runs AI_OPTIMIZE.
func (c *Client) AIOptimize(ctx context.Context) (ai.SweepResult, error) {
	var res ai.SweepResult
	err := c.DoJSON(ctx, CmdAIOptimize, &res)
	return res, err
}
