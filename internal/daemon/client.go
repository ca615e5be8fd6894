package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/codescope/pkg/types"
)

// DefaultDialTimeout bounds connecting to a daemon
const DefaultDialTimeout = 2 * time.Second

// Client sends commands to a daemon over one connection. Calls are
// serialized.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
	enc  *json.Encoder
}

// Dial connects to the daemon at addr
func Dial(ctx context.Context, addr string) (*Client, error) {
	d := net.Dialer{Timeout: DefaultDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial daemon %s: %w", types.ErrUnavailable, addr, err)
	}
	return &Client{conn: conn, rd: bufio.NewReaderSize(conn, 64<<10), enc: json.NewEncoder(conn)}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Call sends command with params and decodes the result into result, which
// may be nil. A daemon-side failure is returned as *RemoteError. Cancelling
// ctx closes the connection, which cancels the request on the daemon; the
// client is unusable afterwards.
func (c *Client) Call(ctx context.Context, command string, params, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("%w: client closed", types.ErrUnavailable)
	}

	req := Request{ID: uuid.NewString(), Command: command}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%w: encode params: %v", types.ErrInvalidArgument, err)
		}
		req.Params = raw
	}

	conn := c.conn
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	resp, err := c.roundTrip(req)
	if !stop() {
		_ = c.conn.Close()
		c.conn = nil
		return ctx.Err()
	}
	if err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return fmt.Errorf("%w: %s: %w", types.ErrUnavailable, command, err)
	}

	if resp.Status != StatusOK {
		if resp.Error == nil {
			return &RemoteError{Kind: "Internal", Message: "daemon returned status " + resp.Status}
		}
		return &RemoteError{Kind: resp.Error.Kind, Message: resp.Error.Message}
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("decode %s result: %w", command, err)
	}
	return nil
}

func (c *Client) roundTrip(req Request) (Response, error) {
	if err := c.enc.Encode(req); err != nil {
		return Response{}, err
	}
	for {
		line, err := c.rd.ReadBytes('\n')
		if err != nil {
			return Response{}, err
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			return Response{}, fmt.Errorf("malformed response: %w", err)
		}
		if resp.ID == req.ID {
			return resp, nil
		}
		if resp.ID == "" && resp.Error != nil {
			return Response{}, errors.New(resp.Error.Message)
		}
	}
}

// Status asks the daemon for its status
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.Call(ctx, CommandStatus, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
