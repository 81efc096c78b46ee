package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// Client talks to a running server over its unix socket. Safe for
// sequential use; calls are serialized.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder
	sc   *bufio.Scanner
}

// Dial connects to the server socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Client{
		conn: conn,
		enc:  json.NewEncoder(conn),
		sc:   sc,
	}, nil
}

// Call sends one request and decodes the reply's data into out (when
// out is non-nil). A server-side failure comes back as an error.
func (c *Client) Call(operation string, args any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := Request{Operation: operation}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("encoding args: %w", err)
		}
		req.Args = raw
	}
	if err := c.enc.Encode(req); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	if !c.sc.Scan() {
		if err := c.sc.Err(); err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
		return fmt.Errorf("connection closed")
	}
	var resp Response
	if err := json.Unmarshal(c.sc.Bytes(), &resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	if out != nil && len(resp.Data) > 0 {
		return json.Unmarshal(resp.Data, out)
	}
	return nil
}

// Close disconnects.
func (c *Client) Close() error {
	return c.conn.Close()
}
