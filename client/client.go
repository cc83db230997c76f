// Package client speaks the file transfer protocol from the client side.
// Every call dials a fresh connection, since the server closes it after one
// operation.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/AnishMulay/ftserver/protocol"
)

type Config struct {
	Address string
	// Timeout bounds a whole operation, including the dial
	Timeout time.Duration
}

type Client struct {
	Config
	dialer net.Dialer
}

func New(config Config) *Client {
	return &Client{Config: config}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	conn, err := c.dialer.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return nil, err
	}
	// the dial deadline also covers the rest of the operation
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	return conn, nil
}

// Do sends op and path and returns the open connection positioned after
// the server's acknowledgement. The caller owns the connection.
func (c *Client) Do(ctx context.Context, op protocol.Op, path string) (net.Conn, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.handshake(conn, op, path); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Client) handshake(conn net.Conn, op protocol.Op, path string) error {
	if err := protocol.WriteOp(conn, op); err != nil {
		return err
	}
	ack, err := protocol.ReadStatus(conn)
	if err != nil {
		return fmt.Errorf("reading ack: %w", err)
	}
	if err := ack.Err(); err != nil {
		return err
	}
	return protocol.WritePath(conn, path)
}

// Read fetches the file at path.
func (c *Client) Read(ctx context.Context, path string) ([]byte, error) {
	conn, err := c.Do(ctx, protocol.OpRead, path)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := expectStatus(conn); err != nil {
		return nil, err
	}
	data, err := protocol.ReadLengthPrefixed(conn, 0)
	if err != nil {
		return nil, err
	}
	trailer, err := protocol.ReadStatus(conn)
	if err != nil {
		return nil, fmt.Errorf("reading trailer: %w", err)
	}
	if err := trailer.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrShortPayload, err)
	}
	return data, nil
}

// Write stores data at path and returns OK or Created.
func (c *Client) Write(ctx context.Context, path string, data []byte) (protocol.Status, error) {
	conn, err := c.Do(ctx, protocol.OpWrite, path)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	status, err := protocol.ReadStatus(conn)
	if err != nil {
		return 0, err
	}
	if err := status.Err(); err != nil {
		return status, err
	}
	if err := protocol.WriteLengthPrefixed(conn, data); err != nil {
		return status, err
	}
	done, err := protocol.ReadStatus(conn)
	if err != nil {
		return status, fmt.Errorf("reading completion: %w", err)
	}
	return status, done.Err()
}

// List returns the long listing of the directory at path.
func (c *Client) List(ctx context.Context, path string) (string, error) {
	conn, err := c.Do(ctx, protocol.OpList, path)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := expectStatus(conn); err != nil {
		return "", err
	}
	text, err := protocol.ReadLengthPrefixed(conn, 0)
	if err != nil {
		return "", err
	}
	return string(text), nil
}

func expectStatus(r io.Reader) error {
	status, err := protocol.ReadStatus(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("connection closed before status: %w", err)
		}
		return err
	}
	return status.Err()
}
