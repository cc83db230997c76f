package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnishMulay/ftserver/protocol"
)

// scripted accepts one connection and runs fn on it.
func scripted(t *testing.T, fn func(net.Conn)) *Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fn(conn)
	}()
	return New(Config{Address: ln.Addr().String(), Timeout: 2 * time.Second})
}

func acceptRequest(conn net.Conn) (protocol.Request, error) {
	op, err := protocol.ReadOp(conn)
	if err != nil {
		protocol.WriteStatus(conn, protocol.StatusBadRequest)
		return protocol.Request{}, err
	}
	protocol.WriteStatus(conn, protocol.StatusOK)
	path, err := protocol.ReadPath(conn)
	return protocol.Request{Op: op, Path: path}, err
}

func TestReadTrailerError(t *testing.T) {
	c := scripted(t, func(conn net.Conn) {
		if _, err := acceptRequest(conn); err != nil {
			return
		}
		protocol.WriteStatus(conn, protocol.StatusOK)
		protocol.WriteLengthPrefixed(conn, []byte{'a', 0, 0})
		protocol.WriteStatus(conn, protocol.StatusServerError)
	})

	_, err := c.Read(context.Background(), "f")
	assert.ErrorIs(t, err, protocol.ErrShortPayload)
	var se *protocol.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, protocol.StatusServerError, se.Status)
}

func TestReadSendsPath(t *testing.T) {
	got := make(chan protocol.Request, 1)
	c := scripted(t, func(conn net.Conn) {
		req, err := acceptRequest(conn)
		if err != nil {
			return
		}
		got <- req
		protocol.WriteStatus(conn, protocol.StatusOK)
		protocol.WriteLengthPrefixed(conn, []byte("hello"))
		protocol.WriteStatus(conn, protocol.StatusOK)
	})

	data, err := c.Read(context.Background(), "dir/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, protocol.Request{Op: protocol.OpRead, Path: "dir/f.txt"}, <-got)
}

func TestWriteWaitsForCompletion(t *testing.T) {
	payload := make(chan []byte, 1)
	c := scripted(t, func(conn net.Conn) {
		if _, err := acceptRequest(conn); err != nil {
			return
		}
		protocol.WriteStatus(conn, protocol.StatusCreated)
		b, _ := protocol.ReadLengthPrefixed(conn, 0)
		payload <- b
		protocol.WriteStatus(conn, protocol.StatusOK)
	})

	status, err := c.Write(context.Background(), "new.txt", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusCreated, status)
	assert.Equal(t, "data", string(<-payload))
}

func TestServerClosesWithoutStatus(t *testing.T) {
	c := scripted(t, func(conn net.Conn) {
		acceptRequest(conn)
	})

	_, err := c.List(context.Background(), "")
	assert.Error(t, err)
}

func TestDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	c := New(Config{Address: addr, Timeout: time.Second})
	_, err = c.Read(context.Background(), "x")
	assert.Error(t, err)
}
