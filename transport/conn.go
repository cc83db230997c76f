package transport

import (
	"io"
	"net"
	"time"

	"github.com/google/uuid"
)

// Conn represents one accepted client connection
type Conn struct {
	net.Conn

	// ID tags every log line written for this connection
	ID string

	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewConn(conn net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{
		Conn:         conn,
		ID:           uuid.NewString(),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// Read refreshes the read deadline so that a stalled client cannot hold a
// connection, and any lock taken on its behalf, forever.
func (c *Conn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *Conn) Write(b []byte) (int, error) {
	if err := c.armWrite(); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}

// ReadFrom hands the copy to the TCP connection so that file sources go
// through sendfile. The write deadline covers the whole transfer, scaled by
// the number of bytes when the source is size limited.
func (c *Conn) ReadFrom(r io.Reader) (int64, error) {
	rf, ok := c.Conn.(io.ReaderFrom)
	if !ok {
		return io.Copy(struct{ io.Writer }{c}, r)
	}
	if c.writeTimeout > 0 {
		timeout := c.writeTimeout
		if lr, ok := r.(*io.LimitedReader); ok {
			// one timeout per MiB still in flight, at least one
			timeout *= time.Duration(lr.N>>20 + 1)
		}
		if err := c.Conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return 0, err
		}
	}
	return rf.ReadFrom(r)
}

func (c *Conn) armWrite() error {
	if c.writeTimeout <= 0 {
		return nil
	}
	return c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
}

func (c *Conn) String() string {
	return c.ID[:8] + "@" + c.RemoteAddr().String()
}
