package transport

import (
	"context"
	"net"
)

// HandlerFunc serves one accepted connection. The connection is closed by
// the transport when the handler returns.
type HandlerFunc func(ctx context.Context, conn *Conn)

// Transport accepts client connections and hands each one to a handler
// Can be TCP, Unix sockets, etc
type Transport interface {
	ListenAndAccept() error
	Addr() net.Addr
	Close() error
}
