package transport

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxAcceptBackoff = time.Second

type TCPTransportConfig struct {
	ListenAddress string
	// Idle timeouts applied to every read and write on a connection
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// AcceptRate caps new connections per second; zero disables the limit
	AcceptRate  float64
	AcceptBurst int
	OnConn      HandlerFunc
}

// TCPTransport owns the listening socket and runs one goroutine per
// accepted connection
type TCPTransport struct {
	TCPTransportConfig
	listener net.Listener
	limiter  *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewTCPTransport(config TCPTransportConfig) *TCPTransport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &TCPTransport{
		TCPTransportConfig: config,
		ctx:                ctx,
		cancel:             cancel,
	}
	if config.AcceptRate > 0 {
		burst := config.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(config.AcceptRate), burst)
	}
	if t.OnConn == nil {
		t.OnConn = func(context.Context, *Conn) {}
	}
	return t
}

func (t *TCPTransport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *TCPTransport) ListenAndAccept() error {
	var err error

	t.listener, err = net.Listen("tcp", t.ListenAddress)
	if err != nil {
		return err
	}

	t.wg.Add(1)
	go t.startAcceptLoop()

	return nil
}

// Close stops accepting, cancels the context handed to handlers and waits
// for in-flight connections to finish.
func (t *TCPTransport) Close() error {
	var err error
	t.once.Do(func() {
		t.cancel()
		if t.listener != nil {
			err = t.listener.Close()
		}
		t.wg.Wait()
	})
	return err
}

func (t *TCPTransport) startAcceptLoop() {
	defer t.wg.Done()

	var backoff time.Duration
	for {
		if t.limiter != nil {
			if err := t.limiter.Wait(t.ctx); err != nil {
				return
			}
		}

		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			log.Printf("[%s]: Error accepting connection: %v; retrying in %v", t.ListenAddress, err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		t.wg.Add(1)
		go t.handleConn(conn)
	}
}

func (t *TCPTransport) handleConn(nc net.Conn) {
	conn := NewConn(nc, t.ReadTimeout, t.WriteTimeout)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s]: panic while handling %s: %v", t.ListenAddress, conn, r)
		}
		conn.Close()
		t.wg.Done()
	}()

	t.OnConn(t.ctx, conn)
}
