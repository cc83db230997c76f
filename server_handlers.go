package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/AnishMulay/ftserver/protocol"
	"github.com/AnishMulay/ftserver/store"
	"github.com/AnishMulay/ftserver/transport"
)

// handleConn runs the one-shot protocol on conn: read the op, acknowledge
// it, read the path, dispatch. The transport closes conn afterwards.
func (s *FileServer) handleConn(ctx context.Context, conn *transport.Conn) {
	start := time.Now()
	s.Metrics.ConnOpened()
	defer s.Metrics.ConnClosed()

	op, status, err := s.serve(ctx, conn)
	outcome := status.String()
	if err != nil {
		log.Printf("[%s]: %s aborted: %v", conn, op, err)
		if status == 0 {
			outcome = "aborted"
		}
	}
	s.Metrics.ObserveRequest(op.String(), outcome, time.Since(start).Seconds())
}

// serve returns the last status sent and any connection level error.
func (s *FileServer) serve(ctx context.Context, conn *transport.Conn) (protocol.Op, protocol.Status, error) {
	op, err := protocol.ReadOp(conn)
	if err != nil {
		if errors.Is(err, protocol.ErrBadOp) {
			log.Printf("[%s]: %v", conn, err)
			return op, protocol.StatusBadRequest, protocol.WriteStatus(conn, protocol.StatusBadRequest)
		}
		return op, 0, fmt.Errorf("reading op: %w", err)
	}

	if err := protocol.WriteStatus(conn, protocol.StatusOK); err != nil {
		return op, 0, err
	}

	path, err := protocol.ReadPath(conn)
	if err != nil {
		if errors.Is(err, protocol.ErrBadPath) {
			log.Printf("[%s]: %s: %v", conn, op, err)
			return op, protocol.StatusBadRequest, protocol.WriteStatus(conn, protocol.StatusBadRequest)
		}
		return op, 0, fmt.Errorf("reading path: %w", err)
	}

	log.Printf("[%s]: %s %q", conn, op, path)
	switch op {
	case protocol.OpRead:
		status, err := s.handleRead(ctx, conn, path)
		return op, status, err
	case protocol.OpWrite:
		status, err := s.handleWrite(ctx, conn, path)
		return op, status, err
	case protocol.OpList:
		status, err := s.handleList(conn, path)
		return op, status, err
	}
	return op, 0, nil
}

// statusFor maps a store error onto the status sent to the client.
func statusFor(err error) protocol.Status {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return protocol.StatusNotFound
	case errors.Is(err, store.ErrLock):
		return protocol.StatusLockError
	case errors.Is(err, store.ErrStat):
		return protocol.StatusStatError
	case errors.Is(err, store.ErrServer):
		return protocol.StatusServerError
	case errors.Is(err, store.ErrInvalidPath):
		return protocol.StatusBadRequest
	}
	return protocol.StatusServerError
}

func (s *FileServer) refuse(conn *transport.Conn, op protocol.Op, path string, err error) (protocol.Status, error) {
	status := statusFor(err)
	log.Printf("[%s]: %s %q: %d: %v", conn, op, path, status, err)
	return status, protocol.WriteStatus(conn, status)
}

func (s *FileServer) handleRead(ctx context.Context, conn *transport.Conn, path string) (protocol.Status, error) {
	h, err := s.store.OpenRead(ctx, path)
	if err != nil {
		return s.refuse(conn, protocol.OpRead, path, err)
	}
	defer h.Close()

	if h.Size() > math.MaxUint32 {
		return s.refuse(conn, protocol.OpRead, path, fmt.Errorf("%w: %d bytes exceeds the wire limit", store.ErrServer, h.Size()))
	}
	if err := protocol.WriteStatus(conn, protocol.StatusOK); err != nil {
		return protocol.StatusOK, err
	}

	status, n, err := sendFile(conn, h)
	s.Metrics.AddBytes("out", n)
	if err == nil {
		log.Printf("[%s]: sent %s of %q", conn, humanize.Bytes(uint64(n)), path)
	}
	return status, err
}

// sendFile writes the size, the content and the trailer status. When the
// file turns out shorter than its size, for instance because a process
// that ignores flock truncated it, the remainder is zero filled and the
// trailer reports ServerError.
func sendFile(w io.Writer, h *store.Handle) (protocol.Status, int64, error) {
	size := h.Size()
	if err := protocol.WriteLength(w, uint32(size)); err != nil {
		return protocol.StatusOK, 0, err
	}

	n, err := h.SendTo(w)
	if err != nil {
		if !errors.Is(err, store.ErrShortRead) {
			return protocol.StatusOK, n, err
		}
		log.Printf("%v", err)
		if _, err := io.CopyN(w, zeros{}, size-n); err != nil {
			return protocol.StatusServerError, n, err
		}
		return protocol.StatusServerError, n, protocol.WriteStatus(w, protocol.StatusServerError)
	}
	return protocol.StatusOK, n, protocol.WriteStatus(w, protocol.StatusOK)
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func (s *FileServer) handleWrite(ctx context.Context, conn *transport.Conn, path string) (protocol.Status, error) {
	h, created, err := s.store.OpenWrite(ctx, path)
	if err != nil {
		return s.refuse(conn, protocol.OpWrite, path, err)
	}
	defer h.Close()

	status := protocol.StatusOK
	if created {
		status = protocol.StatusCreated
	}
	if err := protocol.WriteStatus(conn, status); err != nil {
		return status, err
	}

	size, err := protocol.ReadLength(conn)
	if err != nil {
		return status, fmt.Errorf("reading payload size: %w", err)
	}
	if s.MaxFileSize > 0 && int64(size) > s.MaxFileSize {
		log.Printf("[%s]: write %q: %s exceeds limit of %s", conn, path,
			humanize.Bytes(uint64(size)), humanize.Bytes(uint64(s.MaxFileSize)))
		return protocol.StatusBadRequest, protocol.WriteStatus(conn, protocol.StatusBadRequest)
	}

	n, err := h.ReplaceFrom(conn, int64(size))
	s.Metrics.AddBytes("in", n)
	if err != nil {
		if errors.Is(err, store.ErrServer) {
			return s.refuse(conn, protocol.OpWrite, path, err)
		}
		// the file keeps whatever arrived before the client went away
		return status, fmt.Errorf("received %d of %d bytes: %w", n, size, err)
	}

	log.Printf("[%s]: stored %s in %q", conn, humanize.Bytes(uint64(n)), path)
	return status, protocol.WriteStatus(conn, protocol.StatusOK)
}

func (s *FileServer) handleList(conn *transport.Conn, path string) (protocol.Status, error) {
	out, err := s.store.List(path)
	if err != nil {
		return s.refuse(conn, protocol.OpList, path, err)
	}

	if err := protocol.WriteStatus(conn, protocol.StatusOK); err != nil {
		return protocol.StatusOK, err
	}
	if err := protocol.WriteLengthPrefixed(conn, out); err != nil {
		return protocol.StatusOK, err
	}
	s.Metrics.AddBytes("out", int64(len(out)))
	return protocol.StatusOK, nil
}
