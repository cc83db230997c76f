package protocol

import (
	"errors"
	"fmt"
)

// Op is the single byte a client sends to select an operation
type Op byte

const (
	OpRead  Op = 'r'
	OpWrite Op = 'w'
	OpList  Op = 'l'
)

// Valid reports whether op is one of the recognized operations.
func (op Op) Valid() bool {
	switch op {
	case OpRead, OpWrite, OpList:
		return true
	}
	return false
}

func (op Op) String() string {
	switch op {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpList:
		return "list"
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(op))
}

// Status is the outcome code sent by the server as a 4-byte integer
type Status uint32

const (
	StatusOK          Status = 200
	StatusCreated     Status = 201
	StatusBadRequest  Status = 400
	StatusNotFound    Status = 404
	StatusServerError Status = 500
	StatusLockError   Status = 501
	StatusStatError   Status = 502
)

var statusText = map[Status]string{
	StatusOK:          "ok",
	StatusCreated:     "created",
	StatusBadRequest:  "bad request",
	StatusNotFound:    "not found",
	StatusServerError: "server error",
	StatusLockError:   "lock error",
	StatusStatError:   "stat error",
}

func (s Status) String() string {
	if text, ok := statusText[s]; ok {
		return text
	}
	return fmt.Sprintf("status(%d)", uint32(s))
}

// Success reports whether s is OK or Created.
func (s Status) Success() bool {
	return s == StatusOK || s == StatusCreated
}

// Err returns nil for successful statuses and a *StatusError otherwise.
func (s Status) Err() error {
	if s.Success() {
		return nil
	}
	return &StatusError{Status: s}
}

// StatusError carries a non-successful status received from the server.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server replied %d (%s)", uint32(e.Status), e.Status)
}

// Request is what a client asks for on a connection
type Request struct {
	Op   Op
	Path string
}

// MaxPathLen bounds the path field.
const MaxPathLen = 1024

var (
	ErrBadOp        = errors.New("unrecognized operation")
	ErrBadPath      = errors.New("malformed path")
	ErrTooLarge     = errors.New("payload exceeds limit")
	ErrShortPayload = errors.New("payload shorter than announced")
)
