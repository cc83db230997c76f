package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// All integers on the wire are big-endian uint32.
var byteOrder = binary.BigEndian

// ReadOp reads the operation byte. An unknown op is returned along with
// ErrBadOp so the caller can log it.
func ReadOp(r io.Reader) (Op, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	op := Op(b[0])
	if !op.Valid() {
		return op, fmt.Errorf("%w: %s", ErrBadOp, op)
	}
	return op, nil
}

func WriteOp(w io.Writer, op Op) error {
	return writeFull(w, []byte{byte(op)})
}

// ReadPath reads a length-prefixed path of at most MaxPathLen bytes.
func ReadPath(r io.Reader) (string, error) {
	b, err := ReadLengthPrefixed(r, MaxPathLen)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return "", fmt.Errorf("%w: %v", ErrBadPath, err)
		}
		return "", err
	}
	if bytes.IndexByte(b, 0) >= 0 {
		return "", fmt.Errorf("%w: NUL in path", ErrBadPath)
	}
	return string(b), nil
}

func WritePath(w io.Writer, path string) error {
	if len(path) > MaxPathLen {
		return fmt.Errorf("%w: %d bytes", ErrBadPath, len(path))
	}
	return WriteLengthPrefixed(w, []byte(path))
}

// ReadRequest reads the op byte followed by the path field. It does not
// acknowledge the op; servers use ReadOp and ReadPath separately.
func ReadRequest(r io.Reader) (Request, error) {
	op, err := ReadOp(r)
	if err != nil {
		return Request{Op: op}, err
	}
	path, err := ReadPath(r)
	if err != nil {
		return Request{Op: op}, err
	}
	return Request{Op: op, Path: path}, nil
}

func WriteStatus(w io.Writer, s Status) error {
	return WriteLength(w, uint32(s))
}

func ReadStatus(r io.Reader) (Status, error) {
	v, err := ReadLength(r)
	return Status(v), err
}

func WriteLength(w io.Writer, n uint32) error {
	var b [4]byte
	byteOrder.PutUint32(b[:], n)
	return writeFull(w, b[:])
}

func ReadLength(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return byteOrder.Uint32(b[:]), nil
}

// ReadLengthPrefixed reads a 4-byte length and then exactly that many bytes.
// A max of zero means no limit.
func ReadLengthPrefixed(r io.Reader, max uint32) ([]byte, error) {
	n, err := ReadLength(r)
	if err != nil {
		return nil, err
	}
	if max > 0 && n > max {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, n, max)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrShortPayload, err)
		}
		return nil, err
	}
	return buf, nil
}

func WriteLengthPrefixed(w io.Writer, b []byte) error {
	if uint64(len(b)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(b))
	}
	if err := WriteLength(w, uint32(len(b))); err != nil {
		return err
	}
	return writeFull(w, b)
}

func writeFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}
