package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/AnishMulay/ftserver/listing"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrLock        = errors.New("cannot lock file")
	ErrStat        = errors.New("cannot stat file")
	ErrServer      = errors.New("filesystem error")
	ErrInvalidPath = errors.New("path escapes root")
	ErrShortRead   = errors.New("file shorter than its recorded size")
)

const (
	DefaultDirMode     os.FileMode = 0770
	DefaultFileMode    os.FileMode = 0660
	DefaultLockTimeout             = 5 * time.Second
)

type StoreConfig struct {
	// Root is the absolute directory every client path is resolved under
	Root     string
	DirMode  os.FileMode
	FileMode os.FileMode
	// LockTimeout bounds how long an operation waits for a flock.
	// Zero means wait until the caller's context is done.
	LockTimeout time.Duration
}

type Store struct {
	StoreConfig
}

func NewStore(opts StoreConfig) *Store {
	if opts.DirMode == 0 {
		opts.DirMode = DefaultDirMode
	}
	if opts.FileMode == 0 {
		opts.FileMode = DefaultFileMode
	}
	return &Store{
		StoreConfig: opts,
	}
}

// Handle is an open, locked file. Close releases both.
type Handle struct {
	file *os.File
	path string
	size int64
}

// Size is the file size captured right after the lock was taken.
func (h *Handle) Size() int64 { return h.size }

func (h *Handle) Path() string { return h.path }

// SendTo copies exactly Size bytes to w. When w is backed by a TCP
// connection the copy goes through sendfile.
func (h *Handle) SendTo(w io.Writer) (int64, error) {
	if _, err := h.file.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrServer, err)
	}
	n, err := io.CopyN(w, h.file, h.size)
	if errors.Is(err, io.EOF) {
		return n, fmt.Errorf("%w: %s: sent %d of %d", ErrShortRead, h.path, n, h.size)
	}
	return n, err
}

// ReplaceFrom truncates the file and writes exactly n bytes read from r
// starting at offset zero. A short stream leaves a partial file behind.
func (h *Handle) ReplaceFrom(r io.Reader, n int64) (int64, error) {
	if err := h.file.Truncate(0); err != nil {
		return 0, fmt.Errorf("%w: truncate %s: %w", ErrServer, h.path, err)
	}
	if _, err := h.file.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrServer, err)
	}
	written, err := io.CopyN(fileWriter{h.file}, r, n)
	if err != nil {
		return written, err
	}
	h.size = written
	return written, nil
}

// fileWriter tags errors from the destination file with ErrServer so they
// can be told apart from a source that ran dry.
type fileWriter struct {
	f *os.File
}

func (w fileWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrServer, err)
	}
	return n, nil
}

func (h *Handle) Close() error {
	if err := unlockFile(h.file); err != nil {
		log.Printf("unlock %s: %v", h.path, err)
	}
	return h.file.Close()
}

func (s *Store) lockContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.LockTimeout > 0 {
		return context.WithTimeout(ctx, s.LockTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Store) lock(ctx context.Context, f *os.File, exclusive bool) error {
	ctx, cancel := s.lockContext(ctx)
	defer cancel()
	if err := lockFile(ctx, f, exclusive); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrLock, f.Name(), err)
	}
	return nil
}

// OpenRead opens clientPath read-only under a shared lock.
func (s *Store) OpenRead(ctx context.Context, clientPath string) (*Handle, error) {
	path, err := Resolve(s.Root, clientPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if err := s.lock(ctx, f, false); err != nil {
		f.Close()
		return nil, err
	}

	h := &Handle{file: f, path: path}
	info, err := f.Stat()
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("%w: %w", ErrStat, err)
	}
	if info.IsDir() {
		h.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, clientPath)
	}
	h.size = info.Size()
	return h, nil
}

// OpenWrite opens clientPath for writing under an exclusive lock. When the
// file does not exist yet its parent directories and the file itself are
// created, and created is reported as true.
func (s *Store) OpenWrite(ctx context.Context, clientPath string) (h *Handle, created bool, err error) {
	path, err := Resolve(s.Root, clientPath)
	if err != nil {
		return nil, false, err
	}

	if f, err := os.OpenFile(path, os.O_WRONLY, 0); err == nil {
		if err := s.lock(ctx, f, true); err != nil {
			f.Close()
			return nil, false, err
		}
		return &Handle{file: f, path: path}, false, nil
	}

	if err := EnsureParentDirs(s.Root, path, s.DirMode); err != nil {
		return nil, false, fmt.Errorf("%w: mkdir: %w", ErrServer, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, s.FileMode)
	if err != nil {
		return nil, false, fmt.Errorf("%w: create: %w", ErrServer, err)
	}
	if err := s.lock(ctx, f, true); err != nil {
		f.Close()
		return nil, false, err
	}
	h = &Handle{file: f, path: path}
	if err := f.Truncate(0); err != nil {
		h.Close()
		return nil, false, fmt.Errorf("%w: truncate: %w", ErrServer, err)
	}
	return h, true, nil
}

// List renders the directory at clientPath with the listing formatter.
func (s *Store) List(clientPath string) ([]byte, error) {
	path, err := Resolve(s.Root, clientPath)
	if err != nil {
		return nil, err
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, clientPath, err)
	}
	out, err := listing.Format(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}
	return out, nil
}
