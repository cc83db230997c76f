package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/AnishMulay/ftserver/config"
	"github.com/AnishMulay/ftserver/daemon"
	"github.com/AnishMulay/ftserver/metrics"
	"github.com/AnishMulay/ftserver/store"
	"github.com/AnishMulay/ftserver/transport"
)

type FileServerConfig struct {
	ListenAddress string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	AcceptRate    float64
	AcceptBurst   int

	StorageRoot string
	DirMode     os.FileMode
	FileMode    os.FileMode
	LockTimeout time.Duration
	// MaxFileSize rejects larger write payloads; zero means the wire limit
	MaxFileSize int64
	Watch       bool

	Metrics *metrics.Metrics
}

// FileServerConfigFrom maps the loaded configuration onto the server.
func FileServerConfigFrom(c *config.Config, m *metrics.Metrics) FileServerConfig {
	return FileServerConfig{
		ListenAddress: c.Network.ListenAddress(),
		ReadTimeout:   c.Network.ReadTimeout,
		WriteTimeout:  c.Network.WriteTimeout,
		AcceptRate:    c.Network.AcceptRate,
		AcceptBurst:   c.Network.AcceptBurst,
		StorageRoot:   c.Storage.Root,
		DirMode:       c.Storage.DirPerm(),
		FileMode:      c.Storage.FilePerm(),
		LockTimeout:   c.Storage.LockTimeout,
		MaxFileSize:   c.Storage.MaxFileSize,
		Watch:         c.Storage.Watch,
		Metrics:       m,
	}
}

type FileServer struct {
	FileServerConfig
	store     *store.Store
	Transport *transport.TCPTransport

	watchCancel context.CancelFunc
	watchDone   chan struct{}
	stopOnce    sync.Once
}

// NewFileServer prepares the root directory, creating it when missing.
// It fails when the root cannot be created or opened.
func NewFileServer(config FileServerConfig) (*FileServer, error) {
	if config.DirMode == 0 {
		config.DirMode = store.DefaultDirMode
	}
	root, err := store.OpenRoot(config.StorageRoot, config.DirMode)
	if err != nil {
		return nil, err
	}
	config.StorageRoot = root

	s := &FileServer{
		FileServerConfig: config,
		store: store.NewStore(store.StoreConfig{
			Root:        root,
			DirMode:     config.DirMode,
			FileMode:    config.FileMode,
			LockTimeout: config.LockTimeout,
		}),
	}
	s.Transport = transport.NewTCPTransport(transport.TCPTransportConfig{
		ListenAddress: config.ListenAddress,
		ReadTimeout:   config.ReadTimeout,
		WriteTimeout:  config.WriteTimeout,
		AcceptRate:    config.AcceptRate,
		AcceptBurst:   config.AcceptBurst,
		OnConn:        s.handleConn,
	})
	return s, nil
}

func (s *FileServer) Addr() net.Addr {
	return s.Transport.Addr()
}

// Start binds the listener and begins serving in the background.
func (s *FileServer) Start() error {
	if s.Watch {
		w, err := daemon.NewWatcher(s.StorageRoot, s.Metrics)
		if err != nil {
			return fmt.Errorf("watching root: %w", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		s.watchCancel = cancel
		s.watchDone = make(chan struct{})
		go func() {
			defer close(s.watchDone)
			if err := w.Run(ctx); err != nil {
				log.Printf("[watch]: %v", err)
			}
		}()
	}

	if err := s.Transport.ListenAndAccept(); err != nil {
		s.stopWatcher()
		return err
	}

	log.Printf("[%s]: serving %s", s.Addr(), s.StorageRoot)
	return nil
}

// Stop closes the listener and waits for in-flight connections.
func (s *FileServer) Stop() {
	s.stopOnce.Do(func() {
		if err := s.Transport.Close(); err != nil {
			log.Printf("[%s]: closing listener: %v", s.ListenAddress, err)
		}
		s.stopWatcher()
		log.Printf("[%s]: stopped", s.ListenAddress)
	})
}

func (s *FileServer) stopWatcher() {
	if s.watchCancel != nil {
		s.watchCancel()
		<-s.watchDone
	}
}

// Run serves until ctx is done.
func (s *FileServer) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}
