package main

import (
	"io"
	"log"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/AnishMulay/ftserver/config"
)

// setupLogging points the standard logger at a rotating file when one is
// configured. The returned closer is nil when logging stays on stderr.
func setupLogging(cfg config.LogConfig) io.Closer {
	if cfg.Filename == "" {
		return nil
	}
	out := &lumberjack.Logger{
		Filename:   filepath.Clean(cfg.Filename),
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		LocalTime:  true,
	}
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return out
}
