package main

import (
	"io"
	"os"
	"path/filepath"

	"pkt.systems/jobterm/core"
	"pkt.systems/jobterm/internal/appconfig"
	"pkt.systems/jobterm/internal/eventbus"
	"pkt.systems/pslog"
)

// newEngine builds an engine whose events are published on a fresh bus.
func newEngine(cfg appconfig.Config, logger pslog.Logger) (*core.Engine, *eventbus.Bus, error) {
	bus := eventbus.New(logger)
	engine, err := core.NewEngine(cfg.EngineSettings(), core.EngineDeps{
		EventSink: bus,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return engine, bus, nil
}

// fileLogger returns a structured logger writing to cfg.File, or one that
// discards everything when no file is configured. The interactive front
// end owns the terminal, so logs must never reach it.
func fileLogger(cfg appconfig.LoggingConfig) (pslog.Logger, func() error, error) {
	opts := pslog.Options{Mode: pslog.ModeStructured, NoColor: true, MinLevel: pslog.InfoLevel}
	switch cfg.Level {
	case "trace":
		opts.MinLevel = pslog.TraceLevel
	case "debug":
		opts.MinLevel = pslog.DebugLevel
	case "error":
		opts.MinLevel = pslog.ErrorLevel
	}
	if cfg.File == "" {
		return pslog.NewWithOptions(io.Discard, opts), func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(cfg.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return pslog.NewWithOptions(file, opts), file.Close, nil
}
