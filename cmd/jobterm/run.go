package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/jobterm/console"
	"pkt.systems/jobterm/core"
	"pkt.systems/jobterm/internal/appconfig"
	"pkt.systems/pslog"
)

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the terminal on the local tty",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(*cfgPath)
			if err != nil {
				return err
			}
			inFd := int(os.Stdin.Fd())
			outFd := int(os.Stdout.Fd())
			if !term.IsTerminal(inFd) || !term.IsTerminal(outFd) {
				return errors.New("run requires a terminal; use exec for non-interactive use")
			}
			logger, closeLog, err := fileLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer func() { _ = closeLog() }()
			ctx, cancel := context.WithCancel(pslog.ContextWithLogger(cmd.Context(), logger))
			defer cancel()

			engine, bus, err := newEngine(cfg, logger)
			if err != nil {
				return err
			}
			width, height, err := term.GetSize(outFd)
			if err != nil {
				return fmt.Errorf("terminal size: %w", err)
			}
			ui, err := console.New(console.Options{
				Engine: engine,
				Bus:    bus,
				In:     os.Stdin,
				Out:    os.Stdout,
				Size:   console.Size{Width: width, Height: height},
				Logger: logger,
			})
			if err != nil {
				return err
			}

			oldState, err := term.MakeRaw(inFd)
			if err != nil {
				return fmt.Errorf("raw mode: %w", err)
			}
			defer func() { _ = term.Restore(inFd, oldState) }()

			engineDone := make(chan error, 1)
			go func() { engineDone <- engine.Run(ctx) }()

			resize := make(chan console.Size, 1)
			sigCh := make(chan os.Signal, 4)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTSTP, syscall.SIGWINCH)
			defer signal.Stop(sigCh)
			go forwardSignals(ctx, sigCh, engine.Bridge(), outFd, resize)

			logger.Info("run start", "width", width, "height", height)
			runErr := ui.Run(ctx, resize)
			cancel()
			if err := <-engineDone; err != nil {
				logger.Warn("engine stopped", "err", err)
			}
			logger.Info("run exit")
			return runErr
		},
	}
}

// forwardSignals routes OS signals: SIGINT and SIGTSTP to the bridge, and
// SIGWINCH to a new console size.
func forwardSignals(ctx context.Context, sigCh <-chan os.Signal, bridge *core.SignalBridge, fd int, resize chan<- console.Size) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGINT:
				bridge.Interrupt()
			case syscall.SIGTSTP:
				bridge.Stop()
			case syscall.SIGWINCH:
				width, height, err := term.GetSize(fd)
				if err != nil {
					continue
				}
				select {
				case resize <- console.Size{Width: width, Height: height}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
