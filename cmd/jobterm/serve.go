package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"pkt.systems/jobterm/internal/appconfig"
	"pkt.systems/jobterm/internal/auth"
	"pkt.systems/jobterm/internal/version"
	"pkt.systems/jobterm/sshserver"
	"pkt.systems/pslog"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve terminal sessions over SSH",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			logger := pslog.Ctx(ctx)
			cfg, err := appconfig.Load(*cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.SSH.Addr = addr
			}
			store, err := auth.NewStoreWithLogger(cfg.SSH.AuthorizedKeysPath, cfg.SSH.TOTPSecret, logger)
			if err != nil {
				return err
			}
			if store.Keys() == 0 {
				logger.Warn("no authorized keys loaded; every login will be rejected", "path", cfg.SSH.AuthorizedKeysPath)
			}
			engine, bus, err := newEngine(cfg, logger)
			if err != nil {
				return err
			}
			logger.Info("serve start", "version", version.Banner(), "addr", cfg.SSH.Addr)

			engineDone := make(chan error, 1)
			go func() { engineDone <- engine.Run(ctx) }()

			server := &sshserver.Server{
				Addr:        cfg.SSH.Addr,
				HostKeyPath: cfg.SSH.HostKeyPath,
				Engine:      engine,
				EventBus:    bus,
				AuthStore:   store,
			}
			serveErr := server.ListenAndServe(ctx)
			cancel()
			if err := <-engineDone; err != nil {
				serveErr = errors.Join(serveErr, err)
			}
			logger.Info("serve stopped")
			return serveErr
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides ssh.addr)")
	return cmd
}
