package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/jobterm/core"
	"pkt.systems/jobterm/internal/appconfig"
	"pkt.systems/pslog"
)

func newExecCmd(cfgPath *string) *cobra.Command {
	var noHistory, noGlob bool
	cmd := &cobra.Command{
		Use:   "exec <command line>",
		Short: "Run one command line in a fresh session and print its output",
		Long: "Run one command line in a fresh session and print its output.\n" +
			"Background jobs and multiWatch are followed until they finish or the command is interrupted.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := appconfig.Load(*cfgPath)
			if err != nil {
				return err
			}
			settings := cfg.EngineSettings()
			settings.DisableHistoryFile = noHistory
			if noGlob {
				settings.NoGlob = true
			}
			engine, err := core.NewEngine(settings, core.EngineDeps{Logger: pslog.Ctx(ctx)})
			if err != nil {
				return err
			}
			defer engine.Close(context.WithoutCancel(ctx))
			return execLine(ctx, engine, strings.Join(args, " "), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not load or save the history file")
	cmd.Flags().BoolVar(&noGlob, "no-glob", false, "pass * ? [ ] to commands unexpanded (overrides engine.no_glob)")
	return cmd
}

// execLine opens a session, submits line and streams new scrollback lines to
// out until no job or watcher remains.
func execLine(ctx context.Context, engine *core.Engine, line string, out io.Writer) error {
	s, err := engine.OpenSession(ctx)
	if err != nil {
		return err
	}
	_, mark := s.Log().LinesSince(0)
	if err := engine.Execute(ctx, s.ID, line); err != nil {
		return err
	}
	flush := func() error {
		var lines []string
		lines, mark = s.Log().LinesSince(mark)
		for _, l := range lines {
			if _, err := fmt.Fprintln(out, l); err != nil {
				return err
			}
		}
		return nil
	}
	interval := engine.Config().PollInterval
	for {
		engine.Tick(ctx)
		if err := flush(); err != nil {
			return err
		}
		if len(s.Jobs().Active()) == 0 && !engine.Watcher().Running() {
			return nil
		}
		select {
		case <-ctx.Done():
			engine.Watcher().Stop()
			engine.Watcher().Wait()
			return flush()
		case <-time.After(interval):
		}
	}
}
