package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func runCommand(opts *options) *cobra.Command {
	var (
		frames      int
		calls       []string
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "run <module path or URL>",
		Short: "Load a guest, run its start export and drive its frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive {
				if !term.IsTerminal(int(os.Stdout.Fd())) {
					return fmt.Errorf("interactive mode needs a terminal")
				}
				return runInteractive(contextOf(cmd), opts, args[0])
			}

			log, err := newLogger(opts.LogLevel, os.Stderr)
			if err != nil {
				return err
			}
			defer log.Sync()
			setLoggers(log)

			ctx := contextOf(cmd)
			s, err := openSession(ctx, opts, args[0])
			if err != nil {
				return err
			}
			defer s.close(ctx)

			for _, export := range calls {
				res, err := s.call(ctx, export)
				if err != nil {
					return fmt.Errorf("call %s: %w", export, err)
				}
				log.Info("export returned", zap.String("export", export), zap.String("results", formatResults(res)))
			}

			for i := 0; i < frames; i++ {
				if err := s.frame(ctx); err != nil {
					log.Warn("frame failed", zap.Int("frame", s.frames), zap.Error(err))
				}
			}

			s.summary(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().IntVar(&frames, "frames", 0, "animation frames to run after start")
	cmd.Flags().StringArrayVar(&calls, "call", nil, "parameterless export to call after start, repeatable")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "browse the guest in a terminal UI")
	return cmd
}
