package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yagehu/wasit-sub000/internal/config"
)

func init() {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run a previously persisted random pool against a runtime backend",
		Long: "replay loads a trace directory's persisted pool " +
			"(data/pool.bin, spec §6) via --resume and drives it through " +
			"the call engine again under a fresh --trace-dir, exercising " +
			"the replay-determinism property of spec §8.6: the same pool, " +
			"schema, and bootstrap outcome must reproduce an identical " +
			"call sequence.",
	}
	materialize := config.BindFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := materialize()
		if err != nil {
			return err
		}
		if cfg.Resume == "" {
			return fmt.Errorf("replay requires --resume <trace-dir>")
		}
		cfg.Replay = true
		return runCommand(cmd.Context(), cfg)
	}
	RootCommand.AddCommand(cmd)
}
