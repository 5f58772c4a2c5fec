package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ledgercore/internal/core"
	"ledgercore/internal/infra/persistence"
)

var snapshotOut string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Write the current registry state as a JSON archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyStorageEnv(cfg)

		store, err := persistence.Open(cfg.GetString("owner"), core.NewDefaultRulesEngine())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		source, ok := store.(interface{ ExportState() core.Snapshot })
		if !ok {
			return fmt.Errorf("store does not support snapshots")
		}
		payload, err := json.MarshalIndent(source.ExportState(), "", "  ")
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		if snapshotOut == "" || snapshotOut == "-" {
			_, err = cmd.OutOrStdout().Write(append(payload, '\n'))
			return err
		}
		return os.WriteFile(snapshotOut, payload, 0o644)
	},
}

func init() {
	snapshotCmd.Flags().StringVarP(&snapshotOut, "out", "o", "", "output file (default stdout)")
}
