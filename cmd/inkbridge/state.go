// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/inkbridge/internal/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset per-destination publish state",
	Long: `Each destination keeps processed_notebooks_<name>.json in sync.state_dir,
mapping document ID to the fingerprint last published there. Resetting a
destination makes the next sync republish every notebook to it.`,
}

var stateShowCmd = &cobra.Command{
	Use:   "show [destination]",
	Short: "Print the recorded fingerprints for one or all destinations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStateStore()
		if err != nil {
			return err
		}

		names := args
		if len(names) == 0 {
			if names, err = store.Destinations(); err != nil {
				return err
			}
		}
		if len(names) == 0 {
			fmt.Println("No destination state recorded yet.")
			return nil
		}

		for _, name := range names {
			snap := store.Snapshot(name)
			fmt.Printf("%s (%d notebooks) %s\n", name, len(snap), store.Path(name))
			ids := make([]string, 0, len(snap))
			for id := range snap {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Printf("  %s  %s\n", id, snap[id])
			}
		}
		return nil
	},
}

var stateResetCmd = &cobra.Command{
	Use:   "reset <destination>",
	Short: "Forget everything published to a destination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper(), loadedSecrets)
		if err != nil {
			return err
		}
		unlock, err := state.Lock(cfg.Sync.StateDir)
		if err != nil {
			return err
		}
		defer unlock()

		store, err := state.NewStore(cfg.Sync.StateDir, os.Stderr)
		if err != nil {
			return err
		}
		if err := store.Reset(args[0]); err != nil {
			return err
		}
		fmt.Printf("Reset state for %s; the next sync republishes every notebook there.\n", args[0])
		return nil
	},
}

func init() {
	stateCmd.AddCommand(stateShowCmd, stateResetCmd)
	rootCmd.AddCommand(stateCmd)
}

func openStateStore() (*state.Store, error) {
	cfg, err := loadConfig(viper.GetViper(), loadedSecrets)
	if err != nil {
		return nil, err
	}
	return state.NewStore(cfg.Sync.StateDir, os.Stderr)
}
