package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/nvandessel/episim/internal/runstore"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List persisted runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			dataDir, _ := cmd.Flags().GetString("data")

			store, err := runstore.Open(dataDir)
			if err != nil {
				return fmt.Errorf("open run store: %w", err)
			}
			defer store.Close()

			infos, err := store.ListRuns(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"runs":  infos,
					"count": len(infos),
				})
			}

			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs saved yet.")
				fmt.Fprintln(cmd.OutOrStdout(), "\nUse 'episim run --save' to persist a run.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved runs (%d):\n\n", len(infos))
			for _, info := range infos {
				label := info.Label
				if label == "" {
					label = "(unlabeled)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", info.ID, label)
				fmt.Fprintf(cmd.OutOrStdout(), "   n=%d days=%d seed=%d saved=%s\n",
					info.N, info.NDays, info.Seed, info.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export a persisted run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data")
			outPath, _ := cmd.Flags().GetString("out")

			runID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run ID %q", args[0])
			}

			store, err := runstore.Open(dataDir)
			if err != nil {
				return fmt.Errorf("open run store: %w", err)
			}
			defer store.Close()

			doc, err := store.ExportJSON(cmd.Context(), runID)
			if err != nil {
				return err
			}

			if outPath == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(doc))
				return nil
			}
			if err := os.WriteFile(outPath, doc, 0644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %d exported to %s\n", runID, outPath)
			return nil
		},
	}

	cmd.Flags().String("out", "", "Output file (default: stdout)")

	return cmd
}
