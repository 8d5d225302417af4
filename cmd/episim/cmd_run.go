package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvandessel/episim/internal/logging"
	"github.com/nvandessel/episim/internal/runstore"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single simulation",
		Long: `Run one simulation from the model defaults, a scenario file, and
command-line overrides.

Example:
  episim run --set n=5000 --set n_days=90 --set beta=0.04
  episim run --config scenario.yaml --save --label baseline`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			dataDir, _ := cmd.Flags().GetString("data")
			sets, _ := cmd.Flags().GetStringArray("set")
			save, _ := cmd.Flags().GetBool("save")
			label, _ := cmd.Flags().GetString("label")
			outPath, _ := cmd.Flags().GetString("out")

			cfg, err := loadScenario(cmd)
			if err != nil {
				return err
			}
			log := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())

			sim, err := buildSim(cfg, sets)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := sim.Initialize(); err != nil {
				return err
			}
			if err := sim.Run(ctx); err != nil {
				return err
			}

			summary, err := sim.SummaryStats()
			if err != nil {
				return err
			}

			var runID int64
			if save {
				store, err := runstore.Open(dataDir)
				if err != nil {
					return fmt.Errorf("open run store: %w", err)
				}
				defer store.Close()
				runID, err = store.SaveRun(ctx, sim, label)
				if err != nil {
					return fmt.Errorf("save run: %w", err)
				}
				log.Info("run saved", "run_id", runID, "label", label)

				rl := logging.NewRunLog(dataDir)
				record := map[string]any{"run_id": runID, "label": label}
				for k, v := range summary {
					record[k] = v
				}
				rl.Record(record)
				rl.Close()
			}

			if outPath != "" {
				doc, err := runstore.MarshalRun(sim)
				if err != nil {
					return fmt.Errorf("marshal run: %w", err)
				}
				if err := os.WriteFile(outPath, doc, 0644); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
				log.Info("run exported", "path", outPath)
			}

			if jsonOut {
				result := map[string]any{
					"summary": summary,
					"n":       sim.N(),
				}
				if save {
					result["run_id"] = runID
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}
			return printSummary(cmd, sim)
		},
	}

	cmd.Flags().String("config", "", "Scenario YAML file")
	cmd.Flags().StringArray("set", nil, "Parameter override as key=value (repeatable)")
	cmd.Flags().Bool("save", false, "Persist the completed run to the run store")
	cmd.Flags().String("label", "", "Label stored with the run")
	cmd.Flags().String("out", "", "Write the full run document as JSON to this file")

	return cmd
}
