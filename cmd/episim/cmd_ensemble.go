package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvandessel/episim/internal/ensemble"
	"github.com/nvandessel/episim/internal/logging"
	"github.com/nvandessel/episim/internal/runstore"
	"github.com/spf13/cobra"
)

func newEnsembleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensemble",
		Short: "Run an ensemble of perturbed simulations",
		Long: `Run multiple simulations from one template with per-run seeds and
optional multiplicative noise on the transmission parameter.

Runs can sweep a parameter with --config iter_parameters, and the
completed runs can be merged into one aggregate with --combine.

Example:
  episim ensemble --runs 10 --noise 0.1
  episim ensemble --config sweep.yaml --combine --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			dataDir, _ := cmd.Flags().GetString("data")
			sets, _ := cmd.Flags().GetStringArray("set")
			save, _ := cmd.Flags().GetBool("save")
			label, _ := cmd.Flags().GetString("label")

			cfg, err := loadScenario(cmd)
			if err != nil {
				return err
			}
			// Flags override the scenario file when set explicitly.
			if cmd.Flags().Changed("runs") {
				cfg.Ensemble.Runs, _ = cmd.Flags().GetInt("runs")
			}
			if cmd.Flags().Changed("noise") {
				cfg.Ensemble.Noise, _ = cmd.Flags().GetFloat64("noise")
			}
			if cmd.Flags().Changed("noise-par") {
				cfg.Ensemble.NoiseParameter, _ = cmd.Flags().GetString("noise-par")
			}
			if cmd.Flags().Changed("combine") {
				cfg.Ensemble.Combine, _ = cmd.Flags().GetBool("combine")
			}
			if cmd.Flags().Changed("workers") {
				cfg.Ensemble.Workers, _ = cmd.Flags().GetInt("workers")
			}

			log := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())

			template, err := buildSim(cfg, sets)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := ensemble.MultiRun(ctx, template, ensemble.MultiOptions{
				Runs:     cfg.Ensemble.Runs,
				Noise:    cfg.Ensemble.Noise,
				NoisePar: cfg.Ensemble.NoiseParameter,
				IterPars: cfg.Ensemble.IterPars,
				Combine:  cfg.Ensemble.Combine,
				Workers:  cfg.Ensemble.Workers,
				Logger:   log,
			})
			if err != nil {
				return err
			}

			var combinedID int64
			if save && result.Combined != nil {
				store, err := runstore.Open(dataDir)
				if err != nil {
					return fmt.Errorf("open run store: %w", err)
				}
				defer store.Close()
				combinedID, err = store.SaveRun(ctx, result.Combined, label)
				if err != nil {
					return fmt.Errorf("save combined run: %w", err)
				}
				log.Info("combined run saved", "run_id", combinedID, "label", label)
			}

			if jsonOut {
				runs := make([]map[string]any, 0, len(result.Sims))
				for i, sim := range result.Sims {
					summary, err := sim.SummaryStats()
					if err != nil {
						return err
					}
					runs = append(runs, map[string]any{"run": i, "summary": summary})
				}
				out := map[string]any{
					"runs":  runs,
					"count": len(runs),
				}
				if result.Combined != nil {
					summary, err := result.Combined.SummaryStats()
					if err != nil {
						return err
					}
					out["combined"] = summary
					if save {
						out["run_id"] = combinedID
					}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Ensemble complete (%d runs):\n\n", len(result.Sims))
			for i, sim := range result.Sims {
				summary, err := sim.SummaryStats()
				if err != nil {
					return err
				}
				seed, _ := sim.Pars().Int("seed")
				fmt.Fprintf(cmd.OutOrStdout(), "%d. seed=%d infections=%.0f peak=%.0f (day %.0f)\n",
					i, seed, summary["cum_infections"], summary["peak_infectious"], summary["peak_day"])
			}
			if result.Combined != nil {
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprintln(cmd.OutOrStdout(), "Combined:")
				summary, err := result.Combined.SummaryStats()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  Population:            %d\n", result.Combined.N())
				fmt.Fprintf(cmd.OutOrStdout(), "  Cumulative infections: %.0f\n", summary["cum_infections"])
				fmt.Fprintf(cmd.OutOrStdout(), "  Peak infectious:       %.0f (day %.0f)\n",
					summary["peak_infectious"], summary["peak_day"])
			}
			return nil
		},
	}

	cmd.Flags().String("config", "", "Scenario YAML file")
	cmd.Flags().StringArray("set", nil, "Parameter override as key=value (repeatable)")
	cmd.Flags().Int("runs", 4, "Number of runs")
	cmd.Flags().Float64("noise", 0, "Standard deviation of per-run noise")
	cmd.Flags().String("noise-par", "", "Parameter to perturb (auto-detected when empty)")
	cmd.Flags().Bool("combine", false, "Merge completed runs into one aggregate")
	cmd.Flags().Int("workers", 0, "Maximum parallel runs (0 = one per CPU)")
	cmd.Flags().Bool("save", false, "Persist the combined run (requires --combine)")
	cmd.Flags().String("label", "", "Label stored with the combined run")

	return cmd
}
