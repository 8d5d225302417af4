package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nvandessel/episim/internal/config"
	"github.com/nvandessel/episim/internal/engine"
	"github.com/nvandessel/episim/internal/model"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "episim",
		Short: "Agent-based epidemic simulation engine",
		Long: `episim runs stochastic agent-based epidemic simulations.

It simulates disease transmission through a population of agents,
records daily time series, and supports ensembles of perturbed runs
for uncertainty quantification. Completed runs can be persisted and
exported for analysis.`,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for machine consumption)")
	rootCmd.PersistentFlags().String("data", ".episim", "Data directory for persisted runs")
	rootCmd.PersistentFlags().String("log-level", "", "Log verbosity (info, debug, trace)")

	// Add subcommands
	rootCmd.AddCommand(
		newVersionCmd(),
		newParamsCmd(),
		newRunCmd(),
		newEnsembleCmd(),
		newRunsCmd(),
		newExportCmd(),
		newMCPServerCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "episim version %s\n", version)
			}
		},
	}
}

func newParamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "Print the default model parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			defaults := model.Defaults()
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(defaults)
			}
			sim, err := engine.New(model.New(), defaults)
			if err != nil {
				return err
			}
			pars := sim.Pars()
			fmt.Fprintf(cmd.OutOrStdout(), "Default parameters (%d):\n", pars.Len())
			for _, key := range pars.Keys() {
				v, _ := pars.Get(key)
				fmt.Fprintf(cmd.OutOrStdout(), "  %-15s %v\n", key, v)
			}
			return nil
		},
	}
}

// loadScenario loads the run configuration from --config (when given) and
// folds --log-level on top.
func loadScenario(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// buildSim constructs a simulation from the model defaults, the scenario's
// simulation section, and any --set key=value overrides, in that order.
func buildSim(cfg *config.Config, sets []string) (*engine.Sim, error) {
	sim, err := engine.New(model.New(), model.Defaults())
	if err != nil {
		return nil, err
	}
	if len(cfg.Simulation) > 0 {
		if err := sim.Pars().Update(cfg.Simulation, false); err != nil {
			return nil, fmt.Errorf("scenario parameters: %w", err)
		}
	}
	for _, set := range sets {
		key, value, err := parseSetFlag(set)
		if err != nil {
			return nil, err
		}
		if err := sim.Pars().Update(map[string]any{key: value}, false); err != nil {
			return nil, err
		}
	}
	return sim, nil
}

// parseSetFlag parses a --set key=value pair. Values are typed as int,
// then float, then string.
func parseSetFlag(s string) (string, any, error) {
	key, raw, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid --set %q, expected key=value", s)
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return key, n, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return key, f, nil
	}
	return key, raw, nil
}

func printSummary(cmd *cobra.Command, sim *engine.Sim) error {
	summary, err := sim.SummaryStats()
	if err != nil {
		return err
	}
	seed, _ := sim.Pars().Int("seed")
	fmt.Fprintf(cmd.OutOrStdout(), "Run complete (n=%d, seed=%d):\n", sim.N(), seed)
	fmt.Fprintf(cmd.OutOrStdout(), "  Cumulative infections: %.0f\n", summary["cum_infections"])
	fmt.Fprintf(cmd.OutOrStdout(), "  Cumulative diagnoses:  %.0f\n", summary["cum_diagnoses"])
	fmt.Fprintf(cmd.OutOrStdout(), "  Peak infectious:       %.0f (day %.0f)\n",
		summary["peak_infectious"], summary["peak_day"])
	return nil
}
