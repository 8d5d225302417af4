package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/episim/internal/engine"
	"github.com/nvandessel/episim/internal/ensemble"
	"github.com/nvandessel/episim/internal/model"
)

// RunInput is the input schema for the episim_run tool.
type RunInput struct {
	Parameters map[string]any `json:"parameters,omitempty" jsonschema:"Parameter overrides applied on top of the model defaults (e.g. beta, n, n_days, seed)"`
	Label      string         `json:"label,omitempty" jsonschema:"Optional label stored with the run when save is true"`
	Save       bool           `json:"save,omitempty" jsonschema:"Persist the completed run to the run store"`
}

// RunOutput is the output schema for the episim_run tool.
type RunOutput struct {
	Summary map[string]float64 `json:"summary" jsonschema:"Summary statistics of the completed run"`
	N       int                `json:"n" jsonschema:"Population size"`
	Npts    int                `json:"npts" jsonschema:"Number of recorded time points"`
	RunID   int64              `json:"run_id,omitempty" jsonschema:"Run store ID when save was requested"`
}

func (s *Server) handleRun(ctx context.Context, req *sdk.CallToolRequest, args RunInput) (*sdk.CallToolResult, RunOutput, error) {
	sim, err := newSim(args.Parameters)
	if err != nil {
		return nil, RunOutput{}, err
	}
	if err := sim.Initialize(); err != nil {
		return nil, RunOutput{}, err
	}
	if err := sim.Run(ctx); err != nil {
		return nil, RunOutput{}, err
	}

	summary, err := sim.SummaryStats()
	if err != nil {
		return nil, RunOutput{}, err
	}
	npts, err := sim.Npts()
	if err != nil {
		return nil, RunOutput{}, err
	}

	out := RunOutput{
		Summary: summary,
		N:       sim.N(),
		Npts:    npts,
	}
	if args.Save {
		id, err := s.store.SaveRun(ctx, sim, args.Label)
		if err != nil {
			return nil, RunOutput{}, fmt.Errorf("save run: %w", err)
		}
		out.RunID = id
	}
	return nil, out, nil
}

// EnsembleInput is the input schema for the episim_ensemble tool.
type EnsembleInput struct {
	Runs           int            `json:"runs" jsonschema:"Number of runs"`
	Noise          float64        `json:"noise,omitempty" jsonschema:"Standard deviation of the multiplicative noise applied per run"`
	NoiseParameter string         `json:"noise_parameter,omitempty" jsonschema:"Parameter to perturb; auto-detected when empty"`
	Parameters     map[string]any `json:"parameters,omitempty" jsonschema:"Parameter overrides applied to the template simulation"`
	Combine        bool           `json:"combine,omitempty" jsonschema:"Merge all runs into one aggregate simulation"`
	Workers        int            `json:"workers,omitempty" jsonschema:"Maximum parallel runs; defaults to one per CPU"`
}

// RunSummary pairs a run index with its summary statistics.
type RunSummary struct {
	Run     int                `json:"run"`
	Summary map[string]float64 `json:"summary"`
}

// EnsembleOutput is the output schema for the episim_ensemble tool.
type EnsembleOutput struct {
	Runs     []RunSummary       `json:"runs" jsonschema:"Per-run summary statistics"`
	Combined map[string]float64 `json:"combined,omitempty" jsonschema:"Summary of the combined simulation when combine was requested"`
}

func (s *Server) handleEnsemble(ctx context.Context, req *sdk.CallToolRequest, args EnsembleInput) (*sdk.CallToolResult, EnsembleOutput, error) {
	template, err := newSim(args.Parameters)
	if err != nil {
		return nil, EnsembleOutput{}, err
	}

	result, err := ensemble.MultiRun(ctx, template, ensemble.MultiOptions{
		Runs:     args.Runs,
		Noise:    args.Noise,
		NoisePar: args.NoiseParameter,
		Combine:  args.Combine,
		Workers:  args.Workers,
	})
	if err != nil {
		return nil, EnsembleOutput{}, err
	}

	out := EnsembleOutput{Runs: make([]RunSummary, 0, len(result.Sims))}
	for i, sim := range result.Sims {
		summary, err := sim.SummaryStats()
		if err != nil {
			return nil, EnsembleOutput{}, err
		}
		out.Runs = append(out.Runs, RunSummary{Run: i, Summary: summary})
	}
	if result.Combined != nil {
		summary, err := result.Combined.SummaryStats()
		if err != nil {
			return nil, EnsembleOutput{}, err
		}
		out.Combined = summary
	}
	return nil, out, nil
}

// RunsInput is the input schema for the episim_runs tool.
type RunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs to return; 0 returns all"`
}

// StoredRun describes one persisted run.
type StoredRun struct {
	ID        int64  `json:"id"`
	Label     string `json:"label,omitempty"`
	Seed      int    `json:"seed"`
	N         int    `json:"n"`
	NDays     int    `json:"n_days"`
	CreatedAt string `json:"created_at"`
}

// RunsOutput is the output schema for the episim_runs tool.
type RunsOutput struct {
	Runs []StoredRun `json:"runs" jsonschema:"Persisted runs newest first"`
}

func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (*sdk.CallToolResult, RunsOutput, error) {
	infos, err := s.store.ListRuns(ctx)
	if err != nil {
		return nil, RunsOutput{}, err
	}
	if args.Limit > 0 && len(infos) > args.Limit {
		infos = infos[:args.Limit]
	}

	out := RunsOutput{Runs: make([]StoredRun, 0, len(infos))}
	for _, info := range infos {
		out.Runs = append(out.Runs, StoredRun{
			ID:        info.ID,
			Label:     info.Label,
			Seed:      info.Seed,
			N:         info.N,
			NDays:     info.NDays,
			CreatedAt: info.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return nil, out, nil
}

// newSim builds a simulation from the model defaults with the given
// overrides applied. Unknown override keys are rejected with a
// spelling suggestion.
func newSim(overrides map[string]any) (*engine.Sim, error) {
	sim, err := engine.New(model.New(), model.Defaults())
	if err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		normalized := make(map[string]any, len(overrides))
		for k, v := range overrides {
			normalized[k] = normalizeNumber(v)
		}
		if err := sim.Pars().Update(normalized, false); err != nil {
			return nil, err
		}
	}
	return sim, nil
}

// normalizeNumber converts JSON numbers that arrive as float64 but hold
// integral values back to int, matching the types the model validates.
func normalizeNumber(v any) any {
	f, ok := v.(float64)
	if !ok {
		return v
	}
	if f == float64(int(f)) {
		return int(f)
	}
	return f
}
