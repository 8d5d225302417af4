// Package ensemble orchestrates batches of independent, perturbed
// simulation runs. Each run owns a private deep copy of the template
// engine and a private seeded stream derived from the base seed plus the
// run index, so runs share no mutable state and the batch is reproducible
// regardless of worker scheduling.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/nvandessel/episim/internal/engine"
)

var (
	// ErrAmbiguousNoisePar reports that automatic noise-parameter
	// detection matched zero or more than one candidate.
	ErrAmbiguousNoisePar = errors.New("ambiguous noise parameter")

	// ErrIterLength reports iteration-parameter sequences of unequal
	// length.
	ErrIterLength = errors.New("inconsistent iteration lengths")
)

// noiseParCandidates are the driver parameters automatic detection looks
// for, in no particular order; exactly one must exist in the store.
var noiseParCandidates = []string{"beta", "r0", "r_contact"}

// Options configures a single perturbed run.
type Options struct {
	// Noise is the standard deviation of the multiplicative
	// perturbation applied to the noise parameter. Zero disables noise.
	Noise float64

	// NoisePar names the parameter to perturb. Empty means detect
	// automatically among beta, r0, and r_contact.
	NoisePar string

	// Overrides are explicit parameter overrides applied after noise.
	// Unknown keys fail.
	Overrides map[string]any

	// Logger used for run progress. Defaults to slog.Default().
	Logger *slog.Logger
}

// SingleRun deep-copies the template, derives the run seed as the
// template's seed plus index, applies noise and overrides, and executes
// the run to completion. The template is never mutated.
func SingleRun(ctx context.Context, template *engine.Sim, index int, opts Options) (*engine.Sim, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	sim := template.Copy()

	base, err := sim.Pars().Int("seed")
	if err != nil {
		return nil, fmt.Errorf("run %d: %w", index, err)
	}
	seed := int64(base) + int64(index)
	if err := sim.SetSeed(&seed, false); err != nil {
		return nil, fmt.Errorf("run %d: %w", index, err)
	}

	if opts.Noise != 0 {
		noisePar := opts.NoisePar
		if noisePar == "" {
			noisePar, err = detectNoisePar(sim)
			if err != nil {
				return nil, fmt.Errorf("run %d: %w", index, err)
			}
		}
		factor := noiseFactor(opts.Noise * sim.Rand().NormFloat64())
		if err := sim.Pars().Scale(noisePar, factor); err != nil {
			return nil, fmt.Errorf("run %d: apply noise to %q: %w", index, noisePar, err)
		}
		log.Debug("noise applied", "run", index, "parameter", noisePar, "factor", factor)
	}

	if err := sim.Pars().Update(opts.Overrides, false); err != nil {
		return nil, fmt.Errorf("run %d: apply overrides: %w", index, err)
	}

	if err := sim.InitPeople(); err != nil {
		return nil, fmt.Errorf("run %d: %w", index, err)
	}
	if err := sim.InitResults(); err != nil {
		return nil, fmt.Errorf("run %d: %w", index, err)
	}
	if err := sim.Run(ctx); err != nil {
		return nil, fmt.Errorf("run %d: %w", index, err)
	}
	return sim, nil
}

// MultiOptions configures a batch of runs.
type MultiOptions struct {
	// Runs is the number of runs. Ignored when IterPars is set, where
	// the common sequence length decides.
	Runs int

	// Noise and NoisePar are passed through to every run.
	Noise    float64
	NoisePar string

	// IterPars maps parameter names to per-run value sequences,
	// sweeping distinct values per run instead of pure noise. All
	// sequences must share the same length.
	IterPars map[string][]any

	// Combine merges the completed runs into one aggregate engine.
	Combine bool

	// Workers bounds run concurrency. Zero means GOMAXPROCS.
	Workers int

	// Logger used for batch progress. Defaults to slog.Default().
	Logger *slog.Logger
}

// MultiResult holds the outcome of a batch. Sims is index-aligned with
// the iteration inputs regardless of worker completion order. Combined is
// set only when MultiOptions.Combine was requested.
type MultiResult struct {
	Sims     []*engine.Sim
	Combined *engine.Sim
}

// MultiRun executes n independent SingleRun invocations on a bounded
// worker pool. The first failure aborts the whole batch; no partial
// results are returned.
func MultiRun(ctx context.Context, template *engine.Sim, opts MultiOptions) (*MultiResult, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	n := opts.Runs
	if len(opts.IterPars) > 0 {
		n = -1
		for key, values := range opts.IterPars {
			if n >= 0 && len(values) != n {
				return nil, fmt.Errorf("%w: parameter %q has %d values, expected %d", ErrIterLength, key, len(values), n)
			}
			n = len(values)
		}
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: run count must be positive, got %d", engine.ErrInvalidArgument, n)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	sims := make([]*engine.Sim, n)
	errs := make([]error, n)
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			runOpts := Options{
				Noise:     opts.Noise,
				NoisePar:  opts.NoisePar,
				Overrides: iterOverrides(opts.IterPars, index),
				Logger:    log,
			}
			sims[index], errs[index] = SingleRun(ctx, template, index, runOpts)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("ensemble aborted: %w", err)
		}
	}
	log.Info("ensemble complete", "runs", n, "workers", workers)

	result := &MultiResult{Sims: sims}
	if opts.Combine {
		combined, err := Combine(sims)
		if err != nil {
			return nil, err
		}
		result.Combined = combined
	}
	return result, nil
}

// Combine merges completed runs into one aggregate engine: populations
// are appended with fresh sequential identifiers tagged by run of origin,
// the population-size parameter is scaled by the run count to stay
// consistent with the widened population, and series are summed
// element-wise.
func Combine(sims []*engine.Sim) (*engine.Sim, error) {
	if len(sims) == 0 {
		return nil, fmt.Errorf("%w: nothing to combine", engine.ErrInvalidArgument)
	}
	out := sims[0].Copy()
	for run, sim := range sims[1:] {
		if err := out.Merge(sim, run+1); err != nil {
			return nil, fmt.Errorf("combine run %d: %w", run+1, err)
		}
	}
	if err := out.Pars().Scale("n", float64(len(sims))); err != nil {
		return nil, err
	}
	return out, nil
}

// iterOverrides builds the per-run override map from the iteration
// parameters for one run index.
func iterOverrides(iterPars map[string][]any, index int) map[string]any {
	if len(iterPars) == 0 {
		return nil
	}
	overrides := make(map[string]any, len(iterPars))
	for key, values := range iterPars {
		overrides[key] = values[index]
	}
	return overrides
}

// detectNoisePar finds the single driver parameter present in the store.
func detectNoisePar(sim *engine.Sim) (string, error) {
	var found []string
	for _, candidate := range noiseParCandidates {
		if sim.Pars().Has(candidate) {
			found = append(found, candidate)
		}
	}
	if len(found) != 1 {
		return "", fmt.Errorf("%w: of %v, found %v", ErrAmbiguousNoisePar, noiseParCandidates, found)
	}
	return found[0], nil
}

// noiseFactor maps a normal draw v to a strictly positive multiplier:
// 1+v for positive draws, 1/(1-v) for negative, continuous at zero.
func noiseFactor(v float64) float64 {
	if v > 0 {
		return 1 + v
	}
	return 1 / (1 - v)
}
