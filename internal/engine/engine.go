// Package engine implements the day-by-day simulation core. A Sim owns a
// validated parameter store, an ordered agent population, and the named
// time series the stepping loop fills. All stochastic draws come from one
// private seeded stream consumed in a fixed traversal order, so two
// engines with the same seed and parameters produce bit-identical results.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	mrand "math/rand/v2"
	"sort"
	"time"

	"github.com/nvandessel/episim/internal/params"
	"github.com/nvandessel/episim/internal/people"
	"github.com/nvandessel/episim/internal/results"
)

var (
	// ErrInvalidArgument reports conflicting or malformed call arguments.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUninitialized reports an operation invoked out of lifecycle
	// order (e.g. Run before InitResults).
	ErrUninitialized = errors.New("simulation not initialized")
)

// Model is the disease-model plug-in. It supplies the agent population,
// the set of named series the stepping loop fills, the per-day
// transmission context, the per-day aggregation, and the summary
// reductions. Implementations must be stateless: all run state lives on
// the agents and the series.
type Model interface {
	// Validate checks that pars carries everything the model needs.
	Validate(pars *params.Store) error

	// InitPeople creates the population with identifiers 0..n-1.
	InitPeople(pars *params.Store, rng *mrand.Rand) ([]people.Person, error)

	// Results returns the zero-filled series of length npts the
	// stepping loop will populate.
	Results(npts int) []*results.Series

	// BeginDay computes the shared transmission context for one day
	// from the population state at the start of the day.
	BeginDay(day int, pop []people.Person, pars *params.Store) (people.Exposure, error)

	// RecordDay aggregates the population state for day into the series.
	RecordDay(day int, pop []people.Person, series map[string]*results.Series) error

	// Summary reduces completed series to scalar statistics. It must
	// not mutate the series.
	Summary(series map[string]*results.Series) map[string]float64
}

// lifecycle tracks how far a Sim has progressed through its run states.
// Each stage requires the previous one; skipping a stage is an error, not
// a silent default, because results would otherwise be length-inconsistent
// or non-reproducible.
type lifecycle int

const (
	stateParameterized lifecycle = iota
	stateSeeded
	statePeople
	stateResults
	stateComplete
)

func (l lifecycle) String() string {
	switch l {
	case stateParameterized:
		return "parameterized"
	case stateSeeded:
		return "seeded"
	case statePeople:
		return "people initialized"
	case stateResults:
		return "results initialized"
	case stateComplete:
		return "complete"
	}
	return "unknown"
}

// Sim runs a single simulation: population, parameters, results, and the
// seeded random stream that determines every stochastic outcome.
type Sim struct {
	pars   *params.Store
	model  Model
	pop    []people.Person
	series map[string]*results.Series
	rng    *mrand.Rand
	state  lifecycle
	log    *slog.Logger
}

// Option configures a Sim.
type Option func(*Sim)

// WithLogger sets the logger used for run progress. The default discards
// nothing but logs at debug level only.
func WithLogger(log *slog.Logger) Option {
	return func(s *Sim) { s.log = log }
}

// New creates a Sim over the given model and initial parameters. The
// parameter key set is closed from here on. The store must carry at least
// n, n_days, and seed.
func New(model Model, initial map[string]any, opts ...Option) (*Sim, error) {
	s := &Sim{
		pars:  params.New(initial),
		model: model,
		state: stateParameterized,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, required := range []string{"n", "n_days", "seed"} {
		if !s.pars.Has(required) {
			return nil, fmt.Errorf("%w: missing required parameter %q", ErrInvalidArgument, required)
		}
	}
	if err := model.Validate(s.pars); err != nil {
		return nil, fmt.Errorf("validate model parameters: %w", err)
	}
	return s, nil
}

// Pars returns the simulation's parameter store.
func (s *Sim) Pars() *params.Store { return s.pars }

// Rand returns the seeded random stream, or nil before SetSeed. The
// ensemble runner draws its per-run noise perturbation from it so that
// noise is part of the run's reproducible stream.
func (s *Sim) Rand() *mrand.Rand { return s.rng }

// SetSeed resets the random stream. Exactly one seed source applies per
// call: an explicit seed (stored back into the parameters), the stored
// seed parameter (seed nil, randomize false), or a randomly drawn seed
// (randomize true, also stored so the run remains reproducible after the
// fact). Supplying both an explicit seed and randomize fails.
func (s *Sim) SetSeed(seed *int64, randomize bool) error {
	var resolved int64
	switch {
	case randomize && seed != nil:
		return fmt.Errorf("%w: supply a seed or set randomize, not both", ErrInvalidArgument)
	case randomize:
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return fmt.Errorf("draw random seed: %w", err)
		}
		resolved = int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	case seed != nil:
		resolved = *seed
	default:
		stored, err := s.pars.Int("seed")
		if err != nil {
			return fmt.Errorf("read stored seed: %w", err)
		}
		resolved = int64(stored)
	}
	if err := s.pars.Set("seed", int(resolved)); err != nil {
		return err
	}
	s.rng = mrand.New(mrand.NewPCG(uint64(resolved), uint64(resolved)*0x9e3779b97f4a7c15+1))
	s.state = stateSeeded
	return nil
}

// InitPeople builds the agent population with identifiers 0..n-1,
// replacing any existing population. Requires a seeded stream, since
// population construction may draw from it.
func (s *Sim) InitPeople() error {
	if s.state < stateSeeded {
		return fmt.Errorf("%w: InitPeople requires SetSeed (state: %s)", ErrUninitialized, s.state)
	}
	if s.rng == nil {
		return fmt.Errorf("%w: no random stream; copies must be re-seeded with SetSeed", ErrUninitialized)
	}
	n, err := s.pars.Int("n")
	if err != nil {
		return err
	}
	pop, err := s.model.InitPeople(s.pars, s.rng)
	if err != nil {
		return fmt.Errorf("init people: %w", err)
	}
	if len(pop) != n {
		return fmt.Errorf("%w: model created %d agents, parameter n is %d", people.ErrAgentConstruction, len(pop), n)
	}
	if err := people.Validate(pop); err != nil {
		return err
	}
	s.pop = pop
	s.state = statePeople
	return nil
}

// InitResults allocates the model's zero-filled series, each of length
// npts, replacing any existing results.
func (s *Sim) InitResults() error {
	if s.state < statePeople {
		return fmt.Errorf("%w: InitResults requires InitPeople (state: %s)", ErrUninitialized, s.state)
	}
	npts, err := s.Npts()
	if err != nil {
		return err
	}
	series := make(map[string]*results.Series)
	for _, res := range s.model.Results(npts) {
		if res.Npts() != npts {
			return &results.LengthError{Name: res.Name, Got: res.Npts(), Expected: npts}
		}
		series[res.Name] = res
	}
	s.series = series
	s.state = stateResults
	return nil
}

// Initialize seeds from the stored seed parameter and builds the
// population and results in one call.
func (s *Sim) Initialize() error {
	if err := s.SetSeed(nil, false); err != nil {
		return err
	}
	if err := s.InitPeople(); err != nil {
		return err
	}
	return s.InitResults()
}

// Run executes the stepping loop. Day 0 records the initial state with no
// transitions; each subsequent day advances every agent in ascending
// identifier order and then records the day's aggregates. The context is
// checked between days so callers can cancel long runs.
func (s *Sim) Run(ctx context.Context) error {
	if s.state != stateResults {
		return fmt.Errorf("%w: Run requires InitResults (state: %s)", ErrUninitialized, s.state)
	}
	if s.rng == nil {
		return fmt.Errorf("%w: no random stream; copies must be re-seeded with SetSeed", ErrUninitialized)
	}
	nDays, err := s.pars.Int("n_days")
	if err != nil {
		return err
	}
	start := time.Now()
	if err := s.model.RecordDay(0, s.pop, s.series); err != nil {
		return fmt.Errorf("record day 0: %w", err)
	}
	for day := 1; day <= nDays; day++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled on day %d: %w", day, err)
		}
		exp, err := s.model.BeginDay(day, s.pop, s.pars)
		if err != nil {
			return fmt.Errorf("begin day %d: %w", day, err)
		}
		for _, p := range s.pop {
			if err := p.Advance(day, exp, s.rng); err != nil {
				return fmt.Errorf("advance agent %d on day %d: %w", p.ID(), day, err)
			}
		}
		if err := s.model.RecordDay(day, s.pop, s.series); err != nil {
			return fmt.Errorf("record day %d: %w", day, err)
		}
		s.log.Debug("day complete", "day", day, "infectious", exp.Infectious)
	}
	s.state = stateComplete
	s.log.Info("run complete", "days", nDays, "n", len(s.pop), "elapsed", time.Since(start))
	return nil
}

// N returns the current population size.
func (s *Sim) N() int { return len(s.pop) }

// Npts returns the number of time points, n_days + 1.
func (s *Sim) Npts() (int, error) {
	nDays, err := s.pars.Int("n_days")
	if err != nil {
		return 0, err
	}
	return nDays + 1, nil
}

// Tvec returns the day indices 0..n_days.
func (s *Sim) Tvec() ([]int, error) {
	npts, err := s.Npts()
	if err != nil {
		return nil, err
	}
	tvec := make([]int, npts)
	for i := range tvec {
		tvec[i] = i
	}
	return tvec, nil
}

// GetPerson returns the agent at population index ind.
func (s *Sim) GetPerson(ind int) (people.Person, error) {
	if s.state < statePeople {
		return nil, fmt.Errorf("%w: no population (state: %s)", ErrUninitialized, s.state)
	}
	if ind < 0 || ind >= len(s.pop) {
		return nil, fmt.Errorf("%w: person index %d out of range [0, %d)", ErrInvalidArgument, ind, len(s.pop))
	}
	return s.pop[ind], nil
}

// People returns the population in identifier order. The slice is owned
// by the engine; callers must not mutate it.
func (s *Sim) People() []people.Person { return s.pop }

// Result returns the named series.
func (s *Sim) Result(name string) (*results.Series, error) {
	res, ok := s.series[name]
	if !ok {
		return nil, fmt.Errorf("no result series named %q", name)
	}
	return res, nil
}

// ResultKeys returns the series names in sorted order.
func (s *Sim) ResultKeys() []string {
	keys := make([]string, 0, len(s.series))
	for name := range s.series {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}

// Complete reports whether the run has finished.
func (s *Sim) Complete() bool { return s.state == stateComplete }

// ResultSnapshot returns a stable {name: values} copy of the results.
// Only available once the run is complete.
func (s *Sim) ResultSnapshot() (map[string][]float64, error) {
	if s.state != stateComplete {
		return nil, fmt.Errorf("%w: results not complete (state: %s)", ErrUninitialized, s.state)
	}
	return results.Snapshot(s.series), nil
}

// SummaryStats reduces the completed series to scalar summaries via the
// model. The raw series are not recomputed or mutated.
func (s *Sim) SummaryStats() (map[string]float64, error) {
	if s.state != stateComplete {
		return nil, fmt.Errorf("%w: summary requires a completed run (state: %s)", ErrUninitialized, s.state)
	}
	return s.model.Summary(s.series), nil
}

// Copy returns a deep clone of the simulation: parameters, population,
// and results are independent. The random stream is not carried over; a
// copy must be re-seeded before it can run.
func (s *Sim) Copy() *Sim {
	c := &Sim{
		pars:  s.pars.Clone(),
		model: s.model,
		state: s.state,
		log:   s.log,
	}
	if s.pop != nil {
		c.pop = make([]people.Person, len(s.pop))
		for i, p := range s.pop {
			c.pop[i] = p.Clone()
		}
	}
	if s.series != nil {
		c.series = make(map[string]*results.Series, len(s.series))
		for name, res := range s.series {
			c.series[name] = res.Clone()
		}
	}
	return c
}

// Dates converts day indices to formatted dates using the start_day
// parameter (layout 2006-01-02). Layout defaults to "Jan-02".
func (s *Sim) Dates(inds []int, layout string) ([]string, error) {
	startStr, err := s.pars.String("start_day")
	if err != nil {
		return nil, err
	}
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return nil, fmt.Errorf("parse start_day: %w", err)
	}
	if layout == "" {
		layout = "Jan-02"
	}
	dates := make([]string, len(inds))
	for i, ind := range inds {
		dates[i] = start.AddDate(0, 0, ind).Format(layout)
	}
	return dates, nil
}
