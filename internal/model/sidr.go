// Package model provides the built-in disease models that plug into the
// simulation engine. SIDR is a homogeneous-mixing
// susceptible-infectious-diagnosed-recovered model: diagnosis is an event
// on an infectious agent, not a separate compartment, so a diagnosed
// agent keeps transmitting until recovery.
package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/nvandessel/episim/internal/params"
	"github.com/nvandessel/episim/internal/people"
	"github.com/nvandessel/episim/internal/results"
)

// Series names filled by the SIDR stepping loop.
const (
	SeriesSusceptible   = "n_susceptible"
	SeriesInfectious    = "n_infectious"
	SeriesNewInfections = "new_infections"
	SeriesNewDiagnoses  = "new_diagnoses"
	SeriesNewRecoveries = "new_recoveries"
	SeriesCumInfections = "cum_infections"
	SeriesCumDiagnoses  = "cum_diagnoses"
)

type status int

const (
	susceptible status = iota
	infectious
	recovered
)

// person is one SIDR agent. Transition probabilities are fixed at
// population creation; the per-day Exposure supplies the population
// coupling.
type person struct {
	people.State
	status    status
	pDiagnose float64 // per-day probability of diagnosis while infectious
	pRecover  float64 // per-day probability of recovery while infectious
}

// Advance applies one day of stochastic transitions. Draw order is fixed
// (infection, then diagnosis, then recovery) so trajectories are
// reproducible for a given stream.
func (p *person) Advance(day int, exp people.Exposure, rng *rand.Rand) error {
	switch p.status {
	case susceptible:
		if rng.Float64() < exp.Force {
			p.status = infectious
			p.InfectedDay = day
		}
	case infectious:
		if p.DiagnosedDay < 0 && rng.Float64() < p.pDiagnose {
			p.DiagnosedDay = day
		}
		if rng.Float64() < p.pRecover {
			p.status = recovered
			p.RecoveredDay = day
		}
	case recovered:
		// Terminal; immunity does not wane in this model.
	default:
		return fmt.Errorf("agent %d in unknown status %d", p.ID(), p.status)
	}
	return nil
}

// Clone returns an independent copy of the agent.
func (p *person) Clone() people.Person {
	c := *p
	return &c
}

// SIDR is the built-in disease model. It is stateless: all run state
// lives on the agents and the result series.
type SIDR struct{}

// New creates the SIDR model.
func New() *SIDR { return &SIDR{} }

// Defaults returns a baseline parameter set for the model, suitable for
// seeding an engine's parameter store.
func Defaults() map[string]any {
	return map[string]any{
		"n":             1000,
		"n_days":        60,
		"seed":          1,
		"beta":          0.05, // per-contact transmission probability
		"contacts":      20,   // daily contacts per agent
		"init_infected": 10,
		"dur_infection": 8.0, // mean infectious period in days
		"p_diagnose":    0.1, // per-day diagnosis probability while infectious
		"start_day":     "2026-03-01",
	}
}

// Validate checks the model's parameters for presence and range.
func (m *SIDR) Validate(pars *params.Store) error {
	beta, err := pars.Float("beta")
	if err != nil {
		return err
	}
	if beta < 0 || beta > 1 {
		return fmt.Errorf("beta must be in [0, 1], got %v", beta)
	}
	if _, err := pars.Int("contacts"); err != nil {
		return err
	}
	dur, err := pars.Float("dur_infection")
	if err != nil {
		return err
	}
	if dur < 1 {
		return fmt.Errorf("dur_infection must be at least 1 day, got %v", dur)
	}
	pDiag, err := pars.Float("p_diagnose")
	if err != nil {
		return err
	}
	if pDiag < 0 || pDiag > 1 {
		return fmt.Errorf("p_diagnose must be in [0, 1], got %v", pDiag)
	}
	n, err := pars.Int("n")
	if err != nil {
		return err
	}
	initInf, err := pars.Int("init_infected")
	if err != nil {
		return err
	}
	if initInf < 0 || initInf > n {
		return fmt.Errorf("init_infected must be in [0, n], got %d", initInf)
	}
	return nil
}

// InitPeople creates n agents with identifiers 0..n-1 and seeds
// init_infected of them as infectious on day 0, chosen uniformly from the
// run's random stream.
func (m *SIDR) InitPeople(pars *params.Store, rng *rand.Rand) ([]people.Person, error) {
	n, err := pars.Int("n")
	if err != nil {
		return nil, err
	}
	initInf, err := pars.Int("init_infected")
	if err != nil {
		return nil, err
	}
	dur, err := pars.Float("dur_infection")
	if err != nil {
		return nil, err
	}
	pDiag, err := pars.Float("p_diagnose")
	if err != nil {
		return nil, err
	}

	pop := make([]people.Person, n)
	for i := 0; i < n; i++ {
		pop[i] = &person{
			State:     people.NewState(i),
			status:    susceptible,
			pDiagnose: pDiag,
			pRecover:  1 / dur,
		}
	}
	for _, ind := range rng.Perm(n)[:initInf] {
		p := pop[ind].(*person)
		p.status = infectious
		p.InfectedDay = 0
	}
	return pop, nil
}

// Results returns the zero-filled series the stepping loop fills.
func (m *SIDR) Results(npts int) []*results.Series {
	return []*results.Series{
		results.New(SeriesSusceptible, npts),
		results.New(SeriesInfectious, npts),
		results.New(SeriesNewInfections, npts),
		results.New(SeriesNewDiagnoses, npts),
		results.New(SeriesNewRecoveries, npts),
		results.New(SeriesCumInfections, npts),
		results.New(SeriesCumDiagnoses, npts),
	}
}

// BeginDay computes the force of infection from the population state at
// the start of the day: 1 - (1 - beta*I/N)^contacts.
func (m *SIDR) BeginDay(day int, pop []people.Person, pars *params.Store) (people.Exposure, error) {
	beta, err := pars.Float("beta")
	if err != nil {
		return people.Exposure{}, err
	}
	contacts, err := pars.Int("contacts")
	if err != nil {
		return people.Exposure{}, err
	}
	n := len(pop)
	inf := 0
	for _, p := range pop {
		if p.(*person).status == infectious {
			inf++
		}
	}
	force := 0.0
	if n > 0 && inf > 0 {
		force = 1 - math.Pow(1-beta*float64(inf)/float64(n), float64(contacts))
	}
	return people.Exposure{Day: day, Infectious: inf, N: n, Force: force}, nil
}

// RecordDay aggregates the population state for one day into the series.
func (m *SIDR) RecordDay(day int, pop []people.Person, series map[string]*results.Series) error {
	var nSus, nInf, newInf, newDiag, newRec, cumInf, cumDiag int
	for _, pp := range pop {
		p := pp.(*person)
		switch p.status {
		case susceptible:
			nSus++
		case infectious:
			nInf++
		}
		if p.InfectedDay == day {
			newInf++
		}
		if p.DiagnosedDay == day {
			newDiag++
		}
		if p.RecoveredDay == day {
			newRec++
		}
		if p.InfectedDay >= 0 && p.InfectedDay <= day {
			cumInf++
		}
		if p.Diagnosed(day) {
			cumDiag++
		}
	}
	for name, count := range map[string]int{
		SeriesSusceptible:   nSus,
		SeriesInfectious:    nInf,
		SeriesNewInfections: newInf,
		SeriesNewDiagnoses:  newDiag,
		SeriesNewRecoveries: newRec,
		SeriesCumInfections: cumInf,
		SeriesCumDiagnoses:  cumDiag,
	} {
		res, ok := series[name]
		if !ok {
			return fmt.Errorf("missing series %q", name)
		}
		res.Values[day] = float64(count)
	}
	return nil
}

// Summary reduces the completed series to scalar statistics.
func (m *SIDR) Summary(series map[string]*results.Series) map[string]float64 {
	out := make(map[string]float64)
	if res, ok := series[SeriesCumInfections]; ok && res.Npts() > 0 {
		out["cum_infections"] = res.Values[res.Npts()-1]
	}
	if res, ok := series[SeriesCumDiagnoses]; ok && res.Npts() > 0 {
		out["cum_diagnoses"] = res.Values[res.Npts()-1]
	}
	if res, ok := series[SeriesInfectious]; ok {
		day, peak := res.Peak()
		out["peak_infectious"] = peak
		out["peak_day"] = float64(day)
	}
	if res, ok := series[SeriesNewInfections]; ok {
		out["total_new_infections"] = res.Sum()
	}
	return out
}
