package model

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/nvandessel/episim/internal/params"
	"github.com/nvandessel/episim/internal/people"
	"github.com/nvandessel/episim/internal/results"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func testPars(t *testing.T, overrides map[string]any) *params.Store {
	t.Helper()
	pars := params.New(Defaults())
	if err := pars.Update(overrides, false); err != nil {
		t.Fatalf("test parameter overrides: %v", err)
	}
	return pars
}

// seriesMap allocates the model's series keyed by name.
func seriesMap(m *SIDR, npts int) map[string]*results.Series {
	sm := make(map[string]*results.Series)
	for _, res := range m.Results(npts) {
		sm[res.Name] = res
	}
	return sm
}

// withEvents builds an agent State with the given event days.
func withEvents(uid, infected, diagnosed, recoveredDay int) people.State {
	s := people.NewState(uid)
	s.InfectedDay = infected
	s.DiagnosedDay = diagnosed
	s.RecoveredDay = recoveredDay
	return s
}

func TestValidateRejectsBadRanges(t *testing.T) {
	m := New()
	cases := []struct {
		name      string
		overrides map[string]any
	}{
		{"beta above 1", map[string]any{"beta": 1.5}},
		{"negative beta", map[string]any{"beta": -0.1}},
		{"short duration", map[string]any{"dur_infection": 0.5}},
		{"p_diagnose above 1", map[string]any{"p_diagnose": 2.0}},
		{"more seeds than people", map[string]any{"n": 10, "init_infected": 11}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := m.Validate(testPars(t, tc.overrides)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := m.Validate(testPars(t, nil)); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestInitPeopleSeedsInfections(t *testing.T) {
	m := New()
	pars := testPars(t, map[string]any{"n": 100, "init_infected": 7})
	pop, err := m.InitPeople(pars, testRand())
	if err != nil {
		t.Fatalf("InitPeople: %v", err)
	}
	if len(pop) != 100 {
		t.Fatalf("population size = %d, want 100", len(pop))
	}
	if err := people.Validate(pop); err != nil {
		t.Fatalf("population contract: %v", err)
	}
	seeded := 0
	for _, pp := range pop {
		p := pp.(*person)
		if p.status == infectious {
			seeded++
			if p.InfectedDay != 0 {
				t.Errorf("seeded case has InfectedDay %d, want 0", p.InfectedDay)
			}
		}
	}
	if seeded != 7 {
		t.Errorf("seeded cases = %d, want 7", seeded)
	}
}

func TestBeginDayForce(t *testing.T) {
	m := New()
	pars := testPars(t, map[string]any{"n": 100, "beta": 0.1, "contacts": 10, "init_infected": 10})
	pop, err := m.InitPeople(pars, testRand())
	if err != nil {
		t.Fatalf("InitPeople: %v", err)
	}
	exp, err := m.BeginDay(1, pop, pars)
	if err != nil {
		t.Fatalf("BeginDay: %v", err)
	}
	if exp.Infectious != 10 || exp.N != 100 || exp.Day != 1 {
		t.Errorf("exposure context: %+v", exp)
	}
	want := 1 - math.Pow(1-0.1*0.1, 10)
	if math.Abs(exp.Force-want) > 1e-12 {
		t.Errorf("force = %v, want %v", exp.Force, want)
	}
}

func TestBeginDayNoInfectious(t *testing.T) {
	m := New()
	pars := testPars(t, map[string]any{"init_infected": 0})
	pop, err := m.InitPeople(pars, testRand())
	if err != nil {
		t.Fatalf("InitPeople: %v", err)
	}
	exp, err := m.BeginDay(1, pop, pars)
	if err != nil {
		t.Fatalf("BeginDay: %v", err)
	}
	if exp.Force != 0 {
		t.Errorf("force with no infectious agents = %v, want 0", exp.Force)
	}
}

func TestAdvanceTransitions(t *testing.T) {
	rng := testRand()

	// Force 1 guarantees infection.
	p := &person{State: people.NewState(0), status: susceptible}
	if err := p.Advance(3, people.Exposure{Force: 1}, rng); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if p.status != infectious || p.InfectedDay != 3 {
		t.Errorf("susceptible under force 1: %+v", p)
	}

	// Certain diagnosis and recovery on the same day.
	p = &person{State: people.NewState(0), status: infectious, pDiagnose: 1, pRecover: 1}
	p.InfectedDay = 1
	if err := p.Advance(4, people.Exposure{}, rng); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if p.DiagnosedDay != 4 || p.status != recovered || p.RecoveredDay != 4 {
		t.Errorf("infectious with certain transitions: %+v", p)
	}

	// Recovered agents never change.
	p = &person{State: people.NewState(0), status: recovered}
	if err := p.Advance(5, people.Exposure{Force: 1}, rng); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if p.status != recovered || p.InfectedDay != -1 {
		t.Errorf("recovered agent changed: %+v", p)
	}
}

func TestAdvanceZeroProbabilities(t *testing.T) {
	rng := testRand()
	p := &person{State: people.NewState(0), status: susceptible}
	for day := 1; day <= 50; day++ {
		if err := p.Advance(day, people.Exposure{Force: 0}, rng); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
	if p.status != susceptible {
		t.Error("susceptible agent infected under zero force")
	}
}

func TestRecordDayCounts(t *testing.T) {
	m := New()
	sm := seriesMap(m, 3)
	pop := []people.Person{
		&person{State: people.NewState(0), status: susceptible},
		&person{State: withEvents(1, 0, -1, -1), status: infectious},
		&person{State: withEvents(2, 0, 1, 1), status: recovered},
		&person{State: withEvents(3, 1, -1, -1), status: infectious},
	}
	if err := m.RecordDay(1, pop, sm); err != nil {
		t.Fatalf("RecordDay: %v", err)
	}

	checks := map[string]float64{
		SeriesSusceptible:   1,
		SeriesInfectious:    2,
		SeriesNewInfections: 1, // agent 3 infected on day 1
		SeriesNewDiagnoses:  1, // agent 2 diagnosed on day 1
		SeriesNewRecoveries: 1, // agent 2 recovered on day 1
		SeriesCumInfections: 3,
		SeriesCumDiagnoses:  1,
	}
	for name, want := range checks {
		if got := sm[name].Values[1]; got != want {
			t.Errorf("%s[1] = %v, want %v", name, got, want)
		}
	}
}

func TestSummary(t *testing.T) {
	m := New()
	sm := seriesMap(m, 3)
	sm[SeriesCumInfections].Values = []float64{5, 8, 12}
	sm[SeriesCumDiagnoses].Values = []float64{0, 1, 4}
	sm[SeriesInfectious].Values = []float64{5, 9, 2}
	sm[SeriesNewInfections].Values = []float64{5, 3, 4}

	stats := m.Summary(sm)
	if stats["cum_infections"] != 12 {
		t.Errorf("cum_infections = %v", stats["cum_infections"])
	}
	if stats["cum_diagnoses"] != 4 {
		t.Errorf("cum_diagnoses = %v", stats["cum_diagnoses"])
	}
	if stats["peak_infectious"] != 9 || stats["peak_day"] != 1 {
		t.Errorf("peak = %v on day %v", stats["peak_infectious"], stats["peak_day"])
	}
	if stats["total_new_infections"] != 12 {
		t.Errorf("total_new_infections = %v", stats["total_new_infections"])
	}
}
