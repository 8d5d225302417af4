// Package people defines the per-agent capability interface the engine
// steps over. The engine never sees disease-specific state: it only asks
// whether an agent is diagnosed on a given day and tells it to advance by
// one day. Concrete disease models construct the agents.
package people

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrAgentConstruction reports a population that violates the agent
// contract (nil agent, wrong or duplicate identifier).
var ErrAgentConstruction = errors.New("agent construction")

// Exposure is the shared transmission context for one day, computed once
// by the disease model and passed to every agent's Advance call.
type Exposure struct {
	Day        int     // current simulation day
	Infectious int     // number of infectious agents at the start of the day
	N          int     // population size
	Force      float64 // per-susceptible probability of infection today
}

// Person is one simulated individual. Implementations are owned by a
// single engine; ensemble clones receive independent deep copies via
// Clone. Advance must consume randomness only from the supplied stream so
// runs stay reproducible.
type Person interface {
	// ID returns the agent's stable identifier within its population.
	ID() int

	// Diagnosed reports whether the agent had been diagnosed by day.
	Diagnosed(day int) bool

	// Advance moves the agent's state forward by one day.
	Advance(day int, exp Exposure, rng *rand.Rand) error

	// Clone returns an independent deep copy of the agent.
	Clone() Person
}

// State is the common per-agent record concrete models embed: the
// identifier, the run the agent originated from (relevant after an
// ensemble combine), and the day each event occurred (-1 = never).
type State struct {
	UID int
	Run int

	InfectedDay  int
	DiagnosedDay int
	RecoveredDay int
}

// NewState creates the common agent record for identifier uid with all
// event days unset.
func NewState(uid int) State {
	return State{
		UID:          uid,
		InfectedDay:  -1,
		DiagnosedDay: -1,
		RecoveredDay: -1,
	}
}

// ID returns the agent identifier.
func (s *State) ID() int { return s.UID }

// Diagnosed reports whether a diagnosis had occurred by day.
func (s *State) Diagnosed(day int) bool {
	return s.DiagnosedDay >= 0 && s.DiagnosedDay <= day
}

// Rekey assigns a fresh identifier and records the run of origin. Used
// when ensemble populations are merged into one engine.
func (s *State) Rekey(uid, run int) {
	s.UID = uid
	s.Run = run
}

// Validate checks the population contract: n agents, none nil, with
// identifiers exactly 0..n-1 in order.
func Validate(pop []Person) error {
	for i, p := range pop {
		if p == nil {
			return fmt.Errorf("%w: agent at index %d is nil", ErrAgentConstruction, i)
		}
		if p.ID() != i {
			return fmt.Errorf("%w: agent at index %d has identifier %d", ErrAgentConstruction, i, p.ID())
		}
	}
	return nil
}
