package engine

import (
	"fmt"

	"github.com/nvandessel/episim/internal/people"
)

// rekeyer is implemented by agents whose identifier can be reassigned
// when populations are merged. Models embedding people.State get it for
// free.
type rekeyer interface {
	Rekey(uid, run int)
}

// Merge absorbs another completed simulation: other's agents are cloned,
// re-keyed to fresh sequential identifiers tagged with the run of origin,
// and appended to the population, and other's series are summed into this
// engine's series element-wise. Both simulations must be complete and
// share the same set of series with equal npts.
func (s *Sim) Merge(other *Sim, run int) error {
	if s.state != stateComplete || other.state != stateComplete {
		return fmt.Errorf("%w: merge requires two completed runs", ErrUninitialized)
	}
	if len(other.series) != len(s.series) {
		return fmt.Errorf("cannot merge: %d series vs %d", len(other.series), len(s.series))
	}
	next := len(s.pop)
	merged := make([]people.Person, 0, len(other.pop))
	for _, p := range other.pop {
		clone := p.Clone()
		rk, ok := clone.(rekeyer)
		if !ok {
			return fmt.Errorf("%w: agent %d does not support re-keying", people.ErrAgentConstruction, p.ID())
		}
		rk.Rekey(next, run)
		next++
		merged = append(merged, clone)
	}
	for name, res := range other.series {
		mine, ok := s.series[name]
		if !ok {
			return fmt.Errorf("cannot merge: no series named %q", name)
		}
		if err := mine.Add(res); err != nil {
			return fmt.Errorf("merge series: %w", err)
		}
	}
	s.pop = append(s.pop, merged...)
	return nil
}
