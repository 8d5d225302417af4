package engine

import (
	"fmt"
	"math"
)

// ObservedCount is one externally observed data point aligned to the
// simulation's day indices.
type ObservedCount struct {
	Day   int
	Count float64
}

// Likelihood computes the Poisson log-likelihood of the observed counts
// against the named simulated series. Corrupt simulated data (negative or
// NaN values) yields -Inf rather than an error: a bogus trajectory is a
// terrible fit, not a fatal condition, so calibration loops can keep
// scoring.
func (s *Sim) Likelihood(obs []ObservedCount, seriesName string) (float64, error) {
	if s.state != stateComplete {
		return 0, fmt.Errorf("%w: likelihood requires a completed run (state: %s)", ErrUninitialized, s.state)
	}
	res, err := s.Result(seriesName)
	if err != nil {
		return 0, err
	}
	if !res.Valid() {
		return math.Inf(-1), nil
	}
	ll := 0.0
	for _, o := range obs {
		if o.Day < 0 || o.Day >= res.Npts() {
			return 0, fmt.Errorf("%w: observed day %d outside [0, %d)", ErrInvalidArgument, o.Day, res.Npts())
		}
		if o.Count < 0 {
			return 0, fmt.Errorf("%w: observed count on day %d is negative", ErrInvalidArgument, o.Day)
		}
		rate := res.Values[o.Day]
		if rate == 0 {
			if o.Count > 0 {
				// Poisson pmf is zero here; the fit is impossible.
				return math.Inf(-1), nil
			}
			continue
		}
		lg, _ := math.Lgamma(o.Count + 1)
		ll += o.Count*math.Log(rate) - rate - lg
	}
	return ll, nil
}
