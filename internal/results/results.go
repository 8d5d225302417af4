// Package results defines the fixed-length per-day time series that the
// stepping loop fills and the ensemble runner merges.
package results

import (
	"fmt"
	"math"
)

// LengthError reports an element-wise merge between series of different
// lengths.
type LengthError struct {
	Name     string
	Got      int
	Expected int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("series %q has %d points, expected %d", e.Name, e.Got, e.Expected)
}

// Series is a named per-day numeric result. Length is fixed at creation;
// the stepping loop mutates values in place and readers treat a completed
// series as immutable.
type Series struct {
	Name       string
	Values     []float64
	Scale      bool // multiply by the population scale factor when reporting
	Percentage bool // values are a 0-1 fraction, not a count
}

// Option configures a new Series.
type Option func(*Series)

// AsPercentage marks the series as a 0-1 fraction.
func AsPercentage() Option {
	return func(s *Series) {
		s.Percentage = true
		s.Scale = false
	}
}

// Unscaled disables population scaling for the series.
func Unscaled() Option {
	return func(s *Series) { s.Scale = false }
}

// New creates a zero-filled series with npts points.
func New(name string, npts int, opts ...Option) *Series {
	s := &Series{
		Name:   name,
		Values: make([]float64, npts),
		Scale:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromValues creates a series wrapping a copy of values.
func FromValues(name string, values []float64, opts ...Option) *Series {
	s := New(name, len(values), opts...)
	copy(s.Values, values)
	return s
}

// Npts returns the number of points. It is derived from the value slice,
// never stored separately.
func (s *Series) Npts() int { return len(s.Values) }

// Add sums other into s element-wise. Names and lengths must match.
func (s *Series) Add(other *Series) error {
	if other.Name != s.Name {
		return fmt.Errorf("cannot merge series %q into %q", other.Name, s.Name)
	}
	if other.Npts() != s.Npts() {
		return &LengthError{Name: other.Name, Got: other.Npts(), Expected: s.Npts()}
	}
	for i, v := range other.Values {
		s.Values[i] += v
	}
	return nil
}

// Sum returns the total over all days.
func (s *Series) Sum() float64 {
	total := 0.0
	for _, v := range s.Values {
		total += v
	}
	return total
}

// Peak returns the day with the highest value and that value. Ties go to
// the earliest day.
func (s *Series) Peak() (day int, value float64) {
	value = math.Inf(-1)
	for i, v := range s.Values {
		if v > value {
			day = i
			value = v
		}
	}
	return day, value
}

// Clone returns an independent copy of the series.
func (s *Series) Clone() *Series {
	c := *s
	c.Values = make([]float64, len(s.Values))
	copy(c.Values, s.Values)
	return &c
}

// Valid reports whether every value is a finite, non-negative count.
// Percentage series additionally must stay within [0, 1].
func (s *Series) Valid() bool {
	for _, v := range s.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
		if s.Percentage && v > 1 {
			return false
		}
	}
	return true
}

// Snapshot returns a {name: values} copy of a set of series, the stable
// read-only view export consumers receive.
func Snapshot(series map[string]*Series) map[string][]float64 {
	out := make(map[string][]float64, len(series))
	for name, s := range series {
		values := make([]float64, len(s.Values))
		copy(values, s.Values)
		out[name] = values
	}
	return out
}
