// Package params provides the validated parameter store shared by the
// simulation engine and the ensemble runner. The key set is closed at
// construction: writes to unknown keys fail rather than silently creating
// new parameters, which catches typos in sweep and override maps early.
package params

import (
	"fmt"
	"sort"
	"strings"
)

// UnknownParameterError reports a read or write against a key that is not
// part of the store. Suggestion holds the nearest valid key when one is
// close enough to be a plausible typo.
type UnknownParameterError struct {
	Key        string
	Suggestion string
	Valid      []string
}

func (e *UnknownParameterError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("parameter %q not found; did you mean %q?", e.Key, e.Suggestion)
	}
	return fmt.Sprintf("parameter %q not found; valid parameters: %s", e.Key, strings.Join(e.Valid, ", "))
}

// Store is a closed-key parameter map. Values are float64, int, string,
// bool, or a nested map[string]any. The zero value is not usable; create
// stores with New.
type Store struct {
	pars map[string]any
}

// New creates a store seeded from initial. This is the only point where
// new keys may be introduced.
func New(initial map[string]any) *Store {
	s := &Store{pars: make(map[string]any, len(initial))}
	for k, v := range initial {
		s.pars[k] = v
	}
	return s
}

// Keys returns the parameter names in sorted order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.pars))
	for k := range s.pars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key exists in the store.
func (s *Store) Has(key string) bool {
	_, ok := s.pars[key]
	return ok
}

// Get returns the value for key.
func (s *Store) Get(key string) (any, error) {
	v, ok := s.pars[key]
	if !ok {
		return nil, s.unknown(key)
	}
	return v, nil
}

// Float returns the value for key coerced to float64. Integer values are
// widened; anything else is a type error, not an unknown-key error.
func (s *Store) Float(key string) (float64, error) {
	v, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("parameter %q is %T, not numeric", key, v)
	}
	return f, nil
}

// Int returns the value for key as an int. Integer-typed values are
// returned exactly, without a float64 round trip, so values beyond 2^53
// (e.g. large seeds) are preserved. Float values must be integral.
func (s *Store) Int(key string) (int, error) {
	v, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("parameter %q is %T, not numeric", key, v)
	}
	n := int(f)
	if float64(n) != f {
		return 0, fmt.Errorf("parameter %q is %v, not an integer", key, f)
	}
	return n, nil
}

// String returns the value for key as a string.
func (s *Store) String(key string) (string, error) {
	v, err := s.Get(key)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q is %T, not a string", key, v)
	}
	return str, nil
}

// Set updates an existing key. Unknown keys fail and leave the store
// unchanged.
func (s *Store) Set(key string, value any) error {
	if _, ok := s.pars[key]; !ok {
		return s.unknown(key)
	}
	s.pars[key] = value
	return nil
}

// Update applies every entry of m. With create false, every key is
// validated before any mutation, so a failed update leaves the store
// untouched. create true is reserved for seeding additional keys at
// construction time.
func (s *Store) Update(m map[string]any, create bool) error {
	if !create {
		for k := range m {
			if _, ok := s.pars[k]; !ok {
				return s.unknown(k)
			}
		}
	}
	for k, v := range m {
		s.pars[k] = v
	}
	return nil
}

// Scale multiplies a numeric parameter by factor, preserving int-ness for
// integer parameters.
func (s *Store) Scale(key string, factor float64) error {
	v, err := s.Get(key)
	if err != nil {
		return err
	}
	switch old := v.(type) {
	case int:
		s.pars[key] = int(float64(old) * factor)
	case int64:
		s.pars[key] = int64(float64(old) * factor)
	default:
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("parameter %q is %T, not numeric", key, v)
		}
		s.pars[key] = f * factor
	}
	return nil
}

// Clone returns an independent deep copy of the store. Nested maps are
// copied; scalar values are immutable.
func (s *Store) Clone() *Store {
	return &Store{pars: cloneMap(s.pars)}
}

// Map returns a deep copy of the parameters as a plain map, for
// serialization by persistence and export consumers.
func (s *Store) Map() map[string]any {
	return cloneMap(s.pars)
}

// Len returns the number of parameters.
func (s *Store) Len() int { return len(s.pars) }

func (s *Store) unknown(key string) *UnknownParameterError {
	valid := s.Keys()
	return &UnknownParameterError{
		Key:        key,
		Suggestion: suggest(key, valid),
		Valid:      valid,
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
		} else {
			out[k] = v
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	}
	return 0, false
}
