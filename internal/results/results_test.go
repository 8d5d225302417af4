package results

import (
	"errors"
	"math"
	"testing"
)

func TestNewZeroFilled(t *testing.T) {
	s := New("new_infections", 11)
	if s.Npts() != 11 {
		t.Fatalf("expected 11 points, got %d", s.Npts())
	}
	for i, v := range s.Values {
		if v != 0 {
			t.Errorf("point %d not zero: %v", i, v)
		}
	}
	if !s.Scale {
		t.Error("expected Scale true by default")
	}
}

func TestFromValuesCopies(t *testing.T) {
	src := []float64{1, 2, 3}
	s := FromValues("x", src)
	src[0] = 99
	if s.Values[0] != 1 {
		t.Error("FromValues aliased the input slice")
	}
}

func TestAdd(t *testing.T) {
	a := FromValues("new_infections", []float64{1, 2, 3})
	b := FromValues("new_infections", []float64{10, 20, 30})
	if err := a.Add(b); err != nil {
		t.Fatalf("Add: %v", err)
	}
	want := []float64{11, 22, 33}
	for i, v := range a.Values {
		if v != want[i] {
			t.Errorf("point %d = %v, want %v", i, v, want[i])
		}
	}
}

func TestAddMismatchedLength(t *testing.T) {
	a := New("x", 3)
	b := New("x", 4)
	err := a.Add(b)
	var lengthErr *LengthError
	if !errors.As(err, &lengthErr) {
		t.Fatalf("expected LengthError, got %v", err)
	}
	if lengthErr.Got != 4 || lengthErr.Expected != 3 {
		t.Errorf("unexpected LengthError fields: %+v", lengthErr)
	}
}

func TestAddMismatchedName(t *testing.T) {
	a := New("x", 3)
	b := New("y", 3)
	if err := a.Add(b); err == nil {
		t.Error("expected error merging differently named series")
	}
}

func TestSumAndPeak(t *testing.T) {
	s := FromValues("x", []float64{0, 5, 12, 12, 3})
	if got := s.Sum(); got != 32 {
		t.Errorf("Sum = %v, want 32", got)
	}
	day, value := s.Peak()
	if day != 2 || value != 12 {
		t.Errorf("Peak = (%d, %v), want (2, 12)", day, value)
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		name   string
		series *Series
		want   bool
	}{
		{"ok", FromValues("x", []float64{0, 1, 2}), true},
		{"negative", FromValues("x", []float64{0, -1}), false},
		{"nan", FromValues("x", []float64{math.NaN()}), false},
		{"inf", FromValues("x", []float64{math.Inf(1)}), false},
		{"fraction over 1", FromValues("x", []float64{1.5}, AsPercentage()), false},
		{"fraction ok", FromValues("x", []float64{0.5}, AsPercentage()), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.series.Valid(); got != tc.want {
				t.Errorf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCloneIndependent(t *testing.T) {
	a := FromValues("x", []float64{1, 2})
	b := a.Clone()
	b.Values[0] = 42
	if a.Values[0] != 1 {
		t.Error("clone shares storage with original")
	}
}

func TestSnapshotCopies(t *testing.T) {
	series := map[string]*Series{"x": FromValues("x", []float64{1, 2})}
	snap := Snapshot(series)
	snap["x"][0] = 99
	if series["x"].Values[0] != 1 {
		t.Error("snapshot aliased the series storage")
	}
}
