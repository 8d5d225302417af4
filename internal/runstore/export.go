package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/nvandessel/episim/internal/engine"
)

// RunDocument is the day-indexed JSON view of a completed run consumed by
// plotting and spreadsheet tooling.
type RunDocument struct {
	TimeseriesKeys []string             `json:"timeseries_keys"`
	Tvec           []int                `json:"tvec"`
	Series         map[string][]float64 `json:"series"`
	Summary        map[string]float64   `json:"summary,omitempty"`
	Pars           map[string]any       `json:"pars,omitempty"`
}

// MarshalRun renders a completed simulation as an indented JSON document.
func MarshalRun(sim *engine.Sim) ([]byte, error) {
	snapshot, err := sim.ResultSnapshot()
	if err != nil {
		return nil, err
	}
	summary, err := sim.SummaryStats()
	if err != nil {
		return nil, err
	}
	tvec, err := sim.Tvec()
	if err != nil {
		return nil, err
	}
	doc := RunDocument{
		TimeseriesKeys: sim.ResultKeys(),
		Tvec:           tvec,
		Series:         snapshot,
		Summary:        summary,
		Pars:           sim.Pars().Map(),
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ExportJSON renders a persisted run as an indented JSON document.
func (s *Store) ExportJSON(ctx context.Context, runID int64) ([]byte, error) {
	info, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	series, err := s.GetSeries(ctx, runID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(series))
	for name := range series {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	tvec := make([]int, info.NDays+1)
	for i := range tvec {
		tvec[i] = i
	}
	for name, values := range series {
		if len(values) != len(tvec) {
			return nil, fmt.Errorf("series %q has %d points, expected %d", name, len(values), len(tvec))
		}
	}
	doc := RunDocument{
		TimeseriesKeys: keys,
		Tvec:           tvec,
		Series:         series,
	}
	return json.MarshalIndent(doc, "", "  ")
}
