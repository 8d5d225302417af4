package runstore_test

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/nvandessel/episim/internal/engine"
	"github.com/nvandessel/episim/internal/model"
	"github.com/nvandessel/episim/internal/runstore"
)

// newCompletedSim runs a small simulation to completion.
func newCompletedSim(t *testing.T, seed int) *engine.Sim {
	t.Helper()
	pars := model.Defaults()
	pars["n"] = 100
	pars["n_days"] = 10
	pars["seed"] = seed
	sim, err := engine.New(model.New(), pars)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sim.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return sim
}

func newTestStore(t *testing.T) *runstore.Store {
	t.Helper()
	s, err := runstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sim := newCompletedSim(t, 7)

	runID, err := store.SaveRun(ctx, sim, "baseline")
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	loaded, err := store.GetSeries(ctx, runID)
	if err != nil {
		t.Fatalf("GetSeries: %v", err)
	}
	snapshot, err := sim.ResultSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(loaded, snapshot) {
		t.Error("persisted series differ from the run's results")
	}

	info, err := store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if info.Label != "baseline" || info.Seed != 7 || info.N != 100 || info.NDays != 10 {
		t.Errorf("run metadata: %+v", info)
	}
}

func TestSaveRequiresCompletedRun(t *testing.T) {
	store := newTestStore(t)
	sim, err := engine.New(model.New(), model.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.SaveRun(context.Background(), sim, "unrun"); err == nil {
		t.Error("expected error saving an unrun simulation")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.SaveRun(ctx, newCompletedSim(t, 1), "first")
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.SaveRun(ctx, newCompletedSim(t, 2), "second")
	if err != nil {
		t.Fatal(err)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second || runs[1].ID != first {
		t.Errorf("runs not newest-first: %d, %d", runs[0].ID, runs[1].ID)
	}
}

func TestGetMissingRun(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetRun(context.Background(), 999); err == nil {
		t.Error("expected error for missing run")
	}
	if _, err := store.GetSeries(context.Background(), 999); err == nil {
		t.Error("expected error for missing series")
	}
}

func TestMarshalRunDocument(t *testing.T) {
	sim := newCompletedSim(t, 3)

	data, err := runstore.MarshalRun(sim)
	if err != nil {
		t.Fatalf("MarshalRun: %v", err)
	}
	var doc runstore.RunDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal document: %v", err)
	}
	if len(doc.Tvec) != 11 {
		t.Errorf("tvec length = %d, want 11", len(doc.Tvec))
	}
	if len(doc.TimeseriesKeys) == 0 {
		t.Error("no timeseries keys")
	}
	for _, key := range doc.TimeseriesKeys {
		values, ok := doc.Series[key]
		if !ok {
			t.Errorf("missing series %q", key)
			continue
		}
		if len(values) != 11 {
			t.Errorf("series %q has %d points, want 11", key, len(values))
		}
	}
	if doc.Summary["cum_infections"] < 1 {
		t.Errorf("summary missing cum_infections: %v", doc.Summary)
	}
}

func TestExportJSONFromStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sim := newCompletedSim(t, 5)

	runID, err := store.SaveRun(ctx, sim, "export-me")
	if err != nil {
		t.Fatal(err)
	}
	data, err := store.ExportJSON(ctx, runID)
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	var doc runstore.RunDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	snapshot, _ := sim.ResultSnapshot()
	if !reflect.DeepEqual(doc.Series, snapshot) {
		t.Error("exported series differ from the run's results")
	}
}
