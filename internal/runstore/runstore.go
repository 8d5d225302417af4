// Package runstore persists completed simulation runs to SQLite so
// calibration and reporting tools can query past trajectories without
// re-running the model.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/episim/internal/engine"
)

// RunInfo describes one persisted run.
type RunInfo struct {
	ID        int64     `json:"id"`
	Label     string    `json:"label"`
	Seed      int       `json:"seed"`
	N         int       `json:"n"`
	NDays     int       `json:"n_days"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists completed runs in a SQLite database.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// Open creates a run store rooted at dir, creating the directory and the
// database episim.db as needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	dbPath := filepath.Join(dir, "episim.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with a single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveRun persists a completed simulation under the given label and
// returns the run's identifier.
func (s *Store) SaveRun(ctx context.Context, sim *engine.Sim, label string) (int64, error) {
	snapshot, err := sim.ResultSnapshot()
	if err != nil {
		return 0, err
	}
	summary, err := sim.SummaryStats()
	if err != nil {
		return 0, err
	}
	seed, err := sim.Pars().Int("seed")
	if err != nil {
		return 0, err
	}
	nDays, err := sim.Pars().Int("n_days")
	if err != nil {
		return 0, err
	}
	parsJSON, err := json.Marshal(sim.Pars().Map())
	if err != nil {
		return 0, fmt.Errorf("marshal parameters: %w", err)
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return 0, fmt.Errorf("marshal summary: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (label, seed, n, n_days, pars, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		label, seed, sim.N(), nDays, string(parsJSON), string(summaryJSON),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO series (run_id, name, day, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare series insert: %w", err)
	}
	defer stmt.Close()

	for name, values := range snapshot {
		for day, value := range values {
			if _, err := stmt.ExecContext(ctx, runID, name, day, value); err != nil {
				return 0, fmt.Errorf("insert series %s day %d: %w", name, day, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit run: %w", err)
	}
	return runID, nil
}

// GetSeries loads the persisted series of a run keyed by name, each
// ordered by day.
func (s *Store) GetSeries(ctx context.Context, runID int64) (map[string][]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, day, value FROM series WHERE run_id = ? ORDER BY name, day`, runID)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float64)
	for rows.Next() {
		var name string
		var day int
		var value float64
		if err := rows.Scan(&name, &day, &value); err != nil {
			return nil, fmt.Errorf("scan series row: %w", err)
		}
		if day != len(out[name]) {
			return nil, fmt.Errorf("series %q has a gap at day %d", name, day)
		}
		out[name] = append(out[name], value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("run %d not found", runID)
	}
	return out, nil
}

// GetRun loads run metadata.
func (s *Store) GetRun(ctx context.Context, runID int64) (*RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var info RunInfo
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, label, seed, n, n_days, created_at FROM runs WHERE id = ?`, runID).
		Scan(&info.ID, &info.Label, &info.Seed, &info.N, &info.NDays, &created)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %d not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	info.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &info, nil
}

// ListRuns returns all persisted runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, seed, n, n_days, created_at FROM runs ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var info RunInfo
		var created string
		if err := rows.Scan(&info.ID, &info.Label, &info.Seed, &info.N, &info.NDays, &created); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		info.CreatedAt, _ = time.Parse(time.RFC3339, created)
		runs = append(runs, info)
	}
	return runs, rows.Err()
}
