// Package rundb persists training runs, per-epoch stats and checkpoint
// records in sqlite, giving reports and the monitor a durable view of
// progress.
package rundb

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/AmeerHamza111/MONAI/handlers"
)

// MetricKey is the metric column epoch rows persist.
const MetricKey = "Mean_Dice"

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
)

type DB struct {
	*sql.DB
}

// Open opens (or creates) the run database at path and ensures the
// schema exists. Use ":memory:" for throwaway databases.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			config TEXT,
			status TEXT,
			best_metric DOUBLE,
			best_epoch INTEGER
		);
		CREATE TABLE IF NOT EXISTS epoch_stats (
			run_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			epoch INTEGER NOT NULL,
			loss DOUBLE,
			mean_dice DOUBLE,
			duration_ms INTEGER,
			PRIMARY KEY (run_id, phase, epoch),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);
		CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT NOT NULL,
			epoch INTEGER NOT NULL,
			path TEXT,
			metric DOUBLE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, epoch),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &DB{db}, nil
}

// OpenBare opens the database without touching the schema, for flows
// where migrations manage it.
func OpenBare(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

// Run is one row of the runs table.
type Run struct {
	ID         string
	CreatedAt  time.Time
	Config     string
	Status     string
	BestMetric sql.NullFloat64
	BestEpoch  sql.NullInt64
}

// CreateRun inserts a new running run with the given config JSON and
// returns its generated id.
func (db *DB) CreateRun(configJSON string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		"INSERT INTO runs (run_id, config, status) VALUES (?, ?, ?)",
		id, configJSON, StatusRunning)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// FinishRun marks a run's final status and best result.
func (db *DB) FinishRun(runID, status string, bestMetric float64, bestEpoch int) error {
	res, err := db.Exec(
		"UPDATE runs SET status = ?, best_metric = ?, best_epoch = ? WHERE run_id = ?",
		status, bestMetric, bestEpoch, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("finish run: no run %s", runID)
	}
	return err
}

// Runs lists all runs, newest first.
func (db *DB) Runs() ([]Run, error) {
	rows, err := db.Query(`
		SELECT run_id, created_at, config, status, best_metric, best_epoch
		FROM runs ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Config, &r.Status, &r.BestMetric, &r.BestEpoch); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun fetches one run by id.
func (db *DB) GetRun(runID string) (*Run, error) {
	var r Run
	err := db.QueryRow(`
		SELECT run_id, created_at, config, status, best_metric, best_epoch
		FROM runs WHERE run_id = ?`, runID).
		Scan(&r.ID, &r.CreatedAt, &r.Config, &r.Status, &r.BestMetric, &r.BestEpoch)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// EpochRow is one row of the epoch_stats table.
type EpochRow struct {
	RunID      string
	Phase      string
	Epoch      int
	Loss       float64
	MeanDice   sql.NullFloat64
	DurationMS int64
}

// InsertEpochStat upserts a row; reruns of an epoch overwrite the
// previous record.
func (db *DB) InsertEpochStat(row EpochRow) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO epoch_stats (run_id, phase, epoch, loss, mean_dice, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		row.RunID, row.Phase, row.Epoch, row.Loss, row.MeanDice, row.DurationMS)
	if err != nil {
		return fmt.Errorf("insert epoch stat: %w", err)
	}
	return nil
}

// EpochStats returns a run's rows ordered by phase then epoch.
func (db *DB) EpochStats(runID string) ([]EpochRow, error) {
	rows, err := db.Query(`
		SELECT run_id, phase, epoch, loss, mean_dice, duration_ms
		FROM epoch_stats WHERE run_id = ? ORDER BY phase, epoch`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EpochRow
	for rows.Next() {
		var r EpochRow
		if err := rows.Scan(&r.RunID, &r.Phase, &r.Epoch, &r.Loss, &r.MeanDice, &r.DurationMS); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CheckpointRow is one row of the checkpoints table.
type CheckpointRow struct {
	RunID     string
	Epoch     int
	Path      string
	Metric    sql.NullFloat64
	CreatedAt time.Time
}

// InsertCheckpoint records where an epoch's checkpoint was written.
func (db *DB) InsertCheckpoint(row CheckpointRow) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO checkpoints (run_id, epoch, path, metric)
		VALUES (?, ?, ?, ?)`,
		row.RunID, row.Epoch, row.Path, row.Metric)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// Checkpoints lists a run's checkpoint records by epoch.
func (db *DB) Checkpoints(runID string) ([]CheckpointRow, error) {
	rows, err := db.Query(`
		SELECT run_id, epoch, path, metric, created_at
		FROM checkpoints WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CheckpointRow
	for rows.Next() {
		var r CheckpointRow
		if err := rows.Scan(&r.RunID, &r.Epoch, &r.Path, &r.Metric, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// BestCheckpoint returns the checkpoint with the highest recorded
// metric for a run, or sql.ErrNoRows when no checkpoint carries one.
func (db *DB) BestCheckpoint(runID string) (*CheckpointRow, error) {
	var r CheckpointRow
	err := db.QueryRow(`
		SELECT run_id, epoch, path, metric, created_at
		FROM checkpoints WHERE run_id = ? AND metric IS NOT NULL
		ORDER BY metric DESC, epoch DESC LIMIT 1`, runID).
		Scan(&r.RunID, &r.Epoch, &r.Path, &r.Metric, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RunSink adapts the database to the handlers.StatsSink interface for
// one run.
type RunSink struct {
	db    *DB
	runID string
}

func (db *DB) Sink(runID string) *RunSink {
	return &RunSink{db: db, runID: runID}
}

func (s *RunSink) RecordEpoch(stat handlers.EpochStat) error {
	row := EpochRow{
		RunID:      s.runID,
		Phase:      stat.Phase,
		Epoch:      stat.Epoch,
		Loss:       stat.Loss,
		DurationMS: stat.Duration.Milliseconds(),
	}
	if v, ok := stat.Metrics[MetricKey]; ok {
		row.MeanDice = sql.NullFloat64{Float64: v, Valid: true}
	}
	return s.db.InsertEpochStat(row)
}

// AttachAdminRoutes mounts a tailsql console for live queries against
// the run database under the mux's debug prefix.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://runs.db", db.DB, &tailsql.DBOptions{
		Label: "Run DB",
	})
	debug.Handle("tailsql/", "SQL console over the run database", tsql.NewMux())
	return nil
}
