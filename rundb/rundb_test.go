package rundb

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmeerHamza111/MONAI/handlers"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)

	id, err := db.CreateRun(`{"epochs":5}`)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := db.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, `{"epochs":5}`, run.Config)
	assert.False(t, run.BestMetric.Valid)

	require.NoError(t, db.FinishRun(id, StatusCompleted, 0.91, 4))
	run, err = db.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 0.91, run.BestMetric.Float64)
	assert.Equal(t, int64(4), run.BestEpoch.Int64)

	runs, err := db.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
}

func TestFinishRunUnknownID(t *testing.T) {
	db := openTestDB(t)
	err := db.FinishRun("no-such-run", StatusFailed, 0, 0)
	assert.Error(t, err)
}

func TestEpochStatsUpsert(t *testing.T) {
	db := openTestDB(t)
	id, err := db.CreateRun("{}")
	require.NoError(t, err)

	require.NoError(t, db.InsertEpochStat(EpochRow{
		RunID: id, Phase: "train", Epoch: 1, Loss: 0.8, DurationMS: 1200,
	}))
	require.NoError(t, db.InsertEpochStat(EpochRow{
		RunID: id, Phase: "val", Epoch: 1, Loss: 0.7,
		MeanDice: sql.NullFloat64{Float64: 0.55, Valid: true}, DurationMS: 300,
	}))
	// Rerunning the same epoch replaces the row instead of duplicating it.
	require.NoError(t, db.InsertEpochStat(EpochRow{
		RunID: id, Phase: "train", Epoch: 1, Loss: 0.75, DurationMS: 1100,
	}))

	stats, err := db.EpochStats(id)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "train", stats[0].Phase)
	assert.Equal(t, 0.75, stats[0].Loss)
	assert.Equal(t, "val", stats[1].Phase)
	assert.True(t, stats[1].MeanDice.Valid)
	assert.Equal(t, 0.55, stats[1].MeanDice.Float64)
}

func TestCheckpointRecords(t *testing.T) {
	db := openTestDB(t)
	id, err := db.CreateRun("{}")
	require.NoError(t, err)

	require.NoError(t, db.InsertCheckpoint(CheckpointRow{
		RunID: id, Epoch: 2, Path: "out/net_checkpoint_2.ckpt.gz",
		Metric: sql.NullFloat64{Float64: 0.4, Valid: true},
	}))
	require.NoError(t, db.InsertCheckpoint(CheckpointRow{
		RunID: id, Epoch: 1, Path: "out/net_checkpoint_1.ckpt.gz",
	}))

	cks, err := db.Checkpoints(id)
	require.NoError(t, err)
	require.Len(t, cks, 2)
	assert.Equal(t, 1, cks[0].Epoch)
	assert.Equal(t, 2, cks[1].Epoch)
	assert.Equal(t, "out/net_checkpoint_2.ckpt.gz", cks[1].Path)
}

func TestBestCheckpoint(t *testing.T) {
	db := openTestDB(t)
	id, err := db.CreateRun("{}")
	require.NoError(t, err)

	_, err = db.BestCheckpoint(id)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// Metric-less rows never win.
	require.NoError(t, db.InsertCheckpoint(CheckpointRow{RunID: id, Epoch: 1, Path: "a"}))
	_, err = db.BestCheckpoint(id)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, db.InsertCheckpoint(CheckpointRow{
		RunID: id, Epoch: 2, Path: "b", Metric: sql.NullFloat64{Float64: 0.6, Valid: true},
	}))
	require.NoError(t, db.InsertCheckpoint(CheckpointRow{
		RunID: id, Epoch: 3, Path: "c", Metric: sql.NullFloat64{Float64: 0.4, Valid: true},
	}))

	best, err := db.BestCheckpoint(id)
	require.NoError(t, err)
	assert.Equal(t, 2, best.Epoch)
	assert.Equal(t, "b", best.Path)
	assert.Equal(t, 0.6, best.Metric.Float64)
}

func TestSinkImplementsStatsSink(t *testing.T) {
	db := openTestDB(t)
	id, err := db.CreateRun("{}")
	require.NoError(t, err)

	var sink handlers.StatsSink = db.Sink(id)
	require.NoError(t, sink.RecordEpoch(handlers.EpochStat{
		Phase:    "val",
		Epoch:    3,
		Loss:     0.31,
		Metrics:  map[string]float64{MetricKey: 0.77, "Accuracy": 0.98},
		Duration: 1500 * time.Millisecond,
	}))
	require.NoError(t, sink.RecordEpoch(handlers.EpochStat{
		Phase: "train", Epoch: 3, Loss: 0.4,
	}))

	stats, err := db.EpochStats(id)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "train", stats[0].Phase)
	assert.False(t, stats[0].MeanDice.Valid)
	assert.Equal(t, "val", stats[1].Phase)
	assert.Equal(t, 0.77, stats[1].MeanDice.Float64)
	assert.Equal(t, int64(1500), stats[1].DurationMS)
}
