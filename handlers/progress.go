package handlers

import (
	"sync"
	"time"

	"github.com/AmeerHamza111/MONAI/engine"
)

// EpochStat is one finished epoch of one phase.
type EpochStat struct {
	Phase    string
	Epoch    int
	Loss     float64
	Metrics  map[string]float64
	Duration time.Duration
}

// StatsSink receives epoch stats as they are produced. *rundb.DB is the
// persistent implementation.
type StatsSink interface {
	RecordEpoch(stat EpochStat) error
}

// ProgressRecorder keeps an in-memory series of epoch stats and
// forwards each one to an optional sink. EpochSource, when set, names
// the engine whose epoch counter labels the rows; evaluators run with
// their own counter reset to one, so their recorder points at the
// trainer.
type ProgressRecorder struct {
	Phase       string
	Sink        StatsSink
	EpochSource *engine.Engine

	mu     sync.Mutex
	series []EpochStat
}

func NewProgressRecorder(phase string, sink StatsSink) *ProgressRecorder {
	return &ProgressRecorder{Phase: phase, Sink: sink}
}

func (r *ProgressRecorder) Attach(e *engine.Engine) {
	e.AddEventHandler(engine.EpochCompleted, r.record)
}

func (r *ProgressRecorder) record(e *engine.Engine) error {
	epoch := e.State.Epoch
	if r.EpochSource != nil {
		epoch = r.EpochSource.State.Epoch
	}
	stat := EpochStat{
		Phase:    r.Phase,
		Epoch:    epoch,
		Loss:     e.State.EpochLoss,
		Metrics:  make(map[string]float64, len(e.State.Metrics)),
		Duration: e.State.EpochDuration,
	}
	for name, v := range e.State.Metrics {
		stat.Metrics[name] = v
	}
	r.mu.Lock()
	r.series = append(r.series, stat)
	r.mu.Unlock()
	if r.Sink != nil {
		return r.Sink.RecordEpoch(stat)
	}
	return nil
}

// Series returns a copy of everything recorded so far.
func (r *ProgressRecorder) Series() []EpochStat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EpochStat(nil), r.series...)
}
