package handlers

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/AmeerHamza111/MONAI/engine"
	"github.com/AmeerHamza111/MONAI/nn"
	"github.com/AmeerHamza111/MONAI/optim"
	"github.com/AmeerHamza111/MONAI/utils"
)

// Checkpoint captures everything needed to resume training: the named
// network tensors (parameters and buffers), the optimizer slots and the
// epoch the state belongs to.
type Checkpoint struct {
	Epoch     int
	Tensors   map[string][]float64
	Shapes    map[string][]int
	Optimizer optim.Snapshot
	Metric    float64
	SavedAt   time.Time
}

// CaptureCheckpoint copies the current network and optimizer state.
func CaptureCheckpoint(net nn.Layer, opt optim.Optimizer, epoch int) *Checkpoint {
	ck := &Checkpoint{
		Epoch:   epoch,
		Tensors: map[string][]float64{},
		Shapes:  map[string][]int{},
		Metric:  math.NaN(),
		SavedAt: time.Now(),
	}
	for _, p := range nn.StateTensors(net) {
		ck.Tensors[p.Name] = append([]float64(nil), p.Value.Data...)
		ck.Shapes[p.Name] = append([]int(nil), p.Value.Shape...)
	}
	if opt != nil {
		ck.Optimizer = opt.Snapshot()
	}
	return ck
}

// WriteCheckpoint writes ck as a gob stream compressed with gzip. The
// file is written to a temp name first so readers never see a partial
// checkpoint.
func WriteCheckpoint(path string, ck *Checkpoint) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	gz := gzip.NewWriter(f)
	if err := gob.NewEncoder(gz).Encode(ck); err != nil {
		gz.Close()
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := gz.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ReadCheckpoint decodes a checkpoint written by WriteCheckpoint.
func ReadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s is not gzip: %w", filepath.Base(path), err)
	}
	defer gz.Close()
	var ck Checkpoint
	if err := gob.NewDecoder(gz).Decode(&ck); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", filepath.Base(path), err)
	}
	return &ck, nil
}

// Apply copies the checkpoint tensors into the network and restores the
// optimizer slots. Every tensor is shape-checked first so a checkpoint
// from a differently configured network is rejected before any write.
func (ck *Checkpoint) Apply(net nn.Layer, opt optim.Optimizer) error {
	state := nn.StateTensors(net)
	for _, p := range state {
		data, ok := ck.Tensors[p.Name]
		if !ok {
			return fmt.Errorf("checkpoint is missing tensor %q", p.Name)
		}
		if len(data) != len(p.Value.Data) {
			return fmt.Errorf("tensor %q has %d values, network expects %d",
				p.Name, len(data), len(p.Value.Data))
		}
		if shape, ok := ck.Shapes[p.Name]; ok && !equalShape(shape, p.Value.Shape) {
			return fmt.Errorf("tensor %q shape %v does not match network shape %v",
				p.Name, shape, p.Value.Shape)
		}
	}
	if len(ck.Tensors) != len(state) {
		return fmt.Errorf("checkpoint holds %d tensors, network has %d", len(ck.Tensors), len(state))
	}
	for _, p := range state {
		copy(p.Value.Data, ck.Tensors[p.Name])
	}
	if opt != nil && ck.Optimizer.Kind != "" {
		if err := opt.Restore(ck.Optimizer); err != nil {
			return fmt.Errorf("restore optimizer: %w", err)
		}
	}
	return nil
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CheckpointSaver writes net_checkpoint_<epoch> files after each epoch
// and prunes old ones down to KeepLast. When BestMetric names a key in
// the engine metrics, epochs that improve it are additionally copied to
// <prefix>_checkpoint_best.
type CheckpointSaver struct {
	Dir        string
	Prefix     string
	KeepLast   int
	SaveEvery  int
	BestMetric string

	// Timing, when set, accumulates the wall time spent writing.
	Timing *utils.TimingStats

	net   nn.Layer
	opt   optim.Optimizer
	saved []string
	best  float64
	seen  bool
}

func NewCheckpointSaver(dir string, net nn.Layer, opt optim.Optimizer) *CheckpointSaver {
	return &CheckpointSaver{
		Dir:       dir,
		Prefix:    "net",
		KeepLast:  10,
		SaveEvery: 1,
		net:       net,
		opt:       opt,
	}
}

func (s *CheckpointSaver) Attach(e *engine.Engine) {
	e.AddEventHandler(engine.EpochCompleted, s.save)
}

// Path returns the file a given epoch's checkpoint is written to.
func (s *CheckpointSaver) Path(epoch int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_checkpoint_%d.ckpt.gz", s.Prefix, epoch))
}

// BestPath returns the file the best-metric checkpoint is written to.
func (s *CheckpointSaver) BestPath() string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_checkpoint_best.ckpt.gz", s.Prefix))
}

func (s *CheckpointSaver) save(e *engine.Engine) error {
	every := s.SaveEvery
	if every <= 0 {
		every = 1
	}
	if e.State.Epoch%every != 0 {
		return nil
	}
	start := time.Now()
	defer func() {
		if s.Timing != nil {
			s.Timing.CheckpointIOTime += time.Since(start)
		}
	}()
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint dir: %w", err)
	}
	ck := CaptureCheckpoint(s.net, s.opt, e.State.Epoch)
	metric, hasMetric := e.State.Metrics[s.BestMetric]
	if hasMetric {
		ck.Metric = metric
	}
	path := s.Path(e.State.Epoch)
	if err := WriteCheckpoint(path, ck); err != nil {
		return err
	}
	s.saved = append(s.saved, path)
	for s.KeepLast > 0 && len(s.saved) > s.KeepLast {
		if err := os.Remove(s.saved[0]); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("prune checkpoint: %w", err)
		}
		s.saved = s.saved[1:]
	}
	if s.BestMetric != "" && hasMetric && (!s.seen || metric > s.best) {
		s.best, s.seen = metric, true
		if err := WriteCheckpoint(s.BestPath(), ck); err != nil {
			return err
		}
	}
	return nil
}

// CheckpointLoader restores a checkpoint into the network and optimizer
// when the run starts and rewinds the engine epoch so Run continues
// from where the checkpoint left off.
type CheckpointLoader struct {
	Path string
	Net  nn.Layer
	Opt  optim.Optimizer
}

func (l *CheckpointLoader) Attach(e *engine.Engine) {
	e.AddEventHandler(engine.Started, l.load)
}

func (l *CheckpointLoader) load(e *engine.Engine) error {
	ck, err := ReadCheckpoint(l.Path)
	if err != nil {
		return err
	}
	if err := ck.Apply(l.Net, l.Opt); err != nil {
		return err
	}
	e.State.Epoch = ck.Epoch
	return nil
}
