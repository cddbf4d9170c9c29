package optim

import (
	"fmt"
	"math"

	"github.com/AmeerHamza111/MONAI/nn"
)

// Optimizer applies accumulated gradients to parameters. Snapshot and
// Restore round-trip the internal state so a resumed run continues with
// the same momentum.
type Optimizer interface {
	Step(params []nn.Param) error
	Snapshot() Snapshot
	Restore(Snapshot) error
}

// Snapshot is a serializable dump of optimizer state. Slots maps a slot
// name (velocity, m, v) to per-parameter buffers keyed by the stable
// parameter names.
type Snapshot struct {
	Kind  string
	Step  int
	Slots map[string]map[string][]float64
}

// SGD is stochastic gradient descent with classical momentum.
type SGD struct {
	LR       float64
	Momentum float64

	velocity map[string][]float64
}

func NewSGD(lr, momentum float64) *SGD {
	return &SGD{LR: lr, Momentum: momentum, velocity: map[string][]float64{}}
}

func (s *SGD) Step(params []nn.Param) error {
	for _, p := range params {
		vel, err := slot(s.velocity, p)
		if err != nil {
			return err
		}
		for i := range p.Value.Data {
			vel[i] = s.Momentum*vel[i] + p.Grad.Data[i]
			p.Value.Data[i] -= s.LR * vel[i]
		}
	}
	return nil
}

func (s *SGD) Snapshot() Snapshot {
	return Snapshot{Kind: "sgd", Slots: map[string]map[string][]float64{
		"velocity": copySlot(s.velocity),
	}}
}

func (s *SGD) Restore(snap Snapshot) error {
	if snap.Kind != "sgd" {
		return fmt.Errorf("restore: snapshot is %q, optimizer is sgd", snap.Kind)
	}
	s.velocity = copySlot(snap.Slots["velocity"])
	return nil
}

// Adam is the bias-corrected Adam optimizer.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	step int
	m    map[string][]float64
	v    map[string][]float64
}

func NewAdam(lr float64) *Adam {
	return &Adam{
		LR:    lr,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-8,
		m:     map[string][]float64{},
		v:     map[string][]float64{},
	}
}

func (a *Adam) Step(params []nn.Param) error {
	a.step++
	c1 := 1 - math.Pow(a.Beta1, float64(a.step))
	c2 := 1 - math.Pow(a.Beta2, float64(a.step))
	for _, p := range params {
		m, err := slot(a.m, p)
		if err != nil {
			return err
		}
		v, err := slot(a.v, p)
		if err != nil {
			return err
		}
		for i := range p.Value.Data {
			g := p.Grad.Data[i]
			m[i] = a.Beta1*m[i] + (1-a.Beta1)*g
			v[i] = a.Beta2*v[i] + (1-a.Beta2)*g*g
			p.Value.Data[i] -= a.LR * (m[i] / c1) / (math.Sqrt(v[i]/c2) + a.Eps)
		}
	}
	return nil
}

func (a *Adam) Snapshot() Snapshot {
	return Snapshot{Kind: "adam", Step: a.step, Slots: map[string]map[string][]float64{
		"m": copySlot(a.m),
		"v": copySlot(a.v),
	}}
}

func (a *Adam) Restore(snap Snapshot) error {
	if snap.Kind != "adam" {
		return fmt.Errorf("restore: snapshot is %q, optimizer is adam", snap.Kind)
	}
	a.step = snap.Step
	a.m = copySlot(snap.Slots["m"])
	a.v = copySlot(snap.Slots["v"])
	return nil
}

// slot fetches the per-parameter buffer, creating it on first use. A
// restored buffer of the wrong length means the checkpoint belongs to a
// different network.
func slot(slots map[string][]float64, p nn.Param) ([]float64, error) {
	buf, ok := slots[p.Name]
	if !ok {
		buf = make([]float64, len(p.Value.Data))
		slots[p.Name] = buf
		return buf, nil
	}
	if len(buf) != len(p.Value.Data) {
		return nil, fmt.Errorf("optimizer state for %s has %d elements, param has %d",
			p.Name, len(buf), len(p.Value.Data))
	}
	return buf, nil
}

func copySlot(src map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(src))
	for k, v := range src {
		out[k] = append([]float64(nil), v...)
	}
	return out
}
