// optim.go - Adam-Optimierer ueber benannte float32-Parameter
package pipeline

import (
	"fmt"
	"math"

	"github.com/ollama/aegan/ml"
)

// Param ist eine live Sicht auf Gewichte zusammen mit ihrem Gradienten
type Param struct {
	Name  string
	Value []float32
	Grad  []float32
}

// mergeParams summiert Gradienten gleichnamiger Parameter, z.B. aus dem
// echten und dem rekonstruierten Batch des Diskriminators
func mergeParams(lists ...[]Param) []Param {
	var out []Param
	seen := map[string]int{}
	for _, list := range lists {
		for _, p := range list {
			i, ok := seen[p.Name]
			if !ok {
				seen[p.Name] = len(out)
				out = append(out, Param{Name: p.Name, Value: p.Value, Grad: append([]float32(nil), p.Grad...)})
				continue
			}
			for j, g := range p.Grad {
				out[i].Grad[j] += g
			}
		}
	}
	return out
}

type adamState struct {
	m, v []float64
	t    int
}

// Adam haelt die Momente pro Parametername
type Adam struct {
	Beta1   float64
	Beta2   float64
	Epsilon float64

	state map[string]*adamState
}

// NewAdam nutzt die ueblichen Defaults 0.9, 0.999, 1e-8
func NewAdam() *Adam {
	return &Adam{Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8, state: map[string]*adamState{}}
}

// Update wendet einen Adam-Schritt mit Lernrate lr auf alle Parameter an
func (a *Adam) Update(params []Param, lr float64) error {
	if lr < 0 || math.IsNaN(lr) || math.IsInf(lr, 0) {
		return fmt.Errorf("%w: learning rate %v", ErrConfig, lr)
	}
	if a.state == nil {
		a.state = map[string]*adamState{}
	}

	// erst pruefen, damit ein Fehler keinen halben Schritt hinterlaesst
	for _, p := range params {
		if len(p.Grad) != len(p.Value) {
			return &ml.ShapeError{Op: "adam " + p.Name, Want: []int{len(p.Value)}, Got: []int{len(p.Grad)}}
		}
		for i, g := range p.Grad {
			if f := float64(g); math.IsNaN(f) || math.IsInf(f, 0) {
				return fmt.Errorf("adam %s[%d]: %w", p.Name, i, ml.ErrNonFinite)
			}
		}
	}

	for _, p := range params {
		s, ok := a.state[p.Name]
		if !ok || len(s.m) != len(p.Value) {
			s = &adamState{m: make([]float64, len(p.Value)), v: make([]float64, len(p.Value))}
			a.state[p.Name] = s
		}
		s.t++

		c1 := 1 - math.Pow(a.Beta1, float64(s.t))
		c2 := 1 - math.Pow(a.Beta2, float64(s.t))
		for i, g := range p.Grad {
			gf := float64(g)
			s.m[i] = a.Beta1*s.m[i] + (1-a.Beta1)*gf
			s.v[i] = a.Beta2*s.v[i] + (1-a.Beta2)*gf*gf
			p.Value[i] -= float32(lr * (s.m[i] / c1) / (math.Sqrt(s.v[i]/c2) + a.Epsilon))
		}
	}
	return nil
}
