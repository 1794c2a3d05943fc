// backward.go - Gradienten des Kontextmodells
// Enthaelt: Gradients, Backward, Parameters
package contextmodel

import (
	"context"

	"github.com/ollama/aegan/ml"
)

// LayerGradient haelt dW [27][In][Out] und dB [Out] einer Schicht
type LayerGradient struct {
	Weight []float32
	Bias   []float32
}

func newLayerGradient(l *MaskedConv3D) LayerGradient {
	return LayerGradient{
		Weight: make([]float32, len(l.Weight)),
		Bias:   make([]float32, len(l.Bias)),
	}
}

func (g LayerGradient) add(o LayerGradient) {
	for i, v := range o.Weight {
		g.Weight[i] += v
	}
	for i, v := range o.Bias {
		g.Bias[i] += v
	}
}

// Gradients enthaelt die Gradienten aller vier Schichten
type Gradients struct {
	Conv1, Conv2, Conv3, Conv4 LayerGradient
}

// Layers gibt die Gradienten in Schicht-Reihenfolge zurueck
func (g *Gradients) Layers() []LayerGradient {
	return []LayerGradient{g.Conv1, g.Conv2, g.Conv3, g.Conv4}
}

func (m *Model) newGradients() *Gradients {
	return &Gradients{
		Conv1: newLayerGradient(m.Conv1),
		Conv2: newLayerGradient(m.Conv2),
		Conv3: newLayerGradient(m.Conv3),
		Conv4: newLayerGradient(m.Conv4),
	}
}

// Backward berechnet die Gewichts-Gradienten aus dL/dP.
// Gradienten ausgeschlossener Taps bleiben null.
func (m *Model) Backward(ctx context.Context, out *Output, gradP *ml.Tensor) (*Gradients, error) {
	if err := ml.SameShape("context model backward", out.P, gradP); err != nil {
		return nil, err
	}

	vol, n := out.vol, out.vol.positions()
	hidden, symbols := m.cfg.Hidden, m.cfg.Symbols
	p, gp := out.P.Data(), gradP.Data()

	perItem := make([]*Gradients, out.batch)
	err := m.parallel(ctx, out.batch, func(i int) {
		g := m.newGradients()
		perItem[i] = g

		hs, ss := i*n*hidden, i*n*symbols
		x := out.input[i*n : (i+1)*n]
		a1 := out.a1[hs : hs+n*hidden]
		a2 := out.a2[hs : hs+n*hidden]
		a3 := out.a3[hs : hs+n*hidden]
		a4 := out.a4[ss : ss+n*symbols]

		// Softmax und ReLU der letzten Schicht
		d4 := make([]float32, n*symbols)
		for r := 0; r < n*symbols; r += symbols {
			pr, gr := p[ss+r:ss+r+symbols], gp[ss+r:ss+r+symbols]
			var dot float32
			for j := range pr {
				dot += pr[j] * gr[j]
			}
			for j := range pr {
				if a4[r+j] > 0 {
					d4[r+j] = pr[j] * (gr[j] - dot)
				}
			}
		}

		skip := make([]float32, n*hidden)
		for j := range skip {
			skip[j] = a3[j] + a1[j]
		}
		dSkip := make([]float32, n*hidden)
		m.Conv4.backward(vol, skip, d4, g.Conv4.Weight, g.Conv4.Bias, dSkip)

		dA2 := make([]float32, n*hidden)
		m.Conv3.backward(vol, a2, dSkip, g.Conv3.Weight, g.Conv3.Bias, dA2)
		reluBackward(a2, dA2)

		// Skip-Verbindung: dA1 startet mit dSkip
		dA1 := dSkip
		m.Conv2.backward(vol, a1, dA2, g.Conv2.Weight, g.Conv2.Bias, dA1)
		reluBackward(a1, dA1)

		m.Conv1.backward(vol, x, dA1, g.Conv1.Weight, g.Conv1.Bias, nil)
	})
	if err != nil {
		return nil, err
	}

	total := m.newGradients()
	for _, g := range perItem {
		total.Conv1.add(g.Conv1)
		total.Conv2.add(g.Conv2)
		total.Conv3.add(g.Conv3)
		total.Conv4.add(g.Conv4)
	}
	return total, nil
}

func reluBackward(activation, grad []float32) {
	for i, v := range activation {
		if v <= 0 {
			grad[i] = 0
		}
	}
}

// Parameter ist eine benannte, live Sicht auf Gewichte fuer einen externen Optimierer
type Parameter struct {
	Name  string
	Value []float32
}

// Parameters gibt alle Gewichte und Biases zurueck. Eintraege ausgeschlossener
// Taps werden vom Forward-Pass nie gelesen, unabhaengig von ihrem Wert.
func (m *Model) Parameters() []Parameter {
	var params []Parameter
	for _, l := range m.Layers() {
		params = append(params,
			Parameter{Name: l.Name + ".weight", Value: l.Weight},
			Parameter{Name: l.Name + ".bias", Value: l.Bias},
		)
	}
	return params
}
