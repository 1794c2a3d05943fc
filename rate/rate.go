// rate.go - Differenzierbarer Bitraten-Proxy mit Hinge
// Enthaelt: Estimator, Result, Estimate, Backward
//
// Pro Element: bits = -log2(max(1e-9, P[pos, idx[pos]])) * m[pos].
// Pro Bild:    h = Summe ueber H, W, K.
// Verlust:     Summe ueber den Batch von max(0, beta * (h - t)).
package rate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ollama/aegan/ml"
)

const (
	// ProbabilityFloor verhindert log(0)
	ProbabilityFloor = 1e-9

	log2e = math.Log2E
)

// ErrConfig wird bei ungueltigen Estimator-Parametern zurueckgegeben
var ErrConfig = errors.New("invalid rate estimator configuration")

// Estimator turns the context model's distribution into a hinge rate loss.
// With Unmasked set, or with a nil mask, every element counts fully; this
// keeps the formulation used before the significance mask was folded in.
type Estimator struct {
	// TargetBits ist die Schwelle t_primo in Bits pro Bild
	TargetBits float64
	// Beta gewichtet den Anteil oberhalb der Schwelle
	Beta float64
	// Unmasked ignoriert die Signifikanz-Maske
	Unmasked bool
}

// Validate prueft die Parameter
func (e Estimator) Validate() error {
	if math.IsNaN(e.TargetBits) || math.IsInf(e.TargetBits, 0) {
		return fmt.Errorf("%w: target bits %v", ErrConfig, e.TargetBits)
	}
	if math.IsNaN(e.Beta) || math.IsInf(e.Beta, 0) || e.Beta < 0 {
		return fmt.Errorf("%w: beta %v", ErrConfig, e.Beta)
	}
	return nil
}

// Result ist das Ergebnis einer Schaetzung
type Result struct {
	// Loss ist die Hinge-Rate summiert ueber den Batch
	Loss float64
	// Bits ist die geschaetzte Bitzahl h pro Bild
	Bits []float64
	// Active markiert Bilder oberhalb der Schwelle
	Active []bool

	est  Estimator
	p    *ml.Tensor
	idx  *ml.Indices
	mask *ml.Tensor
}

// Estimate berechnet den Raten-Verlust. mask darf nil sein.
func (e Estimator) Estimate(p *ml.Tensor, idx *ml.Indices, mask *ml.Tensor) (*Result, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := ml.CheckShape("rate", p.Shape(), -1, -1, -1, -1, -1); err != nil {
		return nil, err
	}

	shape := p.Shape()
	symbols := shape[4]
	if err := ml.CheckShape("rate index", idx.Shape(), shape[:4]...); err != nil {
		return nil, err
	}
	if e.Unmasked {
		mask = nil
	}
	if mask != nil {
		if err := ml.CheckShape("rate mask", mask.Shape(), shape[:4]...); err != nil {
			return nil, err
		}
	}
	if err := ml.CheckFinite("rate", p); err != nil {
		return nil, err
	}

	batch := shape[0]
	per := idx.Len() / batch
	pd, id := p.Data(), idx.Data()

	res := &Result{
		Bits:   make([]float64, batch),
		Active: make([]bool, batch),
		est:    e,
		p:      p,
		idx:    idx,
		mask:   mask,
	}

	cost := make([]float64, per)
	for b := range batch {
		for j := range per {
			i := b*per + j
			c := id[i]
			if c < 0 || int(c) >= symbols {
				return nil, &ml.ShapeError{Op: "rate index", Want: []int{symbols}, Got: []int{int(c)}}
			}

			cost[j] = elementBits(pd[i*symbols+int(c)])
			if mask != nil {
				cost[j] *= float64(mask.Data()[i])
			}
		}

		h := floats.Sum(cost)
		res.Bits[b] = h
		if l := e.Beta * (h - e.TargetBits); l > 0 {
			res.Loss += l
			res.Active[b] = true
		}
	}

	if err := ml.CheckFiniteScalar("rate", res.Loss); err != nil {
		return nil, err
	}
	return res, nil
}

// elementBits gibt -log2(max(floor, p)) zurueck
func elementBits(p float32) float64 {
	return -log2e * math.Log(math.Max(ProbabilityFloor, float64(p)))
}

// Backward gibt dLoss/dP und dLoss/dm zurueck. dLoss/dm ist nil ohne Maske.
// Unterhalb des Floors ist der Gradient zu P null.
func (r *Result) Backward() (*ml.Tensor, *ml.Tensor) {
	shape := r.p.Shape()
	symbols := shape[4]
	batch := shape[0]
	per := r.idx.Len() / batch

	gradP := ml.Zeros(shape...)
	var gradM *ml.Tensor
	if r.mask != nil {
		gradM = ml.Zeros(r.mask.Shape()...)
	}

	pd, id, gp := r.p.Data(), r.idx.Data(), gradP.Data()
	for b := range batch {
		if !r.Active[b] {
			continue
		}
		for j := range per {
			i := b*per + j
			at := i*symbols + int(id[i])

			weight := 1.0
			if r.mask != nil {
				weight = float64(r.mask.Data()[i])
				gradM.Data()[i] = float32(r.est.Beta * elementBits(pd[at]))
			}

			if p := float64(pd[at]); p > ProbabilityFloor {
				gp[at] = float32(-r.est.Beta * weight * log2e / p)
			}
		}
	}
	return gradP, gradM
}
