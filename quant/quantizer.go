// quantizer.go - Nearest-Centroid Quantisierung
// Enthaelt: Quantize, Dequantize, Quantized.Backward
package quant

import (
	"github.com/ollama/aegan/ml"
)

// Quantized is the result of a nearest-centroid pass. Index is recomputed on
// every pass and ZHat[i] == palette[Index[i]].
type Quantized struct {
	ZHat  *ml.Tensor
	Index *ml.Indices
}

// Quantize ordnet jedes Element von zMasked [B,H,W,K] dem naechsten Zentroiden
// (Betragsabstand) zu. Bei Gleichstand gewinnt der kleinste Index.
func Quantize(zMasked *ml.Tensor, p *Palette) (*Quantized, error) {
	if p == nil || p.Len() == 0 {
		return nil, ErrEmptyPalette
	}
	if err := ml.CheckShape("quantize", zMasked.Shape(), -1, -1, -1, -1); err != nil {
		return nil, err
	}
	if err := ml.CheckFinite("quantize", zMasked); err != nil {
		return nil, err
	}

	// Snapshot pro Pass, keine Ableitungen ueber Passes hinweg
	centroids := p.Values()

	zHat := ml.Zeros(zMasked.Shape()...)
	idx := ml.ZeroIndices(zMasked.Shape()...)
	zd, hd, id := zMasked.Data(), zHat.Data(), idx.Data()
	for i, v := range zd {
		best := 0
		bestDist := abs32(v - centroids[0])
		for j := 1; j < len(centroids); j++ {
			if d := abs32(v - centroids[j]); d < bestDist {
				best, bestDist = j, d
			}
		}
		id[i] = int32(best)
		hd[i] = centroids[best]
	}

	return &Quantized{ZHat: zHat, Index: idx}, nil
}

// Dequantize rekonstruiert zHat aus einer Zuordnung und der aktuellen Palette
func Dequantize(idx *ml.Indices, p *Palette) (*ml.Tensor, error) {
	if p == nil || p.Len() == 0 {
		return nil, ErrEmptyPalette
	}

	centroids := p.Values()
	out := ml.Zeros(idx.Shape()...)
	od := out.Data()
	for i, c := range idx.Data() {
		if c < 0 || int(c) >= len(centroids) {
			return nil, &ml.ShapeError{Op: "dequantize", Want: []int{len(centroids)}, Got: []int{int(c)}}
		}
		od[i] = centroids[c]
	}
	return out, nil
}

// Backward gibt die Gradienten bezueglich des maskierten Latents und der Palette
// zurueck. zHat wird als Konstante behandelt, daher sind beide null.
func (q *Quantized) Backward(grad *ml.Tensor, paletteLen int) (*ml.Tensor, []float32, error) {
	if err := ml.SameShape("quantize backward", q.ZHat, grad); err != nil {
		return nil, nil, err
	}
	return ml.Zeros(grad.Shape()...), make([]float32, paletteLen), nil
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
