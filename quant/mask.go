// mask.go - Signifikanz-Maske aus der Importance-Map
// Enthaelt: SignificanceMask (Straight-Through), MaskBackward, ApplyMask
package quant

import (
	"fmt"
	"math"

	"github.com/ollama/aegan/ml"
)

// SignificanceMask turns the importance map y [B,H,W] into a prefix mask
// [B,H,W,K]. Channel k is on when y > k. The forward value is the hard 0/1
// ceiling of the clipped ramp clip(y-k, 0, 1); the ramp itself is returned as
// the gradient proxy.
func SignificanceMask(y *ml.Tensor, channels int) (ml.Dual, error) {
	if channels <= 0 {
		return ml.Dual{}, fmt.Errorf("significance mask: %w: channels %d", ErrConfig, channels)
	}
	if err := ml.CheckShape("significance mask", y.Shape(), -1, -1, -1); err != nil {
		return ml.Dual{}, err
	}
	if err := ml.CheckFinite("significance mask", y); err != nil {
		return ml.Dual{}, err
	}

	shape := append(y.Shape(), channels)
	ramp := ml.Zeros(shape...)
	hard := ml.Zeros(shape...)

	rd, hd := ramp.Data(), hard.Data()
	for i, v := range y.Data() {
		base := i * channels
		for k := range channels {
			r := min(max(v-float32(k), 0), 1)
			rd[base+k] = r
			hd[base+k] = float32(math.Ceil(float64(r)))
		}
	}

	return ml.Dual{Value: hard, Proxy: ramp}, nil
}

// MaskBackward propagiert den Gradienten der Maske auf die Importance-Map.
// Der lokale Gradient ist der des unrundeten Ramps: 1 fuer 0 <= y-k <= 1, sonst 0.
// Die Grenzen zaehlen zum Inneren wie bei max/min mit Gleichstand.
func MaskBackward(y *ml.Tensor, channels int, grad *ml.Tensor) (*ml.Tensor, error) {
	want := append(y.Shape(), channels)
	if err := ml.CheckShape("mask backward", grad.Shape(), want...); err != nil {
		return nil, err
	}

	gy := ml.Zeros(y.Shape()...)
	gd, out := grad.Data(), gy.Data()
	for i, v := range y.Data() {
		base := i * channels
		var sum float32
		for k := range channels {
			if r := v - float32(k); r >= 0 && r <= 1 {
				sum += gd[base+k]
			}
		}
		out[i] = sum
	}
	return gy, nil
}

// ApplyMask gibt das elementweise Produkt z * m zurueck
func ApplyMask(z, m *ml.Tensor) (*ml.Tensor, error) {
	if err := ml.SameShape("apply mask", z, m); err != nil {
		return nil, err
	}

	out := ml.Zeros(z.Shape()...)
	od, zd, md := out.Data(), z.Data(), m.Data()
	for i := range od {
		od[i] = zd[i] * md[i]
	}
	return out, nil
}
