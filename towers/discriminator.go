// discriminator.go - Referenz-Diskriminator ueber lokale Bildstatistiken
package towers

import (
	"context"

	"gonum.org/v1/gonum/stat"

	"github.com/ollama/aegan/ml"
)

// StatsDiscriminator bewertet ein Bild mit einem logistischen Score ueber
// Varianz und mittleren Gradientenbetrag. Blockartige Rekonstruktionen haben
// weniger Feinstruktur und bekommen niedrigere Logits.
type StatsDiscriminator struct {
	VarianceWeight float32
	GradientWeight float32
	Bias           float32
}

// DefaultStatsDiscriminator ist grob auf natuerliche Bilder in [0,1] kalibriert
func DefaultStatsDiscriminator() *StatsDiscriminator {
	return &StatsDiscriminator{VarianceWeight: 8, GradientWeight: 20, Bias: -2}
}

// Features gibt (Varianz, mittlerer absoluter Gradient) fuer ein Bild [H,W,C] zurueck
func Features(img []float32, h, w, c int) (float64, float64) {
	values := make([]float64, len(img))
	for i, v := range img {
		values[i] = float64(v)
	}
	_, variance := stat.PopMeanVariance(values, nil)

	var grad float64
	var n int
	for y := range h {
		for x := range w {
			for ch := range c {
				i := (y*w+x)*c + ch
				if x+1 < w {
					grad += abs(values[i+c] - values[i])
					n++
				}
				if y+1 < h {
					grad += abs(values[i+w*c] - values[i])
					n++
				}
			}
		}
	}
	if n > 0 {
		grad /= float64(n)
	}
	return variance, grad
}

func (d *StatsDiscriminator) Discriminate(ctx context.Context, x *ml.Tensor) ([]float64, error) {
	if err := ml.CheckShape("stats discriminator", x.Shape(), -1, -1, -1, -1); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, h, w, c := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	n := h * w * c
	logits := make([]float64, b)
	for i := range b {
		variance, grad := Features(x.Data()[i*n:(i+1)*n], h, w, c)
		logits[i] = d.logit(variance, grad)
	}
	return logits, nil
}

func (d *StatsDiscriminator) logit(variance, grad float64) float64 {
	return float64(d.VarianceWeight)*variance + float64(d.GradientWeight)*grad + float64(d.Bias)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
