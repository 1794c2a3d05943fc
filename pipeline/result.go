// result.go - Ergebnis eines Schritts und Summary-Tags
package pipeline

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ollama/aegan/contextmodel"
	"github.com/ollama/aegan/loss"
	"github.com/ollama/aegan/ml"
	"github.com/ollama/aegan/quant"
	"github.com/ollama/aegan/rate"
)

// Summary-Tags
const (
	TagAccuracy          = "ms-ssim_G"
	TagDeltaAccuracy     = "delta_ms-ssim"
	TagDiscriminatorLoss = "loss_discriminator"
	TagGeneratorLoss     = "loss_generator"
	TagRateLoss          = "rate_loss"
	TagBits              = "bits_per_image"
)

// StepResult enthaelt alles, was die Trainingsschleife aus einem Schritt braucht
type StepResult struct {
	RateLoss float64
	Bits     []float64

	// Accuracy ist MS-SSIM(x, x_hat)
	Accuracy float64
	// AEAccuracy ist MS-SSIM(x, x_ae), nur mit HasAE gesetzt
	AEAccuracy    float64
	DeltaAccuracy float64
	HasAE         bool

	Generator     *loss.GeneratorLoss
	Discriminator *loss.DiscriminatorLoss

	Reconstruction *ml.Tensor
	// P ist die vorhergesagte Verteilung [B,h,w,K,L]
	P *ml.Tensor

	// Input ist das normalisierte Bild, Latent und Importance die Encoder-Ausgabe
	Input      *ml.Tensor
	Latent     *ml.Tensor
	Importance *ml.Tensor

	Mask      ml.Dual
	Quantized *quant.Quantized
	Context   *contextmodel.Output
	Rate      *rate.Result
	Moments   Moments
}

type Scalar struct {
	Tag   string
	Value float64
}

// ActiveFraction ist der Mittelwert der Signifikanzmaske
func (r *StepResult) ActiveFraction() float64 {
	if r.Mask.Value == nil || r.Mask.Value.Len() == 0 {
		return 0
	}
	values := make([]float64, r.Mask.Value.Len())
	for i, v := range r.Mask.Value.Data() {
		values[i] = float64(v)
	}
	return floats.Sum(values) / float64(len(values))
}

// MeanBits ist die mittlere geschaetzte Bitzahl pro Bild
func (r *StepResult) MeanBits() float64 {
	if len(r.Bits) == 0 {
		return 0
	}
	return stat.Mean(r.Bits, nil)
}

// Scalars gibt die Werte fuer die Summary-Ablage zurueck
func (r *StepResult) Scalars() []Scalar {
	s := []Scalar{
		{TagAccuracy, r.Accuracy},
		{TagGeneratorLoss, r.Generator.Total},
		{TagDiscriminatorLoss, r.Discriminator.Total},
		{TagRateLoss, r.RateLoss},
		{TagBits, r.MeanBits()},
	}
	if r.HasAE {
		s = append(s, Scalar{TagDeltaAccuracy, r.DeltaAccuracy})
	}
	return s
}
