// loss.go - Adaptive Gewichtung von Verzerrung und adversarialem Term
package loss

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ollama/aegan/ml"
)

// ErrEmpty wird fuer leere Logit-Stapel zurueckgegeben
var ErrEmpty = errors.New("loss: empty logits")

// Alpha ist minimal (5) bei acc = 1 und waechst quadratisch mit dem Abstand
func Alpha(acc float64) float64 {
	d := acc - 1
	return 2000*d*d + 5
}

// AlphaGrad ist dAlpha/dacc
func AlphaGrad(acc float64) float64 { return 4000 * (acc - 1) }

// SigmoidCrossEntropy ist die binaere Kreuzentropie auf Logits in der
// stabilen Form max(x,0) - x*z + log(1+exp(-|x|))
func SigmoidCrossEntropy(logit, label float64) float64 {
	return math.Max(logit, 0) - logit*label + math.Log1p(math.Exp(-math.Abs(logit)))
}

// SigmoidCrossEntropyGrad ist die Ableitung nach dem Logit: sigmoid(x) - z
func SigmoidCrossEntropyGrad(logit, label float64) float64 {
	return sigmoid(logit) - label
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func checkLogits(op string, logits []float64) error {
	if len(logits) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmpty)
	}
	for i, v := range logits {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: %w: logit %d is %v", op, ml.ErrNonFinite, i, v)
		}
	}
	return nil
}

// meanCrossEntropy mittelt die Kreuzentropie gegen ein festes Label und
// liefert den Gradienten des Mittels je Logit
func meanCrossEntropy(logits []float64, label float64) (float64, []float64) {
	n := float64(len(logits))
	values := make([]float64, len(logits))
	grad := make([]float64, len(logits))
	for i, x := range logits {
		values[i] = SigmoidCrossEntropy(x, label)
		grad[i] = SigmoidCrossEntropyGrad(x, label) / n
	}
	return floats.Sum(values) / n, grad
}

// GeneratorLoss zerlegt den Generator-Verlust in seine Terme
type GeneratorLoss struct {
	Total       float64
	Adversarial float64
	Distortion  float64
	Alpha       float64

	// Gradienten von Total
	GradLogits   []float64
	GradAccuracy float64
}

// Generator gibt adversarial(fake -> real) + acc*Alpha(acc) zurueck
func Generator(acc float64, fakeLogits []float64) (*GeneratorLoss, error) {
	if err := ml.CheckFiniteScalar("generator loss", acc); err != nil {
		return nil, err
	}
	if err := checkLogits("generator loss", fakeLogits); err != nil {
		return nil, err
	}

	adv, grad := meanCrossEntropy(fakeLogits, 1)
	alpha := Alpha(acc)
	return &GeneratorLoss{
		Total:        adv + acc*alpha,
		Adversarial:  adv,
		Distortion:   acc * alpha,
		Alpha:        alpha,
		GradLogits:   grad,
		GradAccuracy: alpha + acc*AlphaGrad(acc),
	}, nil
}

type DiscriminatorLoss struct {
	Total float64
	Real  float64
	Fake  float64

	GradReal []float64
	GradFake []float64
}

// Discriminator gibt BCE(real -> 1) + BCE(fake -> 0) zurueck, jeweils gemittelt
func Discriminator(realLogits, fakeLogits []float64) (*DiscriminatorLoss, error) {
	if err := checkLogits("discriminator loss", realLogits); err != nil {
		return nil, err
	}
	if err := checkLogits("discriminator loss", fakeLogits); err != nil {
		return nil, err
	}

	onReal, gradReal := meanCrossEntropy(realLogits, 1)
	onFake, gradFake := meanCrossEntropy(fakeLogits, 0)
	return &DiscriminatorLoss{
		Total:    onReal + onFake,
		Real:     onReal,
		Fake:     onFake,
		GradReal: gradReal,
		GradFake: gradFake,
	}, nil
}
