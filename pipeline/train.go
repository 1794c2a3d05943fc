// train.go - Trainingsschritt: Diskriminator allein oder GAN mit Rate-Term
//
// Der Diskriminator lernt aus loss_discriminator. Der Generator-Schritt
// propagiert die Hinge-Rate in das Kontextmodell und ueber die Signifikanz-Maske
// in die Importance des Encoders. Die Generator-Gradienten (adversarial und
// MS-SSIM) gehen an Encoder oder Decoder, sofern diese GeneratorLearner sind.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ollama/aegan/ml"
	"github.com/ollama/aegan/quant"
)

// Phase eines Trainingsschritts
type Phase int

const (
	// PhaseDiscriminator trainiert nur den Diskriminator
	PhaseDiscriminator Phase = iota
	// PhaseGAN trainiert Diskriminator und Generator-Seite
	PhaseGAN
)

func (p Phase) String() string {
	switch p {
	case PhaseDiscriminator:
		return "discriminator"
	case PhaseGAN:
		return "gan"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// DiscriminatorLearner ist ein Diskriminator mit eigenen Gewichten
type DiscriminatorLearner interface {
	Discriminator
	// Gradients gibt die Parameter mit dL/dParameter fuer dL/dLogits von x zurueck
	Gradients(ctx context.Context, x *ml.Tensor, gradLogits []float64) ([]Param, error)
}

// ImportanceLearner ist ein Encoder, dessen Importance-Map trainierbar ist
type ImportanceLearner interface {
	Encoder
	// ImportanceGradients bildet dL/dy fuer die normalisierte Eingabe x auf die Parameter ab
	ImportanceGradients(ctx context.Context, x, gradY *ml.Tensor) ([]Param, error)
}

// GeneratorLearner ist ein Encoder oder Decoder mit eigenen Gewichten. Er bekommt
// dL_G/dAccuracy und dL_G/dLogits der Rekonstruktion und gibt seine Gradienten
// sowie optional dL/dz_hat zurueck.
type GeneratorLearner interface {
	GeneratorGradients(ctx context.Context, res *StepResult, gradAccuracy float64, gradLogits []float64) ([]Param, *ml.Tensor, error)
}

// TrainResult ist ein StepResult nach dem Parameter-Update
type TrainResult struct {
	*StepResult

	Phase           Phase
	DiscriminatorLR float64
	GeneratorLR     float64

	// Updated sind die Namen der aktualisierten Parameter
	Updated []string
}

const (
	TagDiscriminatorLR = "lr_discriminator"
	TagGeneratorLR     = "lr_generator"
)

// Scalars enthaelt in der Diskriminator-Phase nur loss_discriminator
func (r *TrainResult) Scalars() []Scalar {
	if r.Phase == PhaseDiscriminator {
		return []Scalar{
			{TagDiscriminatorLoss, r.Discriminator.Total},
			{TagDiscriminatorLR, r.DiscriminatorLR},
		}
	}
	return append(r.StepResult.Scalars(),
		Scalar{TagDiscriminatorLR, r.DiscriminatorLR},
		Scalar{TagGeneratorLR, r.GeneratorLR},
	)
}

// Trainer haelt je einen Adam-Optimierer fuer Diskriminator und Generator-Seite.
// Nicht fuer parallele Aufrufe gedacht.
type Trainer struct {
	p    *Pipeline
	disc *Adam
	gen  *Adam
}

func NewTrainer(p *Pipeline) *Trainer {
	return &Trainer{p: p, disc: NewAdam(), gen: NewAdam()}
}

// Train fuehrt Step aus und aktualisiert danach die Parameter der Phase
func (t *Trainer) Train(ctx context.Context, x, xAE *ml.Tensor, phase Phase, lrD, lrG float64) (*TrainResult, error) {
	if phase != PhaseDiscriminator && phase != PhaseGAN {
		return nil, fmt.Errorf("%w: unknown %v", ErrConfig, phase)
	}

	res, err := t.p.Step(ctx, x, xAE)
	if err != nil {
		return nil, err
	}
	tr := &TrainResult{StepResult: res, Phase: phase, DiscriminatorLR: lrD, GeneratorLR: lrG}

	// Generator-Gradienten vor dem Diskriminator-Update, beide sehen denselben Vorwaertsschritt
	var genParams []Param
	if phase == PhaseGAN {
		if genParams, err = t.generatorGradients(ctx, res); err != nil {
			return nil, err
		}
	}

	discParams, err := t.discriminatorGradients(ctx, x, res)
	if err != nil {
		return nil, err
	}
	if err := t.disc.Update(discParams, lrD); err != nil {
		return nil, err
	}
	for _, p := range discParams {
		tr.Updated = append(tr.Updated, p.Name)
	}

	if phase == PhaseGAN {
		if err := t.gen.Update(genParams, lrG); err != nil {
			return nil, err
		}
		for _, p := range genParams {
			if p.Name == paletteParam {
				if err := t.p.palette.Set(p.Value); err != nil {
					return nil, err
				}
			}
			tr.Updated = append(tr.Updated, p.Name)
		}
	}

	slog.Debug("train step", "phase", phase, "lr_d", lrD, "lr_g", lrG,
		"rate_loss", res.RateLoss, "loss_discriminator", res.Discriminator.Total, "params", len(tr.Updated))
	return tr, nil
}

// discriminatorGradients summiert die Gradienten auf x und auf der Rekonstruktion
func (t *Trainer) discriminatorGradients(ctx context.Context, x *ml.Tensor, res *StepResult) ([]Param, error) {
	learner, ok := t.p.disc.(DiscriminatorLearner)
	if !ok {
		return nil, nil
	}

	onReal, err := learner.Gradients(ctx, x, res.Discriminator.GradReal)
	if err != nil {
		return nil, fmt.Errorf("discriminator (real): %w", err)
	}
	onFake, err := learner.Gradients(ctx, res.Reconstruction, res.Discriminator.GradFake)
	if err != nil {
		return nil, fmt.Errorf("discriminator (fake): %w", err)
	}
	return mergeParams(onReal, onFake), nil
}

const paletteParam = "palette"

// generatorGradients sammelt die Gradienten von loss_generator + rate_loss
func (t *Trainer) generatorGradients(ctx context.Context, res *StepResult) ([]Param, error) {
	var lists [][]Param

	gradZHat := ml.Zeros(res.Quantized.ZHat.Shape()...)
	for _, c := range []any{t.p.enc, t.p.dec} {
		learner, ok := c.(GeneratorLearner)
		if !ok {
			continue
		}
		params, g, err := learner.GeneratorGradients(ctx, res, res.Generator.GradAccuracy, res.Generator.GradLogits)
		if err != nil {
			return nil, fmt.Errorf("generator: %w", err)
		}
		lists = append(lists, params)
		if g != nil {
			if err := ml.SameShape("generator z_hat gradient", gradZHat, g); err != nil {
				return nil, err
			}
			for i, v := range g.Data() {
				gradZHat.Data()[i] += v
			}
		}
	}

	// Rate -> Kontextmodell
	gradP, gradM := res.Rate.Backward()
	cg, err := t.p.model.Backward(ctx, res.Context, gradP)
	if err != nil {
		return nil, err
	}
	grads := cg.Layers()
	var model []Param
	for i, p := range t.p.model.Parameters() {
		g := grads[i/2].Weight
		if i%2 == 1 {
			g = grads[i/2].Bias
		}
		model = append(model, Param{Name: "context." + p.Name, Value: p.Value, Grad: g})
	}
	lists = append(lists, model)

	// z_hat ist fuer den Rueckwaertspfad konstant: Latent und Palette bekommen null
	gradMasked, gradPalette, err := res.Quantized.Backward(gradZHat, t.p.palette.Len())
	if err != nil {
		return nil, err
	}
	lists = append(lists, []Param{{Name: paletteParam, Value: t.p.palette.Values(), Grad: gradPalette}})

	// Maske: Rate-Term plus z * dL/d(z*m), ueber den Ramp auf die Importance
	if learner, ok := t.p.enc.(ImportanceLearner); ok && gradM != nil {
		dm := gradM.Clone()
		zd, gd := res.Latent.Data(), gradMasked.Data()
		for i := range dm.Data() {
			dm.Data()[i] += zd[i] * gd[i]
		}

		gradY, err := quant.MaskBackward(res.Importance, t.p.cfg.Channels, dm)
		if err != nil {
			return nil, err
		}
		params, err := learner.ImportanceGradients(ctx, res.Input, gradY)
		if err != nil {
			return nil, fmt.Errorf("encoder importance: %w", err)
		}
		lists = append(lists, params)
	}

	return mergeParams(lists...), nil
}
