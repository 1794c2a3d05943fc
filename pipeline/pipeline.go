// pipeline.go - Ein Vorwaertsschritt: Maske, Quantisierung, Kontextmodell,
// Rate, Rekonstruktion, MS-SSIM und Verluste
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ollama/aegan/contextmodel"
	"github.com/ollama/aegan/logutil"
	"github.com/ollama/aegan/loss"
	"github.com/ollama/aegan/ml"
	"github.com/ollama/aegan/msssim"
	"github.com/ollama/aegan/quant"
)

// Encoder bildet ein normalisiertes Bild [B,H,W,3] auf das Latent z [B,h,w,K]
// und die Importance-Map y [B,h,w] ab
type Encoder interface {
	Encode(ctx context.Context, x *ml.Tensor) (z, y *ml.Tensor, err error)
}

// Decoder rekonstruiert aus z_hat [B,h,w,K] ein normalisiertes Bild [B,H,W,3]
type Decoder interface {
	Decode(ctx context.Context, zHat *ml.Tensor) (*ml.Tensor, error)
}

// Discriminator gibt einen Realismus-Logit pro Batch-Element zurueck
type Discriminator interface {
	Discriminate(ctx context.Context, x *ml.Tensor) ([]float64, error)
}

type Pipeline struct {
	cfg     Config
	enc     Encoder
	dec     Decoder
	disc    Discriminator
	palette *quant.Palette
	model   *contextmodel.Model
}

// New baut die Pipeline. Ist palette nil, wird sie gleichverteilt in [-2, 2)
// aus cfg.Seed erzeugt. Die Palette gehoert dem Aufrufer und darf zwischen
// zwei Schritten veraendert werden.
func New(cfg Config, enc Encoder, dec Decoder, disc Discriminator, palette *quant.Palette) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if enc == nil || dec == nil || disc == nil {
		return nil, fmt.Errorf("%w: encoder, decoder and discriminator are required", ErrConfig)
	}

	if palette == nil {
		var err error
		if palette, err = quant.NewRandomPalette(cfg.Centroids, cfg.Seed); err != nil {
			return nil, err
		}
	}
	if palette.Len() != cfg.Centroids {
		return nil, fmt.Errorf("%w: palette has %d centroids, want %d", ErrConfig, palette.Len(), cfg.Centroids)
	}

	model, err := contextmodel.NewModel(cfg.Context)
	if err != nil {
		return nil, err
	}

	return &Pipeline{cfg: cfg, enc: enc, dec: dec, disc: disc, palette: palette, model: model}, nil
}

func (p *Pipeline) Config() Config {
	return p.cfg
}

// Palette ist die vom Aufrufer gehaltene Palette
func (p *Pipeline) Palette() *quant.Palette {
	return p.palette
}

func (p *Pipeline) Model() *contextmodel.Model {
	return p.model
}

func (p *Pipeline) Encoder() Encoder {
	return p.enc
}

func (p *Pipeline) Decoder() Decoder {
	return p.dec
}

func (p *Pipeline) Discriminator() Discriminator {
	return p.disc
}

// Step fuehrt einen vollstaendigen Vorwaertsschritt fuer x [B,H,W,C] in [0,1]
// aus. xAE ist optional die Rekonstruktion eines unveraenderten Autoencoders
// und liefert die Vergleichsgenauigkeit.
func (p *Pipeline) Step(ctx context.Context, x, xAE *ml.Tensor) (*StepResult, error) {
	if err := ml.CheckShape("step", x.Shape(), -1, -1, -1, -1); err != nil {
		return nil, err
	}
	if xAE != nil {
		if err := ml.SameShape("step autoencoder", x, xAE); err != nil {
			return nil, err
		}
	}
	if err := ml.CheckFinite("step", x); err != nil {
		return nil, err
	}
	batch := x.Dim(0)

	xn, moments, err := Normalize(x)
	if err != nil {
		return nil, err
	}

	z, y, err := p.enc.Encode(ctx, xn)
	if err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}
	if err := p.checkLatent(batch, z, y); err != nil {
		return nil, err
	}

	mask, err := quant.SignificanceMask(y, p.cfg.Channels)
	if err != nil {
		return nil, err
	}
	masked, err := quant.ApplyMask(z, mask.Value)
	if err != nil {
		return nil, err
	}
	q, err := quant.Quantize(masked, p.palette)
	if err != nil {
		return nil, err
	}

	// das Kontextmodell liest z_hat nur, es gibt keinen Gradienten zurueck
	ctxOut, err := p.model.Forward(ctx, q.ZHat)
	if err != nil {
		return nil, err
	}
	rateRes, err := p.cfg.Rate.Estimate(ctxOut.P, q.Index, mask.Value)
	if err != nil {
		return nil, err
	}

	recon, err := p.dec.Decode(ctx, q.ZHat)
	if err != nil {
		return nil, fmt.Errorf("decoder: %w", err)
	}
	if err := ml.SameShape("decoder", x, recon); err != nil {
		return nil, err
	}
	if err := ml.CheckFinite("decoder", recon); err != nil {
		return nil, err
	}
	xHat, err := Denormalize(recon, moments)
	if err != nil {
		return nil, err
	}

	acc, err := msssim.Accuracy(ctx, x, xHat, p.cfg.MSSSIM)
	if err != nil {
		return nil, err
	}

	res := &StepResult{
		RateLoss:       rateRes.Loss,
		Bits:           rateRes.Bits,
		Accuracy:       acc,
		Reconstruction: xHat,
		P:              ctxOut.P,
		Input:          xn,
		Latent:         z,
		Importance:     y,
		Mask:           mask,
		Quantized:      q,
		Context:        ctxOut,
		Rate:           rateRes,
		Moments:        moments,
	}

	if xAE != nil {
		aeAcc, err := msssim.Accuracy(ctx, x, xAE, p.cfg.MSSSIM)
		if err != nil {
			return nil, fmt.Errorf("autoencoder accuracy: %w", err)
		}
		res.HasAE = true
		res.AEAccuracy = aeAcc
		res.DeltaAccuracy = acc - aeAcc
	}

	realLogits, err := p.discriminate(ctx, "real", x, batch)
	if err != nil {
		return nil, err
	}
	fakeLogits, err := p.discriminate(ctx, "fake", xHat, batch)
	if err != nil {
		return nil, err
	}

	if res.Generator, err = loss.Generator(acc, fakeLogits); err != nil {
		return nil, err
	}
	if res.Discriminator, err = loss.Discriminator(realLogits, fakeLogits); err != nil {
		return nil, err
	}

	if slog.Default().Enabled(ctx, logutil.LevelTrace) {
		logutil.TraceContext(ctx, "pipeline step", "batch", batch, "bits", res.Bits,
			"indices", ml.DumpIndices(res.Quantized.Index, ml.DumpWithEdgeItems(2)))
	}
	slog.Debug("pipeline step", "batch", batch, "accuracy", acc, "rate_loss", res.RateLoss,
		"loss_generator", res.Generator.Total, "loss_discriminator", res.Discriminator.Total)
	return res, nil
}

func (p *Pipeline) checkLatent(batch int, z, y *ml.Tensor) error {
	if z == nil || y == nil {
		return fmt.Errorf("encoder: %w: missing latent or importance map", ml.ErrShape)
	}
	if err := ml.CheckShape("encoder latent", z.Shape(), batch, -1, -1, p.cfg.Channels); err != nil {
		return err
	}
	if err := ml.CheckShape("encoder importance", y.Shape(), z.Shape()[:3]...); err != nil {
		return err
	}
	if err := ml.CheckFinite("encoder latent", z); err != nil {
		return err
	}
	return ml.CheckFinite("encoder importance", y)
}

func (p *Pipeline) discriminate(ctx context.Context, which string, x *ml.Tensor, batch int) ([]float64, error) {
	logits, err := p.disc.Discriminate(ctx, x)
	if err != nil {
		return nil, fmt.Errorf("discriminator (%s): %w", which, err)
	}
	if len(logits) != batch {
		return nil, &ml.ShapeError{Op: "discriminator " + which, Want: []int{batch}, Got: []int{len(logits)}}
	}
	return logits, nil
}
