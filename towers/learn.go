// learn.go - Trainierbare Anteile der Referenz-Tuerme
//
// Der Diskriminator lernt seine drei Gewichte, der Encoder den Bias der
// Importance. Die Projektion selbst bleibt fest.
package towers

import (
	"context"
	"unsafe"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ollama/aegan/ml"
	"github.com/ollama/aegan/pipeline"
)

var (
	_ pipeline.DiscriminatorLearner = (*StatsDiscriminator)(nil)
	_ pipeline.ImportanceLearner    = (*BlockEncoder)(nil)
)

// scalar gibt einen Ein-Element-Slice ueber v zurueck, Updates schreiben in das Feld
func scalar(v *float32) []float32 { return unsafe.Slice(v, 1) }

// Gradients gibt dL/dw fuer die Logits von x zurueck.
// Der Logit ist linear in den Gewichten, daher reichen die Features.
func (d *StatsDiscriminator) Gradients(ctx context.Context, x *ml.Tensor, gradLogits []float64) ([]pipeline.Param, error) {
	if err := ml.CheckShape("stats discriminator gradients", x.Shape(), len(gradLogits), -1, -1, -1); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, h, w, c := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	n := h * w * c
	var dv, dg, db float64
	for i := range b {
		variance, grad := Features(x.Data()[i*n:(i+1)*n], h, w, c)
		dv += gradLogits[i] * variance
		dg += gradLogits[i] * grad
		db += gradLogits[i]
	}

	return []pipeline.Param{
		{Name: "discriminator.variance_weight", Value: scalar(&d.VarianceWeight), Grad: []float32{float32(dv)}},
		{Name: "discriminator.gradient_weight", Value: scalar(&d.GradientWeight), Grad: []float32{float32(dg)}},
		{Name: "discriminator.bias", Value: scalar(&d.Bias), Grad: []float32{float32(db)}},
	}, nil
}

// ImportanceGradients bildet dL/dy [B,h,w] auf dL/dBias ab.
// Fuer a = <block, b_K> + Bias ist dy/dBias = K*s(a)*(1-s(a)) fuer a > 0, sonst 0.
func (e *BlockEncoder) ImportanceGradients(ctx context.Context, x, gradY *ml.Tensor) ([]pipeline.Param, error) {
	p := e.Projection
	if err := ml.CheckShape("block encoder gradients", x.Shape(), -1, -1, -1, p.Colors); err != nil {
		return nil, err
	}
	b, h, w := x.Dim(0), x.Dim(1), x.Dim(2)
	bh, bw, k := h/BlockSize, w/BlockSize, p.Channels
	if err := ml.CheckShape("block encoder gradients", gradY.Shape(), b, bh, bw); err != nil {
		return nil, err
	}

	imgLen, yLen := h*w*p.Colors, bh*bw
	partial := make([]float64, b)
	err := parallel(ctx, b, e.Parallel, func(i int) error {
		blocks := p.blocks(x.Data()[i*imgLen:(i+1)*imgLen], h, w)

		var u mat.VecDense
		u.MulVec(blocks, p.basis.ColView(k))

		gy := gradY.Data()[i*yLen : (i+1)*yLen]
		for r := range yLen {
			if a := u.AtVec(r) + float64(e.Bias); a > 0 {
				s := sigmoid(a)
				partial[i] += float64(gy[r]) * float64(k) * s * (1 - s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	db := floats.Sum(partial)
	return []pipeline.Param{{Name: "encoder.importance_bias", Value: scalar(&e.Bias), Grad: []float32{float32(db)}}}, nil
}
