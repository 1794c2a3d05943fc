package towers

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ollama/aegan/ml"
	"github.com/ollama/aegan/pipeline"
)

func TestProjectionOrthonormal(t *testing.T) {
	p, err := NewProjection(32, 3, 666)
	require.NoError(t, err)

	basis := p.Basis()
	r, c := basis.Dims()
	require.Equal(t, 192, r)
	require.Equal(t, 33, c)

	var gram mat.Dense
	gram.Mul(basis.T(), basis)
	if !mat.EqualApprox(&gram, eye(33), 1e-10) {
		t.Fatal("Basis ist nicht orthonormal")
	}

	_, err = NewProjection(192, 3, 1)
	require.ErrorIs(t, err, ErrConfig)
	_, err = NewProjection(0, 3, 1)
	require.ErrorIs(t, err, ErrConfig)
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := range n {
		m.Set(i, i, 1)
	}
	return m
}

func TestEncodeDecodeSubspace(t *testing.T) {
	ctx := context.Background()
	p, err := NewProjection(8, 3, 7)
	require.NoError(t, err)
	enc := &BlockEncoder{Projection: p}
	dec := &BlockDecoder{Projection: p}

	// zufaellige Koeffizienten im Unterraum dekodieren und wieder kodieren
	r := rand.New(rand.NewPCG(3, 4))
	z := ml.Zeros(2, 2, 3, 8)
	for i := range z.Data() {
		z.Data()[i] = float32(r.NormFloat64())
	}

	img, err := dec.Decode(ctx, z)
	require.NoError(t, err)
	require.Equal(t, []int{2, 16, 24, 3}, img.Shape())

	got, y, err := enc.Encode(ctx, img)
	require.NoError(t, err)
	require.Equal(t, z.Shape(), got.Shape())
	require.Equal(t, []int{2, 2, 3}, y.Shape())
	require.InDeltaSlice(t, z.Data(), got.Data(), 1e-4)

	// Importance liegt in [K/2, K)
	for _, v := range y.Data() {
		require.GreaterOrEqual(t, v, float32(4))
		require.Less(t, v, float32(8))
	}
}

func TestEncodeShapeErrors(t *testing.T) {
	ctx := context.Background()
	p, err := NewProjection(4, 3, 1)
	require.NoError(t, err)
	enc := &BlockEncoder{Projection: p}

	_, _, err = enc.Encode(ctx, ml.Zeros(1, 12, 16, 3))
	require.ErrorIs(t, err, ml.ErrShape)
	_, _, err = enc.Encode(ctx, ml.Zeros(1, 16, 16, 1))
	require.ErrorIs(t, err, ml.ErrShape)

	dec := &BlockDecoder{Projection: p}
	_, err = dec.Decode(ctx, ml.Zeros(1, 2, 2, 5))
	require.ErrorIs(t, err, ml.ErrShape)
}

func TestStatsDiscriminator(t *testing.T) {
	ctx := context.Background()
	d := DefaultStatsDiscriminator()

	flat := ml.Full(0.5, 1, 16, 16, 3)
	noisy := ml.Zeros(1, 16, 16, 3)
	r := rand.New(rand.NewPCG(5, 6))
	for i := range noisy.Data() {
		noisy.Data()[i] = r.Float32()
	}

	both := ml.Zeros(2, 16, 16, 3)
	copy(both.Data(), flat.Data())
	copy(both.Data()[flat.Len():], noisy.Data())

	logits, err := d.Discriminate(ctx, both)
	require.NoError(t, err)
	require.Len(t, logits, 2)
	require.InDelta(t, d.Bias, logits[0], 1e-12)
	require.Greater(t, logits[1], logits[0])

	variance, grad := Features(flat.Data(), 16, 16, 3)
	require.Zero(t, variance)
	require.Zero(t, grad)
}

func TestNewPipeline(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.Channels = 64
	cfg.Context.Hidden = 4

	p, err := NewPipeline(cfg)
	require.NoError(t, err)

	r := rand.New(rand.NewPCG(9, 9))
	x := ml.Zeros(1, 136, 136, 3)
	for i := range x.Data() {
		x.Data()[i] = r.Float32()
	}

	res, err := p.Step(context.Background(), x, nil)
	require.NoError(t, err)
	require.Equal(t, []int{1, 17, 17, 64, 6}, res.P.Shape())
	require.Equal(t, x.Shape(), res.Reconstruction.Shape())
	require.Greater(t, res.Accuracy, 0.0)
	require.LessOrEqual(t, res.Accuracy, 1.0)
	require.Len(t, res.Bits, 1)
}

func TestStatsDiscriminatorGradients(t *testing.T) {
	ctx := context.Background()
	d := DefaultStatsDiscriminator()

	r := rand.New(rand.NewPCG(11, 12))
	x := ml.Zeros(3, 8, 8, 3)
	for i := range x.Data() {
		x.Data()[i] = r.Float32()
	}
	gradLogits := []float64{0.5, -1, 2}

	params, err := d.Gradients(ctx, x, gradLogits)
	require.NoError(t, err)
	require.Len(t, params, 3)

	// L = sum g_i * logit_i ist linear, der Differenzenquotient ist exakt bis auf Rundung
	objective := func() float64 {
		logits, err := d.Discriminate(ctx, x)
		require.NoError(t, err)
		var l float64
		for i, v := range logits {
			l += gradLogits[i] * v
		}
		return l
	}
	for _, p := range params {
		before := p.Value[0]
		p.Value[0] = before + 0.25
		up := objective()
		p.Value[0] = before - 0.25
		down := objective()
		p.Value[0] = before
		require.InDelta(t, (up-down)/0.5, float64(p.Grad[0]), 1e-3, "Gradient von %s", p.Name)
	}

	_, err = d.Gradients(ctx, x, gradLogits[:2])
	require.ErrorIs(t, err, ml.ErrShape)
}

func TestImportanceGradients(t *testing.T) {
	ctx := context.Background()
	p, err := NewProjection(8, 3, 5)
	require.NoError(t, err)
	enc := &BlockEncoder{Projection: p, Bias: 0.3}

	r := rand.New(rand.NewPCG(21, 22))
	x := ml.Zeros(2, 16, 16, 3)
	for i := range x.Data() {
		x.Data()[i] = float32(r.NormFloat64())
	}
	gradY := ml.Full(1, 2, 2, 2)

	params, err := enc.ImportanceGradients(ctx, x, gradY)
	require.NoError(t, err)
	require.Len(t, params, 1)
	require.Equal(t, "encoder.importance_bias", params[0].Name)

	sumY := func(bias float32) float64 {
		enc.Bias = bias
		_, y, err := enc.Encode(ctx, x)
		require.NoError(t, err)
		var s float64
		for _, v := range y.Data() {
			s += float64(v)
		}
		return s
	}
	const eps = 1e-3
	want := (sumY(0.3+eps) - sumY(0.3-eps)) / (2 * eps)
	enc.Bias = 0.3
	require.InDelta(t, want, float64(params[0].Grad[0]), 0.05*max(1, abs(want)))

	// der Wert zeigt live auf das Feld
	params[0].Value[0] = 1.5
	require.Equal(t, float32(1.5), enc.Bias)

	_, err = enc.ImportanceGradients(ctx, x, ml.Zeros(2, 3, 2))
	require.ErrorIs(t, err, ml.ErrShape)
}
