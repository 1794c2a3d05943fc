package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ollama/aegan/ml"
	"github.com/ollama/aegan/quant"
)

// learningDiscriminator lernt einen Offset auf die festen Logits
type learningDiscriminator struct {
	fakeDiscriminator
	offset []float32
	calls  int
}

func (d *learningDiscriminator) Discriminate(context.Context, *ml.Tensor) ([]float64, error) {
	logits := make([]float64, len(d.logits))
	for i, v := range d.logits {
		logits[i] = v + float64(d.offset[0])
	}
	return logits, nil
}

func (d *learningDiscriminator) Gradients(_ context.Context, _ *ml.Tensor, gradLogits []float64) ([]Param, error) {
	d.calls++
	var g float64
	for _, v := range gradLogits {
		g += v
	}
	return []Param{{Name: "d.offset", Value: d.offset, Grad: []float32{float32(g)}}}, nil
}

type learningEncoder struct {
	fakeEncoder
	bias  []float32
	gradY *ml.Tensor
}

func (e *learningEncoder) ImportanceGradients(_ context.Context, _, gradY *ml.Tensor) ([]Param, error) {
	e.gradY = gradY
	var g float32
	for _, v := range gradY.Data() {
		g += v
	}
	return []Param{{Name: "e.bias", Value: e.bias, Grad: []float32{g}}}, nil
}

type learningDecoder struct {
	fakeDecoder
	gain         []float32
	gradAccuracy float64
	gradLogits   []float64
}

func (d *learningDecoder) GeneratorGradients(_ context.Context, res *StepResult, gradAccuracy float64, gradLogits []float64) ([]Param, *ml.Tensor, error) {
	d.gradAccuracy, d.gradLogits = gradAccuracy, gradLogits
	return []Param{{Name: "g.gain", Value: d.gain, Grad: []float32{1}}}, ml.Full(1, res.Quantized.ZHat.Shape()...), nil
}

type learners struct {
	p    *Pipeline
	enc  *learningEncoder
	dec  *learningDecoder
	disc *learningDiscriminator
}

func newLearningPipeline(t *testing.T, x *ml.Tensor) learners {
	t.Helper()
	b := x.Dim(0)
	xn, _, err := Normalize(x)
	require.NoError(t, err)

	z, y := testLatent(b, 2.5)
	l := learners{
		enc:  &learningEncoder{fakeEncoder: fakeEncoder{z: z, y: y}, bias: []float32{0}},
		dec:  &learningDecoder{fakeDecoder: fakeDecoder{out: xn}, gain: []float32{1}},
		disc: &learningDiscriminator{fakeDiscriminator: fakeDiscriminator{logits: make([]float64, b)}, offset: []float32{0}},
	}
	// unterschiedliche Logits, sonst heben sich die Gradienten auf real und fake auf
	l.disc.logits[0] = 1

	palette, err := quant.NewPalette([]float32{-2, -1, 0, 1, 2, 3})
	require.NoError(t, err)
	l.p, err = New(testConfig(), l.enc, l.dec, l.disc, palette)
	require.NoError(t, err)
	return l
}

func modelSnapshot(p *Pipeline) [][]float32 {
	var out [][]float32
	for _, param := range p.Model().Parameters() {
		out = append(out, append([]float32(nil), param.Value...))
	}
	return out
}

func TestTrainRateLossDecreases(t *testing.T) {
	x := testImages(t, 2)
	p, _, _ := newTestPipeline(t, x)
	tr := NewTrainer(p)
	ctx := context.Background()

	var losses []float64
	for range 5 {
		res, err := tr.Train(ctx, x, nil, PhaseGAN, 1e-3, 1e-3)
		require.NoError(t, err)
		losses = append(losses, res.RateLoss)
	}
	res, err := p.Step(ctx, x, nil)
	require.NoError(t, err)
	losses = append(losses, res.RateLoss)

	require.Greater(t, losses[0], 0.0, "Rate-Hinge muss aktiv sein")
	for i := 1; i < len(losses); i++ {
		require.Less(t, losses[i], losses[i-1], "Schritt %d: Rate-Verlust steigt (%v)", i, losses)
	}
}

func TestTrainDiscriminatorPhase(t *testing.T) {
	x := testImages(t, 2)
	l := newLearningPipeline(t, x)
	before := modelSnapshot(l.p)
	palette := l.p.Palette().Values()

	res, err := NewTrainer(l.p).Train(context.Background(), x, nil, PhaseDiscriminator, 1e-2, 1e-2)
	require.NoError(t, err)

	// real und fake werden getrennt differenziert
	require.Equal(t, 2, l.disc.calls)
	require.NotZero(t, l.disc.offset[0])
	require.Equal(t, []string{"d.offset"}, res.Updated)

	if diff := cmp.Diff(before, modelSnapshot(l.p)); diff != "" {
		t.Errorf("Kontextmodell in der D-Phase veraendert (-before +after):\n%s", diff)
	}
	require.Equal(t, palette, l.p.Palette().Values())
	require.Zero(t, l.enc.bias[0])
	require.Equal(t, float32(1), l.dec.gain[0])
	require.Nil(t, l.enc.gradY)

	if diff := cmp.Diff([]Scalar{{TagDiscriminatorLoss, res.Discriminator.Total}, {TagDiscriminatorLR, 1e-2}}, res.Scalars()); diff != "" {
		t.Errorf("scalars mismatch (-want +got):\n%s", diff)
	}
}

func TestTrainGANPhase(t *testing.T) {
	x := testImages(t, 2)
	l := newLearningPipeline(t, x)
	before := modelSnapshot(l.p)
	palette := l.p.Palette().Values()

	res, err := NewTrainer(l.p).Train(context.Background(), x, nil, PhaseGAN, 1e-2, 1e-3)
	require.NoError(t, err)

	// der Generator bekommt die Gradienten seines Verlusts
	require.InDelta(t, res.Generator.GradAccuracy, l.dec.gradAccuracy, 0)
	require.Equal(t, res.Generator.GradLogits, l.dec.gradLogits)
	require.InDelta(t, 1-1e-3, l.dec.gain[0], 1e-6)

	require.Equal(t, []int{2, 2, 2}, l.enc.gradY.Shape())
	require.NotZero(t, l.enc.bias[0])
	require.NotZero(t, l.disc.offset[0])

	if diff := cmp.Diff(before, modelSnapshot(l.p)); diff == "" {
		t.Error("Kontextmodell in der GAN-Phase unveraendert")
	}
	// z_hat ist konstant fuer den Rueckwaertspfad, die Palette bleibt stehen
	require.Equal(t, palette, l.p.Palette().Values())
	require.Contains(t, res.Updated, "palette")
	require.Contains(t, res.Updated, "context.conv4.bias")

	tags := map[string]float64{}
	for _, s := range res.Scalars() {
		tags[s.Tag] = s.Value
	}
	for _, tag := range []string{TagGeneratorLoss, TagDiscriminatorLoss, TagRateLoss, TagGeneratorLR, TagDiscriminatorLR} {
		if _, ok := tags[tag]; !ok {
			t.Errorf("Tag %q fehlt", tag)
		}
	}
	require.InDelta(t, 1e-3, tags[TagGeneratorLR], 0)
}

func TestTrainErrors(t *testing.T) {
	x := testImages(t, 1)
	p, _, _ := newTestPipeline(t, x)
	tr := NewTrainer(p)
	ctx := context.Background()

	_, err := tr.Train(ctx, x, nil, Phase(7), 1e-3, 1e-3)
	require.ErrorIs(t, err, ErrConfig)

	_, err = tr.Train(ctx, x, nil, PhaseGAN, -1, 1e-3)
	require.ErrorIs(t, err, ErrConfig)

	_, err = tr.Train(ctx, ml.Zeros(1, 4, 4), nil, PhaseGAN, 1e-3, 1e-3)
	require.ErrorIs(t, err, ml.ErrShape)
}

func TestSchedule(t *testing.T) {
	s := DefaultSchedule()
	require.NoError(t, s.Validate())
	require.Equal(t, 11, s.Epochs())

	type at struct {
		Phase    Phase
		LRD, LRG float64
	}
	var got []at
	for e := range 6 {
		phase, lrD, lrG := s.At(e)
		got = append(got, at{phase, lrD, lrG})
	}
	want := []at{
		{PhaseDiscriminator, 5e-4, 5e-4},
		{PhaseGAN, 5e-4, 5e-4},
		{PhaseGAN, 5e-4, 5e-4},
		{PhaseGAN, 2.5e-4, 2.5e-4},
		{PhaseGAN, 2.5e-4, 2.5e-4},
		{PhaseGAN, 1.25e-4, 1.25e-4},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("schedule mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []Schedule{
		{DiscriminatorLR: 0, GeneratorLR: 1, GANEpochs: 1},
		{DiscriminatorLR: 1, GeneratorLR: math.Inf(1), GANEpochs: 1},
		{DiscriminatorLR: 1, GeneratorLR: 1, GANEpochs: -1, DiscriminatorEpochs: 2},
		{DiscriminatorLR: 1, GeneratorLR: 1},
	} {
		require.ErrorIs(t, bad.Validate(), ErrConfig, "%+v", bad)
	}
	require.Equal(t, "gan", PhaseGAN.String())
}

func TestAdam(t *testing.T) {
	// (w-3)^2 von 0 aus
	w := []float32{0}
	adam := NewAdam()
	for range 500 {
		g := 2 * (w[0] - 3)
		require.NoError(t, adam.Update([]Param{{Name: "w", Value: w, Grad: []float32{g}}}, 0.1))
	}
	require.InDelta(t, 3, w[0], 1e-2)

	// der erste Schritt ist bias-korrigiert genau lr gross
	v := []float32{1}
	require.NoError(t, NewAdam().Update([]Param{{Name: "v", Value: v, Grad: []float32{-4}}}, 0.5))
	require.InDelta(t, 1.5, v[0], 1e-6)

	require.ErrorIs(t, adam.Update(nil, -1), ErrConfig)

	// Fehler hinterlassen keinen halben Schritt
	a, b := []float32{1}, []float32{2}
	err := adam.Update([]Param{
		{Name: "a", Value: a, Grad: []float32{1}},
		{Name: "b", Value: b, Grad: []float32{1, 2}},
	}, 0.1)
	require.ErrorIs(t, err, ml.ErrShape)
	require.Equal(t, float32(1), a[0])

	err = adam.Update([]Param{{Name: "a", Value: a, Grad: []float32{float32(math.NaN())}}}, 0.1)
	require.ErrorIs(t, err, ml.ErrNonFinite)
	require.Equal(t, float32(1), a[0])
}

func TestMergeParams(t *testing.T) {
	w := []float32{1, 2}
	first := []float32{1, 1}
	merged := mergeParams(
		[]Param{{Name: "w", Value: w, Grad: first}},
		[]Param{{Name: "w", Value: w, Grad: []float32{0.5, -1}}, {Name: "u", Value: []float32{0}, Grad: []float32{3}}},
	)
	require.Len(t, merged, 2)
	require.Equal(t, "w", merged[0].Name)
	require.Equal(t, []float32{1.5, 0}, merged[0].Grad)
	require.Equal(t, []float32{1, 1}, first, "Eingabe-Gradient wurde veraendert")

	// Value bleibt eine live Sicht
	merged[0].Value[0] = 9
	require.Equal(t, float32(9), w[0])
}
