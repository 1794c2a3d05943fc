package msssim

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/ollama/aegan/ml"
)

func randomImages(t *testing.T, seed uint64, shape ...int) *ml.Tensor {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, seed))
	x := ml.Zeros(shape...)
	for i := range x.Data() {
		x.Data()[i] = r.Float32()
	}
	return x
}

// noisy addiert gleichverteiltes Rauschen der Amplitude amp, geklemmt auf [0,1]
func noisy(x *ml.Tensor, seed uint64, amp float32) *ml.Tensor {
	r := rand.New(rand.NewPCG(seed, 1))
	y := x.Clone()
	for i, v := range y.Data() {
		v += amp * (2*r.Float32() - 1)
		y.Data()[i] = min(max(v, 0), 1)
	}
	return y
}

func TestGaussianWindow(t *testing.T) {
	w, err := GaussianWindow(9, 1.5)
	require.NoError(t, err)
	require.Len(t, w, 81)
	require.InDelta(t, 1.0, floats.Sum(w), 1e-12)

	// symmetrisch, Maximum in der Mitte
	for y := range 9 {
		for x := range 9 {
			require.InDelta(t, w[y*9+x], w[(8-y)*9+(8-x)], 1e-15)
			require.InDelta(t, w[y*9+x], w[x*9+y], 1e-15)
			require.LessOrEqual(t, w[y*9+x], w[4*9+4])
		}
	}

	if got := windowRange(8); got[0] != -3 || got[7] != 4 {
		t.Errorf("windowRange(8) = %v, erwartet -3..4", got)
	}

	_, err = GaussianWindow(0, 1.5)
	require.ErrorIs(t, err, ErrConfig)
	_, err = GaussianWindow(9, 0)
	require.ErrorIs(t, err, ErrConfig)
}

func TestAvgPool2(t *testing.T) {
	img := []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}
	out, h, w := AvgPool2(img, 3, 3)
	require.Equal(t, 2, h)
	require.Equal(t, 2, w)
	// Randfenster mitteln nur ueber gueltige Pixel
	require.InDeltaSlice(t, []float64{3, 4.5, 7.5, 9}, out, 1e-12)
}

func TestMinSize(t *testing.T) {
	opts := DefaultOptions()
	require.Equal(t, 129, opts.MinSize())
	require.NoError(t, opts.checkSize(129, 129))
	require.ErrorIs(t, opts.checkSize(128, 160), ErrImageTooSmall)
}

func TestIdentity(t *testing.T) {
	x := randomImages(t, 1, 2, 129, 131, 3)

	acc, err := Accuracy(context.Background(), x, x.Clone(), DefaultOptions())
	require.NoError(t, err)
	require.InDelta(t, 1.0, acc, 1e-12)

	gray := randomImages(t, 2, 1, 20, 20, 1)
	s, err := SSIM(gray, gray, DefaultOptions())
	require.NoError(t, err)
	require.InDelta(t, 1.0, s.SSIM, 1e-12)
	require.InDelta(t, 1.0, s.CS, 1e-12)
}

func TestSymmetry(t *testing.T) {
	x := randomImages(t, 3, 1, 129, 129, 3)
	y := noisy(x, 4, 0.1)

	ab, err := Accuracy(context.Background(), x, y, DefaultOptions())
	require.NoError(t, err)
	ba, err := Accuracy(context.Background(), y, x, DefaultOptions())
	require.NoError(t, err)
	require.InDelta(t, ab, ba, 1e-12)
	require.Less(t, ab, 1.0)
}

func TestMonotoneInNoise(t *testing.T) {
	x := randomImages(t, 5, 1, 129, 129, 3)
	opts := DefaultOptions()

	last := 1.0
	for _, amp := range []float32{0.02, 0.1, 0.3} {
		acc, err := Accuracy(context.Background(), x, noisy(x, 6, amp), opts)
		require.NoError(t, err)
		if acc >= last {
			t.Errorf("Rauschen %v: Genauigkeit %v nicht kleiner als %v", amp, acc, last)
		}
		last = acc
	}
}

func TestConstantImages(t *testing.T) {
	const u, v = 0.2, 0.6
	a := ml.Full(u, 1, 129, 129, 1)
	b := ml.Full(v, 1, 129, 129, 1)

	got, err := MSSSIM(a, b, DefaultOptions())
	require.NoError(t, err)

	// ohne Varianz ist CS = 1, nur die Luminanz der groebsten Skala zaehlt
	fu, fv := float64(float32(u)), float64(float32(v))
	lum := (2*fu*fv + c1) / (fu*fu + fv*fv + c1)
	require.InDelta(t, math.Pow(lum, DefaultWeights[4]), got, 1e-6)
}

func TestAnticorrelatedIsNonFinite(t *testing.T) {
	x := randomImages(t, 7, 1, 129, 129, 1)
	inv := x.Clone()
	for i, v := range inv.Data() {
		inv.Data()[i] = 1 - v
	}

	_, err := MSSSIM(x, inv, DefaultOptions())
	if !errors.Is(err, ml.ErrNonFinite) {
		t.Fatalf("erwartet ErrNonFinite, bekommen %v", err)
	}
}

func TestErrors(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()

	small := randomImages(t, 8, 1, 64, 64, 3)
	_, err := Accuracy(ctx, small, small, opts)
	require.ErrorIs(t, err, ErrImageTooSmall)

	a := randomImages(t, 9, 1, 129, 129, 3)
	b := randomImages(t, 9, 1, 129, 130, 3)
	_, err = Accuracy(ctx, a, b, opts)
	require.ErrorIs(t, err, ml.ErrShape)

	c := a.Clone()
	c.Data()[10] = float32(math.NaN())
	_, err = Accuracy(ctx, a, c, opts)
	require.ErrorIs(t, err, ml.ErrNonFinite)

	_, err = MSSSIM(a, a, opts)
	require.ErrorIs(t, err, ml.ErrShape)

	opts.Weights = nil
	_, err = Accuracy(ctx, a, a, opts)
	require.ErrorIs(t, err, ErrConfig)

	tiny := randomImages(t, 10, 1, 5, 5, 1)
	_, err = SSIM(tiny, tiny, DefaultOptions())
	require.ErrorIs(t, err, ErrImageTooSmall)
}

func TestAccuracyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	x := randomImages(t, 11, 1, 129, 129, 3)
	_, err := Accuracy(ctx, x, x, DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
}
