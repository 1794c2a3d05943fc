// msssim.go - Multi-Scale SSIM als Rekonstruktionsgenauigkeit
package msssim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/ollama/aegan/ml"
)

// DefaultWeights sind die Gewichte der fuenf Skalen von fein nach grob
var DefaultWeights = []float64{0.0448, 0.2856, 0.3001, 0.2363, 0.1333}

type Options struct {
	WindowSize int
	Sigma      float64

	// Weights bestimmt auch die Anzahl der Skalen
	Weights []float64

	// Parallel begrenzt die gleichzeitig berechneten Kanaele, 0 = GOMAXPROCS
	Parallel int
}

func DefaultOptions() Options {
	return Options{
		WindowSize: 9,
		Sigma:      1.5,
		Weights:    DefaultWeights,
	}
}

func (o Options) Levels() int { return len(o.Weights) }

func (o Options) Validate() error {
	if o.WindowSize <= 0 {
		return fmt.Errorf("%w: window size %d", ErrConfig, o.WindowSize)
	}
	if !(o.Sigma > 0) || math.IsInf(o.Sigma, 0) {
		return fmt.Errorf("%w: sigma %v", ErrConfig, o.Sigma)
	}
	if len(o.Weights) == 0 {
		return fmt.Errorf("%w: no scale weights", ErrConfig)
	}
	for _, w := range o.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("%w: scale weight %v", ErrConfig, w)
		}
	}
	if o.Parallel < 0 {
		return fmt.Errorf("%w: parallel %d", ErrConfig, o.Parallel)
	}
	return nil
}

// MinSize ist die kleinste Kantenlaenge, bei der die groebste Skala noch
// ein volles Fenster enthaelt
func (o Options) MinSize() int {
	n := o.WindowSize
	for range o.Levels() - 1 {
		n = 2*n - 1
	}
	return n
}

func (o Options) checkSize(h, w int) error {
	for range o.Levels() - 1 {
		h, w = pooledSize(h), pooledSize(w)
	}
	if h < o.WindowSize || w < o.WindowSize {
		return fmt.Errorf("%w: need at least %dx%d pixels for %d scales", ErrImageTooSmall, o.MinSize(), o.MinSize(), o.Levels())
	}
	return nil
}

// multiScale kombiniert die Skalen als gewichtetes geometrisches Mittel:
// CS der feinen Skalen, volle SSIM nur auf der groebsten
func multiScale(a, b plane, g []float64, weights []float64) (float64, error) {
	value := 1.0
	last := len(weights) - 1
	for level, w := range weights {
		s, err := ssim(a, b, g)
		if err != nil {
			return 0, err
		}

		term := s.CS
		if level == last {
			term = s.SSIM
		}
		value *= math.Pow(term, w)

		if level < last {
			a, b = avgPool2(a), avgPool2(b)
		}
	}

	// negative CS-Terme mit gebrochenem Exponenten ergeben NaN
	if err := ml.CheckFiniteScalar("msssim", value); err != nil {
		return 0, err
	}
	return value, nil
}

// MSSSIM vergleicht zwei einkanalige Bildstapel [B,H,W,1]
func MSSSIM(a, b *ml.Tensor, opts Options) (float64, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}
	if err := checkPair("msssim", a, b); err != nil {
		return 0, err
	}
	if err := ml.CheckShape("msssim", a.Shape(), -1, -1, -1, 1); err != nil {
		return 0, err
	}
	if err := opts.checkSize(a.Dim(1), a.Dim(2)); err != nil {
		return 0, err
	}

	g, err := gaussian1D(opts.WindowSize, opts.Sigma)
	if err != nil {
		return 0, err
	}
	return multiScale(channel(a, 0), channel(b, 0), g, opts.Weights)
}

// Accuracy berechnet MS-SSIM je Farbkanal von [B,H,W,C] Stapeln und mittelt
// ueber die Kanaele. 1 bedeutet identisch.
func Accuracy(ctx context.Context, x, xHat *ml.Tensor, opts Options) (float64, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}
	if err := checkPair("accuracy", x, xHat); err != nil {
		return 0, err
	}
	if err := opts.checkSize(x.Dim(1), x.Dim(2)); err != nil {
		return 0, err
	}

	g, err := gaussian1D(opts.WindowSize, opts.Sigma)
	if err != nil {
		return 0, err
	}

	channels := x.Dim(3)
	scores := make([]float64, channels)

	eg, ctx := errgroup.WithContext(ctx)
	limit := opts.Parallel
	if limit == 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	eg.SetLimit(limit)
	for c := range channels {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := multiScale(channel(x, c), channel(xHat, c), g, opts.Weights)
			if err != nil {
				return fmt.Errorf("channel %d: %w", c, err)
			}
			scores[c] = v
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	acc := floats.Sum(scores) / float64(channels)
	slog.Debug("ms-ssim", "channels", channels, "scores", scores, "accuracy", acc)
	return acc, nil
}
