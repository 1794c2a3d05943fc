// model.go - Kausales Kontextmodell ueber dem quantisierten Latent
// Enthaelt: Config, Model, NewModel, Forward, Output
//
// Architektur:
//
//	a1 = relu(conv1_A(zHat))        1 -> Hidden
//	a2 = relu(conv2_B(a1))          Hidden -> Hidden
//	a3 = conv3_B(a2)                Hidden -> Hidden
//	a4 = relu(conv4_B(a3 + a1))     Hidden -> L
//	P  = softmax(a4) ueber L
package contextmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/ollama/aegan/ml"
)

// ErrConfig wird bei ungueltiger Modell-Konfiguration zurueckgegeben
var ErrConfig = errors.New("invalid context model configuration")

// DefaultHidden ist die Kanalbreite der inneren Schichten
const DefaultHidden = 24

// Config beschreibt das Kontextmodell
type Config struct {
	// Symbols ist die Palettengroesse L
	Symbols int
	// Hidden ist die Kanalbreite der Schichten 1-3
	Hidden int
	// Seed initialisiert die Gewichte
	Seed uint64
	// Parallel begrenzt die gleichzeitig verarbeiteten Batch-Elemente, 0 = GOMAXPROCS
	Parallel int
}

// Validate prueft die Konfiguration
func (c Config) Validate() error {
	if c.Symbols <= 0 {
		return fmt.Errorf("%w: symbols %d", ErrConfig, c.Symbols)
	}
	if c.Hidden <= 0 {
		return fmt.Errorf("%w: hidden %d", ErrConfig, c.Hidden)
	}
	if c.Parallel < 0 {
		return fmt.Errorf("%w: parallel %d", ErrConfig, c.Parallel)
	}
	return nil
}

// Model is the four-layer causal context model. It predicts, for every
// element of the quantized latent, a distribution over the L palette symbols
// that depends only on elements earlier in (height, width, channel) raster order.
type Model struct {
	cfg Config

	Conv1, Conv2, Conv3, Conv4 *MaskedConv3D
}

// NewModel erstellt ein Modell mit initialisierten Gewichten
func NewModel(cfg Config) (*Model, error) {
	if cfg.Hidden == 0 {
		cfg.Hidden = DefaultHidden
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1))
	return &Model{
		cfg:   cfg,
		Conv1: NewMaskedConv3D("conv1", 1, cfg.Hidden, StencilA, rng),
		Conv2: NewMaskedConv3D("conv2", cfg.Hidden, cfg.Hidden, StencilB, rng),
		Conv3: NewMaskedConv3D("conv3", cfg.Hidden, cfg.Hidden, StencilB, rng),
		Conv4: NewMaskedConv3D("conv4", cfg.Hidden, cfg.Symbols, StencilB, rng),
	}, nil
}

// Config gibt die Modell-Konfiguration zurueck
func (m *Model) Config() Config { return m.cfg }

// Layers gibt die vier Schichten in Vorwaerts-Reihenfolge zurueck
func (m *Model) Layers() []*MaskedConv3D {
	return []*MaskedConv3D{m.Conv1, m.Conv2, m.Conv3, m.Conv4}
}

// Output haelt die Verteilung P [B,H,W,K,L] und die Aktivierungen fuer Backward.
type Output struct {
	P *ml.Tensor

	batch int
	vol   volume
	input []float32
	a1    []float32
	a2    []float32
	a3    []float32
	a4    []float32
}

// Volume gibt (H, W, K) der Vorhersage zurueck
func (o *Output) Volume() (int, int, int) { return o.vol.H, o.vol.W, o.vol.K }

// Forward berechnet P fuer zHat. Akzeptiert [B,H,W,K] oder [B,H,W,K,1].
// Die Eingabe wird nur gelesen und nie abgeleitet.
func (m *Model) Forward(ctx context.Context, zHat *ml.Tensor) (*Output, error) {
	shape := zHat.Shape()
	switch len(shape) {
	case 4:
	case 5:
		if shape[4] != 1 {
			return nil, &ml.ShapeError{Op: "context model", Want: []int{-1, -1, -1, -1, 1}, Got: shape}
		}
	default:
		return nil, &ml.ShapeError{Op: "context model", Want: []int{-1, -1, -1, -1, 1}, Got: shape}
	}
	if err := ml.CheckFinite("context model", zHat); err != nil {
		return nil, err
	}

	b, vol := shape[0], volume{H: shape[1], W: shape[2], K: shape[3]}
	n, hidden, symbols := vol.positions(), m.cfg.Hidden, m.cfg.Symbols

	out := &Output{
		batch: b,
		vol:   vol,
		input: slices.Clone(zHat.Data()),
		a1:    make([]float32, b*n*hidden),
		a2:    make([]float32, b*n*hidden),
		a3:    make([]float32, b*n*hidden),
		a4:    make([]float32, b*n*symbols),
	}
	p := make([]float32, b*n*symbols)

	err := m.parallel(ctx, b, func(i int) {
		x := out.input[i*n : (i+1)*n]
		a1 := out.a1[i*n*hidden : (i+1)*n*hidden]
		a2 := out.a2[i*n*hidden : (i+1)*n*hidden]
		a3 := out.a3[i*n*hidden : (i+1)*n*hidden]
		a4 := out.a4[i*n*symbols : (i+1)*n*symbols]

		m.Conv1.forward(vol, x, a1)
		relu(a1)
		m.Conv2.forward(vol, a1, a2)
		relu(a2)
		m.Conv3.forward(vol, a2, a3)

		skip := make([]float32, len(a3))
		for j := range skip {
			skip[j] = a3[j] + a1[j]
		}
		m.Conv4.forward(vol, skip, a4)
		relu(a4)

		softmax(a4, p[i*n*symbols:(i+1)*n*symbols], symbols)
	})
	if err != nil {
		return nil, err
	}

	out.P, err = ml.New([]int{b, vol.H, vol.W, vol.K, symbols}, p)
	if err != nil {
		return nil, err
	}

	slog.Debug("context model forward", "batch", b, "height", vol.H, "width", vol.W, "channels", vol.K, "symbols", symbols)
	return out, nil
}

// parallel fuehrt fn fuer jedes Batch-Element aus
func (m *Model) parallel(ctx context.Context, batch int, fn func(i int)) error {
	limit := m.cfg.Parallel
	if limit == 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range batch {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	return g.Wait()
}

func relu(x []float32) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

// softmax normalisiert jede Zeile der Laenge n; Maximum wird fuer Stabilitaet abgezogen
func softmax(logits, out []float32, n int) {
	for r := 0; r < len(logits); r += n {
		row, dst := logits[r:r+n], out[r:r+n]

		hi := row[0]
		for _, v := range row[1:] {
			hi = max(hi, v)
		}

		var sum float64
		for j, v := range row {
			e := math.Exp(float64(v - hi))
			dst[j] = float32(e)
			sum += e
		}
		for j := range dst {
			dst[j] = float32(float64(dst[j]) / sum)
		}
	}
}
