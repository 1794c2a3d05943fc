// block.go - Referenz-Encoder/Decoder: orthonormale Projektion von 8x8 Bloecken
//
// Kein trainiertes Modell. Die Tuerme erfuellen die Schnittstellen der
// Pipeline, damit CLI und Server ohne Gewichte laufen.
package towers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/ollama/aegan/ml"
)

// BlockSize ist der Downsampling-Faktor des Encoders
const BlockSize = 8

var ErrConfig = errors.New("invalid tower configuration")

// Projection ist eine Basis mit orthonormalen Spalten ueber Bloecken
// BlockSize x BlockSize x Colors. Spalten 0..K-1 erzeugen das Latent,
// Spalte K die Importance.
type Projection struct {
	Channels int
	Colors   int
	basis    *mat.Dense
}

// NewProjection zieht eine Gauss-Matrix aus seed und orthonormalisiert sie per QR
func NewProjection(channels, colors int, seed uint64) (*Projection, error) {
	rows := BlockSize * BlockSize * colors
	if channels <= 0 || colors <= 0 || channels+1 > rows {
		return nil, fmt.Errorf("%w: %d channels over %d block values", ErrConfig, channels, rows)
	}

	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	data := make([]float64, rows*(channels+1))
	for i := range data {
		data[i] = r.NormFloat64()
	}

	var qr mat.QR
	qr.Factorize(mat.NewDense(rows, channels+1, data))
	var q mat.Dense
	qr.QTo(&q)

	basis := mat.DenseCopyOf(q.Slice(0, rows, 0, channels+1))
	return &Projection{Channels: channels, Colors: colors, basis: basis}, nil
}

func (p *Projection) blockLen() int { return BlockSize * BlockSize * p.Colors }

// Basis gibt eine Kopie der Basis (Blockwerte x K+1) zurueck
func (p *Projection) Basis() *mat.Dense { return mat.DenseCopyOf(p.basis) }

// blocks zerlegt ein Bild [H,W,C] in eine Matrix (Bloecke x Blockwerte)
func (p *Projection) blocks(img []float32, h, w int) *mat.Dense {
	bh, bw, c := h/BlockSize, w/BlockSize, p.Colors
	out := mat.NewDense(bh*bw, p.blockLen(), nil)
	for by := range bh {
		for bx := range bw {
			row := out.RawRowView(by*bw + bx)
			for dy := range BlockSize {
				for dx := range BlockSize {
					src := ((by*BlockSize+dy)*w + bx*BlockSize + dx) * c
					dst := (dy*BlockSize + dx) * c
					for ch := range c {
						row[dst+ch] = float64(img[src+ch])
					}
				}
			}
		}
	}
	return out
}

func parallel(ctx context.Context, n, limit int, fn func(i int) error) error {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range n {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	return g.Wait()
}

type BlockEncoder struct {
	Projection *Projection
	// Bias verschiebt den Importance-Logit vor der ReLU, trainierbar
	Bias float32
	// Parallel begrenzt die gleichzeitig kodierten Bilder, 0 = GOMAXPROCS
	Parallel int
}

// Encode projiziert jeden Block auf K Kanaele. Die Importance ist
// sigmoid(relu(<block, b_K> + Bias)) * K und liegt damit in [K/2, K).
func (e *BlockEncoder) Encode(ctx context.Context, x *ml.Tensor) (*ml.Tensor, *ml.Tensor, error) {
	p := e.Projection
	if err := ml.CheckShape("block encoder", x.Shape(), -1, -1, -1, p.Colors); err != nil {
		return nil, nil, err
	}
	b, h, w := x.Dim(0), x.Dim(1), x.Dim(2)
	if h%BlockSize != 0 || w%BlockSize != 0 || h == 0 || w == 0 {
		return nil, nil, &ml.ShapeError{Op: "block encoder", Want: []int{b, BlockSize, BlockSize, p.Colors}, Got: x.Shape()}
	}

	bh, bw, k := h/BlockSize, w/BlockSize, p.Channels
	z := ml.Zeros(b, bh, bw, k)
	y := ml.Zeros(b, bh, bw)
	imgLen := h * w * p.Colors
	zLen, yLen := bh*bw*k, bh*bw

	err := parallel(ctx, b, e.Parallel, func(i int) error {
		blocks := p.blocks(x.Data()[i*imgLen:(i+1)*imgLen], h, w)

		var coeff mat.Dense
		coeff.Mul(blocks, p.basis)

		zd := z.Data()[i*zLen : (i+1)*zLen]
		yd := y.Data()[i*yLen : (i+1)*yLen]
		for r := range yLen {
			row := coeff.RawRowView(r)
			for c := range k {
				zd[r*k+c] = float32(row[c])
			}
			yd[r] = float32(importance(row[k]+float64(e.Bias), k))
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return z, y, nil
}

type BlockDecoder struct {
	Projection *Projection
	Parallel   int
}

// Decode setzt die Bloecke aus den K Koeffizienten wieder zusammen
func (d *BlockDecoder) Decode(ctx context.Context, zHat *ml.Tensor) (*ml.Tensor, error) {
	p := d.Projection
	if err := ml.CheckShape("block decoder", zHat.Shape(), -1, -1, -1, p.Channels); err != nil {
		return nil, err
	}
	b, bh, bw, k := zHat.Dim(0), zHat.Dim(1), zHat.Dim(2), p.Channels
	h, w, c := bh*BlockSize, bw*BlockSize, p.Colors

	out := ml.Zeros(b, h, w, c)
	latent := p.basis.Slice(0, p.blockLen(), 0, k)
	zLen, imgLen := bh*bw*k, h*w*c

	err := parallel(ctx, b, d.Parallel, func(i int) error {
		zd := zHat.Data()[i*zLen : (i+1)*zLen]
		data := make([]float64, len(zd))
		for j, v := range zd {
			data[j] = float64(v)
		}
		coeff := mat.NewDense(bh*bw, k, data)

		var blocks mat.Dense
		blocks.Mul(coeff, latent.T())

		img := out.Data()[i*imgLen : (i+1)*imgLen]
		for by := range bh {
			for bx := range bw {
				row := blocks.RawRowView(by*bw + bx)
				for dy := range BlockSize {
					for dx := range BlockSize {
						dst := ((by*BlockSize+dy)*w + bx*BlockSize + dx) * c
						src := (dy*BlockSize + dx) * c
						for ch := range c {
							img[dst+ch] = float32(row[src+ch])
						}
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// importance ist sigmoid(relu(a)) * k
func importance(a float64, k int) float64 { return sigmoid(max(a, 0)) * float64(k) }
