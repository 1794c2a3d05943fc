// ssim.go - Strukturelle Aehnlichkeit mit Gauss-Fenster (VALID)
package msssim

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ollama/aegan/ml"
)

var (
	ErrConfig        = errors.New("msssim: invalid configuration")
	ErrImageTooSmall = errors.New("msssim: image too small")
)

// Stabilisierungskonstanten fuer Dynamikbereich 1
const (
	K1 = 0.01
	K2 = 0.03

	c1 = K1 * K1
	c2 = K2 * K2
)

// Similarity sind die Mittelwerte der SSIM- und Kontrast-Struktur-Karten
type Similarity struct {
	SSIM float64
	CS   float64
}

// filter faltet jedes Bild separabel mit g, ohne Padding
func filter(p plane, g []float64) plane {
	s := len(g)
	oh, ow := p.h-s+1, p.w-s+1

	rows := make([]float64, p.h*ow)
	col := make([]float64, s)
	out := newPlane(p.b, oh, ow)
	for i := range p.b {
		src, dst := p.image(i), out.image(i)
		for y := range p.h {
			row := src[y*p.w : (y+1)*p.w]
			for x := range ow {
				rows[y*ow+x] = floats.Dot(g, row[x:x+s])
			}
		}
		for y := range oh {
			for x := range ow {
				for k := range s {
					col[k] = rows[(y+k)*ow+x]
				}
				dst[y*ow+x] = floats.Dot(g, col)
			}
		}
	}
	return out
}

func product(a, b plane) plane {
	out := newPlane(a.b, a.h, a.w)
	floats.MulTo(out.data, a.data, b.data)
	return out
}

// ssim berechnet die Ergebniskarten und mittelt ueber den ganzen Stapel
func ssim(a, b plane, g []float64) (Similarity, error) {
	if a.h < len(g) || a.w < len(g) {
		return Similarity{}, fmt.Errorf("%w: %dx%d smaller than window %d", ErrImageTooSmall, a.h, a.w, len(g))
	}

	mu1, mu2 := filter(a, g), filter(b, g)
	e11 := filter(product(a, a), g)
	e22 := filter(product(b, b), g)
	e12 := filter(product(a, b), g)

	n := len(mu1.data)
	ssimMap := make([]float64, n)
	csMap := make([]float64, n)
	for i := range n {
		m1, m2 := mu1.data[i], mu2.data[i]
		m11, m22, m12 := m1*m1, m2*m2, m1*m2
		s11 := e11.data[i] - m11
		s22 := e22.data[i] - m22
		s12 := e12.data[i] - m12

		cs := (2*s12 + c2) / (s11 + s22 + c2)
		csMap[i] = cs
		ssimMap[i] = (2*m12 + c1) / (m11 + m22 + c1) * cs
	}

	return Similarity{SSIM: stat.Mean(ssimMap, nil), CS: stat.Mean(csMap, nil)}, nil
}

// channel holt Kanal c aus einem [B,H,W,C] Tensor
func channel(t *ml.Tensor, c int) plane {
	b, h, w, nc := t.Dim(0), t.Dim(1), t.Dim(2), t.Dim(3)
	p := newPlane(b, h, w)
	src := t.Data()
	for i := range p.data {
		p.data[i] = float64(src[i*nc+c])
	}
	return p
}

func checkPair(op string, a, b *ml.Tensor) error {
	if err := ml.CheckShape(op, a.Shape(), -1, -1, -1, -1); err != nil {
		return err
	}
	if err := ml.SameShape(op, a, b); err != nil {
		return err
	}
	if err := ml.CheckFinite(op, a); err != nil {
		return err
	}
	return ml.CheckFinite(op, b)
}

// SSIM vergleicht zwei einkanalige Bildstapel [B,H,W,1]
func SSIM(a, b *ml.Tensor, opts Options) (Similarity, error) {
	if err := opts.Validate(); err != nil {
		return Similarity{}, err
	}
	if err := checkPair("ssim", a, b); err != nil {
		return Similarity{}, err
	}
	if err := ml.CheckShape("ssim", a.Shape(), -1, -1, -1, 1); err != nil {
		return Similarity{}, err
	}

	g, err := gaussian1D(opts.WindowSize, opts.Sigma)
	if err != nil {
		return Similarity{}, err
	}
	return ssim(channel(a, 0), channel(b, 0), g)
}
