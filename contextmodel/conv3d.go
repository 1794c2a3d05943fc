// conv3d.go - Maskierte 3D-Faltung (SAME, Stride 1, Channels-Last)
// Enthaelt: MaskedConv3D, Forward und Backward fuer ein einzelnes Batch-Element
package contextmodel

import (
	"math"
	"math/rand/v2"
)

// biasInit ist der Startwert aller Bias-Eintraege
const biasInit = 0.1

// volume beschreibt die raeumliche Ausdehnung eines Batch-Elements
type volume struct {
	H, W, K int
}

func (v volume) positions() int { return v.H * v.W * v.K }

// MaskedConv3D is a 3x3x3 convolution whose readable taps are fixed by a
// Stencil at construction. Weight is laid out [27][In][Out]; entries of
// excluded taps stay zero and are never read.
type MaskedConv3D struct {
	Name    string
	In, Out int
	Stencil Stencil
	Weight  []float32
	Bias    []float32

	taps []Tap
}

// NewMaskedConv3D erstellt eine Schicht mit Xavier-Uniform Gewichten
func NewMaskedConv3D(name string, in, out int, stencil Stencil, rng *rand.Rand) *MaskedConv3D {
	const kernel = KernelSize * KernelSize * KernelSize

	l := &MaskedConv3D{
		Name:    name,
		In:      in,
		Out:     out,
		Stencil: stencil,
		Weight:  make([]float32, kernel*in*out),
		Bias:    make([]float32, out),
		taps:    stencil.Taps(),
	}

	limit := math.Sqrt(6 / float64(kernel*in+kernel*out))
	for _, tap := range l.taps {
		w := l.Weight[tap.Index*in*out : (tap.Index+1)*in*out]
		for i := range w {
			w[i] = float32((rng.Float64()*2 - 1) * limit)
		}
	}
	for i := range l.Bias {
		l.Bias[i] = biasInit
	}
	return l
}

// Taps gibt die gelesenen Kernel-Positionen zurueck
func (l *MaskedConv3D) Taps() []Tap { return l.taps }

// forward berechnet out[p][o] = bias[o] + sum_taps sum_i x[p+tap][i] * W[tap][i][o]
// x hat die Form [H,W,K,In], out [H,W,K,Out].
func (l *MaskedConv3D) forward(v volume, x, out []float32) {
	for h := range v.H {
		for w := range v.W {
			for k := range v.K {
				p := ((h*v.W+w)*v.K + k) * l.Out
				dst := out[p : p+l.Out]
				copy(dst, l.Bias)

				for _, tap := range l.taps {
					hh, ww, kk := h+tap.DH, w+tap.DW, k+tap.DK
					if hh < 0 || hh >= v.H || ww < 0 || ww >= v.W || kk < 0 || kk >= v.K {
						continue
					}

					q := ((hh*v.W+ww)*v.K + kk) * l.In
					src := x[q : q+l.In]
					kernel := l.Weight[tap.Index*l.In*l.Out:]
					for i, xv := range src {
						if xv == 0 {
							continue
						}
						row := kernel[i*l.Out : (i+1)*l.Out]
						for o, wv := range row {
							dst[o] += xv * wv
						}
					}
				}
			}
		}
	}
}

// backward akkumuliert dW, dB und optional dx aus dOut.
// dx darf nil sein, wenn der Eingang nicht abgeleitet werden muss.
func (l *MaskedConv3D) backward(v volume, x, dOut, dW, dB, dx []float32) {
	for h := range v.H {
		for w := range v.W {
			for k := range v.K {
				p := ((h*v.W+w)*v.K + k) * l.Out
				g := dOut[p : p+l.Out]
				for o, gv := range g {
					dB[o] += gv
				}

				for _, tap := range l.taps {
					hh, ww, kk := h+tap.DH, w+tap.DW, k+tap.DK
					if hh < 0 || hh >= v.H || ww < 0 || ww >= v.W || kk < 0 || kk >= v.K {
						continue
					}

					q := ((hh*v.W+ww)*v.K + kk) * l.In
					base := tap.Index * l.In * l.Out
					for i, xv := range x[q : q+l.In] {
						row := base + i*l.Out
						var sum float32
						for o, gv := range g {
							dW[row+o] += xv * gv
							sum += l.Weight[row+o] * gv
						}
						if dx != nil {
							dx[q+i] += sum
						}
					}
				}
			}
		}
	}
}
