// normalize.go - Kanalweise Standardisierung der Eingabebilder
package pipeline

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ollama/aegan/ml"
)

// normEpsilon wird vor der Wurzel auf die Varianz addiert
const normEpsilon = 1e-10

// Moments sind Mittelwert und Standardabweichung je Kanal
type Moments struct {
	Mean []float64
	Std  []float64
}

// Normalize standardisiert x [B,H,W,C] je Kanal ueber Batch, Hoehe und Breite
func Normalize(x *ml.Tensor) (*ml.Tensor, Moments, error) {
	if err := ml.CheckShape("normalize", x.Shape(), -1, -1, -1, -1); err != nil {
		return nil, Moments{}, err
	}

	c := x.Dim(3)
	n := x.Len() / c
	m := Moments{Mean: make([]float64, c), Std: make([]float64, c)}

	values := make([]float64, n)
	src := x.Data()
	for ch := range c {
		for i := range n {
			values[i] = float64(src[i*c+ch])
		}
		mean, variance := stat.PopMeanVariance(values, nil)
		m.Mean[ch] = mean
		m.Std[ch] = math.Sqrt(variance + normEpsilon)
	}

	out := ml.Zeros(x.Shape()...)
	dst := out.Data()
	for i, v := range src {
		ch := i % c
		dst[i] = float32((float64(v) - m.Mean[ch]) / m.Std[ch])
	}
	return out, m, nil
}

// Denormalize kehrt Normalize um und klemmt auf [0, 1]
func Denormalize(x *ml.Tensor, m Moments) (*ml.Tensor, error) {
	if err := ml.CheckShape("denormalize", x.Shape(), -1, -1, -1, len(m.Mean)); err != nil {
		return nil, err
	}

	c := len(m.Mean)
	out := ml.Zeros(x.Shape()...)
	dst := out.Data()
	for i, v := range x.Data() {
		ch := i % c
		dst[i] = float32(min(max(float64(v)*m.Std[ch]+m.Mean[ch], 0), 1))
	}
	return out, nil
}
