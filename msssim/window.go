// window.go - Gauss-Fenster fuer SSIM
package msssim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// windowRange gibt die Koordinaten des Fensters zurueck, links ausgerichtet wie
// fspecial: size 9 -> -4..4, size 8 -> -3..4.
func windowRange(size int) []float64 {
	start := -((size + 1) / 2) + 1
	coords := make([]float64, size)
	for i := range coords {
		coords[i] = float64(start + i)
	}
	return coords
}

// gaussian1D gibt die normierte eindimensionale Gauss-Glocke zurueck.
// Das 2D-Fenster ist ihr aeusseres Produkt mit sich selbst.
func gaussian1D(size int, sigma float64) ([]float64, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: window size %d", ErrConfig, size)
	}
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("%w: sigma %v", ErrConfig, sigma)
	}

	g := windowRange(size)
	for i, x := range g {
		g[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(g), g)
	return g, nil
}

// GaussianWindow gibt das size x size Fenster (row-major, Summe 1) zurueck
func GaussianWindow(size int, sigma float64) ([]float64, error) {
	g, err := gaussian1D(size, sigma)
	if err != nil {
		return nil, err
	}

	w := make([]float64, size*size)
	for y, gy := range g {
		for x, gx := range g {
			w[y*size+x] = gy * gx
		}
	}
	return w, nil
}
