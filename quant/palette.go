// palette.go - Lernbare Zentroid-Palette
// Enthaelt: Palette, NewPalette, NewRandomPalette, Fehlerdefinitionen
package quant

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/ollama/aegan/ml"
)

var (
	// ErrConfig wird bei ungueltiger Konfiguration zurueckgegeben
	ErrConfig = errors.New("invalid configuration")

	// ErrEmptyPalette wird fuer L <= 0 zurueckgegeben; Nearest-Centroid ist dann undefiniert
	ErrEmptyPalette = fmt.Errorf("%w: empty palette", ErrConfig)
)

// Palette holds the L learnable centroid values. It is owned by the training
// loop: the quantizer only reads it, and Set is the only mutation. Values are
// unconstrained; duplicates are allowed.
type Palette struct {
	centroids []float32
}

// NewPalette erstellt eine Palette aus den gegebenen Werten (kopiert)
func NewPalette(values []float32) (*Palette, error) {
	if len(values) == 0 {
		return nil, ErrEmptyPalette
	}
	for i, v := range values {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("palette: %w: centroid %d = %v", ml.ErrNonFinite, i, v)
		}
	}
	return &Palette{centroids: slices.Clone(values)}, nil
}

// NewRandomPalette zieht n Zentroiden gleichverteilt aus [-2, 2)
func NewRandomPalette(n int, seed uint64) (*Palette, error) {
	if n <= 0 {
		return nil, ErrEmptyPalette
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	values := make([]float32, n)
	for i := range values {
		values[i] = float32(rng.Float64()*4 - 2)
	}
	return &Palette{centroids: values}, nil
}

// Len gibt L zurueck
func (p *Palette) Len() int { return len(p.centroids) }

// At gibt den Zentroiden i zurueck
func (p *Palette) At(i int) float32 { return p.centroids[i] }

// Values gibt eine Kopie der Zentroiden zurueck
func (p *Palette) Values() []float32 { return slices.Clone(p.centroids) }

// Set ersetzt alle Zentroiden. Aufruf nur zwischen zwei Forward-Passes.
// L ist fuer die Laufzeit fest.
func (p *Palette) Set(values []float32) error {
	if len(values) != len(p.centroids) {
		return fmt.Errorf("palette: %w: want %d centroids, got %d", ErrConfig, len(p.centroids), len(values))
	}
	next, err := NewPalette(values)
	if err != nil {
		return err
	}
	p.centroids = next.centroids
	return nil
}
