// errors.go - Fehlertypen fuer Form-Validierung und numerische Fehler
package ml

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrShape wird bei inkonsistenten Tensor-Formen zurueckgegeben
	ErrShape = errors.New("shape mismatch")

	// ErrNonFinite wird bei NaN/Inf-Werten zurueckgegeben. Fatal fuer einen Trainingslauf.
	ErrNonFinite = errors.New("non-finite value")
)

// ShapeError beschreibt eine fehlgeschlagene Form-Pruefung.
// -1 in Want steht fuer eine beliebige Groesse.
type ShapeError struct {
	Op   string
	Want []int
	Got  []int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %v: want %v, got %v", e.Op, ErrShape, e.Want, e.Got)
}

func (e *ShapeError) Unwrap() error { return ErrShape }

// CheckShape prueft, ob shape dem Muster want entspricht (-1 = beliebig)
func CheckShape(op string, shape []int, want ...int) error {
	if len(shape) != len(want) {
		return &ShapeError{Op: op, Want: want, Got: shape}
	}
	for i := range want {
		if want[i] != -1 && want[i] != shape[i] {
			return &ShapeError{Op: op, Want: want, Got: shape}
		}
	}
	return nil
}

// SameShape prueft, ob zwei Tensoren dieselbe Form haben
func SameShape(op string, a, b *Tensor) error {
	if !slices.Equal(a.shape, b.shape) {
		return &ShapeError{Op: op, Want: a.Shape(), Got: b.Shape()}
	}
	return nil
}

// CheckFinite gibt ErrNonFinite zurueck, wenn t ein NaN oder Inf enthaelt
func CheckFinite(op string, t *Tensor) error {
	for i, v := range t.data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%s: %w: %v at offset %d", op, ErrNonFinite, v, i)
		}
	}
	return nil
}

// CheckFiniteScalar ist CheckFinite fuer einen einzelnen Wert
func CheckFiniteScalar(op string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s: %w: %v", op, ErrNonFinite, v)
	}
	return nil
}
