// tensor.go - Dichte Row-Major Tensoren fuer die Quantisierungs-Pipeline
// Enthaelt: Tensor (float32), Indices (int32), Konstruktoren, Offset-Berechnung
package ml

import (
	"fmt"
	"slices"

	"github.com/pdevine/tensor"
)

// Tensor is a dense row-major float32 tensor backed by a tensor.Dense.
// Element (i0, i1, ..., in) lives at the flat offset sum(ik * stride[k]).
type Tensor struct {
	dense   *tensor.Dense
	shape   []int
	strides []int
	data    []float32
}

// New erstellt einen Tensor mit der gegebenen Form ueber data.
// data wird nicht kopiert.
func New(shape []int, data []float32) (*Tensor, error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, &ShapeError{Op: "new", Want: shape, Got: []int{len(data)}}
	}

	dense := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
	return &Tensor{
		dense:   dense,
		shape:   slices.Clone(shape),
		strides: rowMajorStrides(shape),
		data:    dense.Data().([]float32),
	}, nil
}

// Zeros erstellt einen mit Nullen gefuellten Tensor.
// Panics if a dimension is not positive.
func Zeros(shape ...int) *Tensor {
	n, err := numElements(shape)
	if err != nil {
		panic(err)
	}
	t, err := New(shape, make([]float32, n))
	if err != nil {
		panic(err)
	}
	return t
}

// Full erstellt einen Tensor, dessen Elemente alle v sind
func Full(v float32, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

// FromDense wraps an existing float32 tensor.Dense without copying.
func FromDense(d *tensor.Dense) (*Tensor, error) {
	data, ok := d.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("from dense: unsupported dtype %v", d.Dtype())
	}
	return New([]int(d.Shape()), data)
}

// Dense gibt den zugrunde liegenden tensor.Dense zurueck
func (t *Tensor) Dense() *tensor.Dense { return t.dense }

// Shape gibt eine Kopie der Form zurueck
func (t *Tensor) Shape() []int { return slices.Clone(t.shape) }

// Dim gibt die Groesse der Achse i zurueck
func (t *Tensor) Dim(i int) int { return t.shape[i] }

// Rank gibt die Anzahl der Achsen zurueck
func (t *Tensor) Rank() int { return len(t.shape) }

// Len gibt die Anzahl der Elemente zurueck
func (t *Tensor) Len() int { return len(t.data) }

// Data gibt den flachen Backing-Slice zurueck (keine Kopie)
func (t *Tensor) Data() []float32 { return t.data }

// Strides gibt die Row-Major Schrittweiten zurueck
func (t *Tensor) Strides() []int { return slices.Clone(t.strides) }

// Offset berechnet den flachen Index eines Elements
func (t *Tensor) Offset(idx ...int) int {
	return offset(t.shape, t.strides, idx)
}

// At liest ein Element
func (t *Tensor) At(idx ...int) float32 { return t.data[t.Offset(idx...)] }

// Set schreibt ein Element
func (t *Tensor) Set(v float32, idx ...int) { t.data[t.Offset(idx...)] = v }

// Clone kopiert Form und Daten
func (t *Tensor) Clone() *Tensor {
	c, _ := New(t.shape, slices.Clone(t.data))
	return c
}

// Reshape gibt eine Sicht mit neuer Form auf dieselben Daten zurueck
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if n != len(t.data) {
		return nil, &ShapeError{Op: "reshape", Want: shape, Got: t.shape}
	}
	return New(shape, t.data)
}

// Indices is a dense row-major int32 tensor holding palette assignments.
type Indices struct {
	dense   *tensor.Dense
	shape   []int
	strides []int
	data    []int32
}

// NewIndices erstellt einen Index-Tensor ueber data
func NewIndices(shape []int, data []int32) (*Indices, error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, &ShapeError{Op: "new indices", Want: shape, Got: []int{len(data)}}
	}

	dense := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
	return &Indices{
		dense:   dense,
		shape:   slices.Clone(shape),
		strides: rowMajorStrides(shape),
		data:    dense.Data().([]int32),
	}, nil
}

// ZeroIndices erstellt einen mit Nullen gefuellten Index-Tensor
func ZeroIndices(shape ...int) *Indices {
	n, err := numElements(shape)
	if err != nil {
		panic(err)
	}
	idx, err := NewIndices(shape, make([]int32, n))
	if err != nil {
		panic(err)
	}
	return idx
}

// Dense gibt den zugrunde liegenden tensor.Dense zurueck
func (t *Indices) Dense() *tensor.Dense { return t.dense }

// Shape gibt eine Kopie der Form zurueck
func (t *Indices) Shape() []int { return slices.Clone(t.shape) }

// Len gibt die Anzahl der Elemente zurueck
func (t *Indices) Len() int { return len(t.data) }

// Data gibt den flachen Backing-Slice zurueck (keine Kopie)
func (t *Indices) Data() []int32 { return t.data }

// Offset berechnet den flachen Index eines Elements
func (t *Indices) Offset(idx ...int) int {
	return offset(t.shape, t.strides, idx)
}

// At liest ein Element
func (t *Indices) At(idx ...int) int32 { return t.data[t.Offset(idx...)] }

func numElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, &ShapeError{Op: "shape", Want: []int{-1}, Got: shape}
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, &ShapeError{Op: "shape", Want: []int{-1}, Got: shape}
		}
		n *= d
	}
	return n, nil
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

func offset(shape, strides, idx []int) int {
	if len(idx) != len(shape) {
		panic(fmt.Sprintf("offset: rank %d index for rank %d tensor", len(idx), len(shape)))
	}
	o := 0
	for i, v := range idx {
		if v < 0 || v >= shape[i] {
			panic(fmt.Sprintf("offset: index %v out of range for shape %v", idx, shape))
		}
		o += v * strides[i]
	}
	return o
}
