package ml

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesShape(t *testing.T) {
	cases := map[string]struct {
		shape []int
		n     int
	}{
		"leer":           {nil, 0},
		"null-achse":     {[]int{2, 0}, 0},
		"falsche laenge": {[]int{2, 3}, 5},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(tt.shape, make([]float32, tt.n))
			if !errors.Is(err, ErrShape) {
				t.Errorf("erwartet ErrShape, bekommen %v", err)
			}
		})
	}
}

func TestOffsetRowMajor(t *testing.T) {
	x := Zeros(2, 3, 4, 5)
	if diff := cmp.Diff([]int{60, 20, 5, 1}, x.Strides()); diff != "" {
		t.Errorf("strides mismatch (-want +got):\n%s", diff)
	}

	x.Set(7, 1, 2, 3, 4)
	if got := x.Data()[1*60+2*20+3*5+4]; got != 7 {
		t.Errorf("Set schrieb an falsche Stelle: %v", got)
	}
	if got := x.At(1, 2, 3, 4); got != 7 {
		t.Errorf("At = %v, erwartet 7", got)
	}
}

func TestReshapeSharesData(t *testing.T) {
	x, err := New([]int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	y, err := x.Reshape(3, 2, 1)
	require.NoError(t, err)
	y.Set(9, 2, 1, 0)
	if x.At(1, 2) != 9 {
		t.Errorf("Reshape sollte Daten teilen")
	}

	if _, err := x.Reshape(4, 2); !errors.Is(err, ErrShape) {
		t.Errorf("erwartet ErrShape, bekommen %v", err)
	}
}

func TestCheckShape(t *testing.T) {
	if err := CheckShape("op", []int{2, 3, 4}, 2, -1, 4); err != nil {
		t.Errorf("unerwarteter Fehler: %v", err)
	}

	err := CheckShape("op", []int{2, 3, 4}, 2, 3)
	var se *ShapeError
	if !errors.As(err, &se) || se.Op != "op" {
		t.Fatalf("erwartet *ShapeError, bekommen %v", err)
	}
	if !errors.Is(err, ErrShape) {
		t.Errorf("ShapeError sollte ErrShape wrappen")
	}
}

func TestCheckFinite(t *testing.T) {
	x := Zeros(3)
	require.NoError(t, CheckFinite("x", x))

	x.Set(float32(math.Inf(1)), 1)
	if err := CheckFinite("x", x); !errors.Is(err, ErrNonFinite) {
		t.Errorf("erwartet ErrNonFinite, bekommen %v", err)
	}

	if err := CheckFiniteScalar("s", math.NaN()); !errors.Is(err, ErrNonFinite) {
		t.Errorf("erwartet ErrNonFinite, bekommen %v", err)
	}
}

func TestIndices(t *testing.T) {
	idx, err := NewIndices([]int{2, 2}, []int32{0, 1, 2, 3})
	require.NoError(t, err)
	if idx.At(1, 0) != 2 {
		t.Errorf("At(1,0) = %d, erwartet 2", idx.At(1, 0))
	}

	if _, err := NewIndices([]int{2, 2}, []int32{0}); !errors.Is(err, ErrShape) {
		t.Errorf("erwartet ErrShape, bekommen %v", err)
	}
}

func TestDump(t *testing.T) {
	x, err := New([]int{2, 2}, []float32{1, 2, 3, -4})
	require.NoError(t, err)

	want := "[[ 1.0,  2.0],\n [ 3.0, -4.0]]"
	if got := Dump(x, DumpWithPrecision(1)); got != want {
		t.Errorf("Dump:\n%s\nerwartet:\n%s", got, want)
	}

	idx, err := NewIndices([]int{3}, []int32{0, 5, 2})
	require.NoError(t, err)
	if got := DumpIndices(idx); got != "[ 0,  5,  2]" {
		t.Errorf("DumpIndices = %q", got)
	}
}

func TestDumpEdgeItems(t *testing.T) {
	x := Zeros(10)
	got := Dump(x, DumpWithThreshold(4), DumpWithEdgeItems(1), DumpWithPrecision(0))
	if got != "[ 0, ...,  0]" {
		t.Errorf("Dump = %q", got)
	}
}

func TestF16(t *testing.T) {
	x, err := New([]int{2, 1, 3}, []float32{0, 0.5, 0.25, 1, -2, 0.125})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteF16(&buf, x))
	if buf.Len() != 4+4*4+6*2 {
		t.Errorf("Dateigroesse = %d", buf.Len())
	}

	y, err := ReadF16(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(x.Shape(), y.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(x.Data(), y.Data()); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	if _, err := ReadF16(bytes.NewReader([]byte("XXXX\x01\x00\x00\x00"))); !errors.Is(err, ErrF16Format) {
		t.Errorf("erwartet ErrF16Format, bekommen %v", err)
	}
}
