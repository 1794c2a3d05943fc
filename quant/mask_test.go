package quant

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ollama/aegan/ml"
)

func importanceMap(t *testing.T, values ...float32) *ml.Tensor {
	t.Helper()
	y, err := ml.New([]int{1, 1, len(values)}, values)
	require.NoError(t, err)
	return y
}

func TestSignificanceMaskValues(t *testing.T) {
	y := importanceMap(t, 0, 0.5, 2, 2.25, 4)
	m, err := SignificanceMask(y, 4)
	require.NoError(t, err)

	want := []float32{
		0, 0, 0, 0,
		1, 0, 0, 0,
		1, 1, 0, 0,
		1, 1, 1, 0,
		1, 1, 1, 1,
	}
	if diff := cmp.Diff(want, m.Value.Data()); diff != "" {
		t.Errorf("hard mask mismatch (-want +got):\n%s", diff)
	}

	wantRamp := []float32{
		0, 0, 0, 0,
		0.5, 0, 0, 0,
		1, 1, 0, 0,
		1, 1, 0.25, 0,
		1, 1, 1, 1,
	}
	if diff := cmp.Diff(wantRamp, m.Proxy.Data()); diff != "" {
		t.Errorf("ramp mismatch (-want +got):\n%s", diff)
	}
}

func TestSignificanceMaskPrefixAndBinary(t *testing.T) {
	const channels = 32
	rng := rand.New(rand.NewPCG(1, 2))

	values := make([]float32, 4*5*6)
	for i := range values {
		values[i] = float32(rng.Float64()*40 - 4)
	}
	y, err := ml.New([]int{4, 5, 6}, values)
	require.NoError(t, err)

	m, err := SignificanceMask(y, channels)
	require.NoError(t, err)

	data := m.Value.Data()
	for pos := range len(values) {
		off := false
		for k := range channels {
			v := data[pos*channels+k]
			if v != 0 && v != 1 {
				t.Fatalf("position %d kanal %d: Wert %v ist nicht binaer", pos, k, v)
			}
			if off && v != 0 {
				t.Fatalf("position %d: Kanal %d an nach ausgeschaltetem Kanal", pos, k)
			}
			if v == 0 {
				off = true
			}
		}
	}
}

func TestSignificanceMaskErrors(t *testing.T) {
	y := importanceMap(t, 1)
	if _, err := SignificanceMask(y, 0); !errors.Is(err, ErrConfig) {
		t.Errorf("erwartet ErrConfig, bekommen %v", err)
	}

	z := ml.Zeros(2, 2)
	if _, err := SignificanceMask(z, 4); !errors.Is(err, ml.ErrShape) {
		t.Errorf("erwartet ErrShape, bekommen %v", err)
	}

	n := importanceMap(t, float32(math.NaN()))
	if _, err := SignificanceMask(n, 4); !errors.Is(err, ml.ErrNonFinite) {
		t.Errorf("erwartet ErrNonFinite, bekommen %v", err)
	}
}

func TestMaskBackwardStraightThrough(t *testing.T) {
	y := importanceMap(t, 0.5, 2, 5)
	grad := ml.Full(1, 1, 1, 3, 4)

	gy, err := MaskBackward(y, 4, grad)
	require.NoError(t, err)

	// 0.5: nur k=0 im Ramp; 2: k=1 (r=1) und k=2 (r=0); 5: ausserhalb fuer alle k
	if diff := cmp.Diff([]float32{1, 2, 0}, gy.Data()); diff != "" {
		t.Errorf("gradient mismatch (-want +got):\n%s", diff)
	}

	if _, err := MaskBackward(y, 3, grad); !errors.Is(err, ml.ErrShape) {
		t.Errorf("erwartet ErrShape, bekommen %v", err)
	}
}

func TestApplyMask(t *testing.T) {
	z, err := ml.New([]int{1, 1, 1, 3}, []float32{2, -3, 4})
	require.NoError(t, err)
	m, err := ml.New([]int{1, 1, 1, 3}, []float32{1, 1, 0})
	require.NoError(t, err)

	out, err := ApplyMask(z, m)
	require.NoError(t, err)
	if diff := cmp.Diff([]float32{2, -3, 0}, out.Data()); diff != "" {
		t.Errorf("masked latent mismatch (-want +got):\n%s", diff)
	}

	if _, err := ApplyMask(z, ml.Zeros(1, 1, 3, 1)); !errors.Is(err, ml.ErrShape) {
		t.Errorf("erwartet ErrShape, bekommen %v", err)
	}
}
