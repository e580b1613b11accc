package simdops

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSum(t *testing.T) {
	a := []float64{1, 2, 3, 4.5}
	assert.InDelta(t, 10.5, Sum(a), 1e-12)
	assert.Zero(t, Sum(nil))
}

func TestScale_InPlace(t *testing.T) {
	a := []float64{1, 2, 4}
	Scale(a, a, 0.5)
	assert.Equal(t, []float64{0.5, 1, 2}, a)
}

func TestMax(t *testing.T) {
	assert.Equal(t, 0.0, Max(nil))
	assert.Equal(t, -1.0, Max([]float64{-3, -1, -2}))
	assert.Equal(t, 9.0, Max([]float64{9, 1, 2}))
}

func BenchmarkScaleHistory(b *testing.B) {
	a := make([]float64, 500)
	for i := range a {
		a[i] = float64(i) * 0.01
	}

	b.ReportAllocs()
	for b.Loop() {
		Scale(a, a, 0.999)
	}
}
