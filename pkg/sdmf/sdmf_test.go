package sdmf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectOrbit(t *testing.T) {
	orbits := []int32{1000, 2000, 3000}
	tests := []struct {
		orbit int
		want  int
	}{
		{500, 0},
		{1000, 0},
		{1999, 0},
		{2000, 1},
		{2500, 1},
		{9999, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SelectOrbit(orbits, tt.orbit), "orbit %d", tt.orbit)
	}
}

func TestRowOf(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	assert.Equal(t, []float32{3, 4}, rowOf(data, []uint{3, 2}, 1))
	assert.Equal(t, []float32{4, 5, 6}, rowOf(data, []uint{2, 3}, 1))
}

func TestNarrowRows(t *testing.T) {
	flat, n := narrowRows([][]float64{{1, 2}, {3, 4}})
	assert.Equal(t, uint(2), n)
	assert.Equal(t, []float32{1, 2, 3, 4}, flat)
	assert.Equal(t, []int32{12, 13}, orbitList([]float64{12, 13}))
}
