package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeIndexing(t *testing.T) {
	vol := NewVolume(4, 3, 2, IdentityAffine())
	require.Len(t, vol.Data, 24)

	vol.Data[vol.Index(1, 2, 1)] = 7
	assert.Equal(t, 7.0, vol.At(1, 2, 1))
	assert.Equal(t, 1*4*3+2*4+1, vol.Index(1, 2, 1))
	assert.Equal(t, [3]int{4, 3, 2}, vol.Shape())
	assert.Equal(t, 24, vol.NumVoxels())
}

func TestVolumeSameGridAndWithData(t *testing.T) {
	a := NewVolume(2, 2, 2, ScalingAffine(2, 2, 2))
	b := NewVolume(2, 2, 2, IdentityAffine())
	c := NewVolume(2, 2, 3, IdentityAffine())

	assert.True(t, a.SameGrid(b))
	assert.False(t, a.SameGrid(c))

	data := make([]float64, 8)
	out, err := a.WithData(data)
	require.NoError(t, err)
	assert.Equal(t, a.Affine, out.Affine)
	assert.Equal(t, a.Shape(), out.Shape())

	_, err = a.WithData(make([]float64, 7))
	assert.Error(t, err)
}

func TestAffineZoomsAndDeterminant(t *testing.T) {
	a := ScalingAffine(-1.5, 2, 3)
	assert.Equal(t, [3]float64{1.5, 2, 3}, a.Zooms())
	assert.InDelta(t, -9.0, a.Determinant(), 1e-12)
}

func TestAffineMaxAbsDiff(t *testing.T) {
	a := Affine{
		{0.9, -0.1, 0.2, 1},
		{0.1, 1.1, 0, 2},
		{0, 0.3, 0.8, 3},
		{0, 0, 0, 1},
	}
	assert.Zero(t, a.MaxAbsDiff(a))
	b := a
	b[1][3] += 0.5
	assert.Equal(t, 0.5, a.MaxAbsDiff(b))
}
