package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Volume represents a 3D scalar volume sampled on a regular voxel grid.
type Volume struct {
	// Data is the voxel data as a 1D array, x fastest: z*Width*Height + y*Width + x
	Data []float64

	// Width is the size of the volume along the first (i) axis
	Width int

	// Height is the size of the volume along the second (j) axis
	Height int

	// Depth is the size of the volume along the third (k) axis
	Depth int

	// Affine maps voxel indices (i, j, k) to physical coordinates in mm
	Affine Affine
}

// NewVolume allocates a zero-filled volume with the given grid and affine.
func NewVolume(width, height, depth int, affine Affine) *Volume {
	return &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
		Affine: affine,
	}
}

// Shape returns the grid dimensions as (width, height, depth).
func (v *Volume) Shape() [3]int {
	return [3]int{v.Width, v.Height, v.Depth}
}

// NumVoxels returns Width*Height*Depth.
func (v *Volume) NumVoxels() int {
	return v.Width * v.Height * v.Depth
}

// Index returns the position of voxel (x, y, z) in Data.
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the value of voxel (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// SameGrid reports whether o has the same dimensions as v.
func (v *Volume) SameGrid(o *Volume) bool {
	return v.Shape() == o.Shape()
}

// WithData returns a volume on v's grid and affine holding data.
// data is used as-is, not copied.
func (v *Volume) WithData(data []float64) (*Volume, error) {
	if len(data) != v.NumVoxels() {
		return nil, fmt.Errorf("data length %d does not match grid %dx%dx%d", len(data), v.Width, v.Height, v.Depth)
	}
	return &Volume{
		Data:   data,
		Width:  v.Width,
		Height: v.Height,
		Depth:  v.Depth,
		Affine: v.Affine,
	}, nil
}

// Affine is a 4x4 homogeneous transform from voxel indices to world coordinates.
type Affine [4][4]float64

// IdentityAffine returns the identity transform.
func IdentityAffine() Affine {
	var a Affine
	for i := 0; i < 4; i++ {
		a[i][i] = 1
	}
	return a
}

// ScalingAffine returns a diagonal transform with the given voxel sizes.
func ScalingAffine(dx, dy, dz float64) Affine {
	a := IdentityAffine()
	a[0][0] = dx
	a[1][1] = dy
	a[2][2] = dz
	return a
}

// Linear returns the upper-left 3x3 rotation/zoom/shear block.
func (a Affine) Linear() *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.Set(r, c, a[r][c])
		}
	}
	return m
}

// Determinant of the 3x3 linear block. Negative for left-handed voxel axes.
func (a Affine) Determinant() float64 {
	return mat.Det(a.Linear())
}

// Zooms returns the voxel sizes, i.e. the column norms of the linear block.
func (a Affine) Zooms() [3]float64 {
	var z [3]float64
	for c := 0; c < 3; c++ {
		z[c] = math.Sqrt(a[0][c]*a[0][c] + a[1][c]*a[1][c] + a[2][c]*a[2][c])
	}
	return z
}

// MaxAbsDiff returns the largest elementwise absolute difference between a and o.
func (a Affine) MaxAbsDiff(o Affine) float64 {
	var d float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			d = math.Max(d, math.Abs(a[r][c]-o[r][c]))
		}
	}
	return d
}
