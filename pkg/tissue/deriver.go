// Package tissue derives the particle filter tractography maps (include, exclude
// and interface) from white matter, gray matter, CSF and sub-cortical PVE maps.
//
// Reference: Girard, G., Whittingstall K., Deriche, R., and Descoteaux, M.
// (2014). Towards quantitative connectivity analysis: reducing tractography
// biases. Neuroimage.
package tissue

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrShapeMismatch is returned when the input maps do not have the same number of voxels.
	ErrShapeMismatch = errors.New("tissue maps have different sizes")

	// ErrInvalidParams is returned by Params.Validate.
	ErrInvalidParams = errors.New("invalid mask parameters")
)

const (
	// DefaultThreshold is the minimum gm and wm PVE for a voxel to be part of the interface.
	DefaultThreshold = 0.1

	// DefaultSCIncludeVal attributes 30% of the sub-cortical PVE to gray matter.
	DefaultSCIncludeVal = 0.3
)

// Params controls the derivation.
type Params struct {
	// Threshold is the minimum gm and wm probability for interface membership
	Threshold float64

	// SCIncludeVal is the fraction of sub-cortical probability given to gray matter.
	// 0 treats sub-cortical structures as white matter, 1 as gray matter.
	SCIncludeVal float64
}

// DefaultParams returns Threshold 0.1 and SCIncludeVal 0.3.
func DefaultParams() Params {
	return Params{
		Threshold:    DefaultThreshold,
		SCIncludeVal: DefaultSCIncludeVal,
	}
}

// Validate checks that the parameters are finite and SCIncludeVal lies in [0,1].
func (p Params) Validate() error {
	if math.IsNaN(p.Threshold) || math.IsInf(p.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be finite, got %v", ErrInvalidParams, p.Threshold)
	}
	if math.IsNaN(p.SCIncludeVal) || p.SCIncludeVal < 0 || p.SCIncludeVal > 1 {
		return fmt.Errorf("%w: sc_include_val must be in [0,1], got %v", ErrInvalidParams, p.SCIncludeVal)
	}
	return nil
}

// Inputs holds the four PVE maps, flattened in the same voxel order.
type Inputs struct {
	WM  []float64
	GM  []float64
	CSF []float64
	SC  []float64
}

// Len returns the voxel count, or an error when the maps disagree.
func (in Inputs) Len() (int, error) {
	n := len(in.WM)
	if len(in.GM) != n || len(in.CSF) != n || len(in.SC) != n {
		return 0, fmt.Errorf("%w: wm=%d gm=%d csf=%d sc=%d",
			ErrShapeMismatch, len(in.WM), len(in.GM), len(in.CSF), len(in.SC))
	}
	return n, nil
}

// Maps holds the derived maps. All slices are freshly allocated and never alias the inputs.
type Maps struct {
	// Include is the probability that a streamline may stop in the voxel
	Include []float64

	// Exclude is the probability that a streamline must be rejected in the voxel (the CSF map)
	Exclude []float64

	// Interface is 1 on the gray/white matter boundary, 0 elsewhere
	Interface []float64

	// Background is the number of voxels with no tissue at all
	Background int
}

// Redistribute splits the sub-cortical map between white and gray matter.
// wm and gm are left untouched.
func Redistribute(wm, gm, sc []float64, scIncludeVal float64) (wmAdj, gmAdj []float64) {
	wmAdj = make([]float64, len(wm))
	gmAdj = make([]float64, len(gm))
	floats.AddScaledTo(wmAdj, wm, 1-scIncludeVal, sc)
	floats.AddScaledTo(gmAdj, gm, scIncludeVal, sc)
	return wmAdj, gmAdj
}

// Derive computes the include, exclude and interface maps voxel by voxel.
//
// Interface is 1 where both the adjusted gm and wm reach p.Threshold. Include is
// the adjusted gm, set to 1 in background voxels; values are not clamped. Exclude
// is a copy of the CSF map.
func Derive(in Inputs, p Params) (*Maps, error) {
	n, err := in.Len()
	if err != nil {
		return nil, err
	}

	wmAdj, gmAdj := Redistribute(in.WM, in.GM, in.SC, p.SCIncludeVal)

	m := &Maps{
		Include:   gmAdj,
		Exclude:   make([]float64, n),
		Interface: make([]float64, n),
	}
	copy(m.Exclude, in.CSF)

	for i := 0; i < n; i++ {
		if gmAdj[i] >= p.Threshold && wmAdj[i] >= p.Threshold {
			m.Interface[i] = 1
		}

		background := !(gmAdj[i] > 0 || wmAdj[i] > 0 || in.CSF[i] > 0)
		if background {
			m.Include[i] = 1
			m.Background++
		}
	}

	return m, nil
}
