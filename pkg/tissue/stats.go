package tissue

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes a derivation for logging and QC.
type Stats struct {
	Voxels           int
	BackgroundVoxels int
	InterfaceVoxels  int

	// IncludeMean and ExcludeMean are computed over all voxels
	IncludeMean float64
	ExcludeMean float64

	// IncludeAboveOne counts include voxels greater than 1, which can happen
	// when gm+sc exceeds 1 since the include map is not clamped
	IncludeAboveOne int
}

// Summarize computes Stats for m.
func Summarize(m *Maps) Stats {
	s := Stats{
		Voxels:           len(m.Include),
		BackgroundVoxels: m.Background,
		InterfaceVoxels:  int(floats.Sum(m.Interface)),
	}
	if s.Voxels == 0 {
		return s
	}

	s.IncludeMean = stat.Mean(m.Include, nil)
	s.ExcludeMean = stat.Mean(m.Exclude, nil)
	for _, v := range m.Include {
		if v > 1 {
			s.IncludeAboveOne++
		}
	}
	return s
}

// RangeReport counts voxels of a probability map that fall outside [0,1].
type RangeReport struct {
	Below int
	Above int
	NaN   int
	Min   float64
	Max   float64
}

// OK reports whether every voxel was finite and within range.
func (r RangeReport) OK() bool {
	return r.Below == 0 && r.Above == 0 && r.NaN == 0
}

// CheckRange scans data for values below -tol, above 1+tol or NaN.
func CheckRange(data []float64, tol float64) RangeReport {
	r := RangeReport{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, v := range data {
		if math.IsNaN(v) {
			r.NaN++
			continue
		}
		if v < -tol {
			r.Below++
		}
		if v > 1+tol {
			r.Above++
		}
		r.Min = math.Min(r.Min, v)
		r.Max = math.Max(r.Max, v)
	}
	if len(data) == r.NaN {
		r.Min, r.Max = math.NaN(), math.NaN()
	}
	return r
}
