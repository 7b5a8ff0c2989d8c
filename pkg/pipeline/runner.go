// Package pipeline turns four PVE volumes on disk into the include, exclude
// and interface maps used by particle filter tractography.
package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"pftmaps/internal/models"
	"pftmaps/pkg/nifti"
	"pftmaps/pkg/tissue"
	"pftmaps/pkg/visualization"
)

// affineTolerance is the largest affine difference between inputs that is
// accepted without a warning.
const affineTolerance = 1e-4

// Params holds the input/output paths and derivation settings.
type Params struct {
	// WM, GM, CSF and SC are the input PVE maps, e.g. CIVET classify/*pve_exact{wm,gm,csf,sc}*
	WM  string
	GM  string
	CSF string
	SC  string

	// Include, Exclude and Interface are the output paths
	Include   string
	Exclude   string
	Interface string

	// Masks controls the derivation
	Masks tissue.Params

	// Overwrite allows replacing existing outputs
	Overwrite bool

	// RangeTolerance is how far outside [0,1] an input may go before a warning
	RangeTolerance float64

	// QCDir receives mid-slice JPEGs and histograms when non-empty
	QCDir string

	// QCAllSlices adds every axial slice of each map under QCDir/<map>_slices
	QCAllSlices bool
}

// Runner executes the derivation once.
type Runner struct {
	params *Params
	log    zerolog.Logger

	// wm is the reference grid; its affine is written to every output
	wm *models.Volume

	maps  *tissue.Maps
	stats tissue.Stats
}

// NewRunner creates a runner for params.
func NewRunner(params *Params, logger zerolog.Logger) *Runner {
	return &Runner{
		params: params,
		log:    logger,
	}
}

// Process validates the paths and parameters, loads the inputs, derives the
// maps and writes them. Nothing is written unless every check passes.
func (r *Runner) Process() error {
	p := r.params
	start := time.Now()

	r.log.Debug().Msg("validating inputs and outputs")
	if err := assertInputsExist(p.WM, p.GM, p.CSF, p.SC); err != nil {
		return err
	}
	if err := assertOutputsWritable(p.Overwrite, p.Include, p.Exclude, p.Interface); err != nil {
		return err
	}
	if err := p.Masks.Validate(); err != nil {
		return err
	}

	in, err := r.loadInputs()
	if err != nil {
		return err
	}

	r.log.Info().
		Float64("threshold", p.Masks.Threshold).
		Float64("sc_include_val", p.Masks.SCIncludeVal).
		Msg("deriving maps")
	maps, err := tissue.Derive(in, p.Masks)
	if err != nil {
		return fmt.Errorf("failed to derive maps: %w", err)
	}
	r.maps = maps
	r.stats = tissue.Summarize(maps)

	if err := r.writeOutputs(); err != nil {
		return err
	}

	if p.QCDir != "" {
		if err := r.writeQC(); err != nil {
			r.log.Warn().Err(err).Str("dir", p.QCDir).Msg("failed to write QC images")
		}
	}

	r.log.Info().
		Int("voxels", r.stats.Voxels).
		Int("background", r.stats.BackgroundVoxels).
		Int("interface", r.stats.InterfaceVoxels).
		Float64("include_mean", r.stats.IncludeMean).
		Float64("exclude_mean", r.stats.ExcludeMean).
		Dur("elapsed", time.Since(start)).
		Msg("maps written")
	return nil
}

// GetStats returns the summary of the last successful derivation.
func (r *Runner) GetStats() tissue.Stats {
	return r.stats
}

// loadInputs reads the four PVE maps and checks that they share the wm grid.
func (r *Runner) loadInputs() (tissue.Inputs, error) {
	p := r.params
	names := []string{"wm", "gm", "csf", "sc"}
	paths := []string{p.WM, p.GM, p.CSF, p.SC}
	vols := make([]*models.Volume, len(paths))

	for i, path := range paths {
		vol, _, err := nifti.ReadFile(path)
		if err != nil {
			return tissue.Inputs{}, fmt.Errorf("failed to load %s map: %w", names[i], err)
		}
		shape := vol.Shape()
		r.log.Debug().
			Str("map", names[i]).
			Str("path", path).
			Ints("shape", shape[:]).
			Msg("loaded volume")

		if i > 0 {
			if !vols[0].SameGrid(vol) {
				return tissue.Inputs{}, fmt.Errorf("%w: %s is %v but %s is %v",
					ErrGridMismatch, path, vol.Shape(), p.WM, vols[0].Shape())
			}
			if d := vols[0].Affine.MaxAbsDiff(vol.Affine); d > affineTolerance {
				r.log.Warn().
					Str("path", path).
					Float64("max_diff", d).
					Msg("affine differs from the wm map, using the wm affine")
			}
		}

		if rep := tissue.CheckRange(vol.Data, p.RangeTolerance); !rep.OK() {
			r.log.Warn().
				Str("map", names[i]).
				Int("below_zero", rep.Below).
				Int("above_one", rep.Above).
				Int("nan", rep.NaN).
				Float64("min", rep.Min).
				Float64("max", rep.Max).
				Msg("PVE values outside [0,1]")
		}

		vols[i] = vol
	}

	r.wm = vols[0]
	return tissue.Inputs{
		WM:  vols[0].Data,
		GM:  vols[1].Data,
		CSF: vols[2].Data,
		SC:  vols[3].Data,
	}, nil
}

// output pairs a derived map with its destination.
type output struct {
	name  string
	title string
	path  string
	data  []float64
}

func (r *Runner) outputs() []output {
	return []output{
		{"include", "Include map", r.params.Include, r.maps.Include},
		{"exclude", "Exclude map", r.params.Exclude, r.maps.Exclude},
		{"interface", "Interface mask", r.params.Interface, r.maps.Interface},
	}
}

// writeOutputs saves the three maps as float32 with the wm affine.
func (r *Runner) writeOutputs() error {
	for _, out := range r.outputs() {
		vol, err := r.wm.WithData(out.data)
		if err != nil {
			return fmt.Errorf("failed to build %s map: %w", out.name, err)
		}
		if err := nifti.WriteFile(out.path, vol); err != nil {
			return fmt.Errorf("failed to write %s map: %w", out.name, err)
		}
		r.log.Info().Str("map", out.name).Str("path", out.path).Msg("saved")
	}
	return nil
}

// writeQC saves orthogonal mid-slices of every map and histograms of the
// probability maps.
func (r *Runner) writeQC() error {
	dir := r.params.QCDir
	for _, out := range r.outputs() {
		vol, err := r.wm.WithData(out.data)
		if err != nil {
			return err
		}
		viewer := visualization.NewViewer(vol)
		if _, err := viewer.SaveMidSlices(dir, out.name); err != nil {
			return err
		}
		if r.params.QCAllSlices {
			if err := viewer.SaveSliceSequence("z", filepath.Join(dir, out.name+"_slices")); err != nil {
				return err
			}
		}

		if out.name == "interface" {
			continue
		}
		histPath := filepath.Join(dir, out.name+"_hist.png")
		opts := visualization.HistogramOptions{
			Title:     out.title,
			SkipZeros: true,
		}
		if err := visualization.SaveHistogram(out.data, histPath, opts); err != nil {
			r.log.Warn().Err(err).Str("map", out.name).Msg("skipping histogram")
		}
	}
	r.log.Info().Str("dir", dir).Msg("QC images saved")
	return nil
}
