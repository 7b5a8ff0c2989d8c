package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pftmaps/internal/models"
	"pftmaps/pkg/config"
	"pftmaps/pkg/nifti"
	"pftmaps/pkg/pipeline"
)

// writeInputs writes a single-voxel-wide set of PVE maps and returns their paths
func writeInputs(t *testing.T, dir string) []string {
	t.Helper()
	maps := map[string][]float64{
		"wm":  {0.6, 0.05, 0, 0},
		"gm":  {0.3, 0.4, 0, 0.25},
		"csf": {0.1, 0, 0, 0.5},
		"sc":  {0, 0, 0, 0.25},
	}

	var paths []string
	for _, name := range []string{"wm", "gm", "csf", "sc"} {
		vol := models.NewVolume(2, 2, 1, models.ScalingAffine(1, 1, 1))
		copy(vol.Data, maps[name])
		path := filepath.Join(dir, name+".nii.gz")
		require.NoError(t, nifti.WriteFile(path, vol))
		paths = append(paths, path)
	}
	return paths
}

func outputArgs(dir string) []string {
	return []string{
		"--include", filepath.Join(dir, "include.nii.gz"),
		"--exclude", filepath.Join(dir, "exclude.nii.gz"),
		"--interface", filepath.Join(dir, "interface.nii.gz"),
	}
}

func toFloat32(data []float64) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(float32(v))
	}
	return out
}

func runApp(args ...string) error {
	return runCLI(newApp(zerolog.Nop()), append([]string{"pftmaps"}, args...))
}

func TestRunDefaults(t *testing.T) {
	dir := t.TempDir()
	inputs := writeInputs(t, dir)

	args := append(outputArgs(dir), inputs...)
	require.NoError(t, runApp(args...))

	iface, _, err := nifti.ReadFile(filepath.Join(dir, "interface.nii.gz"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0, 1}, iface.Data)

	include, _, err := nifti.ReadFile(filepath.Join(dir, "include.nii.gz"))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, include.Data[0], 1e-6)
	assert.Equal(t, 1.0, include.Data[2], "background voxel")
	assert.InDelta(t, 0.325, include.Data[3], 1e-6)
}

func TestRunInputsBeforeOptions(t *testing.T) {
	dir := t.TempDir()
	inputs := writeInputs(t, dir)

	args := append(append([]string{}, inputs...), outputArgs(dir)...)
	args = append(args, "--threshold", "0.5", "-f")
	require.NoError(t, runApp(args...))

	iface, _, err := nifti.ReadFile(filepath.Join(dir, "interface.nii.gz"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, iface.Data)
}

func TestRunOptionsBetweenInputs(t *testing.T) {
	dir := t.TempDir()
	inputs := writeInputs(t, dir)

	args := []string{inputs[0], inputs[1], "--include", filepath.Join(dir, "include.nii.gz")}
	args = append(args, inputs[2], "--exclude="+filepath.Join(dir, "exclude.nii.gz"), inputs[3])
	args = append(args, "--interface", filepath.Join(dir, "interface.nii.gz"))
	require.NoError(t, runApp(args...))

	exclude, _, err := nifti.ReadFile(filepath.Join(dir, "exclude.nii.gz"))
	require.NoError(t, err)
	assert.Equal(t, toFloat32([]float64{0.1, 0, 0, 0.5}), exclude.Data)
}

func TestFlagsFirst(t *testing.T) {
	flags := newApp(zerolog.Nop()).Flags

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "options already first",
			args: []string{"pftmaps", "--include", "i.nii", "wm", "gm"},
			want: []string{"pftmaps", "--include", "i.nii", "--", "wm", "gm"},
		},
		{
			name: "options after inputs",
			args: []string{"pftmaps", "wm", "gm", "-f", "--threshold", "-0.2", "csf"},
			want: []string{"pftmaps", "-f", "--threshold", "-0.2", "--", "wm", "gm", "csf"},
		},
		{
			name: "inline value",
			args: []string{"pftmaps", "wm", "--sc_include_val=0.5", "gm"},
			want: []string{"pftmaps", "--sc_include_val=0.5", "--", "wm", "gm"},
		},
		{
			name: "terminator keeps dashed inputs",
			args: []string{"pftmaps", "--overwrite", "--", "-wm.nii", "gm"},
			want: []string{"pftmaps", "--overwrite", "--", "-wm.nii", "gm"},
		},
		{
			name: "no inputs",
			args: []string{"pftmaps", "--qc-all-slices"},
			want: []string{"pftmaps", "--qc-all-slices"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, flagsFirst(flags, tt.args))
		})
	}
}

func TestRunThresholdFlag(t *testing.T) {
	dir := t.TempDir()
	inputs := writeInputs(t, dir)

	args := append(outputArgs(dir), "--threshold", "0.5")
	args = append(args, inputs...)
	require.NoError(t, runApp(args...))

	iface, _, err := nifti.ReadFile(filepath.Join(dir, "interface.nii.gz"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, iface.Data)
}

func TestRunOverwrite(t *testing.T) {
	dir := t.TempDir()
	inputs := writeInputs(t, dir)
	args := append(outputArgs(dir), inputs...)

	require.NoError(t, runApp(args...))

	err := runApp(args...)
	assert.ErrorIs(t, err, pipeline.ErrOutputExists)

	require.NoError(t, runApp(append([]string{"-f"}, args...)...))
}

func TestRunArgumentErrors(t *testing.T) {
	dir := t.TempDir()
	inputs := writeInputs(t, dir)

	assert.Error(t, runApp(append(outputArgs(dir), inputs[:3]...)...), "three inputs")
	assert.Error(t, runApp(inputs...), "missing required outputs")

	args := append(outputArgs(dir), "--sc_include_val", "2")
	assert.Error(t, runApp(append(args, inputs...)...), "sc_include_val out of range")

	args = append(outputArgs(dir), "--config", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, runApp(append(args, inputs...)...), "missing config file")
}

func TestRunConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	inputs := writeInputs(t, dir)

	cfg := config.DefaultConfig()
	cfg.Masks.Threshold = 0.5
	cfg.Masks.SCIncludeVal = 1
	cfgPath := filepath.Join(dir, "pftmaps.yaml")
	require.NoError(t, config.SaveConfig(cfg, cfgPath))

	saved := filepath.Join(dir, "effective.yaml")
	args := append(outputArgs(dir), "--config", cfgPath, "--threshold", "0.1", "--save-config", saved)
	require.NoError(t, runApp(append(args, inputs...)...))

	effective, err := config.LoadConfig(saved)
	require.NoError(t, err)
	assert.Equal(t, 0.1, effective.Masks.Threshold, "flag wins over config")
	assert.Equal(t, 1.0, effective.Masks.SCIncludeVal, "config wins over default")

	// sc_include_val=1 sends all sub-cortical mass to gm, so voxel 3 has wm'=0
	iface, _, err := nifti.ReadFile(filepath.Join(dir, "interface.nii.gz"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0, 0}, iface.Data)
}

func TestRunQCDir(t *testing.T) {
	dir := t.TempDir()
	inputs := writeInputs(t, dir)
	qc := filepath.Join(dir, "qc")

	args := append(outputArgs(dir), "--qc-dir", qc)
	require.NoError(t, runApp(append(args, inputs...)...))

	_, err := os.Stat(filepath.Join(qc, "include_z.jpg"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(qc, "include_slices"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunQCAllSlices(t *testing.T) {
	dir := t.TempDir()
	inputs := writeInputs(t, dir)
	qc := filepath.Join(dir, "qc")

	args := append(outputArgs(dir), "--qc-dir", qc, "--qc-all-slices")
	require.NoError(t, runApp(append(args, inputs...)...))

	_, err := os.Stat(filepath.Join(qc, "interface_slices", "slice_z_000.jpg"))
	assert.NoError(t, err)
}
