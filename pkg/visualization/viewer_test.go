package visualization

import (
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"pftmaps/internal/models"
)

// gradientVolume fills each z slice with the value z/depth
func gradientVolume(width, height, depth int) *models.Volume {
	vol := models.NewVolume(width, height, depth, models.IdentityAffine())
	for z := 0; z < depth; z++ {
		value := float64(z) / float64(depth)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vol.Data[vol.Index(x, y, z)] = value
			}
		}
	}
	return vol
}

// TestExtractSlice verifies that slices are correctly extracted from the volume
func TestExtractSlice(t *testing.T) {
	width, height, depth := 10, 8, 5
	viewer := NewViewer(gradientVolume(width, height, depth))

	for z := 0; z < depth; z++ {
		img, err := viewer.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("Failed to extract Z slice at position %d: %v", z, err)
		}

		bounds := img.Bounds()
		if bounds.Dx() != width || bounds.Dy() != height {
			t.Errorf("Expected Z slice dimensions %dx%d, got %dx%d",
				width, height, bounds.Dx(), bounds.Dy())
		}

		expected := uint16(float64(z) / float64(depth) * 65535)
		gray, ok := img.(*image.Gray16)
		if !ok {
			t.Fatalf("Expected *image.Gray16, got %T", img)
		}
		got := gray.Gray16At(width/2, height/2).Y
		if math.Abs(float64(got)-float64(expected)) > 1.0 {
			t.Errorf("Expected Z slice value ~%d at center, got %d", expected, got)
		}
	}

	imgX, err := viewer.ExtractSlice("X", width/2)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := imgX.Bounds(); b.Dx() != depth || b.Dy() != height {
		t.Errorf("Expected X slice dimensions %dx%d, got %dx%d", depth, height, b.Dx(), b.Dy())
	}

	imgY, err := viewer.ExtractSlice("y", height/2)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := imgY.Bounds(); b.Dx() != width || b.Dy() != depth {
		t.Errorf("Expected Y slice dimensions %dx%d, got %dx%d", width, depth, b.Dx(), b.Dy())
	}

	// along y, row z of the image carries the z value
	grayY := imgY.(*image.Gray16)
	if got := grayY.Gray16At(0, depth-1).Y; got == 0 {
		t.Errorf("Expected non-zero value on the last Y slice row")
	}
}

func TestExtractSliceErrors(t *testing.T) {
	viewer := NewViewer(gradientVolume(4, 4, 4))

	if _, err := viewer.ExtractSlice("w", 0); err == nil {
		t.Error("Expected error for invalid axis")
	}
	if _, err := viewer.ExtractSlice("z", -1); err == nil {
		t.Error("Expected error for negative position")
	}
	if _, err := viewer.ExtractSlice("z", 4); err == nil {
		t.Error("Expected error for position past the end")
	}
}

func TestExtractSliceClampsDisplay(t *testing.T) {
	vol := models.NewVolume(3, 1, 1, models.IdentityAffine())
	vol.Data = []float64{-0.5, 1.4, math.NaN()}

	img, err := NewViewer(vol).ExtractSlice("z", 0)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	gray := img.(*image.Gray16)
	if got := gray.Gray16At(0, 0).Y; got != 0 {
		t.Errorf("Expected negative value to clamp to 0, got %d", got)
	}
	if got := gray.Gray16At(1, 0).Y; got != 65535 {
		t.Errorf("Expected value above 1 to clamp to 65535, got %d", got)
	}
	if got := gray.Gray16At(2, 0).Y; got != 0 {
		t.Errorf("Expected NaN to render black, got %d", got)
	}
}

func TestSaveSlice(t *testing.T) {
	viewer := NewViewer(gradientVolume(6, 6, 3))
	img, err := viewer.ExtractSlice("z", 1)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "slice.jpg")
	if err := viewer.SaveSlice(img, path); err != nil {
		t.Fatalf("Failed to save slice: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	decoded, format, err := image.Decode(f)
	f.Close()
	if err != nil || format != "jpeg" {
		t.Fatalf("Expected a decodable jpeg, got %q (%v)", format, err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("Expected bounds %v, got %v", img.Bounds(), decoded.Bounds())
	}

	if err := viewer.SaveSlice(img, filepath.Join(dir, "missing", "slice.jpg")); err == nil {
		t.Error("Expected error for a missing directory")
	}
}

// TestSaveSliceSequence verifies that a full sequence of slices is written
func TestSaveSliceSequence(t *testing.T) {
	viewer := NewViewer(gradientVolume(6, 6, 3))
	dir := filepath.Join(t.TempDir(), "z")

	if err := viewer.SaveSliceSequence("z", dir); err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}

	for _, name := range []string{"slice_z_000.jpg", "slice_z_001.jpg", "slice_z_002.jpg"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s to exist: %v", name, err)
		}
	}

	if err := viewer.SaveSliceSequence("q", dir); err == nil {
		t.Error("Expected error for invalid axis")
	}
}

func TestSaveMidSlices(t *testing.T) {
	viewer := NewViewer(gradientVolume(5, 6, 7))
	dir := filepath.Join(t.TempDir(), "qc")

	paths, err := viewer.SaveMidSlices(dir, "include")
	if err != nil {
		t.Fatalf("Failed to save mid slices: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("Expected 3 slices, got %d", len(paths))
	}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			t.Fatalf("Failed to open %s: %v", p, err)
		}
		_, format, err := image.DecodeConfig(f)
		f.Close()
		if err != nil || format != "jpeg" {
			t.Errorf("Expected %s to be a jpeg, got %q (%v)", p, format, err)
		}
	}
}

func TestSaveHistogram(t *testing.T) {
	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i%100) / 100
	}
	values[0] = math.NaN()

	path := filepath.Join(t.TempDir(), "hist.png")
	if err := SaveHistogram(values, path, HistogramOptions{Title: "include", SkipZeros: true}); err != nil {
		t.Fatalf("Failed to save histogram: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatalf("Expected non-empty histogram file: %v", err)
	}
}

func TestSaveHistogramNoValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hist.png")
	err := SaveHistogram([]float64{0, 0, math.NaN()}, path, HistogramOptions{SkipZeros: true})
	if !errors.Is(err, ErrNoValues) {
		t.Fatalf("Expected ErrNoValues, got %v", err)
	}
}
