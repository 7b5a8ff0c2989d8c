// Package visualization renders quality-control images of derived tractography maps.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"

	"pftmaps/internal/models"
)

// Viewer extracts 2D slices from a volume for inspection.
// Values are mapped from [0,1] to gray levels; anything outside is clamped
// for display only.
type Viewer struct {
	vol *models.Volume
}

// NewViewer creates a viewer over vol. The volume is not copied.
func NewViewer(vol *models.Volume) *Viewer {
	return &Viewer{vol: vol}
}

// axisSize returns the number of slices along axis.
func (v *Viewer) axisSize(axis string) (int, error) {
	switch strings.ToLower(axis) {
	case "x":
		return v.vol.Width, nil
	case "y":
		return v.vol.Height, nil
	case "z":
		return v.vol.Depth, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

func grayLevel(value float64) color.Gray16 {
	if math.IsNaN(value) {
		return color.Gray16{}
	}
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, value*65535)))}
}

// ExtractSlice extracts a 2D slice perpendicular to the given axis.
// An x slice is depth wide and height tall, a y slice width by depth, and a z
// slice width by height.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	n, err := v.axisSize(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= n {
		return nil, fmt.Errorf("position %d outside axis %s of size %d", position, axis, n)
	}

	vol := v.vol
	var img *image.Gray16

	switch strings.ToLower(axis) {
	case "x":
		img = image.NewGray16(image.Rect(0, 0, vol.Depth, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for z := 0; z < vol.Depth; z++ {
				img.SetGray16(z, y, grayLevel(vol.At(position, y, z)))
			}
		}
	case "y":
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Depth))
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, z, grayLevel(vol.At(x, position, z)))
			}
		}
	case "z":
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, y, grayLevel(vol.At(x, y, position)))
			}
		}
	}

	return img, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 90}); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	n, err := v.axisSize(axis)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < n; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// SaveMidSlices writes the central slice along each axis as
// <prefix>_<axis>.jpg in outputDir and returns the paths written.
func (v *Viewer) SaveMidSlices(outputDir, prefix string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	var paths []string
	for _, axis := range []string{"x", "y", "z"} {
		n, _ := v.axisSize(axis)
		img, err := v.ExtractSlice(axis, n/2)
		if err != nil {
			return paths, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s.jpg", prefix, axis))
		if err := v.SaveSlice(img, filename); err != nil {
			return paths, fmt.Errorf("failed to save %s: %w", filename, err)
		}
		paths = append(paths, filename)
	}

	return paths, nil
}
