package nifti

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"pftmaps/internal/models"
)

// NewHeader builds a float32 header for vol. The affine goes into the sform
// with code aligned; the qform fields carry the same transform with code
// unknown.
func NewHeader(vol *models.Volume) (*Header, error) {
	for _, n := range vol.Shape() {
		if n < 1 || n > math.MaxInt16 {
			return nil, fmt.Errorf("%w: grid %dx%dx%d", ErrUnsupportedDims, vol.Width, vol.Height, vol.Depth)
		}
	}
	if len(vol.Data) != vol.NumVoxels() {
		return nil, fmt.Errorf("volume has %d values for a %dx%dx%d grid", len(vol.Data), vol.Width, vol.Height, vol.Depth)
	}

	h := &Header{
		SizeOfHdr: HeaderSize,
		Dim:       [8]int16{3, int16(vol.Width), int16(vol.Height), int16(vol.Depth), 1, 1, 1, 1},
		DataType:  DTFloat32,
		BitPix:    32,
		PixDim:    [8]float32{1, 1, 1, 1, 1, 1, 1, 1},
		VoxOffset: dataOffset,
		SclSlope:  1,
		XYZTUnits: unitsMM,
		Magic:     magicSingleFile,
	}
	h.setAffine(vol.Affine)
	return h, nil
}

// Encode writes vol as little-endian float32 NIfTI-1 to w.
func Encode(w io.Writer, vol *models.Volume) error {
	h, err := NewHeader(vol)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	// extension flag: no extensions
	if _, err := bw.Write(make([]byte, dataOffset-HeaderSize)); err != nil {
		return fmt.Errorf("failed to write extension flag: %w", err)
	}

	var buf [4]byte
	for _, v := range vol.Data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(v)))
		if _, err := bw.Write(buf[:]); err != nil {
			return fmt.Errorf("failed to write voxel data: %w", err)
		}
	}
	return bw.Flush()
}

// WriteFile saves vol to path as float32. Paths ending in .gz are gzipped.
// The data goes to a temporary file in the same directory which is renamed
// over path once complete, so a failed write never leaves a partial file.
func WriteFile(path string, vol *models.Volume) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create output file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		zw := gzip.NewWriter(tmp)
		if err = Encode(zw, vol); err != nil {
			return fmt.Errorf("failed to encode %s: %w", path, err)
		}
		if err = zw.Close(); err != nil {
			return fmt.Errorf("failed to compress %s: %w", path, err)
		}
	} else if err = Encode(tmp, vol); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	if err = tmp.Chmod(0644); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
