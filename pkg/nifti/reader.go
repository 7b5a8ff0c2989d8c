package nifti

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/gzip"

	"pftmaps/internal/models"
)

// ReadFile loads a NIfTI-1 volume. Gzip-compressed files are detected from
// their magic bytes, so the extension does not matter.
func ReadFile(path string) (*models.Volume, *Header, error) {
	raw, err := readAll(path)
	if err != nil {
		return nil, nil, err
	}

	vol, h, err := Decode(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return vol, h, nil
}

// readAll reads path, decompressing it when it is gzipped.
func readAll(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if len(raw) < 2 || raw[0] != 0x1f || raw[1] != 0x8b {
		return raw, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	return data, nil
}

// Decode parses an uncompressed single-file NIfTI-1 image.
func Decode(b []byte) (*models.Volume, *Header, error) {
	h, order, err := decodeHeader(b)
	if err != nil {
		return nil, nil, err
	}

	shape, err := h.Shape()
	if err != nil {
		return nil, nil, err
	}

	offset := int(h.VoxOffset)
	if offset < dataOffset {
		offset = dataOffset
	}

	nvox := shape[0] * shape[1] * shape[2]
	size := bytesPerVoxel(h.DataType)
	if len(b) < offset+nvox*size {
		return nil, nil, fmt.Errorf("%w: need %d bytes of voxel data at offset %d, file has %d",
			ErrInvalidHeader, nvox*size, offset, len(b))
	}

	vol := models.NewVolume(shape[0], shape[1], shape[2], h.Affine())
	decodeVoxels(vol.Data, b[offset:offset+nvox*size], h.DataType, order)

	slope, inter := float64(h.SclSlope), float64(h.SclInter)
	if slope != 0 && !math.IsNaN(slope) && !math.IsInf(slope, 0) && (slope != 1 || inter != 0) {
		if math.IsNaN(inter) || math.IsInf(inter, 0) {
			inter = 0
		}
		for i, v := range vol.Data {
			vol.Data[i] = v*slope + inter
		}
	}

	return vol, h, nil
}

// decodeVoxels converts raw voxel bytes into dst.
func decodeVoxels(dst []float64, src []byte, dt int16, order binary.ByteOrder) {
	for i := range dst {
		switch dt {
		case DTUint8:
			dst[i] = float64(src[i])
		case DTInt8:
			dst[i] = float64(int8(src[i]))
		case DTInt16:
			dst[i] = float64(int16(order.Uint16(src[i*2:])))
		case DTUint16:
			dst[i] = float64(order.Uint16(src[i*2:]))
		case DTInt32:
			dst[i] = float64(int32(order.Uint32(src[i*4:])))
		case DTUint32:
			dst[i] = float64(order.Uint32(src[i*4:]))
		case DTFloat32:
			dst[i] = float64(math.Float32frombits(order.Uint32(src[i*4:])))
		case DTInt64:
			dst[i] = float64(int64(order.Uint64(src[i*8:])))
		case DTUint64:
			dst[i] = float64(order.Uint64(src[i*8:]))
		case DTFloat64:
			dst[i] = math.Float64frombits(order.Uint64(src[i*8:]))
		}
	}
}
