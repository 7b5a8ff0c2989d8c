// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and .nii.gz).
//
// Based on the official definition of the nifti1 header,
// https://nifti.nimh.nih.gov/pub/dist/src/niftilib/nifti1.h
package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"pftmaps/internal/models"
)

var (
	// ErrInvalidHeader is returned when a file does not hold a NIfTI-1 header.
	ErrInvalidHeader = errors.New("invalid nifti1 header")

	// ErrUnsupportedDatatype is returned for datatypes the reader cannot decode.
	ErrUnsupportedDatatype = errors.New("unsupported nifti datatype")

	// ErrUnsupportedDims is returned for volumes with more than one 3D frame.
	ErrUnsupportedDims = errors.New("unsupported nifti dimensions")
)

const (
	// HeaderSize is sizeof_hdr for NIfTI-1.
	HeaderSize = 348

	// dataOffset is where voxel data starts in files we write: the header plus
	// the 4-byte extension flag.
	dataOffset = 352
)

// Datatype codes (NIFTI_TYPE_*).
const (
	DTUint8   = 2
	DTInt16   = 4
	DTInt32   = 8
	DTFloat32 = 16
	DTFloat64 = 64
	DTInt8    = 256
	DTUint16  = 512
	DTUint32  = 768
	DTInt64   = 1024
	DTUint64  = 1280
)

// Transform codes (NIFTI_XFORM_*).
const (
	XformUnknown     = 0
	XformScannerAnat = 1
	XformAlignedAnat = 2
)

// NIFTI_UNITS_MM
const unitsMM = 2

var magicSingleFile = [4]byte{'n', '+', '1', 0}

// Header defines the on-disk layout of the NIfTI-1 header.
//
// Type translation from nifti1 C header to golang:
//
//	C     Go
//	-------------
//	int   int32
//	float float32
//	short int16
//	char  int8 / byte
type Header struct {
	SizeOfHdr          int32    // Must be 348
	UnusedDataType     [10]byte // Unused
	UnusedDbName       [18]byte // Unused
	UnusedExtents      int32    // Unused
	UnusedSessionError int16    // Unused
	UnusedRegular      int8     // Unused
	DimInfo            int8     // MRI slice ordering

	Dim           [8]int16   // Data array dimensions
	IntentP1      float32    // 1st intent parameter
	IntentP2      float32    // 2nd intent parameter
	IntentP3      float32    // 3rd intent parameter
	IntentCode    int16      // NIFTI_INTENT_* code
	DataType      int16      // Defines data type
	BitPix        int16      // Number bits/voxel
	SliceStart    int16      // First slice index
	PixDim        [8]float32 // Grid spacing, PixDim[0] is qfac
	VoxOffset     float32    // Offset into .nii file
	SclSlope      float32    // Data scaling: slope
	SclInter      float32    // Data scaling: offset
	SliceEnd      int16      // Last slice index
	SliceCode     int8       // Slice timing order
	XYZTUnits     int8       // Units of pixdim[1..4]
	CalMax        float32    // Max display intensity
	CalMin        float32    // Min display intensity
	SliceDuration float32    // Time for 1 slice
	TOffset       float32    // Time axis shift
	UnusedGlmax   int32      // Unused
	UnusedGlmin   int32      // Unused

	Descrip [80]byte // Any text you like
	AuxFile [24]byte // Auxiliary filename

	QFormCode int16 // NIFTI_XFORM_* code
	SFormCode int16 // NIFTI_XFORM_* code

	QuaternB float32 // Quaternion b param
	QuaternC float32 // Quaternion c param
	QuaternD float32 // Quaternion d param
	QOffsetX float32 // Quaternion x shift
	QOffsetY float32 // Quaternion y shift
	QOffsetZ float32 // Quaternion z shift

	SRowX [4]float32 // 1st row affine transform
	SRowY [4]float32 // 2nd row affine transform
	SRowZ [4]float32 // 3rd row affine transform

	IntentName [16]byte // 'name' or meaning of data

	Magic [4]byte // Must be "n+1\0" for single-file NIfTI
}

// decodeHeader parses the first HeaderSize bytes of b. The byte order is
// inferred from Dim[0], which must lie in [1, 7].
func decodeHeader(b []byte) (*Header, binary.ByteOrder, error) {
	if len(b) < HeaderSize {
		return nil, nil, fmt.Errorf("%w: file is %d bytes, shorter than the header", ErrInvalidHeader, len(b))
	}

	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		h := &Header{}
		if err := binary.Read(bytes.NewReader(b[:HeaderSize]), order, h); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
		}
		if h.Dim[0] < 1 || h.Dim[0] > 7 {
			continue
		}
		if err := h.validate(); err != nil {
			return nil, nil, err
		}
		return h, order, nil
	}

	return nil, nil, fmt.Errorf("%w: cannot infer byte order, dim[0] not in [1, 7]", ErrInvalidHeader)
}

// validate checks sizeof_hdr, the file magic and the datatype.
func (h *Header) validate() error {
	switch {
	case h.SizeOfHdr != HeaderSize:
		return fmt.Errorf("%w: sizeof_hdr is %d, want %d", ErrInvalidHeader, h.SizeOfHdr, HeaderSize)
	case h.Magic != magicSingleFile:
		return fmt.Errorf("%w: magic %q, header and data must be in the same file", ErrInvalidHeader, h.Magic[:3])
	case bytesPerVoxel(h.DataType) == 0:
		return fmt.Errorf("%w: datatype code %d", ErrUnsupportedDatatype, h.DataType)
	}
	return nil
}

// Shape returns the spatial grid. Missing dimensions count as 1 and every
// dimension past the third must be 1.
func (h *Header) Shape() ([3]int, error) {
	ndim := int(h.Dim[0])
	shape := [3]int{1, 1, 1}
	for i := 1; i <= ndim; i++ {
		n := int(h.Dim[i])
		if n < 1 {
			return shape, fmt.Errorf("%w: dim[%d] = %d", ErrUnsupportedDims, i, n)
		}
		if i <= 3 {
			shape[i-1] = n
		} else if n != 1 {
			return shape, fmt.Errorf("%w: dim[%d] = %d, only single 3D volumes are supported", ErrUnsupportedDims, i, n)
		}
	}
	return shape, nil
}

// Affine returns the voxel-to-world transform using the same precedence as
// nibabel: sform when its code is set, then qform, then a centered pixdim
// matrix.
func (h *Header) Affine() models.Affine {
	switch {
	case h.SFormCode > XformUnknown:
		a := models.IdentityAffine()
		for c := 0; c < 4; c++ {
			a[0][c] = float64(h.SRowX[c])
			a[1][c] = float64(h.SRowY[c])
			a[2][c] = float64(h.SRowZ[c])
		}
		return a
	case h.QFormCode > XformUnknown:
		return h.qformAffine()
	default:
		return h.baseAffine()
	}
}

// zooms returns pixdim[1..3], with non-positive sizes replaced by 1.
func (h *Header) zooms() [3]float64 {
	var z [3]float64
	for i := range z {
		z[i] = float64(h.PixDim[i+1])
		if z[i] <= 0 {
			z[i] = 1
		}
	}
	return z
}

// qformAffine follows nifti_quatern_to_mat44.
func (h *Header) qformAffine() models.Affine {
	b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		// special case: a 180 degree rotation, renormalize (b, c, d)
		a = 1 / math.Sqrt(b*b+c*c+d*d)
		b *= a
		c *= a
		d *= a
		a = 0
	} else {
		a = math.Sqrt(a)
	}

	z := h.zooms()
	if h.PixDim[0] < 0 {
		z[2] = -z[2]
	}

	r := [3][3]float64{
		{a*a + b*b - c*c - d*d, 2 * (b*c - a*d), 2 * (b*d + a*c)},
		{2 * (b*c + a*d), a*a + c*c - b*b - d*d, 2 * (c*d - a*b)},
		{2 * (b*d - a*c), 2 * (c*d + a*b), a*a + d*d - c*c - b*b},
	}

	m := models.IdentityAffine()
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			m[row][col] = r[row][col] * z[col]
		}
	}
	m[0][3] = float64(h.QOffsetX)
	m[1][3] = float64(h.QOffsetY)
	m[2][3] = float64(h.QOffsetZ)
	return m
}

// baseAffine is the Analyze-style fallback: pixdim scaling with a flipped x
// axis and the origin at the grid center.
func (h *Header) baseAffine() models.Affine {
	z := h.zooms()
	shape, _ := h.Shape()
	a := models.IdentityAffine()
	a[0][0] = -z[0]
	a[1][1] = z[1]
	a[2][2] = z[2]
	a[0][3] = float64(shape[0]-1) / 2 * z[0]
	a[1][3] = -float64(shape[1]-1) / 2 * z[1]
	a[2][3] = -float64(shape[2]-1) / 2 * z[2]
	return a
}

// setAffine stores a in the sform (aligned) and, with code unknown, in the
// quaternion fields and pixdim.
func (h *Header) setAffine(a models.Affine) {
	h.SFormCode = XformAlignedAnat
	for c := 0; c < 4; c++ {
		h.SRowX[c] = float32(a[0][c])
		h.SRowY[c] = float32(a[1][c])
		h.SRowZ[c] = float32(a[2][c])
	}

	h.QFormCode = XformUnknown
	zooms, qfac, quat := quaternFromAffine(a)
	h.PixDim[0] = float32(qfac)
	for i := 0; i < 3; i++ {
		h.PixDim[i+1] = float32(zooms[i])
	}
	h.QuaternB = float32(quat[0])
	h.QuaternC = float32(quat[1])
	h.QuaternD = float32(quat[2])
	h.QOffsetX = float32(a[0][3])
	h.QOffsetY = float32(a[1][3])
	h.QOffsetZ = float32(a[2][3])
}

// quaternFromAffine follows nifti_mat44_to_quatern for affines whose linear
// block is a rotation times a diagonal zoom. Shears are not removed.
func quaternFromAffine(a models.Affine) (zooms [3]float64, qfac float64, bcd [3]float64) {
	zooms = a.Zooms()
	var r [3][3]float64
	for col := 0; col < 3; col++ {
		if zooms[col] == 0 {
			zooms[col] = 1
			r[col][col] = 1
			continue
		}
		for row := 0; row < 3; row++ {
			r[row][col] = a[row][col] / zooms[col]
		}
	}

	qfac = 1
	if a.Determinant() < 0 {
		qfac = -1
		for row := 0; row < 3; row++ {
			r[row][2] = -r[row][2]
		}
	}

	var qa, qb, qc, qd float64
	trace := r[0][0] + r[1][1] + r[2][2] + 1
	if trace > 0.5 {
		qa = 0.5 * math.Sqrt(trace)
		qb = 0.25 * (r[2][1] - r[1][2]) / qa
		qc = 0.25 * (r[0][2] - r[2][0]) / qa
		qd = 0.25 * (r[1][0] - r[0][1]) / qa
	} else {
		xd := 1 + r[0][0] - (r[1][1] + r[2][2])
		yd := 1 + r[1][1] - (r[0][0] + r[2][2])
		zd := 1 + r[2][2] - (r[0][0] + r[1][1])
		switch {
		case xd > 1:
			qb = 0.5 * math.Sqrt(xd)
			qc = 0.25 * (r[0][1] + r[1][0]) / qb
			qd = 0.25 * (r[0][2] + r[2][0]) / qb
			qa = 0.25 * (r[2][1] - r[1][2]) / qb
		case yd > 1:
			qc = 0.5 * math.Sqrt(yd)
			qb = 0.25 * (r[0][1] + r[1][0]) / qc
			qd = 0.25 * (r[1][2] + r[2][1]) / qc
			qa = 0.25 * (r[0][2] - r[2][0]) / qc
		default:
			qd = 0.5 * math.Sqrt(zd)
			qb = 0.25 * (r[0][2] + r[2][0]) / qd
			qc = 0.25 * (r[1][2] + r[2][1]) / qd
			qa = 0.25 * (r[1][0] - r[0][1]) / qd
		}
		if qa < 0 {
			qb, qc, qd = -qb, -qc, -qd
		}
	}

	return zooms, qfac, [3]float64{qb, qc, qd}
}

// bytesPerVoxel returns the storage size of a datatype, or 0 if unsupported.
func bytesPerVoxel(dt int16) int {
	switch dt {
	case DTUint8, DTInt8:
		return 1
	case DTInt16, DTUint16:
		return 2
	case DTInt32, DTUint32, DTFloat32:
		return 4
	case DTInt64, DTUint64, DTFloat64:
		return 8
	}
	return 0
}
