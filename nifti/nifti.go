// Package nifti reads and writes single-file NIfTI-1 volumes
// (.nii and .nii.gz). Volumes decode to tensors of shape [Z, Y, X],
// which shares the flat voxel order of the file (x fastest).
package nifti

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/AmeerHamza111/MONAI/tensor"
)

// Voxel datatype codes from the NIfTI-1 standard.
const (
	TypeUint8   int16 = 2
	TypeInt16   int16 = 4
	TypeInt32   int16 = 8
	TypeFloat32 int16 = 16
	TypeFloat64 int16 = 64
)

const (
	headerSize = 348
	dataOffset = 352
)

// Header is the fixed 348-byte NIfTI-1 header. Field order and widths
// follow the standard; encoding/binary serializes it verbatim.
type Header struct {
	SizeofHdr                    int32
	DataTypeName                 [10]byte
	DBName                       [18]byte
	Extents                      int32
	SessionError                 int16
	Regular                      byte
	DimInfo                      byte
	Dim                          [8]int16
	IntentP1, IntentP2, IntentP3 float32
	IntentCode                   int16
	Datatype                     int16
	Bitpix                       int16
	SliceStart                   int16
	Pixdim                       [8]float32
	VoxOffset                    float32
	SclSlope                     float32
	SclInter                     float32
	SliceEnd                     int16
	SliceCode                    byte
	XyztUnits                    byte
	CalMax                       float32
	CalMin                       float32
	SliceDuration                float32
	Toffset                      float32
	Glmax                        int32
	Glmin                        int32
	Descrip                      [80]byte
	AuxFile                      [24]byte
	QformCode                    int16
	SformCode                    int16
	QuaternB, QuaternC, QuaternD float32
	QoffsetX, QoffsetY, QoffsetZ float32
	SrowX                        [4]float32
	SrowY                        [4]float32
	SrowZ                        [4]float32
	IntentName                   [16]byte
	Magic                        [4]byte
}

func bitpixFor(datatype int16) (int16, error) {
	switch datatype {
	case TypeUint8:
		return 8, nil
	case TypeInt16:
		return 16, nil
	case TypeInt32, TypeFloat32:
		return 32, nil
	case TypeFloat64:
		return 64, nil
	}
	return 0, fmt.Errorf("unsupported NIfTI datatype %d", datatype)
}

// Decode reads one NIfTI-1 volume from r.
func Decode(r io.Reader) (*tensor.Tensor, *Header, error) {
	var hdr Header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, nil, fmt.Errorf("failed to read NIfTI header: %w", err)
	}
	if hdr.SizeofHdr != headerSize {
		return nil, nil, fmt.Errorf("bad NIfTI header size %d, want %d", hdr.SizeofHdr, headerSize)
	}
	if string(hdr.Magic[:3]) != "n+1" || hdr.Magic[3] != 0 {
		return nil, nil, fmt.Errorf("bad NIfTI magic %q", hdr.Magic[:])
	}
	nd := int(hdr.Dim[0])
	if nd < 1 || nd > 3 {
		return nil, nil, fmt.Errorf("unsupported NIfTI rank %d", nd)
	}
	nx, ny, nz := int(hdr.Dim[1]), 1, 1
	if nd >= 2 {
		ny = int(hdr.Dim[2])
	}
	if nd >= 3 {
		nz = int(hdr.Dim[3])
	}
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, nil, fmt.Errorf("bad NIfTI dims %v", hdr.Dim)
	}
	if _, err := bitpixFor(hdr.Datatype); err != nil {
		return nil, nil, err
	}

	// Skip the extension flag and any extension payload up to vox_offset.
	skip := int(hdr.VoxOffset) - headerSize
	if skip < 4 {
		return nil, nil, fmt.Errorf("bad vox_offset %.0f", hdr.VoxOffset)
	}
	if _, err := io.CopyN(io.Discard, r, int64(skip)); err != nil {
		return nil, nil, fmt.Errorf("failed to skip to voxel data: %w", err)
	}

	n := nx * ny * nz
	data := make([]float64, n)
	if err := readVoxels(r, hdr.Datatype, data); err != nil {
		return nil, nil, err
	}
	if hdr.SclSlope != 0 && !(hdr.SclSlope == 1 && hdr.SclInter == 0) {
		slope, inter := float64(hdr.SclSlope), float64(hdr.SclInter)
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}
	t, err := tensor.FromData([]int{nz, ny, nx}, data)
	if err != nil {
		return nil, nil, err
	}
	return t, &hdr, nil
}

func readVoxels(r io.Reader, datatype int16, dst []float64) error {
	bitpix, err := bitpixFor(datatype)
	if err != nil {
		return err
	}
	raw := make([]byte, len(dst)*int(bitpix)/8)
	if _, err := io.ReadFull(r, raw); err != nil {
		return fmt.Errorf("failed to read voxel data: %w", err)
	}
	switch datatype {
	case TypeUint8:
		for i := range dst {
			dst[i] = float64(raw[i])
		}
	case TypeInt16:
		for i := range dst {
			dst[i] = float64(int16(binary.LittleEndian.Uint16(raw[i*2:])))
		}
	case TypeInt32:
		for i := range dst {
			dst[i] = float64(int32(binary.LittleEndian.Uint32(raw[i*4:])))
		}
	case TypeFloat32:
		for i := range dst {
			dst[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		}
	case TypeFloat64:
		for i := range dst {
			dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
	}
	return nil
}

// Encode writes t as a NIfTI-1 volume with identity affine and unit
// voxel spacing. t must be 3-D with shape [Z, Y, X].
func Encode(w io.Writer, t *tensor.Tensor, datatype int16, descrip string) error {
	if len(t.Shape) != 3 {
		return fmt.Errorf("Encode requires a 3-D [Z,Y,X] tensor, got shape %v", t.Shape)
	}
	bitpix, err := bitpixFor(datatype)
	if err != nil {
		return err
	}
	nz, ny, nx := t.Shape[0], t.Shape[1], t.Shape[2]

	hdr := Header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Dim:       [8]int16{3, int16(nx), int16(ny), int16(nz), 1, 1, 1, 1},
		Datatype:  datatype,
		Bitpix:    bitpix,
		Pixdim:    [8]float32{1, 1, 1, 1, 1, 1, 1, 1},
		VoxOffset: dataOffset,
		SclSlope:  1,
		SformCode: 1,
		SrowX:     [4]float32{1, 0, 0, 0},
		SrowY:     [4]float32{0, 1, 0, 0},
		SrowZ:     [4]float32{0, 0, 1, 0},
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	copy(hdr.Descrip[:], descrip)

	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("failed to write NIfTI header: %w", err)
	}
	// Extension flag: four zero bytes, no extensions.
	if _, err := w.Write([]byte{0, 0, 0, 0}); err != nil {
		return fmt.Errorf("failed to write extension flag: %w", err)
	}
	return writeVoxels(w, datatype, t.Data)
}

func writeVoxels(w io.Writer, datatype int16, src []float64) error {
	bitpix, _ := bitpixFor(datatype)
	raw := make([]byte, len(src)*int(bitpix)/8)
	switch datatype {
	case TypeUint8:
		for i, v := range src {
			raw[i] = byte(clamp(math.Round(v), 0, 255))
		}
	case TypeInt16:
		for i, v := range src {
			binary.LittleEndian.PutUint16(raw[i*2:], uint16(int16(clamp(math.Round(v), -32768, 32767))))
		}
	case TypeInt32:
		for i, v := range src {
			binary.LittleEndian.PutUint32(raw[i*4:], uint32(int32(clamp(math.Round(v), math.MinInt32, math.MaxInt32))))
		}
	case TypeFloat32:
		for i, v := range src {
			binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(float32(v)))
		}
	case TypeFloat64:
		for i, v := range src {
			binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
		}
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("failed to write voxel data: %w", err)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ReadFile decodes the volume at path, transparently handling .gz.
func ReadFile(path string) (*tensor.Tensor, error) {
	t, _, err := ReadFileHeader(path)
	return t, err
}

// ReadFileHeader is ReadFile but also returns the parsed header.
func ReadFileHeader(path string) (*tensor.Tensor, *Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	t, hdr, err := Decode(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, hdr, nil
}

// WriteFile encodes t to path, gzip-compressed when the name ends in .gz.
func WriteFile(path string, t *tensor.Tensor, datatype int16, descrip string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		if err := Encode(gz, t, datatype, descrip); err != nil {
			gz.Close()
			return err
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to finish gzip stream %s: %w", path, err)
		}
	} else if err := Encode(f, t, datatype, descrip); err != nil {
		return err
	}
	return nil
}
