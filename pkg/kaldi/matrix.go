package kaldi

import (
	"fmt"
	"io"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// DType is the element encoding of a float vector or matrix. Its value is the
// sample width in bytes.
type DType uint8

const (
	DTypeF32 DType = 4
	DTypeF64 DType = 8
)

func (t DType) String() string {
	switch t {
	case DTypeF32:
		return "F32"
	case DTypeF64:
		return "F64"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(t))
	}
}

// Matrix is a dense row-major matrix. Exactly one of F32 or F64 holds the
// Rows*Cols samples, selected by DType.
type Matrix struct {
	Rows, Cols int
	DType      DType
	F32        []float32
	F64        []float64
}

// NewMatrixF32 wraps row-major float32 data. It panics if len(data) != r*c.
func NewMatrixF32(r, c int, data []float32) *Matrix {
	if r < 0 || c < 0 || r*c != len(data) {
		panic("kaldi: data length mismatch")
	}
	return &Matrix{Rows: r, Cols: c, DType: DTypeF32, F32: data}
}

// NewMatrixF64 wraps row-major float64 data. It panics if len(data) != r*c.
func NewMatrixF64(r, c int, data []float64) *Matrix {
	if r < 0 || c < 0 || r*c != len(data) {
		panic("kaldi: data length mismatch")
	}
	return &Matrix{Rows: r, Cols: c, DType: DTypeF64, F64: data}
}

// At returns element (i, j) widened to float64.
func (m *Matrix) At(i, j int) float64 {
	if i < 0 || i >= m.Rows || j < 0 || j >= m.Cols {
		panic("kaldi: matrix index out of range")
	}
	if m.DType == DTypeF64 {
		return m.F64[i*m.Cols+j]
	}
	return float64(m.F32[i*m.Cols+j])
}

// Equal reports whether m and o have the same type, shape and samples.
func (m *Matrix) Equal(o *Matrix) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Rows != o.Rows || m.Cols != o.Cols || m.DType != o.DType {
		return false
	}
	if len(m.F32) != len(o.F32) || len(m.F64) != len(o.F64) {
		return false
	}
	switch m.DType {
	case DTypeF32:
		for i := range m.F32 {
			if m.F32[i] != o.F32[i] {
				return false
			}
		}
	case DTypeF64:
		for i := range m.F64 {
			if m.F64[i] != o.F64[i] {
				return false
			}
		}
	}
	return true
}

// Dense copies m into a gonum matrix. gonum does not represent empty
// matrices, so a zero-sized m is an error.
func (m *Matrix) Dense() (*mat.Dense, error) {
	if m.Rows == 0 || m.Cols == 0 {
		return nil, fmt.Errorf("kaldi: cannot convert %dx%d matrix to mat.Dense", m.Rows, m.Cols)
	}
	data := make([]float64, m.Rows*m.Cols)
	switch m.DType {
	case DTypeF32:
		for i, v := range m.F32 {
			data[i] = float64(v)
		}
	case DTypeF64:
		copy(data, m.F64)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedElementType, m.DType)
	}
	return mat.NewDense(m.Rows, m.Cols, data), nil
}

// MatrixFromDense copies a gonum matrix into a float64 Matrix.
func MatrixFromDense(d mat.Matrix) *Matrix {
	r, c := d.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data = append(data, d.At(i, j))
		}
	}
	return NewMatrixF64(r, c, data)
}

// ReadMatrix decodes one matrix record, binary or ASCII, detected from its
// first two bytes.
func ReadMatrix(r io.Reader) (*Matrix, error) {
	d := newDecoder(r)
	look, err := d.peek(2)
	if err != nil {
		return nil, truncated(err, "matrix header")
	}
	switch string(look) {
	case binaryMarker:
		if err := d.skip(2); err != nil {
			return nil, err
		}
		return readMatrixBinary(d)
	case asciiMatrixMarker:
		if err := d.skip(2); err != nil {
			return nil, err
		}
		return readMatrixASCII(d)
	default:
		return nil, fmt.Errorf("%w: matrix record starts with %q", ErrFormat, look)
	}
}

func readMatrixBinary(d *decoder) (*Matrix, error) {
	marker, err := d.readMarker()
	if err != nil {
		return nil, err
	}
	var dtype DType
	switch marker {
	case markerFloatMatrix:
		dtype = DTypeF32
	case markerDoubleMatrix:
		dtype = DTypeF64
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMatrixType, marker)
	}
	rows, err := d.readCount("matrix rows")
	if err != nil {
		return nil, err
	}
	cols, err := d.readCount("matrix cols")
	if err != nil {
		return nil, err
	}
	// A size that overflows int cannot be backed by any stream.
	n := rows * cols
	if (cols != 0 && n/cols != rows) || n > math.MaxInt/int(dtype) {
		return nil, fmt.Errorf("%w: matrix %dx%d %s is larger than any stream", ErrTruncatedRecord, rows, cols, dtype)
	}
	raw, err := d.readN(n * int(dtype))
	if err != nil {
		return nil, truncated(err, fmt.Sprintf("matrix data (%dx%d %s)", rows, cols, dtype))
	}
	m := &Matrix{Rows: rows, Cols: cols, DType: dtype}
	if dtype == DTypeF32 {
		m.F32 = decodeF32(raw)
	} else {
		m.F64 = decodeF64(raw)
	}
	return m, nil
}

func readMatrixASCII(d *decoder) (*Matrix, error) {
	var (
		rows [][]float32
		cols = -1
	)
	for {
		line, err := d.readLine()
		if err != nil {
			return nil, truncated(err, "ascii matrix missing closing bracket")
		}
		toks := strings.Fields(line)
		if len(toks) == 0 {
			continue
		}
		last := toks[len(toks)-1] == "]"
		if last {
			toks = toks[:len(toks)-1]
		}
		if len(toks) > 0 {
			row, err := parseFloat32s(toks)
			if err != nil {
				return nil, err
			}
			if cols >= 0 && len(row) != cols {
				return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrRaggedMatrix, len(rows), len(row), cols)
			}
			cols = len(row)
			rows = append(rows, row)
		}
		if last {
			break
		}
	}
	if cols < 0 {
		cols = 0
	}
	data := make([]float32, 0, len(rows)*cols)
	for _, row := range rows {
		data = append(data, row...)
	}
	return &Matrix{Rows: len(rows), Cols: cols, DType: DTypeF32, F32: data}, nil
}

// WriteMatrix writes m in binary form. A non-empty key is written first,
// followed by a single space, as in an archive.
func WriteMatrix(w io.Writer, m *Matrix, key string) error {
	var marker string
	switch m.DType {
	case DTypeF32:
		marker = markerFloatMatrix
	case DTypeF64:
		marker = markerDoubleMatrix
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedElementType, m.DType)
	}
	rows, err := checkInt32("matrix rows", m.Rows)
	if err != nil {
		return err
	}
	cols, err := checkInt32("matrix cols", m.Cols)
	if err != nil {
		return err
	}

	e := newEncoder(w)
	if err := putKey(e, key); err != nil {
		return err
	}
	e.putString(binaryMarker)
	e.putString(marker)
	e.putInt32(rows)
	e.putInt32(cols)
	if m.DType == DTypeF32 {
		if len(m.F32) != m.Rows*m.Cols {
			return fmt.Errorf("kaldi: matrix has %d samples, want %d", len(m.F32), m.Rows*m.Cols)
		}
		err = e.putF32s(m.F32)
	} else {
		if len(m.F64) != m.Rows*m.Cols {
			return fmt.Errorf("kaldi: matrix has %d samples, want %d", len(m.F64), m.Rows*m.Cols)
		}
		err = e.putF64s(m.F64)
	}
	if err != nil {
		return err
	}
	return e.flush()
}
