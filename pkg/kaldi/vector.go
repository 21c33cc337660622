package kaldi

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Vector is a float vector. Exactly one of F32 or F64 is populated,
// selected by DType.
type Vector struct {
	DType DType
	F32   []float32
	F64   []float64
}

// Len returns the number of samples.
func (v *Vector) Len() int {
	if v.DType == DTypeF64 {
		return len(v.F64)
	}
	return len(v.F32)
}

// At returns sample i widened to float64.
func (v *Vector) At(i int) float64 {
	if v.DType == DTypeF64 {
		return v.F64[i]
	}
	return float64(v.F32[i])
}

// ReadIntVector decodes an integer vector (for example an alignment), binary
// or ASCII.
func ReadIntVector(r io.Reader) ([]int32, error) {
	d := newDecoder(r)
	look, err := d.peek(2)
	if err != nil {
		return nil, truncated(err, "int vector header")
	}
	if string(look) != binaryMarker {
		line, err := d.readLine()
		if err != nil {
			return nil, truncated(err, "ascii int vector")
		}
		return parseInt32s(asciiTokens(line))
	}
	if err := d.skip(2); err != nil {
		return nil, err
	}
	n, err := d.readCount("int vector size")
	if err != nil {
		return nil, err
	}
	// Each element is a tag byte followed by four data bytes.
	raw, err := d.readN(n * 5)
	if err != nil {
		return nil, truncated(err, fmt.Sprintf("int vector data (%d elements)", n))
	}
	out := make([]int32, n)
	for i := range out {
		rec := raw[i*5 : i*5+5]
		if rec[0] != intTag {
			return nil, fmt.Errorf("%w: int vector element %d: got 0x%02x", ErrUnexpectedTag, i, rec[0])
		}
		out[i] = int32(binary.LittleEndian.Uint32(rec[1:]))
	}
	return out, nil
}

// ReadFloatVector decodes a float or double vector, binary or ASCII. ASCII
// input is parsed at double precision.
func ReadFloatVector(r io.Reader) (*Vector, error) {
	d := newDecoder(r)
	look, err := d.peek(2)
	if err != nil {
		return nil, truncated(err, "float vector header")
	}
	if string(look) != binaryMarker {
		line, err := d.readLine()
		if err != nil {
			return nil, truncated(err, "ascii float vector")
		}
		vals, err := parseFloat64s(asciiTokens(line))
		if err != nil {
			return nil, err
		}
		return &Vector{DType: DTypeF64, F64: vals}, nil
	}
	if err := d.skip(2); err != nil {
		return nil, err
	}
	marker, err := d.readMarker()
	if err != nil {
		return nil, err
	}
	dtype, ok := vectorSampleWidth(marker)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSampleWidth, marker)
	}
	n, err := d.readCount("float vector size")
	if err != nil {
		return nil, err
	}
	raw, err := d.readN(n * int(dtype))
	if err != nil {
		return nil, truncated(err, fmt.Sprintf("float vector data (%d %s)", n, dtype))
	}
	if dtype == DTypeF32 {
		return &Vector{DType: dtype, F32: decodeF32(raw)}, nil
	}
	return &Vector{DType: dtype, F64: decodeF64(raw)}, nil
}

// WriteIntVector writes v in binary form, preceded by key and a space when
// key is non-empty.
func WriteIntVector(w io.Writer, v []int32, key string) error {
	n, err := checkInt32("int vector size", len(v))
	if err != nil {
		return err
	}
	e := newEncoder(w)
	if err := putKey(e, key); err != nil {
		return err
	}
	e.putString(binaryMarker)
	e.putInt32(n)
	for _, x := range v {
		e.putInt32(x)
		if err := e.flushIfFull(); err != nil {
			return err
		}
	}
	return e.flush()
}

// WriteFloatVector writes v in binary form, preceded by key and a space when
// key is non-empty.
func WriteFloatVector(w io.Writer, v *Vector, key string) error {
	var marker string
	switch v.DType {
	case DTypeF32:
		marker = markerFloatVector
	case DTypeF64:
		marker = markerDoubleVector
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedElementType, v.DType)
	}
	n, err := checkInt32("float vector size", v.Len())
	if err != nil {
		return err
	}
	e := newEncoder(w)
	if err := putKey(e, key); err != nil {
		return err
	}
	e.putString(binaryMarker)
	e.putString(marker)
	e.putInt32(n)
	if v.DType == DTypeF32 {
		err = e.putF32s(v.F32)
	} else {
		err = e.putF64s(v.F64)
	}
	if err != nil {
		return err
	}
	return e.flush()
}

func putKey(e *encoder, key string) error {
	if key == "" {
		return nil
	}
	if err := validateKey(key); err != nil {
		return err
	}
	e.putString(key)
	e.putString(" ")
	return nil
}
