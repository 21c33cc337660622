package kaldi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const (
	// binaryMarker precedes every binary record.
	binaryMarker = "\x00B"
	// asciiMatrixMarker opens an ASCII matrix record.
	asciiMatrixMarker = " ["

	// intTag is the size tag written before every binary integer field.
	intTag byte = 4

	markerFloatVector  = "FV "
	markerDoubleVector = "DV "
	markerFloatMatrix  = "FM "
	markerDoubleMatrix = "DM "

	readChunk = 1 << 20
)

// decoder reads a single record from an io.Reader. It never consumes bytes
// past the end of the record it is decoding: lookahead bytes are pushed back
// into pending and all other reads are exact.
type decoder struct {
	r       io.Reader
	br      io.ByteReader
	pending []byte
}

func newDecoder(r io.Reader) *decoder {
	d := &decoder{r: r}
	if br, ok := r.(io.ByteReader); ok {
		d.br = br
	}
	return d
}

// truncated maps a short read onto ErrTruncatedRecord.
func truncated(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s", ErrTruncatedRecord, what)
	}
	return err
}

func (d *decoder) fill(p []byte) error {
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	if n == len(p) {
		return nil
	}
	_, err := io.ReadFull(d.r, p[n:])
	if err != nil && n > 0 && errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// peek returns the next n bytes without consuming them.
func (d *decoder) peek(n int) ([]byte, error) {
	if len(d.pending) < n {
		buf := make([]byte, n-len(d.pending))
		m, err := io.ReadFull(d.r, buf)
		d.pending = append(d.pending, buf[:m]...)
		if err != nil {
			return nil, err
		}
	}
	return d.pending[:n], nil
}

func (d *decoder) skip(n int) error {
	_, err := d.readN(n)
	return err
}

func (d *decoder) readN(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: read length %d", ErrNegativeDimension, n)
	}
	// Grow in bounded chunks so a corrupt header cannot force a huge
	// allocation before the stream runs dry.
	buf := make([]byte, 0, min(n, readChunk))
	for len(buf) < n {
		start := len(buf)
		k := min(n-start, readChunk)
		if cap(buf)-start < k {
			grown := make([]byte, start, start+max(k, start))
			copy(grown, buf)
			buf = grown
		}
		buf = buf[:start+k]
		if err := d.fill(buf[start:]); err != nil {
			if start > 0 && errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return buf, nil
}

func (d *decoder) readByte() (byte, error) {
	if len(d.pending) > 0 {
		b := d.pending[0]
		d.pending = d.pending[1:]
		return b, nil
	}
	if d.br != nil {
		return d.br.ReadByte()
	}
	var one [1]byte
	if _, err := io.ReadFull(d.r, one[:]); err != nil {
		return 0, err
	}
	return one[0], nil
}

// readLine returns the bytes up to (not including) the next '\n'. It returns
// io.EOF only when the stream is exhausted before any byte was read.
func (d *decoder) readLine() (string, error) {
	var sb strings.Builder
	for {
		b, err := d.readByte()
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				return sb.String(), nil
			}
			return sb.String(), err
		}
		if b == '\n' {
			return sb.String(), nil
		}
		sb.WriteByte(b)
	}
}

func (d *decoder) readMarker() (string, error) {
	b, err := d.readN(3)
	if err != nil {
		return "", truncated(err, "type marker")
	}
	return string(b), nil
}

// readInt32 reads a tagged little-endian int32.
func (d *decoder) readInt32(what string) (int32, error) {
	tag, err := d.readByte()
	if err != nil {
		return 0, truncated(err, what)
	}
	if tag != intTag {
		return 0, fmt.Errorf("%w: %s: got 0x%02x want 0x%02x", ErrUnexpectedTag, what, tag, intTag)
	}
	b, err := d.readN(4)
	if err != nil {
		return 0, truncated(err, what)
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// readFloat32 reads a tagged little-endian float32.
func (d *decoder) readFloat32(what string) (float32, error) {
	tag, err := d.readByte()
	if err != nil {
		return 0, truncated(err, what)
	}
	if tag != intTag {
		return 0, fmt.Errorf("%w: %s: got 0x%02x want 0x%02x", ErrUnexpectedTag, what, tag, intTag)
	}
	b, err := d.readN(4)
	if err != nil {
		return 0, truncated(err, what)
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

func (d *decoder) readCount(what string) (int, error) {
	n, err := d.readInt32(what)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s %d", ErrNegativeDimension, what, n)
	}
	return int(n), nil
}

// expectBinary consumes the binary marker or fails with ErrFormat.
func (d *decoder) expectBinary(what string) error {
	look, err := d.peek(2)
	if err != nil {
		return truncated(err, what)
	}
	if string(look) != binaryMarker {
		return fmt.Errorf("%w: %s: only binary form is supported, got %q", ErrFormat, what, look)
	}
	return d.skip(2)
}

func vectorSampleWidth(marker string) (DType, bool) {
	switch marker {
	case markerFloatVector:
		return DTypeF32, true
	case markerDoubleVector:
		return DTypeF64, true
	default:
		return 0, false
	}
}

func decodeF32(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

func decodeF64(raw []byte) []float64 {
	out := make([]float64, len(raw)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out
}

// asciiTokens splits an ASCII vector line and drops optional enclosing
// bracket tokens.
func asciiTokens(line string) []string {
	toks := strings.Fields(line)
	if len(toks) > 0 && toks[0] == "[" {
		toks = toks[1:]
	}
	if len(toks) > 0 && toks[len(toks)-1] == "]" {
		toks = toks[:len(toks)-1]
	}
	return toks
}

func parseFloat32s(toks []string) ([]float32, error) {
	out := make([]float32, len(toks))
	for i, t := range toks {
		v, err := strconv.ParseFloat(t, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrNumericParse, t)
		}
		out[i] = float32(v)
	}
	return out, nil
}

func parseFloat64s(toks []string) ([]float64, error) {
	out := make([]float64, len(toks))
	for i, t := range toks {
		v, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrNumericParse, t)
		}
		out[i] = v
	}
	return out, nil
}

func parseInt32s(toks []string) ([]int32, error) {
	out := make([]int32, len(toks))
	for i, t := range toks {
		v, err := strconv.ParseInt(t, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrNumericParse, t)
		}
		out[i] = int32(v)
	}
	return out, nil
}

// encoder accumulates a binary record and writes it in bounded chunks.
type encoder struct {
	w   io.Writer
	buf []byte
}

func newEncoder(w io.Writer) *encoder {
	return &encoder{w: w, buf: make([]byte, 0, 64)}
}

func (e *encoder) flushIfFull() error {
	if len(e.buf) < readChunk {
		return nil
	}
	return e.flush()
}

func (e *encoder) flush() error {
	if len(e.buf) == 0 {
		return nil
	}
	_, err := e.w.Write(e.buf)
	e.buf = e.buf[:0]
	return err
}

func (e *encoder) putString(s string) {
	e.buf = append(e.buf, s...)
}

func (e *encoder) putInt32(v int32) {
	e.buf = append(e.buf, intTag)
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v))
}

func (e *encoder) putF32s(vals []float32) error {
	for _, v := range vals {
		e.buf = binary.LittleEndian.AppendUint32(e.buf, math.Float32bits(v))
		if err := e.flushIfFull(); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) putF64s(vals []float64) error {
	for _, v := range vals {
		e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
		if err := e.flushIfFull(); err != nil {
			return err
		}
	}
	return nil
}

func checkInt32(what string, n int) (int32, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: %s %d", ErrNegativeDimension, what, n)
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("kaldi: %s %d exceeds int32 range", what, n)
	}
	return int32(n), nil
}
