// Package htk reads HTK parameter files and the HTK-style scripts that
// list them.
//
// An HTK file is a 12 byte big-endian header (sample count, sample period in
// 100ns units, bytes per sample, parameter kind) followed by the samples.
// Feature kinds store big-endian float32 values. Compressed kinds store int16
// values preceded by per-dimension scale and offset vectors. Waveforms and
// IREFC coefficients store int16 values. Every decoder returns the frames as
// a float32 kaldi.Matrix with one row per frame.
package htk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"time"

	"github.com/samcharles93/kaldiio/pkg/kaldi"
	"github.com/samcharles93/kaldiio/pkg/stream"
)

// HeaderSize is the length of the fixed file header in bytes.
const HeaderSize = 12

// ParmKind is a base parameter kind plus qualifier bits.
type ParmKind uint16

// Base parameter kinds. Waveform and IREFC samples are int16; the rest are
// float32 unless compressed.
const (
	Waveform ParmKind = 0
	IREFC    ParmKind = 5
	MFCC     ParmKind = 6
	FBank    ParmKind = 7
	User     ParmKind = 9
)

// Qualifier bits.
const (
	QualEnergy     ParmKind = 0o100
	QualNoAbsE     ParmKind = 0o200
	QualDelta      ParmKind = 0o400
	QualAccel      ParmKind = 0o1000
	QualCompressed ParmKind = 0o2000
	QualZeroMean   ParmKind = 0o4000
	QualCRC        ParmKind = 0o10000
	QualC0         ParmKind = 0o20000

	baseMask ParmKind = 0o77
)

// Base returns the kind with every qualifier cleared.
func (k ParmKind) Base() ParmKind { return k & baseMask }

// Compressed reports whether samples are stored as scaled int16 values.
func (k ParmKind) Compressed() bool { return k&QualCompressed != 0 }

// Header is the fixed header of an HTK file. For compressed files Samples
// counts only the frames; the four sample slots holding the scale and offset
// vectors are excluded.
type Header struct {
	Samples      int
	SamplePeriod time.Duration
	SampleSize   int
	Kind         ParmKind
}

// Dim returns the number of values per frame.
func (h Header) Dim() int {
	if h.int16Samples() {
		return h.SampleSize / 2
	}
	return h.SampleSize / 4
}

func (h Header) int16Samples() bool {
	b := h.Kind.Base()
	return b == Waveform || b == IREFC || h.Kind.Compressed()
}

// layout describes where frames start and how to turn one into floats.
type layout struct {
	Header
	dataOffset int64
	scale      []float32
	bias       []float32
}

func (l *layout) decodeFrame(raw []byte, dst []float32) {
	if !l.int16Samples() {
		for j := range dst {
			dst[j] = math.Float32frombits(binary.BigEndian.Uint32(raw[4*j:]))
		}
		return
	}
	for j := range dst {
		v := float32(int16(binary.BigEndian.Uint16(raw[2*j:])))
		switch {
		case l.Kind.Compressed():
			v = (v + l.bias[j]) / l.scale[j]
		case l.Kind.Base() == IREFC:
			v /= 32767
		}
		dst[j] = v
	}
}

// ReadHeader decodes the fixed header at the start of r.
func ReadHeader(r io.Reader) (Header, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Header{}, truncated(err, "htk header")
	}
	h := Header{
		Samples:      int(binary.BigEndian.Uint32(raw[0:])),
		SamplePeriod: time.Duration(binary.BigEndian.Uint32(raw[4:])) * 100 * time.Nanosecond,
		SampleSize:   int(binary.BigEndian.Uint16(raw[8:])),
		Kind:         ParmKind(binary.BigEndian.Uint16(raw[10:])),
	}
	width := 4
	if h.int16Samples() {
		width = 2
	}
	if h.SampleSize == 0 || h.SampleSize%width != 0 {
		return Header{}, fmt.Errorf("%w: sample size %d for kind %#o", ErrBadHeader, h.SampleSize, h.Kind)
	}
	if h.Kind.Compressed() {
		if h.Samples < 4 {
			return Header{}, fmt.Errorf("%w: compressed file with %d samples", ErrBadHeader, h.Samples)
		}
		h.Samples -= 4
	}
	return h, nil
}

// readLayout decodes the header and, for compressed files, the scale and
// offset vectors that follow it.
func readLayout(r io.Reader) (*layout, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	l := &layout{Header: h, dataOffset: HeaderSize}
	if !h.Kind.Compressed() {
		return l, nil
	}
	dim := h.Dim()
	raw := make([]byte, 8*dim)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, truncated(err, "htk compression vectors")
	}
	l.scale = make([]float32, dim)
	l.bias = make([]float32, dim)
	for j := range dim {
		l.scale[j] = math.Float32frombits(binary.BigEndian.Uint32(raw[4*j:]))
		l.bias[j] = math.Float32frombits(binary.BigEndian.Uint32(raw[4*(dim+j):]))
	}
	for j, a := range l.scale {
		if a == 0 {
			return nil, fmt.Errorf("%w: zero scale in dimension %d", ErrBadHeader, j)
		}
	}
	l.dataOffset += int64(len(raw))
	return l, nil
}

// readFrames decodes n frames. The result grows frame by frame so a corrupt
// sample count cannot allocate before the data is read.
func (l *layout) readFrames(r io.Reader, n int) (*kaldi.Matrix, error) {
	dim := l.Dim()
	data := make([]float32, 0, min(n*dim, 1<<16))
	raw := make([]byte, l.SampleSize)
	for i := range n {
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, truncated(err, fmt.Sprintf("htk frame %d of %d", i, n))
		}
		data = slices.Grow(data, dim)[:len(data)+dim]
		l.decodeFrame(raw, data[len(data)-dim:])
	}
	return kaldi.NewMatrixF32(n, dim, data), nil
}

// Read decodes a whole HTK file from r. Reading stops after the last frame,
// so a trailing CRC is left unread.
func Read(r io.Reader) (*kaldi.Matrix, Header, error) {
	l, err := readLayout(r)
	if err != nil {
		return nil, Header{}, err
	}
	m, err := l.readFrames(r, l.Samples)
	if err != nil {
		return nil, Header{}, err
	}
	return m, l.Header, nil
}

// ReadFile reads the HTK file at path. Compressed streams are recognised by
// suffix as for archives.
func ReadFile(path string) (*kaldi.Matrix, Header, error) {
	s, err := stream.Open(path, stream.Read)
	if err != nil {
		return nil, Header{}, err
	}
	defer func() { _ = s.Close() }()
	return Read(s)
}

// ReadSegment reads frames begin through end, inclusive, of the HTK file at
// path without decoding the frames before them.
func ReadSegment(path string, begin, end int) (*kaldi.Matrix, error) {
	l, err := kaldi.ReadRecordAt(path, 0, readLayout)
	if err != nil {
		return nil, err
	}
	if begin < 0 || begin > end || end >= l.Samples {
		return nil, fmt.Errorf("%w: frames [%d,%d] of %d in %s", ErrSegmentRange, begin, end, l.Samples, path)
	}
	off := l.dataOffset + int64(begin)*int64(l.SampleSize)
	return kaldi.ReadRecordAt(path, off, func(r io.Reader) (*kaldi.Matrix, error) {
		return l.readFrames(r, end-begin+1)
	})
}

// Write encodes m as an uncompressed float HTK file of the given kind. Kinds
// whose samples are int16 cannot be written.
func Write(w io.Writer, m *kaldi.Matrix, period time.Duration, kind ParmKind) error {
	h := Header{Samples: m.Rows, SamplePeriod: period, SampleSize: 4 * m.Cols, Kind: kind}
	if h.int16Samples() || kind&QualCRC != 0 {
		return fmt.Errorf("%w: cannot write kind %#o", ErrUnsupportedKind, kind)
	}
	if m.DType != kaldi.DTypeF32 {
		return fmt.Errorf("%w: samples are %s, want F32", ErrUnsupportedKind, m.DType)
	}
	if m.Cols == 0 || h.SampleSize > math.MaxUint16 || int64(m.Rows) > math.MaxUint32 {
		return fmt.Errorf("%w: %dx%d matrix does not fit an HTK header", ErrBadHeader, m.Rows, m.Cols)
	}
	if len(m.F32) != m.Rows*m.Cols {
		return fmt.Errorf("%w: %d samples for %dx%d", ErrBadHeader, len(m.F32), m.Rows, m.Cols)
	}
	buf := make([]byte, 0, HeaderSize+4*len(m.F32))
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.Samples))
	buf = binary.BigEndian.AppendUint32(buf, uint32(period/(100*time.Nanosecond)))
	buf = binary.BigEndian.AppendUint16(buf, uint16(h.SampleSize))
	buf = binary.BigEndian.AppendUint16(buf, uint16(kind))
	for _, v := range m.F32 {
		buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(v))
	}
	_, err := w.Write(buf)
	return err
}

// WriteFile writes m to path as with Write.
func WriteFile(path string, m *kaldi.Matrix, period time.Duration, kind ParmKind) (err error) {
	s, err := stream.Open(path, stream.Write)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return Write(s, m, period, kind)
}

func truncated(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s", kaldi.ErrTruncatedRecord, what)
	}
	return err
}
