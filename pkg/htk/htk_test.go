package htk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/kaldiio/pkg/kaldi"
)

func header(samples, period uint32, size, kind uint16) []byte {
	b := binary.BigEndian.AppendUint32(nil, samples)
	b = binary.BigEndian.AppendUint32(b, period)
	b = binary.BigEndian.AppendUint16(b, size)
	return binary.BigEndian.AppendUint16(b, kind)
}

func be32s(vals ...float32) []byte {
	var b []byte
	for _, v := range vals {
		b = binary.BigEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

func be16s(vals ...int16) []byte {
	var b []byte
	for _, v := range vals {
		b = binary.BigEndian.AppendUint16(b, uint16(v))
	}
	return b
}

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

// threeFrames is a 3x2 MFCC matrix, frame i holding (i, -i).
func threeFrames() *kaldi.Matrix {
	return kaldi.NewMatrixF32(3, 2, []float32{0, 0, 1, -1, 2, -2})
}

func writeHTK(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestReadFloatKinds(t *testing.T) {
	t.Parallel()
	data := join(header(3, 100000, 8, uint16(MFCC|QualEnergy)), be32s(0, 0, 1, -1, 2, -2))
	r := bytes.NewReader(append(data, 0xab, 0xcd))
	m, h, err := Read(r)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !m.Equal(threeFrames()) {
		t.Fatalf("Read = %+v", m)
	}
	want := Header{Samples: 3, SamplePeriod: 10 * time.Millisecond, SampleSize: 8, Kind: MFCC | QualEnergy}
	if h != want {
		t.Fatalf("header = %+v, want %+v", h, want)
	}
	if h.Kind.Base() != MFCC || h.Dim() != 2 {
		t.Fatalf("base %d dim %d", h.Kind.Base(), h.Dim())
	}
	// A trailing checksum is left unread.
	if r.Len() != 2 {
		t.Fatalf("%d bytes left, want 2", r.Len())
	}
}

func TestReadInt16Kinds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want *kaldi.Matrix
	}{
		{
			name: "waveform",
			data: join(header(3, 625, 2, uint16(Waveform)), be16s(1, -2, 300)),
			want: kaldi.NewMatrixF32(3, 1, []float32{1, -2, 300}),
		},
		{
			name: "irefc",
			data: join(header(1, 100000, 4, uint16(IREFC)), be16s(32767, -32767)),
			want: kaldi.NewMatrixF32(1, 2, []float32{1, -1}),
		},
		{
			// Scale (2, 4) and offset (0, 8): stored x becomes (x + B) / A.
			name: "compressed",
			data: join(
				header(6, 100000, 4, uint16(FBank|QualCompressed)),
				be32s(2, 4), be32s(0, 8),
				be16s(2, -4, 6, 0),
			),
			want: kaldi.NewMatrixF32(2, 2, []float32{1, 1, 3, 2}),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m, _, err := Read(bytes.NewReader(tc.data))
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if !m.Equal(tc.want) {
				t.Fatalf("Read = %+v, want %+v", m, tc.want)
			}
		})
	}
}

func TestReadErrors(t *testing.T) {
	t.Parallel()
	full := join(header(3, 100000, 8, uint16(MFCC)), be32s(0, 0, 1, -1, 2, -2))
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"short header", full[:7], kaldi.ErrTruncatedRecord},
		{"short data", full[:len(full)-1], kaldi.ErrTruncatedRecord},
		{"zero sample size", header(1, 1, 0, uint16(MFCC)), ErrBadHeader},
		{"float size not multiple of 4", header(1, 1, 6, uint16(MFCC)), ErrBadHeader},
		{"compressed without vectors", header(2, 1, 4, uint16(MFCC|QualCompressed)), ErrBadHeader},
		{"truncated vectors", join(header(5, 1, 4, uint16(MFCC|QualCompressed)), be32s(1)), kaldi.ErrTruncatedRecord},
		{"zero scale", join(header(5, 1, 4, uint16(MFCC|QualCompressed)), be32s(1, 0, 0, 0)), ErrBadHeader},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := Read(bytes.NewReader(tc.in)); !errors.Is(err, tc.want) {
				t.Fatalf("Read error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"utt.mfc", "utt.mfc.gz"} {
		path := filepath.Join(t.TempDir(), name)
		if err := WriteFile(path, threeFrames(), 10*time.Millisecond, MFCC|QualDelta); err != nil {
			t.Fatalf("WriteFile(%s): %v", name, err)
		}
		m, h, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", name, err)
		}
		if !m.Equal(threeFrames()) || h.SamplePeriod != 10*time.Millisecond || h.Kind != MFCC|QualDelta {
			t.Fatalf("%s: got %+v %+v", name, m, h)
		}
	}

	var buf bytes.Buffer
	if err := Write(&buf, threeFrames(), time.Millisecond, MFCC); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if want := join(header(3, 10000, 8, uint16(MFCC)), be32s(0, 0, 1, -1, 2, -2)); !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("Write = % x\nwant    % x", buf.Bytes(), want)
	}
}

func TestWriteRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		m    *kaldi.Matrix
		kind ParmKind
		want error
	}{
		{"waveform", threeFrames(), Waveform, ErrUnsupportedKind},
		{"compressed", threeFrames(), MFCC | QualCompressed, ErrUnsupportedKind},
		{"float64", kaldi.NewMatrixF64(1, 1, []float64{1}), MFCC, ErrUnsupportedKind},
		{"no columns", kaldi.NewMatrixF32(2, 0, nil), MFCC, ErrBadHeader},
	}
	for _, tc := range tests {
		if err := Write(&bytes.Buffer{}, tc.m, time.Millisecond, tc.kind); !errors.Is(err, tc.want) {
			t.Errorf("%s: Write error = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestReadSegment(t *testing.T) {
	t.Parallel()
	plain := writeHTK(t, "utt.mfc", join(header(3, 100000, 8, uint16(MFCC)), be32s(0, 0, 1, -1, 2, -2)))
	compressed := writeHTK(t, "utt.fbk", join(
		header(6, 100000, 4, uint16(FBank|QualCompressed)),
		be32s(2, 4), be32s(0, 8),
		be16s(2, -4, 6, 0),
	))

	got, err := ReadSegment(plain, 1, 2)
	if err != nil {
		t.Fatalf("ReadSegment: %v", err)
	}
	if !got.Equal(kaldi.NewMatrixF32(2, 2, []float32{1, -1, 2, -2})) {
		t.Fatalf("segment [1,2] = %+v", got)
	}

	got, err = ReadSegment(compressed, 1, 1)
	if err != nil {
		t.Fatalf("ReadSegment compressed: %v", err)
	}
	if !got.Equal(kaldi.NewMatrixF32(1, 2, []float32{3, 2})) {
		t.Fatalf("compressed segment [1,1] = %+v", got)
	}

	for _, rng := range [][2]int{{-1, 0}, {2, 1}, {0, 3}} {
		if _, err := ReadSegment(plain, rng[0], rng[1]); !errors.Is(err, ErrSegmentRange) {
			t.Errorf("ReadSegment%v error = %v, want ErrSegmentRange", rng, err)
		}
	}
}

func TestReadSegmentTruncated(t *testing.T) {
	t.Parallel()
	// The header claims three frames but only two are present.
	path := writeHTK(t, "short.mfc", join(header(3, 100000, 8, uint16(MFCC)), be32s(0, 0, 1, -1)))
	if _, err := ReadSegment(path, 1, 2); !errors.Is(err, kaldi.ErrTruncatedRecord) {
		t.Fatalf("ReadSegment error = %v, want ErrTruncatedRecord", err)
	}
	if diff := cmp.Diff(Header{Samples: 3, SamplePeriod: 10 * time.Millisecond, SampleSize: 8, Kind: MFCC}, mustHeader(t, path)); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
}

func mustHeader(t *testing.T, path string) Header {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()
	h, err := ReadHeader(f)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	return h
}
