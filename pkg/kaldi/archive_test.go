package kaldi

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/kaldiio/internal/logger"
	"github.com/samcharles93/kaldiio/pkg/stream"
)

func square() *Matrix {
	return NewMatrixF32(2, 2, []float32{1, 2, 3, 4})
}

// writeABC writes keys a, b and c, each holding [[1,2],[3,4]].
func writeABC(t *testing.T, path, scriptPath string) []ScriptEntry {
	t.Helper()
	aw, err := CreateArchive(path, scriptPath)
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if err := aw.WriteMatrix(k, square()); err != nil {
			t.Fatalf("WriteMatrix(%s): %v", k, err)
		}
	}
	entries := aw.Entries()
	if err := aw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return entries
}

func TestArchiveIteration(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "feats.ark")
	writeABC(t, path, "")

	ar, err := OpenArchive(path, ReadMatrix)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer func() { _ = ar.Close() }()

	var keys []string
	for ar.Next() {
		keys = append(keys, ar.Key())
		if !ar.Value().Equal(square()) {
			t.Fatalf("%s = %+v", ar.Key(), ar.Value())
		}
	}
	if err := ar.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, keys); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if !ar.Done() || ar.Next() {
		t.Fatal("reader should stay finished")
	}
	if _, err := ar.s.Read(make([]byte, 1)); !errors.Is(err, stream.ErrClosed) {
		t.Fatalf("stream should be closed at end of archive, Read error = %v", err)
	}
}

func TestArchiveEarlyBreakClosesStream(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "feats.ark")
	writeABC(t, path, "")

	ar, err := OpenArchive(path, ReadMatrix)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	n := 0
	for range ar.All() {
		n++
		break
	}
	if n != 1 {
		t.Fatalf("visited %d records, want 1", n)
	}
	if !ar.Done() {
		t.Fatal("reader should be done after break")
	}
	if _, err := ar.s.Read(make([]byte, 1)); !errors.Is(err, stream.ErrClosed) {
		t.Fatalf("stream should be closed after break, Read error = %v", err)
	}
	if err := ar.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestArchiveForeignReaderNotClosed(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	aw := NewArchiveWriter(&buf)
	for _, k := range []string{"a", "b", "c"} {
		if err := aw.WriteMatrix(k, square()); err != nil {
			t.Fatalf("WriteMatrix: %v", err)
		}
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	buf.WriteString("trailing")

	src := &closeTracker{r: &buf}
	ar := NewArchiveReader(src, ReadMatrix)
	for k, m := range ar.All() {
		if !m.Equal(square()) {
			t.Fatalf("%s = %+v", k, m)
		}
		if k == "c" {
			break
		}
	}
	if src.closed {
		t.Fatal("caller's reader was closed")
	}
	if rest := buf.String(); rest != "trailing" {
		t.Fatalf("reader left at %q, want %q", rest, "trailing")
	}
}

func TestArchiveASCIIMatrices(t *testing.T) {
	t.Parallel()
	in := "a  [\n  1 2\n  3 4 ]\nb  [\n  5 6 ]\n"
	got := map[string]*Matrix{}
	ar := NewArchiveReader(strings.NewReader(in), ReadMatrix)
	for k, m := range ar.All() {
		got[k] = m
	}
	if err := ar.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if len(got) != 2 || !got["a"].Equal(square()) || !got["b"].Equal(NewMatrixF32(1, 2, []float32{5, 6})) {
		t.Fatalf("unexpected records %+v", got)
	}
}

func TestArchiveErrors(t *testing.T) {
	t.Parallel()
	var good bytes.Buffer
	if err := WriteMatrix(&good, square(), "a"); err != nil {
		t.Fatalf("WriteMatrix: %v", err)
	}

	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"truncated value", good.Bytes()[:good.Len()-3], ErrTruncatedRecord},
		{"bad key", rec([]byte("a/b "), good.Bytes()[2:]), ErrMalformedKey},
		{"key without value", []byte("a"), ErrTruncatedRecord},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ar := NewArchiveReader(bytes.NewReader(tc.in), ReadMatrix)
			for ar.Next() {
			}
			if !errors.Is(ar.Err(), tc.want) {
				t.Fatalf("Err = %v, want %v", ar.Err(), tc.want)
			}
		})
	}

	t.Run("error names the key", func(t *testing.T) {
		t.Parallel()
		ar := NewArchiveReader(bytes.NewReader(good.Bytes()[:good.Len()-3]), ReadMatrix)
		for ar.Next() {
		}
		if ar.Err() == nil || !strings.Contains(ar.Err().Error(), `record "a"`) {
			t.Fatalf("Err = %v, want it to name record a", ar.Err())
		}
	})
}

func TestReadArchiveCompressed(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"ali.ark.gz", "ali.ark.zst", "ali.ark.lz4"} {
		path := filepath.Join(t.TempDir(), name)
		aw, err := CreateArchive(path, "")
		if err != nil {
			t.Fatalf("CreateArchive(%s): %v", name, err)
		}
		want := map[string][]int32{"utt1": {1, 1, 2}, "utt2": {3}, "utt3": {}}
		for _, k := range []string{"utt1", "utt2", "utt3"} {
			if err := aw.WriteIntVector(k, want[k]); err != nil {
				t.Fatalf("WriteIntVector: %v", err)
			}
		}
		if err := aw.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		got, err := ReadArchive(path, ReadIntVector)
		if err != nil {
			t.Fatalf("ReadArchive(%s): %v", name, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestArchiveWriterOffsets(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ark := filepath.Join(dir, "feats.ark")
	scp := filepath.Join(dir, "feats.scp")
	entries := writeABC(t, ark, scp)

	// Each record is "k " plus a 31 byte 2x2 float matrix.
	want := []ScriptEntry{
		{Key: "a", Path: ark, Offset: 2},
		{Key: "b", Path: ark, Offset: 35},
		{Key: "c", Path: ark, Offset: 68},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(scp)
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	wantScript := "a " + ark + ":2\nb " + ark + ":35\nc " + ark + ":68\n"
	if string(data) != wantScript {
		t.Fatalf("script = %q, want %q", data, wantScript)
	}
}

func TestArchiveWriterRejects(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if _, err := CreateArchive(filepath.Join(dir, "x.ark.gz"), filepath.Join(dir, "x.scp")); err == nil {
		t.Fatal("expected error pairing a script with a compressed archive")
	}

	aw := NewArchiveWriter(&bytes.Buffer{})
	if err := aw.WriteMatrix("two words", square()); !errors.Is(err, ErrMalformedKey) {
		t.Fatalf("WriteMatrix bad key error = %v", err)
	}
	if err := aw.WriteFloatVector("v", &Vector{}); !errors.Is(err, ErrUnsupportedElementType) {
		t.Fatalf("WriteFloatVector error = %v", err)
	}
}

func TestArchiveDebugLogging(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	log := logger.JSON(&logs, slog.LevelDebug)

	var buf bytes.Buffer
	aw := NewArchiveWriter(&buf, WithLogger(log))
	if err := aw.WriteFloatVector("v1", &Vector{DType: DTypeF64, F64: []float64{1}}); err != nil {
		t.Fatalf("WriteFloatVector: %v", err)
	}
	ar := NewArchiveReader(&buf, ReadFloatVector, WithLogger(log))
	for ar.Next() {
	}
	if err := ar.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	out := logs.String()
	if !strings.Contains(out, `"msg":"record written"`) || !strings.Contains(out, `"records":1`) {
		t.Fatalf("expected debug events, got: %s", out)
	}
}
