package kaldi

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReadIntervals(t *testing.T) {
	t.Parallel()
	in := rec([]byte("\x00B"), tagInt(2),
		tagFloat(0), tagFloat(0.5),
		tagFloat(0.5), tagFloat(1.25),
	)
	got, err := ReadIntervals(bytes.NewReader(in))
	if err != nil {
		t.Fatalf("ReadIntervals: %v", err)
	}
	want := []Interval{{0, 0.5}, {0.5, 1.25}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("intervals mismatch (-want +got):\n%s", diff)
	}
}

func TestReadIntervalsErrors(t *testing.T) {
	t.Parallel()
	if _, err := ReadIntervals(bytes.NewReader([]byte("0 0.5\n"))); !errors.Is(err, ErrFormat) {
		t.Fatalf("ascii error = %v, want ErrFormat", err)
	}
	short := rec([]byte("\x00B"), tagInt(1), tagFloat(0))
	if _, err := ReadIntervals(bytes.NewReader(short)); !errors.Is(err, ErrTruncatedRecord) {
		t.Fatalf("short error = %v, want ErrTruncatedRecord", err)
	}
}
