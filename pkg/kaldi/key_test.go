package kaldi

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      string
		key     string
		ok      bool
		rest    string
		wantErr error
	}{
		{name: "plain", in: "utt-001_A rest", key: "utt-001_A", ok: true, rest: "rest"},
		{name: "one separator consumed", in: "utt 001", key: "utt", ok: true, rest: "001"},
		{name: "binary value follows", in: "u1 \x00BFM ", key: "u1", ok: true, rest: "\x00BFM "},
		{name: "ascii value keeps its space", in: "u1  [", key: "u1", ok: true, rest: " ["},
		{name: "leading whitespace", in: "\n  utt.2\tx", key: "utt.2", ok: true, rest: "x"},
		{name: "key at eof", in: "last", key: "last", ok: true},
		{name: "empty", in: "", ok: false},
		{name: "only whitespace", in: " \n\n", ok: false},
		{name: "bad byte", in: "utt!001 x", wantErr: ErrMalformedKey},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := strings.NewReader(tc.in)
			key, ok, err := ReadKey(r)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("ReadKey error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadKey: %v", err)
			}
			if key != tc.key || ok != tc.ok {
				t.Fatalf("ReadKey = %q, %v; want %q, %v", key, ok, tc.key, tc.ok)
			}
			rest, _ := io.ReadAll(r)
			if string(rest) != tc.rest {
				t.Fatalf("remaining %q, want %q", rest, tc.rest)
			}
		})
	}
}

func TestValidateKey(t *testing.T) {
	t.Parallel()
	for _, k := range []string{"a", "utt-001_A", "spk1.utt2", "0"} {
		if err := validateKey(k); err != nil {
			t.Errorf("validateKey(%q): %v", k, err)
		}
	}
	for _, k := range []string{"", "utt!001", "a b", "ü", "a/b"} {
		if err := validateKey(k); !errors.Is(err, ErrMalformedKey) {
			t.Errorf("validateKey(%q) = %v, want ErrMalformedKey", k, err)
		}
	}
}
