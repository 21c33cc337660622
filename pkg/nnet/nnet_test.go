package nnet

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/kaldiio/pkg/kaldi"
)

const twoLayer = `<Nnet>
<AffineTransform> 2 3
 [
  0.1 0.2 0.3
  0.4 0.5 0.6 ]
 [ 0.01 0.02 ]
<Sigmoid> 2 2
<AffineTransform> 1 2
 [
  1 -1 ]
 [ 0.5 ]
<Softmax> 1 1
</Nnet>
`

func wantTwoLayer() *Network {
	return &Network{Layers: []Layer{
		{
			W:            kaldi.NewMatrixF32(2, 3, []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}),
			B:            []float32{0.01, 0.02},
			Nonlinearity: "Sigmoid",
		},
		{
			W:            kaldi.NewMatrixF32(1, 2, []float32{1, -1}),
			B:            []float32{0.5},
			Nonlinearity: "Softmax",
		},
	}}
}

func TestRead(t *testing.T) {
	t.Parallel()
	n, err := Read(strings.NewReader(twoLayer))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff(wantTwoLayer(), n); diff != "" {
		t.Fatalf("network mismatch (-want +got):\n%s", diff)
	}

	l, ok := n.Layer(2)
	if !ok || l.Nonlinearity != "Softmax" || l.OutputDim() != 1 || l.InputDim() != 2 {
		t.Fatalf("Layer(2) = %+v, %v", l, ok)
	}
	if _, ok := n.Layer(0); ok {
		t.Fatal("Layer(0) should not exist")
	}
	if _, ok := n.Layer(3); ok {
		t.Fatal("Layer(3) should not exist")
	}
}

func TestReadBracketVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
	}{
		{
			name: "bracket on first row, close on own line",
			text: "<Nnet>\n<AffineTransform> 2 3\n[ 0.1 0.2 0.3\n  0.4 0.5 0.6\n]\n [ 0.01 0.02 ]\n<Sigmoid> 2 2\n</Nnet>\n",
		},
		{
			name: "glued brackets",
			text: "<Nnet>\n<AffineTransform> 2 3\n[0.1 0.2 0.3\n0.4 0.5 0.6]\n[0.01 0.02]\n<Sigmoid> 2 2\n</Nnet>\n",
		},
		{
			name: "hyperparameters before bracket",
			text: "<Nnet>\n<AffineTransform> 2 3\n<LearnRateCoef> 1 <BiasLearnRateCoef> 1 <MaxNorm> 0 [\n  0.1 0.2 0.3\n  0.4 0.5 0.6 ]\n [ 0.01 0.02 ]\n<!EndOfComponent>\n<Sigmoid> 2 2\n<!EndOfComponent>\n</Nnet>\n",
		},
	}
	want := wantTwoLayer().Layers[0]
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n, err := Read(strings.NewReader(tc.text))
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if len(n.Layers) != 1 {
				t.Fatalf("got %d layers, want 1", len(n.Layers))
			}
			if diff := cmp.Diff(want, n.Layers[0]); diff != "" {
				t.Fatalf("layer mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadWithoutNonlinearity(t *testing.T) {
	t.Parallel()
	text := "<Nnet>\n<AffineTransform> 1 1\n [\n  2 ]\n [ 3 ]\n<AffineTransform> 1 1\n [\n  4 ]\n [ 5 ]\n</Nnet>\n"
	n, err := Read(strings.NewReader(text))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(n.Layers) != 2 {
		t.Fatalf("got %d layers, want 2", len(n.Layers))
	}
	for i, l := range n.Layers {
		if l.Nonlinearity != "" {
			t.Fatalf("layer %d nonlinearity = %q, want empty", i+1, l.Nonlinearity)
		}
	}
	if got := n.Layers[1].W.F32[0]; got != 4 {
		t.Fatalf("layer 2 weight = %v, want 4", got)
	}
}

func TestReadErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want error
	}{
		{"stray line", "<Nnet>\nhello world\n</Nnet>\n", ErrUnrecognizedLayerFormat},
		{"bad shape", "<Nnet>\n<AffineTransform> two 3\n", ErrUnrecognizedLayerFormat},
		{"short row", "<AffineTransform> 2 2\n [\n 1 2\n 3 ]\n [ 0 0 ]\n", ErrShapeMismatch},
		{"missing row", "<AffineTransform> 2 2\n [\n 1 2 ]\n [ 0 0 ]\n", ErrShapeMismatch},
		{"bias length", "<AffineTransform> 1 2\n [\n 1 2 ]\n [ 0 0 ]\n", ErrShapeMismatch},
		{"bias unbracketed", "<AffineTransform> 1 2\n [\n 1 2 ]\n 0\n", ErrUnrecognizedLayerFormat},
		{"bad number", "<AffineTransform> 1 2\n [\n 1 x ]\n [ 0 ]\n", kaldi.ErrNumericParse},
		{"truncated", "<AffineTransform> 2 2\n [\n 1 2\n", ErrUnrecognizedLayerFormat},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Read(strings.NewReader(tc.text))
			if !errors.Is(err, tc.want) {
				t.Fatalf("Read error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestReadErrorCarriesLine(t *testing.T) {
	t.Parallel()
	_, err := Read(strings.NewReader("<Nnet>\n<Sigmoid> 3 3\n"))
	if !errors.Is(err, ErrUnrecognizedLayerFormat) {
		t.Fatalf("Read error = %v", err)
	}
	if !strings.Contains(err.Error(), "<Sigmoid> 3 3") {
		t.Fatalf("error %q should name the offending line", err)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	t.Parallel()
	want := wantTwoLayer()
	want.Layers[0].W.F32[4] = 1.0 / 3
	want.Layers[1].B[0] = -1e-7

	var buf bytes.Buffer
	if err := Write(&buf, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := Write(&buf, wantTwoLayer()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.String() != twoLayer {
		t.Fatalf("Write output:\n%s\nwant:\n%s", buf.String(), twoLayer)
	}
}

func TestWriteRejectsBadShape(t *testing.T) {
	t.Parallel()
	tests := map[string]Layer{
		"short bias":      {W: kaldi.NewMatrixF32(2, 1, []float32{1, 2}), B: []float32{0}},
		"float64 weights": {W: kaldi.NewMatrixF64(1, 2, []float64{1, 2}), B: []float32{0}},
	}
	for name, l := range tests {
		n := &Network{Layers: []Layer{l}}
		if err := Write(&bytes.Buffer{}, n); !errors.Is(err, ErrShapeMismatch) {
			t.Fatalf("%s: Write error = %v, want ErrShapeMismatch", name, err)
		}
	}
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "final.nnet.gz")
	want := wantTwoLayer()
	if err := WriteFile(path, want); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("file round trip mismatch (-want +got):\n%s", diff)
	}
}
