// Package nnet reads and writes the legacy Kaldi text format for stacks of
// affine layers, and the prototype format used to initialise one.
//
// A network file looks like:
//
//	<Nnet>
//	<AffineTransform> 2 3
//	 [
//	  0.1 0.2 0.3
//	  0.4 0.5 0.6 ]
//	 [ 0.01 0.02 ]
//	<Sigmoid> 2 2
//	</Nnet>
//
// The shape line gives output then input dimension and the weight block has
// one row per output. Some writers put hyperparameter tokens before the
// opening bracket, or open the bracket on the first row, or close the block
// on a line of its own; all of these are accepted.
package nnet

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samcharles93/kaldiio/pkg/kaldi"
	"github.com/samcharles93/kaldiio/pkg/stream"
)

const (
	tagNnet           = "<Nnet>"
	tagNnetEnd        = "</Nnet>"
	tagAffine         = "<AffineTransform>"
	tagEndOfComponent = "<!EndOfComponent>"
	tagNnetProto      = "<NnetProto>"
	tagNnetProtoEnd   = "</NnetProto>"
)

// Layer is one affine transform followed by an elementwise nonlinearity.
// W is float32 with one row per output unit.
type Layer struct {
	W            *kaldi.Matrix
	B            []float32
	Nonlinearity string
}

// OutputDim returns the number of output units.
func (l *Layer) OutputDim() int { return l.W.Rows }

// InputDim returns the number of inputs.
func (l *Layer) InputDim() int { return l.W.Cols }

// Network is an ordered stack of layers.
type Network struct {
	Layers []Layer
}

// Layer returns layer i, counting from 1 as the file does.
func (n *Network) Layer(i int) (*Layer, bool) {
	if i < 1 || i > len(n.Layers) {
		return nil, false
	}
	return &n.Layers[i-1], true
}

// Read parses a network in the legacy text format.
func Read(r io.Reader) (*Network, error) {
	ls := newLineScanner(r)
	n := &Network{}
	for {
		line, ok, err := ls.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return n, nil
		}
		switch line {
		case tagNnet, tagNnetEnd, tagEndOfComponent:
			continue
		}
		out, in, err := parseShape(ls, line)
		if err != nil {
			return nil, err
		}
		l, err := readLayer(ls, out, in)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", len(n.Layers)+1, err)
		}
		n.Layers = append(n.Layers, l)
	}
}

// parseShape reads "<AffineTransform> out in".
func parseShape(ls *lineScanner, line string) (out, in int, err error) {
	f := strings.Fields(line)
	if len(f) != 3 || f[0] != tagAffine {
		return 0, 0, ls.badLine(line)
	}
	out, err1 := strconv.Atoi(f[1])
	in, err2 := strconv.Atoi(f[2])
	if err1 != nil || err2 != nil || out < 0 || in < 0 {
		return 0, 0, ls.badLine(line)
	}
	return out, in, nil
}

func readLayer(ls *lineScanner, out, in int) (Layer, error) {
	w, err := readWeights(ls, out, in)
	if err != nil {
		return Layer{}, err
	}
	b, err := readBias(ls, out)
	if err != nil {
		return Layer{}, err
	}
	nl, err := readNonlinearity(ls)
	if err != nil {
		return Layer{}, err
	}
	return Layer{W: w, B: b, Nonlinearity: nl}, nil
}

// readWeights reads the bracketed out x in block that follows a shape line.
func readWeights(ls *lineScanner, out, in int) (*kaldi.Matrix, error) {
	// Skip "<Tag> value" pairs until the opening bracket.
	var rest []string
	for opened := false; !opened; {
		line, err := ls.need("weight block")
		if err != nil {
			return nil, err
		}
		f := strings.Fields(line)
		for i := 0; i < len(f); {
			if strings.HasPrefix(f[i], "[") {
				if tok := strings.TrimPrefix(f[i], "["); tok != "" {
					rest = append(rest, tok)
				}
				rest = append(rest, f[i+1:]...)
				opened = true
				break
			}
			if _, ok := tagName(f[i]); ok && i+1 < len(f) {
				i += 2
				continue
			}
			return nil, ls.badLine(line)
		}
	}

	data := make([]float32, 0, out*in)
	rows := 0
	closed := false
	addRow := func(toks []string) error {
		if last := len(toks) - 1; last >= 0 && strings.HasSuffix(toks[last], "]") {
			closed = true
			if tok := strings.TrimSuffix(toks[last], "]"); tok != "" {
				toks[last] = tok
			} else {
				toks = toks[:last]
			}
		}
		if len(toks) == 0 {
			return nil
		}
		if len(toks) != in {
			return fmt.Errorf("%w: weight row %d has %d values, want %d", ErrShapeMismatch, rows+1, len(toks), in)
		}
		vals, err := parseFloats(toks)
		if err != nil {
			return err
		}
		data = append(data, vals...)
		rows++
		return nil
	}

	if err := addRow(rest); err != nil {
		return nil, err
	}
	for !closed {
		line, err := ls.need("weight row")
		if err != nil {
			return nil, err
		}
		if err := addRow(strings.Fields(line)); err != nil {
			return nil, err
		}
	}
	if rows != out {
		return nil, fmt.Errorf("%w: %d weight rows, want %d", ErrShapeMismatch, rows, out)
	}
	return kaldi.NewMatrixF32(out, in, data), nil
}

// readBias reads a single-line "[ v v ... ]" vector.
func readBias(ls *lineScanner, out int) ([]float32, error) {
	line, err := ls.need("bias vector")
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[0] != '[' || line[len(line)-1] != ']' {
		return nil, ls.badLine(line)
	}
	toks := strings.Fields(line[1 : len(line)-1])
	if len(toks) != out {
		return nil, fmt.Errorf("%w: bias has %d values, want %d", ErrShapeMismatch, len(toks), out)
	}
	return parseFloats(toks)
}

// readNonlinearity reads "<Tag> dim dim". A layer directly followed by the
// next shape line or the closing tag has no nonlinearity.
func readNonlinearity(ls *lineScanner) (string, error) {
	for {
		line, ok, err := ls.next()
		if err != nil || !ok {
			return "", err
		}
		if line == tagEndOfComponent {
			continue
		}
		f := strings.Fields(line)
		if f[0] == tagAffine || f[0] == tagNnetEnd {
			ls.unread(line)
			return "", nil
		}
		name, ok := tagName(f[0])
		if !ok {
			return "", ls.badLine(line)
		}
		return name, nil
	}
}

func parseFloats(toks []string) ([]float32, error) {
	out := make([]float32, len(toks))
	for i, t := range toks {
		v, err := strconv.ParseFloat(t, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", kaldi.ErrNumericParse, t)
		}
		out[i] = float32(v)
	}
	return out, nil
}

// Write emits n in the legacy text format. Values are printed in their
// shortest exact form so Read returns identical samples. Weights must be
// float32; a float64 weight matrix is rejected with ErrShapeMismatch.
func Write(w io.Writer, n *Network) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(tagNnet + "\n")
	var num []byte
	for i := range n.Layers {
		l := &n.Layers[i]
		if l.W == nil {
			return fmt.Errorf("%w: layer %d has no weights", ErrShapeMismatch, i+1)
		}
		if l.W.DType != kaldi.DTypeF32 {
			return fmt.Errorf("%w: layer %d weights are %s, want F32", ErrShapeMismatch, i+1, l.W.DType)
		}
		out, in := l.W.Rows, l.W.Cols
		if len(l.B) != out {
			return fmt.Errorf("%w: layer %d bias has %d values, want %d", ErrShapeMismatch, i+1, len(l.B), out)
		}
		if out > 0 && in == 0 {
			return fmt.Errorf("%w: layer %d has empty weight rows", ErrShapeMismatch, i+1)
		}

		fmt.Fprintf(bw, "%s %d %d\n [", tagAffine, out, in)
		if out == 0 {
			bw.WriteString(" ]")
		}
		for r := range out {
			bw.WriteString("\n ")
			for c := range in {
				num = strconv.AppendFloat(num[:0], l.W.At(r, c), 'g', -1, 32)
				bw.WriteByte(' ')
				bw.Write(num)
			}
		}
		if out > 0 {
			bw.WriteString(" ]")
		}
		bw.WriteString("\n [")
		for _, v := range l.B {
			num = strconv.AppendFloat(num[:0], float64(v), 'g', -1, 32)
			bw.WriteByte(' ')
			bw.Write(num)
		}
		bw.WriteString(" ]\n")
		if l.Nonlinearity != "" {
			fmt.Fprintf(bw, "<%s> %d %d\n", l.Nonlinearity, out, out)
		}
	}
	bw.WriteString(tagNnetEnd + "\n")
	return bw.Flush()
}

// ReadFile reads a network from path. Compressed files are recognised by
// their suffix.
func ReadFile(path string) (*Network, error) {
	s, err := stream.Open(path, stream.Read)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()
	return Read(s)
}

// WriteFile writes n to path.
func WriteFile(path string, n *Network) (err error) {
	s, err := stream.Open(path, stream.Write)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return Write(s, n)
}
