package nnet

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samcharles93/kaldiio/pkg/kaldi"
	"github.com/samcharles93/kaldiio/pkg/stream"
)

// LayerProto declares one affine layer of a prototype: its shape, how to draw
// its initial parameters and the training hyperparameters carried with it.
type LayerProto struct {
	InputDim          int
	OutputDim         int
	ParamStddev       float64
	BiasMean          float64
	BiasRange         float64
	LearnRateCoef     float64
	BiasLearnRateCoef float64
	MaxNorm           float64
	Nonlinearity      string
}

// DefaultLayerProto returns the hyperparameters used for keys a prototype
// line leaves out. The dimensions are zero and must be supplied.
func DefaultLayerProto() LayerProto {
	return LayerProto{
		ParamStddev:       0.1,
		BiasMean:          -2.0,
		BiasRange:         2.0,
		LearnRateCoef:     1.0,
		BiasLearnRateCoef: 1.0,
		MaxNorm:           0.0,
	}
}

// Proto is a network prototype: layer shapes without weights.
type Proto struct {
	Layers []LayerProto
}

// ReadProto parses a prototype:
//
//	<NnetProto>
//	<AffineTransform> <InputDim> 40 <OutputDim> 256 <ParamStddev> 0.05
//	<Sigmoid> <InputDim> 256 <OutputDim> 256
//	</NnetProto>
//
// The line after each affine declaration names its nonlinearity.
func ReadProto(r io.Reader) (*Proto, error) {
	ls := newLineScanner(r)
	p := &Proto{}
	for {
		line, ok, err := ls.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return p, nil
		}
		switch line {
		case tagNnetProto, tagNnetProtoEnd, tagEndOfComponent:
			continue
		}
		f := strings.Fields(line)
		if f[0] != tagAffine {
			return nil, ls.badLine(line)
		}
		lp, err := parseLayerProto(ls, line, f[1:])
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", len(p.Layers)+1, err)
		}
		if lp.Nonlinearity, err = readProtoNonlinearity(ls); err != nil {
			return nil, fmt.Errorf("layer %d: %w", len(p.Layers)+1, err)
		}
		p.Layers = append(p.Layers, lp)
	}
}

func parseLayerProto(ls *lineScanner, line string, kv []string) (LayerProto, error) {
	if len(kv)%2 != 0 {
		return LayerProto{}, ls.badLine(line)
	}
	lp := DefaultLayerProto()
	var haveIn, haveOut bool
	for i := 0; i < len(kv); i += 2 {
		key, val := kv[i], kv[i+1]
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return LayerProto{}, fmt.Errorf("%w: %s %q", kaldi.ErrNumericParse, key, val)
		}
		switch key {
		case "<InputDim>":
			if lp.InputDim, err = protoDim(key, v); err != nil {
				return LayerProto{}, err
			}
			haveIn = true
		case "<OutputDim>":
			if lp.OutputDim, err = protoDim(key, v); err != nil {
				return LayerProto{}, err
			}
			haveOut = true
		case "<ParamStddev>":
			lp.ParamStddev = v
		case "<BiasMean>":
			lp.BiasMean = v
		case "<BiasRange>":
			lp.BiasRange = v
		case "<LearnRateCoef>":
			lp.LearnRateCoef = v
		case "<BiasLearnRateCoef>":
			lp.BiasLearnRateCoef = v
		case "<MaxNorm>":
			lp.MaxNorm = v
		default:
			return LayerProto{}, fmt.Errorf("%w: %s", ErrUnknownHyperparameter, key)
		}
	}
	if !haveIn || !haveOut {
		return LayerProto{}, fmt.Errorf("%w: %q needs <InputDim> and <OutputDim>", ErrUnrecognizedLayerFormat, line)
	}
	return lp, nil
}

func protoDim(key string, v float64) (int, error) {
	if v <= 0 || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %v", ErrShapeMismatch, key, v)
	}
	return int(v), nil
}

func readProtoNonlinearity(ls *lineScanner) (string, error) {
	for {
		line, ok, err := ls.next()
		if err != nil || !ok {
			return "", err
		}
		if line == tagEndOfComponent {
			continue
		}
		f := strings.Fields(line)
		if f[0] == tagAffine || f[0] == tagNnetProtoEnd {
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

// ReadProtoFile reads a prototype from path.
func ReadProtoFile(path string) (*Proto, error) {
	s, err := stream.Open(path, stream.Read)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()
	return ReadProto(s)
}

// Init draws a layer's parameters: weights from N(0, ParamStddev²) and biases
// uniformly from BiasMean ± BiasRange/2. A nil src uses the global source.
func (lp LayerProto) Init(src rand.Source) Layer {
	w := distuv.Normal{Mu: 0, Sigma: lp.ParamStddev, Src: src}
	data := make([]float32, lp.OutputDim*lp.InputDim)
	for i := range data {
		data[i] = float32(w.Rand())
	}
	b := distuv.Uniform{Min: lp.BiasMean - lp.BiasRange/2, Max: lp.BiasMean + lp.BiasRange/2, Src: src}
	bias := make([]float32, lp.OutputDim)
	for i := range bias {
		bias[i] = float32(b.Rand())
	}
	return Layer{
		W:            kaldi.NewMatrixF32(lp.OutputDim, lp.InputDim, data),
		B:            bias,
		Nonlinearity: lp.Nonlinearity,
	}
}

// Init builds a network with freshly drawn parameters for every layer.
func (p *Proto) Init(src rand.Source) *Network {
	n := &Network{Layers: make([]Layer, len(p.Layers))}
	for i, lp := range p.Layers {
		n.Layers[i] = lp.Init(src)
	}
	return n
}
