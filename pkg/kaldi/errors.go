package kaldi

import "errors"

var (
	ErrMalformedKey           = errors.New("kaldi: malformed key")
	ErrUnexpectedTag          = errors.New("kaldi: unexpected integer size tag")
	ErrUnsupportedSampleWidth = errors.New("kaldi: unsupported vector sample type")
	ErrUnsupportedMatrixType  = errors.New("kaldi: unsupported matrix type")
	ErrUnsupportedElementType = errors.New("kaldi: unsupported element type")
	ErrTruncatedRecord        = errors.New("kaldi: truncated record")
	ErrRaggedMatrix           = errors.New("kaldi: ragged matrix rows")
	ErrNumericParse           = errors.New("kaldi: invalid numeric token")
	ErrMalformedScriptLine    = errors.New("kaldi: malformed script line")
	ErrFormat                 = errors.New("kaldi: unrecognized record format")
	ErrNegativeDimension      = errors.New("kaldi: negative dimension")
)
