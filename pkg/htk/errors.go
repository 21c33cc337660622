package htk

import "errors"

// Truncated files report kaldi.ErrTruncatedRecord and malformed script
// lines report kaldi.ErrMalformedScriptLine.
var (
	ErrBadHeader       = errors.New("htk: bad header")
	ErrUnsupportedKind = errors.New("htk: unsupported parameter kind")
	ErrSegmentRange    = errors.New("htk: segment out of range")
)
