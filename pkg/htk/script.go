package htk

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strconv"
	"strings"

	"github.com/samcharles93/kaldiio/internal/logger"
	"github.com/samcharles93/kaldiio/pkg/kaldi"
	"github.com/samcharles93/kaldiio/pkg/stream"
)

// ScriptEntry is one line of an HTK script. Logical names the features,
// Physical is the file holding them. When Segment is set only frames Begin
// through End, inclusive, are read.
type ScriptEntry struct {
	Logical  string
	Physical string
	Segment  bool
	Begin    int
	End      int
}

// ParseScriptLine accepts the three HTK script forms:
//
//	file.htk
//	name=file.htk[100,199]
//	name file.htk
//
// A bare line names itself, segment suffix included. The two column form
// is the Kaldi spelling of name=path.
func ParseScriptLine(line string) (ScriptEntry, error) {
	line = strings.TrimSpace(line)
	var e ScriptEntry
	if fields := strings.Fields(line); len(fields) > 1 {
		if len(fields) != 2 {
			return e, fmt.Errorf("%w: want 1 or 2 fields, got %d: %q", kaldi.ErrMalformedScriptLine, len(fields), line)
		}
		e.Logical, e.Physical = fields[0], fields[1]
	} else if name, path, ok := strings.Cut(line, "="); ok {
		e.Logical, e.Physical = name, path
	} else {
		e.Logical, e.Physical = line, line
	}
	if e.Logical == "" || e.Physical == "" || strings.Contains(e.Physical, "=") {
		return ScriptEntry{}, fmt.Errorf("%w: %q", kaldi.ErrMalformedScriptLine, line)
	}

	open := strings.IndexByte(e.Physical, '[')
	if open < 0 {
		return e, nil
	}
	rng, ok := strings.CutSuffix(e.Physical[open+1:], "]")
	if !ok || open == 0 {
		return ScriptEntry{}, fmt.Errorf("%w: bad segment in %q", kaldi.ErrMalformedScriptLine, line)
	}
	bs, es, ok := strings.Cut(rng, ",")
	begin, berr := strconv.Atoi(strings.TrimSpace(bs))
	end, eerr := strconv.Atoi(strings.TrimSpace(es))
	if !ok || berr != nil || eerr != nil || begin < 0 || end < begin {
		return ScriptEntry{}, fmt.Errorf("%w: bad segment in %q", kaldi.ErrMalformedScriptLine, line)
	}
	e.Physical = e.Physical[:open]
	e.Segment, e.Begin, e.End = true, begin, end
	return e, nil
}

// String formats e in the logical=physical form.
func (e ScriptEntry) String() string {
	s := e.Logical + "=" + e.Physical
	if e.Segment {
		s += "[" + strconv.Itoa(e.Begin) + "," + strconv.Itoa(e.End) + "]"
	}
	return s
}

// Load reads the features e refers to.
func (e ScriptEntry) Load() (*kaldi.Matrix, error) {
	if e.Segment {
		return ReadSegment(e.Physical, e.Begin, e.End)
	}
	m, _, err := ReadFile(e.Physical)
	return m, err
}

// Option configures a ScriptReader.
type Option func(*ScriptReader)

// WithLogger sets the logger used for debug events. The default discards.
func WithLogger(l logger.Logger) Option {
	return func(sr *ScriptReader) {
		if l != nil {
			sr.log = l
		}
	}
}

// ScriptReader loads the features named by each line of an HTK script. It
// follows the same cursor protocol as kaldi.ScriptReader.
type ScriptReader struct {
	s   *stream.Stream
	sc  *bufio.Scanner
	log logger.Logger

	entry ScriptEntry
	val   *kaldi.Matrix
	err   error
	done  bool
	line  int
}

// OpenScript opens the HTK script at path.
func OpenScript(path string, opts ...Option) (*ScriptReader, error) {
	s, err := stream.Open(path, stream.Read)
	if err != nil {
		return nil, err
	}
	sr := newScriptReader(s, opts)
	sr.log = sr.log.With("script", path)
	return sr, nil
}

// NewScriptReader reads script lines from r. r is never closed.
func NewScriptReader(r io.Reader, opts ...Option) *ScriptReader {
	return newScriptReader(stream.Wrap(r), opts)
}

func newScriptReader(s *stream.Stream, opts []Option) *ScriptReader {
	sr := &ScriptReader{s: s, sc: bufio.NewScanner(s), log: logger.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(sr)
	}
	return sr
}

// Next loads the features of the next script line.
func (sr *ScriptReader) Next() bool {
	if sr.done {
		return false
	}
	for sr.sc.Scan() {
		sr.line++
		if strings.TrimSpace(sr.sc.Text()) == "" {
			continue
		}
		e, err := ParseScriptLine(sr.sc.Text())
		if err != nil {
			sr.finish(fmt.Errorf("line %d: %w", sr.line, err))
			return false
		}
		m, err := e.Load()
		if err != nil {
			sr.finish(fmt.Errorf("features %q from %s: %w", e.Logical, e.Physical, err))
			return false
		}
		sr.log.Debug("features loaded", "name", e.Logical, "file", e.Physical, "frames", m.Rows)
		sr.entry, sr.val = e, m
		return true
	}
	sr.finish(sr.sc.Err())
	return false
}

func (sr *ScriptReader) finish(err error) {
	sr.done = true
	sr.err = err
	sr.entry, sr.val = ScriptEntry{}, nil
	if cerr := sr.s.Close(); cerr != nil && sr.err == nil {
		sr.err = cerr
	}
}

// Key returns the logical name of the current features.
func (sr *ScriptReader) Key() string { return sr.entry.Logical }

// Entry returns the script entry of the current features.
func (sr *ScriptReader) Entry() ScriptEntry { return sr.entry }

// Value returns the current features.
func (sr *ScriptReader) Value() *kaldi.Matrix { return sr.val }

// Err returns the error that stopped iteration, if any.
func (sr *ScriptReader) Err() error { return sr.err }

// Close stops iteration and releases the script stream if it is owned.
func (sr *ScriptReader) Close() error {
	if sr.done {
		return nil
	}
	sr.done = true
	sr.entry, sr.val = ScriptEntry{}, nil
	return sr.s.Close()
}

// All returns an iterator over the remaining features, closing the script
// when the loop ends.
func (sr *ScriptReader) All() iter.Seq2[string, *kaldi.Matrix] {
	return func(yield func(string, *kaldi.Matrix) bool) {
		defer func() { _ = sr.Close() }()
		for sr.Next() {
			if !yield(sr.entry.Logical, sr.val) {
				return
			}
		}
	}
}
