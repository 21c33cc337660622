package kaldi

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/samcharles93/kaldiio/internal/logger"
	"github.com/samcharles93/kaldiio/pkg/stream"
)

// ScriptEntry locates one record: the value for Key starts Offset bytes into
// the archive at Path.
type ScriptEntry struct {
	Key    string
	Path   string
	Offset int64
}

// String formats e as a script line without the trailing newline.
func (e ScriptEntry) String() string {
	return e.Key + " " + e.Path + ":" + strconv.FormatInt(e.Offset, 10)
}

// ParseScriptLine parses "key path:offset". The offset is taken after the
// last colon so paths may themselves contain colons.
func ParseScriptLine(line string) (ScriptEntry, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return ScriptEntry{}, fmt.Errorf("%w: want 2 fields, got %d: %q", ErrMalformedScriptLine, len(fields), line)
	}
	if err := validateKey(fields[0]); err != nil {
		return ScriptEntry{}, fmt.Errorf("%w: %w", ErrMalformedScriptLine, err)
	}
	loc := fields[1]
	i := strings.LastIndexByte(loc, ':')
	if i <= 0 || i == len(loc)-1 {
		return ScriptEntry{}, fmt.Errorf("%w: missing path:offset in %q", ErrMalformedScriptLine, line)
	}
	off, err := strconv.ParseInt(loc[i+1:], 10, 64)
	if err != nil || off < 0 {
		return ScriptEntry{}, fmt.Errorf("%w: bad offset %q", ErrMalformedScriptLine, loc[i+1:])
	}
	return ScriptEntry{Key: fields[0], Path: loc[:i], Offset: off}, nil
}

// WriteScript writes one line per entry.
func WriteScript(w io.Writer, entries []ScriptEntry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := bw.WriteString(e.String() + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ScriptReader resolves the lines of a script and decodes the record each
// one points at. Every record is read through its own file handle, which is
// closed before Next returns. Blank lines are skipped.
type ScriptReader[T any] struct {
	s      *stream.Stream
	sc     *bufio.Scanner
	decode DecodeFunc[T]
	log    logger.Logger

	entry ScriptEntry
	val   T
	err   error
	done  bool
	line  int
}

// OpenScript opens the script at path.
func OpenScript[T any](path string, decode DecodeFunc[T], opts ...Option) (*ScriptReader[T], error) {
	s, err := stream.Open(path, stream.Read)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return newScriptReader(s, decode, o.log.With("script", path)), nil
}

// NewScriptReader reads script lines from r. r is never closed.
func NewScriptReader[T any](r io.Reader, decode DecodeFunc[T], opts ...Option) *ScriptReader[T] {
	o := buildOptions(opts)
	return newScriptReader(stream.Wrap(r), decode, o.log)
}

func newScriptReader[T any](s *stream.Stream, decode DecodeFunc[T], log logger.Logger) *ScriptReader[T] {
	return &ScriptReader[T]{s: s, sc: bufio.NewScanner(s), decode: decode, log: log}
}

// Next resolves the next script line and decodes its record.
func (sr *ScriptReader[T]) Next() bool {
	if sr.done {
		return false
	}
	for sr.sc.Scan() {
		sr.line++
		text := strings.TrimSpace(sr.sc.Text())
		if text == "" {
			continue
		}
		e, err := ParseScriptLine(text)
		if err != nil {
			sr.finish(fmt.Errorf("line %d: %w", sr.line, err))
			return false
		}
		val, err := ReadRecordAt(e.Path, e.Offset, sr.decode)
		if err != nil {
			sr.finish(fmt.Errorf("record %q at %s:%d: %w", e.Key, e.Path, e.Offset, err))
			return false
		}
		sr.log.Debug("record resolved", "key", e.Key, "archive", e.Path, "offset", e.Offset)
		sr.entry, sr.val = e, val
		return true
	}
	sr.finish(sr.sc.Err())
	return false
}

func (sr *ScriptReader[T]) finish(err error) {
	sr.done = true
	sr.err = err
	var zero T
	sr.entry, sr.val = ScriptEntry{}, zero
	if cerr := sr.s.Close(); cerr != nil && sr.err == nil {
		sr.err = cerr
	}
}

// Done reports whether iteration has finished.
func (sr *ScriptReader[T]) Done() bool { return sr.done }

// Key returns the key of the current record.
func (sr *ScriptReader[T]) Key() string { return sr.entry.Key }

// Entry returns the script entry of the current record.
func (sr *ScriptReader[T]) Entry() ScriptEntry { return sr.entry }

// Value returns the current record.
func (sr *ScriptReader[T]) Value() T { return sr.val }

// Err returns the error that stopped iteration, if any.
func (sr *ScriptReader[T]) Err() error { return sr.err }

// Close stops iteration and releases the script stream if it is owned.
func (sr *ScriptReader[T]) Close() error {
	if sr.done {
		return nil
	}
	sr.done = true
	var zero T
	sr.entry, sr.val = ScriptEntry{}, zero
	return sr.s.Close()
}

// All returns an iterator over the remaining records, closing the script
// when the loop ends.
func (sr *ScriptReader[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		defer func() { _ = sr.Close() }()
		for sr.Next() {
			if !yield(sr.entry.Key, sr.val) {
				return
			}
		}
	}
}

// ReadScript collects every record referenced by the script at path.
func ReadScript[T any](path string, decode DecodeFunc[T], opts ...Option) (map[string]T, error) {
	sr, err := OpenScript(path, decode, opts...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T)
	for k, v := range sr.All() {
		out[k] = v
	}
	if err := sr.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
