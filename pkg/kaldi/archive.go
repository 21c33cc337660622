package kaldi

import (
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/samcharles93/kaldiio/internal/logger"
	"github.com/samcharles93/kaldiio/pkg/stream"
)

// DecodeFunc decodes one value record. ReadMatrix, ReadIntVector,
// ReadFloatVector, ReadPosterior and ReadIntervals all satisfy it.
type DecodeFunc[T any] func(io.Reader) (T, error)

// Option configures archive and script readers and writers.
type Option func(*options)

type options struct {
	log logger.Logger
}

// WithLogger sets the logger used for debug events. The default discards.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: logger.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ArchiveReader walks the (key, value) records of an archive. It is a
// cursor: call Next until it returns false, then check Err.
//
//	ar, err := kaldi.OpenArchive("feats.ark", kaldi.ReadMatrix)
//	...
//	defer ar.Close()
//	for ar.Next() {
//		use(ar.Key(), ar.Value())
//	}
//	if err := ar.Err(); err != nil { ... }
type ArchiveReader[T any] struct {
	s      *stream.Stream
	decode DecodeFunc[T]
	log    logger.Logger

	key  string
	val  T
	err  error
	done bool
	n    int
}

// OpenArchive opens the archive at path. The reader owns the file and
// closes it once iteration finishes or Close is called.
func OpenArchive[T any](path string, decode DecodeFunc[T], opts ...Option) (*ArchiveReader[T], error) {
	s, err := stream.Open(path, stream.Read)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	o.log.Debug("archive opened", "path", path)
	return &ArchiveReader[T]{s: s, decode: decode, log: o.log.With("path", path)}, nil
}

// NewArchiveReader iterates an archive read from r. r is never closed.
func NewArchiveReader[T any](r io.Reader, decode DecodeFunc[T], opts ...Option) *ArchiveReader[T] {
	o := buildOptions(opts)
	return &ArchiveReader[T]{s: stream.Wrap(r), decode: decode, log: o.log}
}

// Next advances to the next record. It returns false at the end of the
// archive or on the first error.
func (a *ArchiveReader[T]) Next() bool {
	if a.done {
		return false
	}
	key, ok, err := ReadKey(a.s)
	if err != nil {
		a.finish(err)
		return false
	}
	if !ok {
		a.finish(nil)
		return false
	}
	val, err := a.decode(a.s)
	if err != nil {
		a.finish(fmt.Errorf("record %q: %w", key, err))
		return false
	}
	a.key, a.val = key, val
	a.n++
	return true
}

func (a *ArchiveReader[T]) finish(err error) {
	a.done = true
	a.err = err
	var zero T
	a.key, a.val = "", zero
	if cerr := a.s.Close(); cerr != nil && a.err == nil {
		a.err = cerr
	}
	a.log.Debug("archive finished", "records", a.n, "err", a.err)
}

// Done reports whether iteration has finished.
func (a *ArchiveReader[T]) Done() bool { return a.done }

// Key returns the key of the current record.
func (a *ArchiveReader[T]) Key() string { return a.key }

// Value returns the value of the current record.
func (a *ArchiveReader[T]) Value() T { return a.val }

// Err returns the error that stopped iteration, if any.
func (a *ArchiveReader[T]) Err() error { return a.err }

// Close stops iteration early and releases the stream if the reader opened
// it. It is safe to call after iteration has finished.
func (a *ArchiveReader[T]) Close() error {
	if a.done {
		return nil
	}
	a.done = true
	var zero T
	a.key, a.val = "", zero
	return a.s.Close()
}

// All returns an iterator over the remaining records. The stream is released
// when the loop ends, including when the caller breaks out early. Check Err
// after the loop.
func (a *ArchiveReader[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		defer func() { _ = a.Close() }()
		for a.Next() {
			if !yield(a.key, a.val) {
				return
			}
		}
	}
}

// ReadArchive collects every record of the archive at path into a map. Later
// records replace earlier ones with the same key.
func ReadArchive[T any](path string, decode DecodeFunc[T], opts ...Option) (map[string]T, error) {
	ar, err := OpenArchive(path, decode, opts...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T)
	for k, v := range ar.All() {
		out[k] = v
	}
	if err := ar.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// countingWriter tracks the archive offset of each record.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// ArchiveWriter writes (key, value) records and remembers where each value
// starts, so a script can address the records later.
type ArchiveWriter struct {
	path    string
	s       *stream.Stream
	cw      *countingWriter
	script  *stream.Stream
	entries []ScriptEntry
	log     logger.Logger
}

// CreateArchive creates the archive at path. When scriptPath is non-empty a
// script with one "key path:offset" line per record is written alongside.
// Script offsets index the uncompressed bytes, so a script cannot be paired
// with a compressed archive.
func CreateArchive(path, scriptPath string, opts ...Option) (*ArchiveWriter, error) {
	if scriptPath != "" && stream.CompressionFor(path) != stream.None {
		return nil, fmt.Errorf("kaldi: script offsets need an uncompressed archive, got %s", path)
	}
	s, err := stream.Open(path, stream.Write)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	aw := &ArchiveWriter{path: path, s: s, cw: &countingWriter{w: s}, log: o.log.With("path", path)}
	if scriptPath != "" {
		scp, err := stream.Open(scriptPath, stream.Write)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		aw.script = scp
	}
	return aw, nil
}

// NewArchiveWriter writes an archive to w. Entries reports offsets relative
// to the first byte written; w is never closed.
func NewArchiveWriter(w io.Writer, opts ...Option) *ArchiveWriter {
	o := buildOptions(opts)
	s := stream.WrapWriter(w)
	return &ArchiveWriter{s: s, cw: &countingWriter{w: s}, log: o.log}
}

func (aw *ArchiveWriter) begin(key string) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	if _, err := io.WriteString(aw.cw, key+" "); err != nil {
		return 0, err
	}
	return aw.cw.n, nil
}

func (aw *ArchiveWriter) commit(key string, off int64) error {
	e := ScriptEntry{Key: key, Path: aw.path, Offset: off}
	aw.entries = append(aw.entries, e)
	aw.log.Debug("record written", "key", key, "offset", off)
	if aw.script != nil {
		if _, err := io.WriteString(aw.script, e.String()+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// WriteMatrix appends a matrix record.
func (aw *ArchiveWriter) WriteMatrix(key string, m *Matrix) error {
	off, err := aw.begin(key)
	if err != nil {
		return err
	}
	if err := WriteMatrix(aw.cw, m, ""); err != nil {
		return fmt.Errorf("record %q: %w", key, err)
	}
	return aw.commit(key, off)
}

// WriteIntVector appends an integer vector record.
func (aw *ArchiveWriter) WriteIntVector(key string, v []int32) error {
	off, err := aw.begin(key)
	if err != nil {
		return err
	}
	if err := WriteIntVector(aw.cw, v, ""); err != nil {
		return fmt.Errorf("record %q: %w", key, err)
	}
	return aw.commit(key, off)
}

// WriteFloatVector appends a float vector record.
func (aw *ArchiveWriter) WriteFloatVector(key string, v *Vector) error {
	off, err := aw.begin(key)
	if err != nil {
		return err
	}
	if err := WriteFloatVector(aw.cw, v, ""); err != nil {
		return fmt.Errorf("record %q: %w", key, err)
	}
	return aw.commit(key, off)
}

// Entries returns the script entries of the records written so far.
func (aw *ArchiveWriter) Entries() []ScriptEntry {
	out := make([]ScriptEntry, len(aw.entries))
	copy(out, aw.entries)
	return out
}

// Close flushes and closes the archive and script.
func (aw *ArchiveWriter) Close() error {
	err := aw.s.Close()
	if aw.script != nil {
		if serr := aw.script.Close(); err == nil {
			err = serr
		}
		aw.script = nil
	}
	return err
}
