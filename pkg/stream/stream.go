// Package stream opens byte streams for the Kaldi codecs.
//
// A Stream is either owned (opened here from a path, possibly through a
// compression filter chosen by file suffix) or foreign (an io.Reader or
// io.Writer supplied by the caller). Closing an owned Stream releases every
// layer it created. Closing a foreign Stream never closes the caller's
// handle.
package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Mode selects the direction a path is opened in.
type Mode int

const (
	Read Mode = iota
	Write
)

func (m Mode) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Compression is the filter applied to a path based on its suffix.
type Compression string

const (
	None Compression = "none"
	Gzip Compression = "gzip"
	Zstd Compression = "zstd"
	LZ4  Compression = "lz4"
)

// StdioPath names standard input or output, depending on the mode.
const StdioPath = "-"

const bufSize = 64 << 10

var ErrClosed = errors.New("stream: already closed")

// CompressionFor returns the filter implied by the suffix of path.
func CompressionFor(path string) Compression {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return Gzip
	case strings.HasSuffix(path, ".zst"):
		return Zstd
	case strings.HasSuffix(path, ".lz4"):
		return LZ4
	default:
		return None
	}
}

// Stream is a readable or writable byte stream.
type Stream struct {
	path  string
	mode  Mode
	owned bool

	r  io.Reader
	br io.ByteReader
	w  io.Writer
	bw *bufio.Writer

	// closers are closed in reverse order on Close.
	closers []io.Closer
	closed  bool
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Open opens path in the given mode. Paths ending in .gz, .zst or .lz4 are
// decompressed on read and compressed on write. The path "-" maps to
// standard input or output, which are treated as foreign.
func Open(path string, mode Mode) (*Stream, error) {
	if path == StdioPath {
		if mode == Write {
			return WrapWriter(os.Stdout), nil
		}
		return Wrap(os.Stdin), nil
	}
	switch mode {
	case Read:
		return openRead(path)
	case Write:
		return openWrite(path)
	default:
		return nil, fmt.Errorf("stream: unsupported mode %s", mode)
	}
}

func openRead(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	cleanup := func(err error) (*Stream, error) {
		_ = f.Close()
		return nil, fmt.Errorf("stream: open %s: %w", path, err)
	}

	s := &Stream{path: path, mode: Read, owned: true, closers: []io.Closer{f}}
	var src io.Reader = f
	switch CompressionFor(path) {
	case Gzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			return cleanup(err)
		}
		s.closers = append(s.closers, zr)
		src = zr
	case Zstd:
		dec, err := zstd.NewReader(f)
		if err != nil {
			return cleanup(err)
		}
		rc := dec.IOReadCloser()
		s.closers = append(s.closers, rc)
		src = rc
	case LZ4:
		src = lz4.NewReader(f)
	}
	br := bufio.NewReaderSize(src, bufSize)
	s.r = br
	s.br = br
	return s, nil
}

func openWrite(path string) (*Stream, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	cleanup := func(err error) (*Stream, error) {
		_ = f.Close()
		return nil, fmt.Errorf("stream: create %s: %w", path, err)
	}

	s := &Stream{path: path, mode: Write, owned: true, closers: []io.Closer{f}}
	var dst io.Writer = f
	switch CompressionFor(path) {
	case Gzip:
		zw := gzip.NewWriter(f)
		s.closers = append(s.closers, zw)
		dst = zw
	case Zstd:
		enc, err := zstd.NewWriter(f)
		if err != nil {
			return cleanup(err)
		}
		s.closers = append(s.closers, enc)
		dst = enc
	case LZ4:
		lw := lz4.NewWriter(f)
		s.closers = append(s.closers, lw)
		dst = lw
	}
	s.bw = bufio.NewWriterSize(dst, bufSize)
	s.w = s.bw
	s.closers = append(s.closers, closerFunc(s.bw.Flush))
	return s, nil
}

// Wrap returns a foreign read Stream over r. Reads go straight to r, so the
// caller's position in r always matches what the codecs consumed.
func Wrap(r io.Reader) *Stream {
	s := &Stream{mode: Read, r: r}
	if br, ok := r.(io.ByteReader); ok {
		s.br = br
	}
	return s
}

// WrapWriter returns a foreign write Stream over w. Writes are not buffered.
func WrapWriter(w io.Writer) *Stream {
	return &Stream{mode: Write, w: w}
}

// Owned reports whether Close releases the underlying handle.
func (s *Stream) Owned() bool { return s.owned }

// Path returns the path the stream was opened from, or "" for a foreign
// stream.
func (s *Stream) Path() string { return s.path }

func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if s.r == nil {
		return 0, fmt.Errorf("stream: %s stream is not readable", s.mode)
	}
	return s.r.Read(p)
}

// ReadByte reads a single byte, without read-ahead when r has no
// io.ByteReader of its own.
func (s *Stream) ReadByte() (byte, error) {
	if s.br != nil && !s.closed {
		return s.br.ReadByte()
	}
	var one [1]byte
	if _, err := io.ReadFull(s, one[:]); err != nil {
		return 0, err
	}
	return one[0], nil
}

func (s *Stream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if s.w == nil {
		return 0, fmt.Errorf("stream: %s stream is not writable", s.mode)
	}
	return s.w.Write(p)
}

// Close releases the layers the stream opened itself. It is safe to call
// more than once.
func (s *Stream) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
