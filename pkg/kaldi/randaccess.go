package kaldi

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/samcharles93/kaldiio/pkg/stream"
)

// ReadRecordAt decodes the single record that starts offset bytes into the
// archive at path. The file is opened for this call only and closed before
// returning, so concurrent readers of one archive never share state.
//
// Uncompressed archives are memory-mapped where possible and fall back to a
// seek on the open file. Compressed archives are decompressed from the start
// and the first offset bytes discarded.
func ReadRecordAt[T any](path string, offset int64, decode DecodeFunc[T]) (T, error) {
	var zero T
	if offset < 0 {
		return zero, fmt.Errorf("kaldi: negative offset %d", offset)
	}
	if stream.CompressionFor(path) != stream.None {
		return readCompressedAt(path, offset, decode)
	}

	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return zero, err
	}
	size := st.Size()
	if offset > size {
		return zero, fmt.Errorf("%w: offset %d beyond end of %s (%d bytes)", ErrTruncatedRecord, offset, path, size)
	}

	// Decoders copy every sample out of the mapping, so it can be released
	// as soon as decode returns.
	if size > 0 && size <= int64(int(^uint(0)>>1)) {
		data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
		if err == nil {
			defer func() { _ = unix.Munmap(data) }()
			return decode(bytes.NewReader(data[offset:]))
		}
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return zero, err
	}
	return decode(bufio.NewReader(f))
}

// ReadMatrixAt decodes the matrix record at offset in the archive at path.
func ReadMatrixAt(path string, offset int64) (*Matrix, error) {
	return ReadRecordAt(path, offset, ReadMatrix)
}

func readCompressedAt[T any](path string, offset int64, decode DecodeFunc[T]) (T, error) {
	var zero T
	s, err := stream.Open(path, stream.Read)
	if err != nil {
		return zero, err
	}
	defer func() { _ = s.Close() }()
	if _, err := io.CopyN(io.Discard, s, offset); err != nil {
		return zero, truncated(err, fmt.Sprintf("offset %d in %s", offset, path))
	}
	return decode(s)
}
