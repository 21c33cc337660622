package kaldi

import "github.com/samcharles93/kaldiio/pkg/stream"

// ReadFile opens path, decodes the first record with decode and closes the
// file again, whether or not decoding succeeded.
func ReadFile[T any](path string, decode DecodeFunc[T]) (T, error) {
	s, err := stream.Open(path, stream.Read)
	if err != nil {
		var zero T
		return zero, err
	}
	defer func() { _ = s.Close() }()
	return decode(s)
}

// ReadMatrixFile reads a single matrix from path.
func ReadMatrixFile(path string) (*Matrix, error) {
	return ReadFile(path, ReadMatrix)
}

// WriteMatrixFile writes m to path, creating or truncating it. A non-empty
// key makes the file a one-record archive.
func WriteMatrixFile(path string, m *Matrix, key string) (err error) {
	s, err := stream.Open(path, stream.Write)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteMatrix(s, m, key)
}
