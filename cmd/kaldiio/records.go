package main

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/samcharles93/kaldiio/internal/logger"
	"github.com/samcharles93/kaldiio/pkg/htk"
	"github.com/samcharles93/kaldiio/pkg/kaldi"
)

// Record kinds accepted by --type.
const (
	kindMatrix    = "mat"
	kindIntVec    = "ivec"
	kindFloatVec  = "fvec"
	kindPosterior = "post"
	kindIntervals = "intervals"
	kindHTK       = "htk"
)

var kinds = []string{kindMatrix, kindIntVec, kindFloatVec, kindPosterior, kindIntervals, kindHTK}

func isScript(path string) bool {
	return strings.HasSuffix(path, ".scp")
}

// forEach decodes every record of the archive or script at path and calls fn
// for each. Iteration stops at the first error from fn.
func forEach[T any](ctx context.Context, path string, decode kaldi.DecodeFunc[T], fn func(key string, v T) error) error {
	log := logger.FromContext(ctx)
	opts := []kaldi.Option{kaldi.WithLogger(log)}

	var (
		seq  iter.Seq2[string, T]
		errf func() error
	)
	if isScript(path) {
		sr, err := kaldi.OpenScript(path, decode, opts...)
		if err != nil {
			return err
		}
		seq, errf = sr.All(), sr.Err
	} else {
		ar, err := kaldi.OpenArchive(path, decode, opts...)
		if err != nil {
			return err
		}
		seq, errf = ar.All(), ar.Err
	}

	for key, v := range seq {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(key, v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return errf()
}

// forEachHTK loads the features named by every line of the HTK script at
// path and calls fn for each.
func forEachHTK(ctx context.Context, path string, fn func(key string, m *kaldi.Matrix) error) error {
	sr, err := htk.OpenScript(path, htk.WithLogger(logger.FromContext(ctx)))
	if err != nil {
		return err
	}
	for key, m := range sr.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(key, m); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return sr.Err()
}

// recordInfo summarises one record for keys output.
type recordInfo struct {
	Key   string `json:"key"`
	Kind  string `json:"kind"`
	Rows  int    `json:"rows,omitempty"`
	Cols  int    `json:"cols,omitempty"`
	Len   int    `json:"len"`
	DType string `json:"dtype,omitempty"`
}

func (ri recordInfo) String() string {
	switch ri.Kind {
	case kindMatrix, kindHTK:
		return fmt.Sprintf("%s %dx%d %s", ri.Key, ri.Rows, ri.Cols, ri.DType)
	case kindFloatVec:
		return fmt.Sprintf("%s %d %s", ri.Key, ri.Len, ri.DType)
	default:
		return fmt.Sprintf("%s %d", ri.Key, ri.Len)
	}
}

// describe walks path as records of kind and reports each one.
func describe(ctx context.Context, path, kind string, emit func(recordInfo) error) error {
	switch kind {
	case kindMatrix:
		return forEach(ctx, path, kaldi.ReadMatrix, func(k string, m *kaldi.Matrix) error {
			return emit(recordInfo{Key: k, Kind: kind, Rows: m.Rows, Cols: m.Cols, Len: m.Rows * m.Cols, DType: m.DType.String()})
		})
	case kindIntVec:
		return forEach(ctx, path, kaldi.ReadIntVector, func(k string, v []int32) error {
			return emit(recordInfo{Key: k, Kind: kind, Len: len(v)})
		})
	case kindFloatVec:
		return forEach(ctx, path, kaldi.ReadFloatVector, func(k string, v *kaldi.Vector) error {
			return emit(recordInfo{Key: k, Kind: kind, Len: v.Len(), DType: v.DType.String()})
		})
	case kindPosterior:
		return forEach(ctx, path, kaldi.ReadPosterior, func(k string, p kaldi.Posterior) error {
			return emit(recordInfo{Key: k, Kind: kind, Len: len(p)})
		})
	case kindIntervals:
		return forEach(ctx, path, kaldi.ReadIntervals, func(k string, iv []kaldi.Interval) error {
			return emit(recordInfo{Key: k, Kind: kind, Len: len(iv)})
		})
	case kindHTK:
		return forEachHTK(ctx, path, func(k string, m *kaldi.Matrix) error {
			return emit(recordInfo{Key: k, Kind: kind, Rows: m.Rows, Cols: m.Cols, Len: m.Rows * m.Cols, DType: m.DType.String()})
		})
	default:
		return fmt.Errorf("unknown record type %q (want one of %s)", kind, strings.Join(kinds, ", "))
	}
}
