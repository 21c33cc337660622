package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/kaldiio/internal/logger"
	"github.com/samcharles93/kaldiio/pkg/htk"
	"github.com/samcharles93/kaldiio/pkg/kaldi"
	"github.com/samcharles93/kaldiio/pkg/stream"
)

func copyCmd() *cli.Command {
	var (
		kind        string
		scriptOut   string
		compression string
	)
	return &cli.Command{
		Name:      "copy",
		Usage:     "Copy an archive or script into a binary archive, optionally with a script",
		ArgsUsage: "<in ark|scp> <out ark>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "record type: mat, ivec, fvec or htk (an HTK script)", Value: kindMatrix, Destination: &kind},
			&cli.StringFlag{Name: "scp", Usage: "also write a script indexing the output archive", Destination: &scriptOut},
			&cli.StringFlag{Name: "compress", Usage: "suffix added to an output without one: gz, zst, lz4 or none", Destination: &compression},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return cli.Exit("error: copy takes an input and an output path", 1)
			}
			if cfg := configFrom(ctx); cfg.Compression != "" && !cmd.IsSet("compress") {
				compression = cfg.Compression
			}
			in := cmd.Args().Get(0)
			out, err := outputPath(cmd.Args().Get(1), compression)
			if err != nil {
				return err
			}

			if err := checkDistinct(in, kind, out, scriptOut); err != nil {
				return err
			}

			log := logger.FromContext(ctx)
			aw, err := kaldi.CreateArchive(out, scriptOut, kaldi.WithLogger(log))
			if err != nil {
				return err
			}
			n, err := copyRecords(ctx, in, kind, aw)
			if cerr := aw.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			log.Info("copied archive", "from", in, "to", out, "records", n)
			return nil
		},
	}
}

// copyRecords re-encodes every record of in into aw and returns how many
// were written.
func copyRecords(ctx context.Context, in, kind string, aw *kaldi.ArchiveWriter) (int, error) {
	n := 0
	var err error
	switch kind {
	case kindMatrix:
		err = forEach(ctx, in, kaldi.ReadMatrix, func(k string, m *kaldi.Matrix) error {
			n++
			return aw.WriteMatrix(k, m)
		})
	case kindIntVec:
		err = forEach(ctx, in, kaldi.ReadIntVector, func(k string, v []int32) error {
			n++
			return aw.WriteIntVector(k, v)
		})
	case kindFloatVec:
		err = forEach(ctx, in, kaldi.ReadFloatVector, func(k string, v *kaldi.Vector) error {
			n++
			return aw.WriteFloatVector(k, v)
		})
	case kindHTK:
		err = forEachHTK(ctx, in, func(k string, m *kaldi.Matrix) error {
			n++
			return aw.WriteMatrix(k, m)
		})
	default:
		err = fmt.Errorf("copy supports mat, ivec, fvec and htk records, not %q", kind)
	}
	return n, err
}

// checkDistinct refuses outputs that name a file the copy reads from: the
// input itself or, for a script input, any file it indexes. Creating the
// output would truncate that file before it is read.
func checkDistinct(in, kind string, outs ...string) error {
	sources := []string{in}
	if in != stream.StdioPath && (kind == kindHTK || isScript(in)) {
		paths, err := scriptSources(in, kind)
		if err != nil {
			return err
		}
		sources = append(sources, paths...)
	}
	for _, out := range outs {
		if out == "" || out == stream.StdioPath {
			continue
		}
		oi, err := os.Stat(out)
		if err != nil {
			continue
		}
		for _, src := range sources {
			if src == stream.StdioPath {
				continue
			}
			if si, err := os.Stat(src); err == nil && os.SameFile(si, oi) {
				return fmt.Errorf("copy: output %s is also an input (%s)", out, src)
			}
		}
	}
	return nil
}

// scriptSources lists the distinct files a Kaldi or HTK script refers to.
func scriptSources(path, kind string) ([]string, error) {
	s, err := stream.Open(path, stream.Read)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()

	var paths []string
	seen := map[string]bool{}
	sc := bufio.NewScanner(s)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		var src string
		if kind == kindHTK {
			e, err := htk.ParseScriptLine(sc.Text())
			if err != nil {
				return nil, err
			}
			src = e.Physical
		} else {
			e, err := kaldi.ParseScriptLine(sc.Text())
			if err != nil {
				return nil, err
			}
			src = e.Path
		}
		if !seen[src] {
			seen[src] = true
			paths = append(paths, src)
		}
	}
	return paths, sc.Err()
}
