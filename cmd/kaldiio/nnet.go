package main

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/kaldiio/internal/logger"
	"github.com/samcharles93/kaldiio/pkg/nnet"
	"github.com/samcharles93/kaldiio/pkg/stream"
)

type layerInfo struct {
	Index        int    `json:"index"`
	InputDim     int    `json:"input_dim"`
	OutputDim    int    `json:"output_dim"`
	Nonlinearity string `json:"nonlinearity,omitempty"`
}

func nnetInfoCmd() *cli.Command {
	var asJSON bool
	return &cli.Command{
		Name:      "nnet-info",
		Usage:     "Show the layer stack of a text nnet file",
		ArgsUsage: "<nnet>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the layers as a JSON array", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return cli.Exit("error: nnet-info takes exactly one nnet path", 1)
			}
			n, err := nnet.ReadFile(cmd.Args().First())
			if err != nil {
				return err
			}
			layers := make([]layerInfo, len(n.Layers))
			for i := range n.Layers {
				l, _ := n.Layer(i + 1)
				layers[i] = layerInfo{Index: i + 1, InputDim: l.InputDim(), OutputDim: l.OutputDim(), Nonlinearity: l.Nonlinearity}
			}

			w := cmd.Root().Writer
			if asJSON {
				return json.NewEncoder(w).Encode(layers)
			}
			for _, li := range layers {
				nl := li.Nonlinearity
				if nl == "" {
					nl = "-"
				}
				if _, err := fmt.Fprintf(w, "%d %d -> %d %s\n", li.Index, li.InputDim, li.OutputDim, nl); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func nnetInitCmd() *cli.Command {
	var seed int64
	return &cli.Command{
		Name:      "nnet-init",
		Usage:     "Draw initial weights for a network prototype",
		ArgsUsage: "<proto> <out nnet>",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "seed", Usage: "random seed (default: config seed, else random)", Destination: &seed},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return cli.Exit("error: nnet-init takes a prototype and an output path", 1)
			}
			log := logger.FromContext(ctx)

			var src rand.Source
			switch cfg := configFrom(ctx); {
			case cmd.IsSet("seed"):
				src = rand.NewPCG(uint64(seed), uint64(seed))
			case cfg.Seed != nil:
				src = rand.NewPCG(uint64(*cfg.Seed), uint64(*cfg.Seed))
			}

			p, err := nnet.ReadProtoFile(cmd.Args().Get(0))
			if err != nil {
				return err
			}
			out := cmd.Args().Get(1)
			if err := nnet.WriteFile(out, p.Init(src)); err != nil {
				return err
			}
			if out != stream.StdioPath {
				log.Info("initialised network", "proto", cmd.Args().Get(0), "out", out, "layers", len(p.Layers), "seeded", src != nil)
			}
			return nil
		},
	}
}
