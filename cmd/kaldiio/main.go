package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/kaldiio/internal/logger"
	"github.com/samcharles93/kaldiio/internal/version"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	var (
		cfgFile   string
		logLevel  string
		logFormat string
	)
	return &cli.Command{
		Name:    "kaldiio",
		Usage:   "Inspect and convert Kaldi archives, scripts and nnet files",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "config file (default ~/.config/kaldiio/config.yaml)", Destination: &cfgFile},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", Value: "info", Destination: &logLevel},
			&cli.StringFlag{Name: "log-format", Usage: "pretty, json or text", Value: "pretty", Destination: &logFormat},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := LoadConfig(cfgFile)
			if err != nil {
				return ctx, err
			}
			applyGlobalConfig(cmd, cfg, &logLevel, &logFormat)
			log, err := logger.FromConfig(cmd.Root().ErrWriter, logLevel, logFormat)
			if err != nil {
				return ctx, err
			}
			ctx = logger.WithContext(ctx, log)
			return withConfig(ctx, cfg), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			keysCmd(),
			copyCmd(),
			nnetInfoCmd(),
			nnetInitCmd(),
		},
	}
}
