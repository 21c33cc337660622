package main

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/kaldiio/internal/logger"
)

func keysCmd() *cli.Command {
	var (
		kind   string
		asJSON bool
	)
	return &cli.Command{
		Name:      "keys",
		Usage:     "List the records of an archive or script with their shapes",
		ArgsUsage: "<ark|scp>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "record type: mat, ivec, fvec, post, intervals or htk (an HTK script)", Value: kindMatrix, Destination: &kind},
			&cli.BoolFlag{Name: "json", Usage: "print one JSON object per record", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return cli.Exit("error: keys takes exactly one archive or script path", 1)
			}
			path := cmd.Args().First()
			w := cmd.Root().Writer
			enc := json.NewEncoder(w)

			n := 0
			err := describe(ctx, path, kind, func(ri recordInfo) error {
				n++
				if asJSON {
					return enc.Encode(ri)
				}
				_, err := fmt.Fprintln(w, ri)
				return err
			})
			if err != nil {
				return err
			}
			logger.FromContext(ctx).Debug("listed records", "path", path, "records", n)
			return nil
		},
	}
}
