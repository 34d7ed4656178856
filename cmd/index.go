package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"github.com/zhengshuai-xiao/fidxsync/internal"
	"github.com/zhengshuai-xiao/fidxsync/pkg/fidx"
)

func cmdIndex() *cli.Command {
	return &cli.Command{
		Name:      "index",
		Action:    indexAction,
		Category:  "PUBLISH",
		Usage:     "Write the chunk index of files",
		ArgsUsage: "FILE...",
		Description: `
			Writes FILE.fidx next to every FILE, with the same modification time as FILE.
			Publish both on the server that clients sync from. Indices that still match
			their file are kept unless --force is given.

			Examples:
			$ fidxsync index /srv/images/*.iso`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "rebuild indices that look up to date",
			},
		},
	}
}

func indexAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("index needs at least one FILE", 2)
	}
	failed := 0
	for _, dataPath := range c.Args().Slice() {
		indexPath := fidx.IndexName(dataPath)
		if !c.Bool("force") {
			if idx, err := fidx.LoadStrict(indexPath, dataPath); err == nil {
				fmt.Printf("%s: up to date, %d chunks\n", indexPath, len(idx.Entries))
				continue
			}
		}
		res, err := fidx.BuildFile(dataPath, indexPath)
		if err != nil {
			logger.Errorf("index %s: %v", dataPath, err)
			failed++
			continue
		}
		fmt.Printf("%s: %d chunks, %s, %s\n", indexPath, len(res.Index.Entries),
			internal.FormatBytes(res.Index.Size), internal.Rate(res.Index.Size, res.Elapsed))
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d files failed", failed, c.NArg()), 1)
	}
	return nil
}
