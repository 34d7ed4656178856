package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/zhengshuai-xiao/fidxsync/internal"
	"github.com/zhengshuai-xiao/fidxsync/pkg/meta"
)

func cmdJournal() *cli.Command {
	return &cli.Command{
		Name:      "journal",
		Action:    journalAction,
		Category:  "SYNC",
		Usage:     "Show the recorded syncs of a target",
		ArgsUsage: "TARGET",
		Description: `
			TARGET is an index name such as disk.img.fidx. Records are kept per local
			directory, so pass the same --local-dir that sync used.

			Examples:
			$ fidxsync journal --meta-addr 127.0.0.1:6379/1 -C /srv/images disk.img.fidx -n 5`,
		Flags: expandFlags([]cli.Flag{localDirFlag()}, metaFlags(), []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Value:   1,
				Usage:   "number of records to show, newest first",
			},
		}),
	}
}

func journalAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("journal needs exactly one TARGET", 2)
	}
	if c.String("meta-addr") == "" {
		return cli.Exit("--meta-addr is required", 2)
	}
	localDir, err := filepath.Abs(c.String("local-dir"))
	if err != nil {
		return err
	}
	j, err := meta.NewRedisJournal(c.String("meta-addr"), localDir, nil)
	if err != nil {
		return err
	}
	defer j.Close()

	target := c.Args().Get(0)
	recs, err := j.History(c.Context, target, c.Int("count"))
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Printf("no records of %s in %s\n", target, localDir)
		return nil
	}
	for _, r := range recs {
		printRecord(r)
	}
	return nil
}

func printRecord(r *meta.SyncRecord) {
	fmt.Printf("%s  %-8s session %s, took %v\n", r.Started.Local().Format(time.DateTime), r.Outcome,
		r.Session, r.Finished.Sub(r.Started).Round(time.Millisecond))
	fmt.Printf("    reused %s, downloaded %s in %d requests\n",
		internal.FormatBytes(r.Reused), internal.FormatBytes(r.Downloaded), r.Fetches)
	if r.FileSum != "" {
		fmt.Printf("    index sha1 %s\n", r.FileSum)
	}
	if r.Error != "" {
		fmt.Printf("    error: %s\n", r.Error)
	}
}
