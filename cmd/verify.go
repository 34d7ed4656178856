package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"github.com/zhengshuai-xiao/fidxsync/pkg/deltasync"
)

func cmdVerify() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Action:    verifyAction,
		Category:  "SYNC",
		Usage:     "Check that local indices match their files",
		ArgsUsage: "[DIR]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "fix",
				Usage: "regenerate stale or corrupt indices",
			},
		},
	}
}

func verifyAction(c *cli.Context) error {
	dir := "."
	if c.NArg() > 0 {
		dir = c.Args().Get(0)
	}
	results, err := deltasync.Verify(dir, c.Bool("fix"))
	if err != nil {
		return err
	}
	bad := 0
	for _, r := range results {
		switch {
		case r.Err == nil:
			fmt.Printf("ok      %s\n", r.Name)
		case r.Fixed:
			fmt.Printf("fixed   %s: %v\n", r.Name, r.Err)
		default:
			bad++
			fmt.Printf("broken  %s: %v\n", r.Name, r.Err)
		}
	}
	if bad > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d indices are broken", bad, len(results)), 1)
	}
	return nil
}
