package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
	"github.com/zhengshuai-xiao/fidxsync/internal"
	"github.com/zhengshuai-xiao/fidxsync/pkg/deltasync"
	"github.com/zhengshuai-xiao/fidxsync/pkg/fetch"
	"github.com/zhengshuai-xiao/fidxsync/pkg/meta"
)

func cmdSync() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Action:    syncAction,
		Category:  "SYNC",
		Usage:     "Update local files from a remote tree",
		ArgsUsage: "BASE",
		Description: `
			BASE names the remote files: a single index (.../name.fidx), a directory or bucket
			prefix ending in "/", an HTML page linking to index files, or a text file listing
			one index name per line. Every target's data file is the index name without ".fidx".
			Chunks that already exist in any local file are copied, the rest is downloaded.

			Examples:
			$ fidxsync sync https://mirror.example.com/images/
			$ fidxsync sync -C /srv/images s3://bucket/images/ --include '*.iso.fidx'
			$ fidxsync sync /mnt/share/images/disk.img.fidx`,
		Flags: expandFlags([]cli.Flag{localDirFlag()}, syncFlags(), metaFlags(), storageFlags()),
	}
}

// loadConfig merges the config file, if any, with the flags set on the
// command line.
func loadConfig(c *cli.Context) (*internal.Config, error) {
	conf := internal.DefaultConfig()
	if name := c.String("config"); name != "" {
		var err error
		if conf, err = internal.LoadConfigFile(name); err != nil {
			return nil, err
		}
	}
	if c.IsSet("local-dir") {
		conf.LocalDir = c.String("local-dir")
	}
	if c.IsSet("include") {
		conf.Include = c.String("include")
	}
	if c.IsSet("max-queue") {
		conf.MaxQueueSize = c.Int64("max-queue")
	}
	if c.IsSet("meta-addr") {
		conf.MetaAddr = c.String("meta-addr")
	}
	if c.IsSet("s3-endpoint") {
		conf.S3Endpoint = c.String("s3-endpoint")
	}
	if c.IsSet("s3-region") {
		conf.S3Region = c.String("s3-region")
	}
	if c.IsSet("s3-path-style") {
		conf.S3PathStyle = c.Bool("s3-path-style")
	}
	if c.IsSet("minio-endpoint") || conf.MinioEndpoint == "" {
		conf.MinioEndpoint = c.String("minio-endpoint")
	}
	if c.IsSet("minio-secure") {
		conf.MinioSecure = c.Bool("minio-secure")
	}
	if c.IsSet("log-level") {
		conf.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-dir") {
		conf.LogDir = c.String("log-dir")
	}
	return conf, conf.Validate()
}

func syncAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("sync needs exactly one BASE argument", 2)
	}
	base := c.Args().Get(0)
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	// settings only present in the config file
	if !c.IsSet("log-level") {
		internal.SetLogLevel(internal.ParseLogLevel(conf.LogLevel))
	}
	if !c.IsSet("log-dir") && conf.LogDir != "" {
		if err := internal.SetOutFile(filepath.Join(conf.LogDir, "fidxsync.log")); err != nil {
			return err
		}
	}

	localDir, err := filepath.Abs(conf.LocalDir)
	if err != nil {
		return err
	}

	var journal meta.Journal
	if conf.MetaAddr != "" {
		j, err := meta.NewRedisJournal(conf.MetaAddr, localDir, nil)
		if err != nil {
			return err
		}
		defer j.Close()
		journal = j
	}

	engine, err := deltasync.NewEngine(deltasync.Options{
		Fetcher: fetch.NewMux(fetch.Options{
			S3Endpoint:    conf.S3Endpoint,
			S3Region:      conf.S3Region,
			S3PathStyle:   conf.S3PathStyle,
			MinioEndpoint: conf.MinioEndpoint,
			MinioSecure:   conf.MinioSecure,
		}),
		LocalDir:      localDir,
		Observer:      &consoleObserver{w: os.Stderr, tty: internal.StderrIsTerminal()},
		Journal:       journal,
		LockTimeout:   c.Duration("lock-timeout"),
		Include:       conf.Include,
		MaxQueueSize:  conf.MaxQueueSize,
		ProgressEvery: conf.ProgressEvery,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Infof("syncing %s from %s", localDir, internal.RemovePassword(base))
	report, err := engine.Run(ctx, base)
	if err != nil {
		return err
	}

	fmt.Println()
	for _, t := range report.Targets {
		switch {
		case t.Err != nil:
			fmt.Printf("%-40s failed: %v\n", t.Name, t.Err)
		default:
			fmt.Printf("%-40s %-8s reused %s, downloaded %s in %d requests (%s)\n", t.Name, t.Outcome,
				internal.FormatBytes(t.Reused), internal.FormatBytes(t.Downloaded), t.Fetches,
				internal.Rate(t.Downloaded, t.Finished.Sub(t.Started)))
		}
	}
	if err := report.Err(); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}
