package cmd

import (
	"github.com/urfave/cli/v2"
	"github.com/zhengshuai-xiao/fidxsync/internal"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "log level: trace/debug/info/warn/error",
			EnvVars: []string{"FIDXSYNC_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-dir",
			Usage:   "write logs to a rotated file in this directory instead of stderr (" + internal.GetDefaultLogDir() + " is a good choice)",
			EnvVars: []string{"FIDXSYNC_LOG_DIR"},
		},
		&cli.BoolFlag{
			Name:  "no-color",
			Usage: "disable colors in log output",
		},
	}
}

func localDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "local-dir",
		Aliases: []string{"C"},
		Value:   ".",
		Usage:   "the local directory to keep in sync",
		EnvVars: []string{"FIDXSYNC_LOCAL_DIR"},
	}
}

func metaFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "meta-addr",
			Usage:   "redis address for the sync journal, e.g. 127.0.0.1:6379/1",
			EnvVars: []string{"FIDXSYNC_META_ADDR"},
		},
	}
}

func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "s3-endpoint",
			Usage:   "endpoint for s3:// locations, default is AWS",
			EnvVars: []string{"FIDXSYNC_S3_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "s3-region",
			Usage:   "region for s3:// locations",
			EnvVars: []string{"AWS_REGION"},
		},
		&cli.BoolFlag{
			Name:  "s3-path-style",
			Usage: "use path style addressing for s3:// locations",
		},
		&cli.StringFlag{
			Name:    "minio-endpoint",
			Value:   "127.0.0.1:9000",
			Usage:   "endpoint for minio:// locations; credentials come from MINIO_ROOT_USER and MINIO_ROOT_PASSWORD",
			EnvVars: []string{"FIDXSYNC_MINIO_ENDPOINT"},
		},
		&cli.BoolFlag{
			Name:  "minio-secure",
			Usage: "use TLS for minio:// locations",
		},
	}
}

func syncFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "YAML config file; flags given on the command line override it",
		},
		&cli.StringFlag{
			Name:  "include",
			Usage: "only sync targets whose index name matches this glob, e.g. '*.iso.fidx'",
		},
		&cli.Int64Flag{
			Name:  "max-queue",
			Value: internal.DefaultMaxQueueSize,
			Usage: "largest byte range fetched in one request",
		},
		&cli.DurationFlag{
			Name:  "lock-timeout",
			Value: 0,
			Usage: "how long to wait for another host syncing the same journal namespace",
		},
	}
}

func expandFlags(compoundFlags ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, flags_ := range compoundFlags {
		flags = append(flags, flags_...)
	}
	return flags
}
