package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"github.com/zhengshuai-xiao/fidxsync/internal"
)

var logger = internal.GetLogger("fidxsync_cmd")

func Main(args []string) error {
	cli.VersionFlag = &cli.BoolFlag{
		Name: "version", Aliases: []string{"V"},
		Usage: "print version only",
	}
	app := &cli.App{
		Name:                 "fidxsync",
		Usage:                "Keep a local file tree in sync with a remote one, downloading only changed chunks.",
		Version:              internal.Version(),
		Copyright:            "Apache License 2.0",
		HideHelpCommand:      true,
		EnableBashCompletion: true,
		Flags:                globalFlags(),
		Before:               setupLogging,
		Commands: []*cli.Command{
			cmdSync(),
			cmdIndex(),
			cmdVerify(),
			cmdJournal(),
		},
	}

	args, err := reorderOptions(app, args)
	if err != nil {
		return err
	}
	err = app.Run(args)
	if errno, ok := err.(syscall.Errno); ok && errno == 0 {
		err = nil
	}

	return err
}

func setupLogging(c *cli.Context) error {
	internal.SetLogLevel(internal.ParseLogLevel(c.String("log-level")))
	if c.Bool("no-color") || !internal.StderrIsTerminal() {
		internal.DisableLogColor()
	}
	if dir := c.String("log-dir"); dir != "" {
		if err := internal.SetOutFile(filepath.Join(dir, "fidxsync.log")); err != nil {
			return err
		}
	}
	return nil
}

// reorderOptions moves global flags in front of the command and command
// flags in front of positional arguments, so both may be given anywhere.
func reorderOptions(app *cli.App, args []string) ([]string, error) {
	var newArgs = []string{args[0]}
	var others []string
	globalFlags := append(app.Flags, cli.VersionFlag)
	for i := 1; i < len(args); i++ {
		option := args[i]
		if ok, hasValue := isFlag(globalFlags, option); ok {
			newArgs = append(newArgs, option)
			if hasValue {
				i++
				if i >= len(args) {
					return nil, fmt.Errorf("option %s requires value", option)
				}
				newArgs = append(newArgs, args[i])
			}
		} else {
			others = append(others, option)
		}
	}
	// no command
	if len(others) == 0 {
		return newArgs, nil
	}
	cmdName := others[0]
	var cmd *cli.Command
	for _, c := range app.Commands {
		if c.Name == cmdName {
			cmd = c
			break
		}
	}
	if cmd == nil {
		// can't recognize the command, skip it
		return append(newArgs, others...), nil
	}

	newArgs = append(newArgs, cmdName)
	args, others = others[1:], nil
	// -h is valid for all the commands
	cmdFlags := append(cmd.Flags, cli.HelpFlag)
	for i := 0; i < len(args); i++ {
		option := args[i]
		if ok, hasValue := isFlag(cmdFlags, option); ok {
			newArgs = append(newArgs, option)
			if hasValue && len(args[i+1:]) > 0 {
				i++
				newArgs = append(newArgs, args[i])
			}
		} else {
			if strings.HasPrefix(option, "-") && !internal.StringContains(args, "--generate-bash-completion") {
				return nil, fmt.Errorf("unknown option: %s", option)
			}
			others = append(others, option)
		}
	}
	return append(newArgs, others...), nil
}

func isFlag(flags []cli.Flag, option string) (bool, bool) {
	if !strings.HasPrefix(option, "-") {
		return false, false
	}
	// --V or -v work the same
	option = strings.TrimLeft(option, "-")
	for _, flag := range flags {
		_, isBool := flag.(*cli.BoolFlag)
		for _, name := range flag.Names() {
			if option == name || strings.HasPrefix(option, name+"=") {
				return true, !isBool && !strings.Contains(option, "=")
			}
		}
	}
	return false, false
}
