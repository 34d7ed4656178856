package main

import (
	"os"

	"github.com/zhengshuai-xiao/fidxsync/cmd"
	"github.com/zhengshuai-xiao/fidxsync/internal"
)

var logger = internal.GetLogger("fidxsync_main")

func main() {
	err := cmd.Main(os.Args)
	if err != nil {
		logger.Fatal(err)
	}
}
