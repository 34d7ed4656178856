//go:build !windows

package internal

import "os"

func replaceFile(src, dst string) error {
	return os.Rename(src, dst)
}
