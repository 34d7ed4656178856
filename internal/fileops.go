package internal

import (
	"fmt"
	"io"
	"os"
	"time"
)

const TmpSuffix = ".tmp"

func WriteAll(w io.Writer, buf []byte) (int, error) {
	total := 0
	remaining := len(buf)
	for remaining > 0 {
		n, err := w.Write(buf[total:])
		if err != nil {
			return total, fmt.Errorf("failed to write file: %w", err)
		}
		if n == 0 {
			return total, fmt.Errorf("failed to write file: %w", io.ErrShortWrite)
		}

		total += n
		remaining -= n
	}

	return total, nil
}

// WriteFileAtomic stages data in name+".tmp" and renames it onto name.
// The temp file is removed on any failure.
func WriteFileAtomic(name string, data []byte, mode os.FileMode) (err error) {
	tmp := name + TmpSuffix
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()
	if _, err = WriteAll(f, data); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", tmp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	return ReplaceFile(tmp, name)
}

// ReplaceFile moves src over dst. dst may or may not exist.
func ReplaceFile(src, dst string) error {
	if err := replaceFile(src, dst); err != nil {
		return fmt.Errorf("failed to replace %s with %s: %w", dst, src, err)
	}
	return nil
}

// StampTimes sets both access and modification time of every name to t.
func StampTimes(t time.Time, names ...string) error {
	for _, name := range names {
		if err := os.Chtimes(name, t, t); err != nil {
			return fmt.Errorf("failed to set times on %s: %w", name, err)
		}
	}
	return nil
}

// RemoveQuietly removes leftovers, ignoring files that are already gone.
func RemoveQuietly(names ...string) {
	for _, name := range names {
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			logger.Warnf("failed to remove %s: %v", name, err)
		}
	}
}

func Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}
