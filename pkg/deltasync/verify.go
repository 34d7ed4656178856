package deltasync

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/zhengshuai-xiao/fidxsync/internal"
	"github.com/zhengshuai-xiao/fidxsync/pkg/fidx"
)

type VerifyResult struct {
	Name string
	// Err is nil for a valid index, otherwise why it is not.
	Err   error
	Fixed bool
}

// Verify strictly checks every index in localDir against its data file.
// With fix, broken indices of existing data files are rebuilt.
func Verify(localDir string, fix bool) ([]VerifyResult, error) {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return nil, err
	}
	var results []VerifyResult
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fidx.Ext) {
			continue
		}
		indexPath := filepath.Join(localDir, name)
		dataPath := fidx.DataName(indexPath)
		r := VerifyResult{Name: name}
		_, r.Err = fidx.LoadStrict(indexPath, dataPath)
		if r.Err != nil && fix && internal.Exists(dataPath) &&
			(errors.Is(r.Err, internal.ErrInvalidIndex) || errors.Is(r.Err, internal.ErrStaleIndex)) {
			if _, err := fidx.Regenerate(dataPath, indexPath); err != nil {
				logger.Errorf("failed to regenerate %s: %v", indexPath, err)
			} else {
				r.Fixed = true
			}
		}
		if r.Err != nil {
			logger.Warnf("%s: %v", name, r.Err)
		}
		results = append(results, r)
	}
	return results, nil
}
