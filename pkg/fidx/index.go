package fidx

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/zhengshuai-xiao/fidxsync/internal"
)

// Index is a loaded chunk index.
type Index struct {
	// Name is the file the index was loaded from, empty for in-memory indices.
	Name    string
	Entries []Entry
	// FileSum is the trailing hash. It covers every chunk hash in order, so
	// two indices with the same FileSum describe the same content.
	FileSum Sum
	// Size is the sum of all chunk sizes, the size of the data file.
	Size    int64
	ModTime time.Time
}

// Parse validates an encoded index: length, header, trailing hash, then
// chunk sizes.
func Parse(data []byte) (*Index, error) {
	if len(data) < HeaderSize+SumSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than header and trailer", internal.ErrInvalidIndex, len(data))
	}
	body := len(data) - HeaderSize - SumSize
	if body%EntrySize != 0 {
		return nil, fmt.Errorf("%w: entry region of %d bytes is not a multiple of %d", internal.ErrInvalidIndex, body, EntrySize)
	}
	if !bytes.Equal(data[0:4], []byte(Magic)) {
		return nil, fmt.Errorf("%w: bad magic %q", internal.ErrInvalidIndex, data[0:4])
	}
	if ver := binary.BigEndian.Uint32(data[4:8]); ver != Version {
		return nil, fmt.Errorf("%w: got version %d, wanted %d", internal.ErrInvalidIndex, ver, Version)
	}

	end := len(data) - SumSize
	got := sha1.Sum(data[:end])
	if !bytes.Equal(got[:], data[end:]) {
		return nil, fmt.Errorf("%w: trailing hash mismatch", internal.ErrInvalidIndex)
	}

	idx := &Index{Entries: make([]Entry, body/EntrySize)}
	copy(idx.FileSum[:], data[end:])
	for i := range idx.Entries {
		e := getEntry(data[HeaderSize+i*EntrySize:])
		if e.Size == 0 || int(e.Size) > BlobMax {
			return nil, fmt.Errorf("%w: entry %d has size %d, chunks are 1 to %d bytes",
				internal.ErrInvalidIndex, i, e.Size, BlobMax)
		}
		idx.Entries[i] = e
		idx.Size += int64(e.Size)
	}
	return idx, nil
}

// Load reads and validates an index file without looking at its data file.
func Load(indexPath string) (*Index, error) {
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", indexPath, err)
	}
	st, err := os.Stat(indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", indexPath, err)
	}
	idx, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", indexPath, err)
	}
	idx.Name = indexPath
	idx.ModTime = st.ModTime()
	logger.Tracef("loaded %s: %d chunks, %d bytes, sha %s", indexPath, len(idx.Entries), idx.Size, idx.FileSum.Short())
	return idx, nil
}

// LoadStrict loads indexPath and checks it still describes dataPath: the
// modification times must be identical and the sizes must agree.
func LoadStrict(indexPath, dataPath string) (*Index, error) {
	st, err := os.Stat(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dataPath, err)
	}
	idx, err := Load(indexPath)
	if err != nil {
		return nil, err
	}
	if !idx.ModTime.Equal(st.ModTime()) {
		return nil, fmt.Errorf("%w: %s mtime %v, %s mtime %v", internal.ErrStaleIndex,
			indexPath, idx.ModTime, dataPath, st.ModTime())
	}
	if idx.Size != st.Size() {
		return nil, fmt.Errorf("%w: %s covers %d bytes, %s has %d", internal.ErrStaleIndex,
			indexPath, idx.Size, dataPath, st.Size())
	}
	return idx, nil
}

// Regenerate rebuilds the index of dataPath and loads the result.
func Regenerate(dataPath, indexPath string) (*Index, error) {
	if _, err := os.Stat(dataPath); err != nil {
		return nil, fmt.Errorf("cannot regenerate %s: %w", indexPath, err)
	}
	if _, err := BuildFile(dataPath, indexPath); err != nil {
		return nil, err
	}
	return LoadStrict(indexPath, dataPath)
}

// LoadOrRegenerate returns a strictly valid index for dataPath, rebuilding
// it when it is missing, corrupt or stale. regenerated tells which happened.
func LoadOrRegenerate(dataPath, indexPath string) (idx *Index, regenerated bool, err error) {
	idx, err = LoadStrict(indexPath, dataPath)
	if err == nil {
		return idx, false, nil
	}
	if !canHeal(err) {
		return nil, false, err
	}
	if !internal.Exists(dataPath) {
		return nil, false, fmt.Errorf("cannot regenerate %s: %w", indexPath, os.ErrNotExist)
	}
	logger.Warnf("regenerating %s: %v", indexPath, err)
	idx, err = Regenerate(dataPath, indexPath)
	if err != nil {
		return nil, false, err
	}
	return idx, true, nil
}

func canHeal(err error) bool {
	return errors.Is(err, internal.ErrInvalidIndex) ||
		errors.Is(err, internal.ErrStaleIndex) ||
		errors.Is(err, os.ErrNotExist)
}

// Offsets returns the start offset of every chunk in the data file.
func (idx *Index) Offsets() []int64 {
	offs := make([]int64, len(idx.Entries))
	var ofs int64
	for i, e := range idx.Entries {
		offs[i] = ofs
		ofs += int64(e.Size)
	}
	return offs
}
