package fidx

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"time"

	"github.com/zhengshuai-xiao/fidxsync/internal"
	"github.com/zhengshuai-xiao/fidxsync/pkg/rollsum"
)

var errFinished = errors.New("fidx: write after Finish")

// Builder chunks the bytes written to it and produces an index. Chunk
// placement only depends on the absolute offset of each byte, never on how
// the input was split across Write calls.
type Builder struct {
	rs        *rollsum.Rollsum
	pending   []byte
	blockUsed int

	entries []Entry
	size    int64
	data    hash.Hash

	out []byte
}

func NewBuilder() *Builder {
	return &Builder{
		rs:      rollsum.New(),
		pending: make([]byte, 0, BlobMax),
		data:    sha1.New(),
	}
}

func (b *Builder) Write(p []byte) (int, error) {
	if b.out != nil {
		return 0, errFinished
	}
	n := len(p)
	b.data.Write(p)
	b.size += int64(n)

	for len(p) > 0 {
		take := BlockSize - b.blockUsed
		if take > len(p) {
			take = len(p)
		}
		seg := p[:take]
		p = p[take:]

		start := 0
		for i, ch := range seg {
			b.rs.Roll(ch)
			if b.rs.OnSplit() {
				level := (b.rs.Bits() - rollsum.BlobBits) / FanoutBits
				b.emit(seg[start:i+1], uint16(level))
				start = i + 1
			} else if len(b.pending)+i+1-start == BlobMax {
				b.emit(seg[start:i+1], 0)
				start = i + 1
			}
		}
		b.pending = append(b.pending, seg[start:]...)

		b.blockUsed += take
		if b.blockUsed == BlockSize {
			// end of block: the remainder is forced out as a level 0 chunk
			if len(b.pending) > 0 {
				b.emit(nil, 0)
			}
			b.blockUsed = 0
		}
	}
	return n, nil
}

// emit closes the current chunk, made of the pending bytes plus tail.
func (b *Builder) emit(tail []byte, level uint16) {
	size := len(b.pending) + len(tail)
	b.entries = append(b.entries, Entry{
		Sum:   blobSum(b.pending, tail),
		Size:  uint16(size),
		Level: level,
	})
	b.pending = b.pending[:0]
	b.rs.Reset()
}

// Finish flushes the last chunk and returns the encoded index. Further calls
// return the same bytes.
func (b *Builder) Finish() []byte {
	if b.out != nil {
		return b.out
	}
	if len(b.pending) > 0 {
		b.emit(nil, 0)
	}

	b.out = Encode(b.entries)
	return b.out
}

// Entries is the chunk list so far, the trailing partial chunk excluded
// until Finish.
func (b *Builder) Entries() []Entry {
	return b.entries
}

// Size is the number of data bytes written.
func (b *Builder) Size() int64 {
	return b.size
}

// DataSum is the SHA-1 of the raw data written so far.
func (b *Builder) DataSum() Sum {
	var s Sum
	b.data.Sum(s[:0])
	return s
}

// Build indexes everything r yields.
func Build(r io.Reader) ([]byte, error) {
	b := NewBuilder()
	if _, err := io.CopyBuffer(b, r, make([]byte, BlockSize)); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return b.Finish(), nil
}

type BuildResult struct {
	Index   *Index
	DataSum Sum
	Elapsed time.Duration
}

// BuildFile writes the index of dataPath to indexPath and sets its mtime to
// that of the data file, so a later change to the data makes it stale.
func BuildFile(dataPath, indexPath string) (*BuildResult, error) {
	start := time.Now()
	st, err := os.Stat(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dataPath, err)
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", dataPath)
	}
	f, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dataPath, err)
	}
	defer f.Close()

	b := NewBuilder()
	if _, err := io.CopyBuffer(b, f, make([]byte, BlockSize)); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dataPath, err)
	}
	out := b.Finish()

	if err := internal.WriteFileAtomic(indexPath, out, 0644); err != nil {
		return nil, err
	}
	if err := internal.StampTimes(st.ModTime(), indexPath); err != nil {
		internal.RemoveQuietly(indexPath)
		return nil, err
	}

	idx, err := Parse(out)
	if err != nil {
		return nil, err
	}
	idx.Name = indexPath
	idx.ModTime = st.ModTime()

	res := &BuildResult{Index: idx, DataSum: b.DataSum(), Elapsed: time.Since(start)}
	logger.Infof("fidx: %s: %d chunks, %s, data sha1 %s, took %v",
		dataPath, len(idx.Entries), internal.FormatBytes(b.Size()), res.DataSum.Short(), res.Elapsed)
	return res, nil
}
