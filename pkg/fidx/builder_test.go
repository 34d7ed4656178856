package fidx

import (
	"bytes"
	"crypto/sha1"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhengshuai-xiao/fidxsync/internal"
	"github.com/zhengshuai-xiao/fidxsync/pkg/rollsum"
)

func randomData(seed int64, n int) []byte {
	buf := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(buf)
	return buf
}

func mustBuild(t *testing.T, data []byte) *Index {
	t.Helper()
	out, err := Build(bytes.NewReader(data))
	require.NoError(t, err)
	idx, err := Parse(out)
	require.NoError(t, err)
	return idx
}

func TestBlobSum(t *testing.T) {
	// same ids as `git hash-object`
	assert.Equal(t, "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", BlobSum(nil).String())
	assert.Equal(t, "ce013625030ba8dba906f756967f9e9ca394464a", BlobSum([]byte("hello\n")).String())
	assert.Equal(t, BlobSum([]byte("hello\n")), blobSum([]byte("hel"), []byte("lo\n")))
}

func TestBuildSplitIndependence(t *testing.T) {
	data := randomData(1, 3*BlockSize+12345)
	whole, err := Build(bytes.NewReader(data))
	require.NoError(t, err)

	sizes := []int{1, 7, 63, 64, 65, 4096, 100003, BlockSize - 1, BlockSize + 1}
	for _, step := range sizes {
		b := NewBuilder()
		for rest := data; len(rest) > 0; {
			n := step
			if n > len(rest) {
				n = len(rest)
			}
			w, err := b.Write(rest[:n])
			require.NoError(t, err)
			require.Equal(t, n, w)
			rest = rest[n:]
		}
		assert.Equal(t, whole, b.Finish(), "write size %d", step)
	}

	again, err := Build(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, whole, again)
}

func TestBuildChunkRules(t *testing.T) {
	data := randomData(2, 2*BlockSize+5000)
	idx := mustBuild(t, data)
	require.NotEmpty(t, idx.Entries)
	assert.Equal(t, int64(len(data)), idx.Size)

	var ofs int
	for i, e := range idx.Entries {
		require.GreaterOrEqual(t, int(e.Size), 1)
		require.LessOrEqual(t, int(e.Size), BlobMax)
		chunk := data[ofs : ofs+int(e.Size)]
		assert.Equal(t, BlobSum(chunk), e.Sum, "entry %d", i)

		// chunks never cross a read block
		assert.Equal(t, ofs/BlockSize, (ofs+int(e.Size)-1)/BlockSize, "entry %d spans blocks", i)

		split, bits := rollsum.FindBoundary(chunk)
		if split == len(chunk) {
			assert.Equal(t, uint16((bits-rollsum.BlobBits)/FanoutBits), e.Level, "entry %d", i)
		} else {
			assert.Equal(t, 0, split, "entry %d has an earlier boundary", i)
			assert.Equal(t, uint16(0), e.Level)
			end := ofs + int(e.Size)
			assert.True(t, int(e.Size) == BlobMax || end%BlockSize == 0 || end == len(data),
				"entry %d forced without reason", i)
		}
		ofs += int(e.Size)
	}
}

func TestBuildNoBoundaries(t *testing.T) {
	idx := mustBuild(t, make([]byte, 100000))
	require.Len(t, idx.Entries, 4)
	for _, e := range idx.Entries[:3] {
		assert.Equal(t, uint16(BlobMax), e.Size)
		assert.Equal(t, uint16(0), e.Level)
	}
	assert.Equal(t, uint16(100000-3*BlobMax), idx.Entries[3].Size)
	assert.Equal(t, idx.Entries[0].Sum, idx.Entries[1].Sum)
}

func TestBuildEmpty(t *testing.T) {
	out, err := Build(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Len(t, out, HeaderSize+SumSize)

	idx, err := Parse(out)
	require.NoError(t, err)
	assert.Empty(t, idx.Entries)
	assert.Equal(t, int64(0), idx.Size)
}

func TestBuilderFinish(t *testing.T) {
	data := randomData(3, 50000)
	b := NewBuilder()
	_, err := b.Write(data)
	require.NoError(t, err)

	out := b.Finish()
	assert.Equal(t, out, b.Finish())
	assert.Equal(t, Sum(sha1.Sum(data)), b.DataSum())
	assert.Equal(t, int64(len(data)), b.Size())

	_, err = b.Write([]byte{1})
	assert.ErrorIs(t, err, errFinished)
}

func TestBuildFile(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "disk.img")
	data := randomData(4, 300000)
	require.NoError(t, os.WriteFile(dataPath, data, 0644))
	mtime := time.Date(2023, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, os.Chtimes(dataPath, mtime, mtime))

	res, err := BuildFile(dataPath, IndexName(dataPath))
	require.NoError(t, err)
	assert.Equal(t, Sum(sha1.Sum(data)), res.DataSum)
	assert.Equal(t, int64(len(data)), res.Index.Size)
	assert.False(t, internal.Exists(IndexName(dataPath)+internal.TmpSuffix))

	st, err := os.Stat(IndexName(dataPath))
	require.NoError(t, err)
	assert.True(t, st.ModTime().Equal(mtime))

	onDisk, err := os.ReadFile(IndexName(dataPath))
	require.NoError(t, err)
	inMem, err := Build(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, inMem, onDisk)

	_, err = BuildFile(filepath.Join(dir, "missing"), filepath.Join(dir, "missing.fidx"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = BuildFile(dir, filepath.Join(dir, "dir.fidx"))
	assert.Error(t, err)
}
