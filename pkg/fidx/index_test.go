package fidx

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhengshuai-xiao/fidxsync/internal"
)

// seal replaces the trailer so only the field under test is wrong.
func seal(b []byte) []byte {
	end := len(b) - SumSize
	sum := sha1.Sum(b[:end])
	copy(b[end:], sum[:])
	return b
}

func TestParseValidation(t *testing.T) {
	good, err := Build(bytes.NewReader(randomData(10, 70000)))
	require.NoError(t, err)

	clone := func() []byte { return append([]byte(nil), good...) }

	testCases := []struct {
		name string
		data func() []byte
	}{
		{"empty", func() []byte { return nil }},
		{"header only", func() []byte { return clone()[:HeaderSize] }},
		{"misaligned", func() []byte {
			b := append(clone()[:len(good)-SumSize], 0xAA)
			return seal(append(b, make([]byte, SumSize)...))
		}},
		{"bad magic", func() []byte {
			b := clone()
			copy(b, "FIDY")
			return seal(b)
		}},
		{"bad version", func() []byte {
			b := clone()
			binary.BigEndian.PutUint32(b[4:8], 2)
			return seal(b)
		}},
		{"trailer mismatch", func() []byte {
			b := clone()
			b[len(b)-1] ^= 0x01
			return b
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.data())
			assert.ErrorIs(t, err, internal.ErrInvalidIndex)
		})
	}

	idx, err := Parse(good)
	require.NoError(t, err)
	assert.Equal(t, int64(70000), idx.Size)
	assert.Equal(t, good[len(good)-SumSize:], idx.FileSum[:])
}

func TestParseRejectsChunkSizes(t *testing.T) {
	sum := BlobSum([]byte("x"))
	for _, size := range []uint16{0, BlobMax + 1, 0xffff} {
		raw := Encode([]Entry{{Sum: sum, Size: 100}, {Sum: sum, Size: size}})
		_, err := Parse(raw)
		assert.ErrorIs(t, err, internal.ErrInvalidIndex, "size %d", size)
		assert.ErrorContains(t, err, "entry 1")
	}

	idx, err := Parse(Encode([]Entry{{Sum: sum, Size: 1}, {Sum: sum, Size: BlobMax}}))
	require.NoError(t, err)
	assert.Equal(t, int64(1+BlobMax), idx.Size)
}

func TestParseDetectsEveryBitFlip(t *testing.T) {
	good, err := Build(bytes.NewReader(randomData(11, 3*BlobMax)))
	require.NoError(t, err)
	require.Greater(t, len(good), HeaderSize+SumSize)

	for pos := HeaderSize; pos < len(good)-SumSize; pos++ {
		for bit := 0; bit < 8; bit++ {
			b := append([]byte(nil), good...)
			b[pos] ^= 1 << bit
			_, err := Parse(b)
			if !assert.ErrorIs(t, err, internal.ErrInvalidIndex, "byte %d bit %d", pos, bit) {
				return
			}
		}
	}
}

func TestOffsets(t *testing.T) {
	idx := &Index{Entries: []Entry{{Size: 10}, {Size: 5}, {Size: 7}}}
	assert.Equal(t, []int64{0, 10, 15}, idx.Offsets())
}

func writeData(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0644))
	return p
}

func TestLoadStrict(t *testing.T) {
	dir := t.TempDir()
	data := randomData(12, 90000)
	dataPath := writeData(t, dir, "a.bin", data)
	indexPath := IndexName(dataPath)
	_, err := BuildFile(dataPath, indexPath)
	require.NoError(t, err)

	idx, err := LoadStrict(indexPath, dataPath)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), idx.Size)
	assert.Equal(t, indexPath, idx.Name)

	t.Run("touched data file is stale", func(t *testing.T) {
		later := time.Now().Add(time.Hour)
		require.NoError(t, os.Chtimes(dataPath, later, later))
		_, err := LoadStrict(indexPath, dataPath)
		assert.ErrorIs(t, err, internal.ErrStaleIndex)
	})

	t.Run("size mismatch is stale", func(t *testing.T) {
		require.NoError(t, os.WriteFile(dataPath, data[:1000], 0644))
		st, err := os.Stat(indexPath)
		require.NoError(t, err)
		require.NoError(t, os.Chtimes(dataPath, st.ModTime(), st.ModTime()))
		_, err = LoadStrict(indexPath, dataPath)
		assert.ErrorIs(t, err, internal.ErrStaleIndex)
	})

	t.Run("missing data file", func(t *testing.T) {
		_, err := LoadStrict(indexPath, filepath.Join(dir, "nope"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestLoadOrRegenerate(t *testing.T) {
	dir := t.TempDir()
	data := randomData(13, 120000)
	dataPath := writeData(t, dir, "b.bin", data)
	indexPath := IndexName(dataPath)

	t.Run("missing index is built", func(t *testing.T) {
		idx, regenerated, err := LoadOrRegenerate(dataPath, indexPath)
		require.NoError(t, err)
		assert.True(t, regenerated)
		assert.Equal(t, int64(len(data)), idx.Size)
	})

	t.Run("valid index is reused", func(t *testing.T) {
		_, regenerated, err := LoadOrRegenerate(dataPath, indexPath)
		require.NoError(t, err)
		assert.False(t, regenerated)
	})

	t.Run("corrupt index is rebuilt", func(t *testing.T) {
		raw, err := os.ReadFile(indexPath)
		require.NoError(t, err)
		raw[HeaderSize] ^= 0xFF
		st, err := os.Stat(indexPath)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(indexPath, raw, 0644))
		require.NoError(t, os.Chtimes(indexPath, st.ModTime(), st.ModTime()))

		idx, regenerated, err := LoadOrRegenerate(dataPath, indexPath)
		require.NoError(t, err)
		assert.True(t, regenerated)
		want, err := Build(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, want[len(want)-SumSize:], idx.FileSum[:])
	})

	t.Run("stale index is rebuilt", func(t *testing.T) {
		later := time.Now().Add(2 * time.Hour).Truncate(time.Second)
		require.NoError(t, os.Chtimes(dataPath, later, later))
		idx, regenerated, err := LoadOrRegenerate(dataPath, indexPath)
		require.NoError(t, err)
		assert.True(t, regenerated)
		assert.True(t, idx.ModTime.Equal(later))
	})

	t.Run("no data file", func(t *testing.T) {
		_, _, err := LoadOrRegenerate(filepath.Join(dir, "gone.bin"), filepath.Join(dir, "gone.bin.fidx"))
		assert.Error(t, err)
		_, err = Regenerate(filepath.Join(dir, "gone.bin"), filepath.Join(dir, "gone.bin.fidx"))
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.False(t, internal.Exists(filepath.Join(dir, "gone.bin.fidx")))
	})
}

func TestNames(t *testing.T) {
	assert.Equal(t, "a/b.iso.fidx", IndexName("a/b.iso"))
	assert.Equal(t, "a/b.iso", DataName("a/b.iso.fidx"))
	assert.Equal(t, "b.iso", DataName("b.iso"))
	assert.Equal(t, ".fidx", DataName(".fidx"))
}

func TestEncodeMatchesBuilder(t *testing.T) {
	raw, err := Build(bytes.NewReader(randomData(11, 90000)))
	require.NoError(t, err)
	idx, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, Encode(idx.Entries))

	empty, err := Parse(Encode(nil))
	require.NoError(t, err)
	assert.Empty(t, empty.Entries)
	assert.Zero(t, empty.Size)
}
