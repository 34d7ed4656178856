// Package fidx reads and writes FIDX chunk indices.
//
// An index file is a header ("FIDX", big-endian version 1), one 24-byte entry
// per chunk (20-byte blob SHA-1, big-endian uint16 size, big-endian uint16
// level) and a trailing SHA-1 over everything before it.
package fidx

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"strconv"

	"github.com/zhengshuai-xiao/fidxsync/internal"
)

var logger = internal.GetLogger("fidx")

const (
	Magic   = "FIDX"
	Version = 1

	HeaderSize = 8
	EntrySize  = 24
	SumSize    = sha1.Size

	// BlobMax caps a chunk no matter where the rolling checksum would split.
	BlobMax = 8192 * 4
	// BlockSize is the read block of the builder. Chunks never span two blocks.
	BlockSize  = 1024 * 1024
	FanoutBits = 4

	Ext = ".fidx"
)

// Sum is a 20-byte SHA-1 digest.
type Sum [SumSize]byte

func (s Sum) String() string {
	return hex.EncodeToString(s[:])
}

// Short is the first 12 hex digits, for logs.
func (s Sum) Short() string {
	return internal.ShortHex(s[:], 12)
}

// Entry describes one chunk.
type Entry struct {
	Sum   Sum
	Size  uint16
	Level uint16
}

func putHeader(b []byte) {
	copy(b[0:4], Magic)
	binary.BigEndian.PutUint32(b[4:8], Version)
}

func putEntry(b []byte, e Entry) {
	copy(b[0:SumSize], e.Sum[:])
	binary.BigEndian.PutUint16(b[SumSize:SumSize+2], e.Size)
	binary.BigEndian.PutUint16(b[SumSize+2:EntrySize], e.Level)
}

func getEntry(b []byte) Entry {
	var e Entry
	copy(e.Sum[:], b[0:SumSize])
	e.Size = binary.BigEndian.Uint16(b[SumSize : SumSize+2])
	e.Level = binary.BigEndian.Uint16(b[SumSize+2 : EntrySize])
	return e
}

// Encode serializes entries as an index file.
func Encode(entries []Entry) []byte {
	n := HeaderSize + len(entries)*EntrySize
	out := make([]byte, n, n+SumSize)
	putHeader(out)
	for i, e := range entries {
		putEntry(out[HeaderSize+i*EntrySize:], e)
	}
	trailer := sha1.Sum(out)
	return append(out, trailer[:]...)
}

// BlobSum hashes data the way git hashes a blob: SHA-1 over
// "blob <len>\x00" followed by the bytes.
func BlobSum(data []byte) Sum {
	return blobSum(data, nil)
}

// blobSum hashes the concatenation of head and tail without copying them.
func blobSum(head, tail []byte) Sum {
	h := sha1.New()
	n := len(head) + len(tail)
	h.Write([]byte("blob " + strconv.Itoa(n) + "\x00"))
	h.Write(head)
	h.Write(tail)
	var s Sum
	h.Sum(s[:0])
	return s
}

// IndexName is the index file that belongs to a data file.
func IndexName(dataName string) string {
	return dataName + Ext
}

// DataName strips the index suffix; names without it are returned unchanged.
func DataName(indexName string) string {
	if len(indexName) > len(Ext) && indexName[len(indexName)-len(Ext):] == Ext {
		return indexName[:len(indexName)-len(Ext)]
	}
	return indexName
}
