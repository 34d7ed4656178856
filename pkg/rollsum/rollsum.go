// Package rollsum implements the two-accumulator rolling checksum used to
// place content-defined chunk boundaries. The constants and the boundary
// rule are part of the FIDX format: changing any of them changes every
// index ever written.
package rollsum

const (
	WindowBits = 6
	WindowSize = 1 << WindowBits

	// BlobBits low bits of the second accumulator must all be set for a split,
	// which gives an average chunk size of BlobSize.
	BlobBits = 13
	BlobSize = 1 << BlobBits

	charOffset = 31
)

// Rollsum is a rolling checksum over the last WindowSize bytes.
// The zero value is not ready for use; call New or Reset.
type Rollsum struct {
	s1, s2 uint32
	window [WindowSize]byte
	wofs   int
}

func New() *Rollsum {
	r := &Rollsum{}
	r.Reset()
	return r
}

// Reset puts the checksum back to the state of a window full of zero bytes.
func (r *Rollsum) Reset() {
	r.s1 = WindowSize * charOffset
	r.s2 = WindowSize * (WindowSize - 1) * charOffset
	r.window = [WindowSize]byte{}
	r.wofs = 0
}

func (r *Rollsum) add(drop, add byte) {
	r.s1 += uint32(add) - uint32(drop)
	r.s2 += r.s1 - WindowSize*(uint32(drop)+charOffset)
}

// Roll pushes ch into the window, dropping the oldest byte.
func (r *Rollsum) Roll(ch byte) {
	r.add(r.window[r.wofs], ch)
	r.window[r.wofs] = ch
	r.wofs = (r.wofs + 1) % WindowSize
}

func (r *Rollsum) Digest() uint32 {
	return (r.s1 << 16) | (r.s2 & 0xffff)
}

// OnSplit reports whether the byte just rolled in ends a chunk.
func (r *Rollsum) OnSplit() bool {
	return r.s2&(BlobSize-1) == BlobSize-1
}

// Bits is the boundary strength of the current position: BlobBits plus the
// run of set digest bits found above it. Only meaningful when OnSplit is true.
//
// The first bit above the BlobBits window is skipped before counting; writers
// of existing indices count this way, so it stays.
func (r *Rollsum) Bits() int {
	rsum := r.Digest() >> BlobBits
	bits := BlobBits
	for {
		rsum >>= 1
		if rsum&1 == 0 {
			break
		}
		bits++
	}
	return bits
}

// Sum returns the digest of buf rolled through a fresh checksum.
func Sum(buf []byte) uint32 {
	r := New()
	for _, ch := range buf {
		r.Roll(ch)
	}
	return r.Digest()
}

// FindBoundary scans buf with a fresh checksum and returns the length of the
// first chunk and its boundary bits. ofs is 0 when buf holds no boundary and
// the caller has to supply more data or force a split.
func FindBoundary(buf []byte) (ofs int, bits int) {
	r := New()
	for i, ch := range buf {
		r.Roll(ch)
		if r.OnSplit() {
			return i + 1, r.Bits()
		}
	}
	return 0, 0
}
