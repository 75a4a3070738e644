package record

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bitset"
)

// loadBitmap decodes the bitmapSize-byte occupancy bitmap at its fixed
// offset in buf into a bitset.BitSet (SPEC_FULL.md §4.11): the raw bytes
// are read out word-by-word into a []uint64 that bitset.From then wraps
// directly, so Set/Clear/NextClear/NextSet operate on that same backing
// array until storeBitmap writes it back.
func loadBitmap(buf []byte, bitmapSize int) *bitset.BitSet {
	nWords := (bitmapSize + 7) / 8
	words := make([]uint64, nWords)
	base := dataBitmapOff
	for i := 0; i < nWords; i++ {
		lo := base + i*8
		end := lo + 8
		if end > base+bitmapSize {
			var w uint64
			for j := 0; lo+j < base+bitmapSize; j++ {
				w |= uint64(buf[lo+j]) << (8 * uint(j))
			}
			words[i] = w
			continue
		}
		words[i] = binary.LittleEndian.Uint64(buf[lo:end])
	}
	return bitset.From(words)
}

// storeBitmap writes bs's backing words back into buf's bitmap region.
func storeBitmap(buf []byte, bitmapSize int, bs *bitset.BitSet) {
	words := bs.Bytes()
	base := dataBitmapOff
	for i, w := range words {
		lo := base + i*8
		end := lo + 8
		if end > base+bitmapSize {
			var tmp [8]byte
			binary.LittleEndian.PutUint64(tmp[:], w)
			copy(buf[lo:base+bitmapSize], tmp[:base+bitmapSize-lo])
			continue
		}
		binary.LittleEndian.PutUint64(buf[lo:end], w)
	}
}
