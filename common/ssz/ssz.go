// Package ssz provides the Merkleization primitives used by the hand-written
// HashTreeRoot methods in types/ssz.go. It follows the same chunking and
// zero-hash-caching approach as fastssz's generated code, reimplemented by
// hand since no sszgen run is possible in this repository.
package ssz

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/geanlabs/gean/types"
)

const BytesPerChunk = 32

var ZeroHash = types.Root{}

func Hash(data []byte) types.Root {
	return types.Root(sha256.Sum256(data))
}

func HashNodes(a, b types.Root) types.Root {
	h := sha256.New()
	h.Write(a[:])
	h.Write(b[:])
	var result types.Root
	copy(result[:], h.Sum(nil))
	return result
}

func HashTreeRootUint64(value uint64) types.Root {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[:8], value)
	return types.Root(buf)
}

// Merkleize computes the root of a binary Merkle tree over chunks, padding
// with zero chunks up to the next power of two of limit (or of len(chunks) if
// limit is 0, i.e. a fixed-size vector).
func Merkleize(chunks []types.Root, limit int) types.Root {
	n := len(chunks)

	if n == 0 {
		if limit > 0 {
			return zeroTreeRoot(nextPowerOfTwo(limit))
		}
		return ZeroHash
	}

	width := nextPowerOfTwo(n)
	if limit > 0 && limit >= n {
		width = nextPowerOfTwo(limit)
	}

	if width == 1 {
		return chunks[0]
	}

	level := make([]types.Root, width)
	copy(level, chunks)

	for len(level) > 1 {
		next := make([]types.Root, len(level)/2)
		for i := range next {
			next[i] = HashNodes(level[i*2], level[i*2+1])
		}
		level = next
	}

	return level[0]
}

func MixInLength(root types.Root, length uint64) types.Root {
	var lenChunk types.Root
	binary.LittleEndian.PutUint64(lenChunk[:8], length)
	return HashNodes(root, lenChunk)
}

// PackBytes splits data into BytesPerChunk-sized, zero-padded chunks.
func PackBytes(data []byte) []types.Root {
	if len(data) == 0 {
		return nil
	}
	n := (len(data) + BytesPerChunk - 1) / BytesPerChunk
	chunks := make([]types.Root, n)
	for i := 0; i < n; i++ {
		end := (i + 1) * BytesPerChunk
		if end > len(data) {
			end = len(data)
		}
		copy(chunks[i][:], data[i*BytesPerChunk:end])
	}
	return chunks
}

// BitlistRoot computes the hash-tree-root of an SSZ bitlist: the underlying
// bits (without the delimiter bit) are packed into chunks, Merkleized against
// a bit-capacity limit, and mixed in with the bit length.
func BitlistRoot(bits []byte, bitLength uint64, limit uint64) types.Root {
	chunkLimit := (int(limit) + 255) / 256
	root := Merkleize(PackBytes(bits), chunkLimit)
	return MixInLength(root, bitLength)
}

func nextPowerOfTwo(x int) int {
	if x <= 1 {
		return 1
	}
	n := x - 1
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

func zeroTreeRoot(width int) types.Root {
	if width <= 1 {
		return ZeroHash
	}
	h := ZeroHash
	for width > 1 {
		h = HashNodes(h, h)
		width /= 2
	}
	return h
}
