package ssz

import (
	"testing"

	"github.com/geanlabs/gean/types"
)

func TestHash_DeterministicAndNonZero(t *testing.T) {
	h1 := Hash([]byte("lean consensus"))
	if h1.IsZero() {
		t.Fatal("hash of non-empty input must not be zero")
	}
	if h2 := Hash([]byte("lean consensus")); h1 != h2 {
		t.Fatal("Hash must be deterministic for identical input")
	}
	if h3 := Hash([]byte("different input")); h1 == h3 {
		t.Fatal("distinct inputs should not collide")
	}
}

func TestHashNodes_OrderSensitive(t *testing.T) {
	a, b := types.Root{1}, types.Root{2}

	if HashNodes(a, b).IsZero() {
		t.Fatal("HashNodes output should not be zero")
	}
	if HashNodes(a, b) == HashNodes(b, a) {
		t.Fatal("HashNodes(a, b) must differ from HashNodes(b, a)")
	}
}

func TestHashTreeRootUint64_LittleEndian(t *testing.T) {
	r := HashTreeRootUint64(256) // 0x0100 -> byte[1] = 1, rest zero
	if r[0] != 0 || r[1] != 1 {
		t.Fatalf("expected little-endian encoding, got %v", r[:2])
	}
	for i := 2; i < 32; i++ {
		if r[i] != 0 {
			t.Fatalf("byte %d should be zero padding, got %d", i, r[i])
		}
	}
}

func TestMerkleize(t *testing.T) {
	t.Run("empty with no limit returns ZeroHash", func(t *testing.T) {
		if got := Merkleize(nil, 0); got != ZeroHash {
			t.Fatalf("got %x, want ZeroHash", got)
		}
	})

	t.Run("single chunk is its own root", func(t *testing.T) {
		chunk := types.Root{1, 2, 3}
		if got := Merkleize([]types.Root{chunk}, 0); got != chunk {
			t.Fatalf("got %x, want %x", got, chunk)
		}
	})

	t.Run("two chunks hash together in order", func(t *testing.T) {
		a, b := types.Root{1}, types.Root{2}
		got := Merkleize([]types.Root{a, b}, 0)
		if want := HashNodes(a, b); got != want {
			t.Fatalf("got %x, want %x", got, want)
		}
	})

	t.Run("empty with a limit pads to the limit's tree depth", func(t *testing.T) {
		withLimit := Merkleize(nil, 4)
		withoutLimit := Merkleize(nil, 0)
		if withLimit == withoutLimit {
			t.Fatal("a nonzero limit should produce a padded (non-ZeroHash) root for an empty list")
		}
	})
}

func TestMixInLength(t *testing.T) {
	root := types.Root{9}

	mixed := MixInLength(root, 42)
	if mixed == root {
		t.Fatal("mixing in a length must change the root")
	}
	if mixed != MixInLength(root, 42) {
		t.Fatal("MixInLength must be deterministic")
	}
	if mixed == MixInLength(root, 43) {
		t.Fatal("different lengths must mix to different roots")
	}
}

func TestPackBytes(t *testing.T) {
	if got := PackBytes(nil); got != nil {
		t.Fatalf("PackBytes(nil) = %v, want nil", got)
	}

	data := make([]byte, BytesPerChunk+1)
	data[0] = 0xaa
	data[BytesPerChunk] = 0xbb

	chunks := PackBytes(data)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0][0] != 0xaa {
		t.Fatalf("first chunk's first byte = %x, want 0xaa", chunks[0][0])
	}
	if chunks[1][0] != 0xbb {
		t.Fatalf("second chunk's first byte = %x, want 0xbb", chunks[1][0])
	}
}

func TestBitlistRoot_Deterministic(t *testing.T) {
	bits := []byte{0b00000101}
	r1 := BitlistRoot(bits, 3, 16)
	r2 := BitlistRoot(bits, 3, 16)
	if r1 != r2 {
		t.Fatal("BitlistRoot must be deterministic for identical inputs")
	}
	if r1 == BitlistRoot(bits, 4, 16) {
		t.Fatal("changing the bit length must change the root")
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {8, 8}, {9, 16},
	}
	for _, tc := range cases {
		if got := nextPowerOfTwo(tc.in); got != tc.want {
			t.Errorf("nextPowerOfTwo(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
