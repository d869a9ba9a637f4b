package hash

import (
	"encoding/binary"
	"sync"

	"github.com/zeebo/blake3"
)

// Size of a full digest.
const Size = 32

var pool = &sync.Pool{
	New: func() any {
		return blake3.New()
	},
}

// GetHasher takes a reset hasher from the pool.
func GetHasher() *blake3.Hasher {
	return pool.Get().(*blake3.Hasher)
}

// PutHasher resets hasher and returns it to the pool.
func PutHasher(hasher *blake3.Hasher) {
	hasher.Reset()
	pool.Put(hasher)
}

// Sum computes the digest of all chunks as if they were concatenated.
func Sum(chunks ...[]byte) (rst [Size]byte) {
	hh := GetHasher()
	defer PutHasher(hh)
	for _, chunk := range chunks {
		hh.Write(chunk)
	}
	hh.Sum(rst[:0])
	return rst
}

// Sum64 returns the first 8 bytes of Sum as an unsigned integer.
func Sum64(chunks ...[]byte) uint64 {
	digest := Sum(chunks...)
	return binary.LittleEndian.Uint64(digest[:8])
}
