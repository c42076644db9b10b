package prompeg

import (
	"encoding/binary"

	"github.com/templexxx/xorsimd"
)

// xorBytes writes out[i] = a[i] ^ b[i] for i in [0, len(out)). a, b and out
// must have equal, matching length; out may alias either input. It never
// allocates.
//
// CoP#3-R2's row/column accumulation is nothing but running this over
// whole bitstrings, so the hot loop is delegated to xorsimd, which picks
// AVX-512/AVX2/SSE2 word-at-a-time paths under the hood and falls back to
// a trailing byte loop itself.
func xorBytes(out, a, b []byte) {
	xorsimd.Bytes(out, a, b)
}

func be16(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

func putBE16(b []byte, v uint16) {
	binary.BigEndian.PutUint16(b, v)
}

func be32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func putBE32(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}
