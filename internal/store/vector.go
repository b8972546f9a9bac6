package store

import (
	"encoding/binary"
	"math"
)

// Vectors are stored as a flat little-endian float32 blob. A nil or empty
// vector round-trips as NULL so "has an embedding" stays a single IS NOT
// NULL check.

func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(blob []byte) []float32 {
	// a blob that is not a whole number of float32s is corrupt; treat the
	// row as unembedded instead of returning a truncated vector.
	if len(blob) < 4 || len(blob)%4 != 0 {
		return nil
	}
	n := len(blob) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return v
}
