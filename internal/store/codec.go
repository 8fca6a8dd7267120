package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

const float32Size = 4

// EncodeEmbedding packs v as little-endian float32, len(v)*4 bytes.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*float32Size)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*float32Size:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding unpacks a blob written by EncodeEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%float32Size != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of %d", len(b), float32Size)
	}
	v := make([]float32, len(b)/float32Size)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*float32Size:]))
	}
	return v, nil
}
