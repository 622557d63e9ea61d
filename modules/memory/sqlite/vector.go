package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"
)

const vectorHeaderSize = 4

// encodeVector encodes vec as a 4-byte little-endian dimension followed by
// little-endian float32 values. An empty vector encodes to nil.
func encodeVector(vec []float32) ([]byte, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	blob := make([]byte, vectorHeaderSize+4*len(vec))
	binary.LittleEndian.PutUint32(blob, uint32(len(vec)))
	for i, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("sqlite: encode vector: invalid value at index %d", i)
		}
		binary.LittleEndian.PutUint32(blob[vectorHeaderSize+4*i:], math.Float32bits(v))
	}
	return blob, nil
}

// decodeVector reverses encodeVector. A nil blob decodes to nil.
func decodeVector(blob []byte) ([]float32, error) {
	if blob == nil {
		return nil, nil
	}
	if len(blob) < vectorHeaderSize {
		return nil, fmt.Errorf("sqlite: decode vector: blob too short: %d bytes", len(blob))
	}
	dim := int(binary.LittleEndian.Uint32(blob))
	if dim <= 0 || len(blob) != vectorHeaderSize+4*dim {
		return nil, fmt.Errorf("sqlite: decode vector: dimension %d does not match %d payload bytes", dim, len(blob)-vectorHeaderSize)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[vectorHeaderSize+4*i:]))
	}
	return vec, nil
}
