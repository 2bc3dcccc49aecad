package decoder

import (
	"encoding/binary"
)

// BytesToSamples interprets b as signed 16-bit little-endian samples.
// An odd trailing byte yields one more sample carrying that byte's unsigned value.
func BytesToSamples(b []byte) []float32 {
	samples := make([]float32, (len(b)+1)/2)
	for i := 0; i+1 < len(b); i += 2 {
		samples[i/2] = float32(int16(binary.LittleEndian.Uint16(b[i:])))
	}
	if len(b)%2 == 1 {
		samples[len(samples)-1] = float32(b[len(b)-1])
	}
	return samples
}
