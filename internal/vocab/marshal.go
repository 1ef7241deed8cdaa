package vocab

import (
	"encoding/binary"
	"math"
)

// Marshal serializes a filter bank and explicit token list in the layout
// Load reads.
func Marshal(filters *FilterBank, words []string) []byte {
	size := 16 + 4*len(filters.Weights)
	for _, w := range words {
		size += 4 + len(w)
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, Magic)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(filters.NMel))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(filters.NFFT))
	for _, w := range filters.Weights {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(w))
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(words)))
	for _, w := range words {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(w)))
		buf = append(buf, w...)
	}
	return buf
}
