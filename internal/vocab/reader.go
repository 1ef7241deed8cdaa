package vocab

import (
	"encoding/binary"
	"fmt"
	"math"
)

// reader is a little-endian cursor over a blob. Every read is bounds
// checked and reports the offset it failed at.
type reader struct {
	data []byte
	off  int
}

func (r *reader) remaining() int {
	return len(r.data) - r.off
}

func (r *reader) truncated(field string, need int) error {
	return fmt.Errorf("%w: %s: need %d bytes at offset %d, have %d",
		ErrFormat, field, need, r.off, r.remaining())
}

func (r *reader) uint32(field string) (uint32, error) {
	if r.remaining() < 4 {
		return 0, r.truncated(field, 4)
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

// count reads a 4-byte signed length and rejects negative values.
func (r *reader) count(field string) (int, error) {
	v, err := r.uint32(field)
	if err != nil {
		return 0, err
	}
	n := int32(v)
	if n < 0 {
		return 0, fmt.Errorf("%w: %s: negative count %d at offset %d", ErrFormat, field, n, r.off-4)
	}
	return int(n), nil
}

func (r *reader) float32s(field string, n int) ([]float32, error) {
	if n > r.remaining()/4 {
		return nil, r.truncated(field, n*4)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(r.data[r.off:]))
		r.off += 4
	}
	return out, nil
}

func (r *reader) bytes(field string, n int) ([]byte, error) {
	if n > r.remaining() {
		return nil, r.truncated(field, n)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}
