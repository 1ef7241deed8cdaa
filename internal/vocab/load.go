package vocab

import (
	"fmt"
	"log/slog"
	"os"
)

// Load parses blob into a filter bank and vocabulary. Nothing is returned
// unless the whole blob parses; the blob is not retained.
func Load(blob []byte, multilingual bool) (*FilterBank, *Vocabulary, error) {
	r := &reader{data: blob}

	magic, err := r.uint32("magic")
	if err != nil {
		return nil, nil, err
	}
	if magic != Magic {
		return nil, nil, fmt.Errorf("%w: bad magic 0x%08x, want 0x%08x", ErrFormat, magic, Magic)
	}

	nMel, err := r.count("n_mel")
	if err != nil {
		return nil, nil, err
	}
	nFFT, err := r.count("n_fft")
	if err != nil {
		return nil, nil, err
	}
	if nMel > 0 && nFFT > r.remaining()/4/nMel {
		return nil, nil, fmt.Errorf("%w: filter bank %dx%d exceeds remaining %d bytes",
			ErrFormat, nMel, nFFT, r.remaining())
	}
	weights, err := r.float32s("filters", nMel*nFFT)
	if err != nil {
		return nil, nil, err
	}

	nVocab, err := r.count("n_vocab")
	if err != nil {
		return nil, nil, err
	}
	// Each entry needs at least its 4-byte length.
	if nVocab > r.remaining()/4 {
		return nil, nil, fmt.Errorf("%w: n_vocab %d exceeds remaining %d bytes",
			ErrFormat, nVocab, r.remaining())
	}
	words := make([]string, nVocab)
	for i := range words {
		n, err := r.count(fmt.Sprintf("token %d length", i))
		if err != nil {
			return nil, nil, err
		}
		b, err := r.bytes(fmt.Sprintf("token %d", i), n)
		if err != nil {
			return nil, nil, err
		}
		words[i] = string(b)
	}

	if r.remaining() > 0 {
		slog.Debug("vocab blob has trailing bytes", "bytes", r.remaining())
	}

	filters := &FilterBank{NMel: nMel, NFFT: nFFT, Weights: weights}
	v := newVocabulary(words, multilingual)

	slog.Debug("vocab loaded",
		"n_mel", nMel,
		"n_fft", nFFT,
		"n_vocab", nVocab,
		"size", v.Size,
		"multilingual", multilingual)

	return filters, v, nil
}

// LoadFile reads and parses the blob at path.
func LoadFile(path string, multilingual bool) (*FilterBank, *Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("vocab: reading %s: %w", path, err)
	}
	return Load(data, multilingual)
}
