// Package vocab loads the combined mel filter bank and token vocabulary blob
// that ships alongside a Whisper-style sequence model.
//
// Blob layout (little-endian):
//
//	uint32  magic (0x57535052)
//	int32   n_mel
//	int32   n_fft
//	float32 weights[n_mel*n_fft]   row-major
//	int32   n_vocab
//	repeated n_vocab times:
//	  int32 len
//	  byte  text[len]
//
// Ids between n_vocab and the vocabulary ceiling are synthesized so every id
// the model can emit has a printable form.
package vocab

import (
	"errors"
	"fmt"
)

// Magic is the first word of every blob.
const Magic uint32 = 0x57535052

// Vocabulary ceilings for the two model families.
const (
	SizeEnglish      = 51864
	SizeMultilingual = 51865
)

// ErrFormat is returned for any malformed blob.
var ErrFormat = errors.New("vocab: format error")

// FilterBank is the row-major n_mel x n_fft mel projection matrix.
type FilterBank struct {
	NMel    int
	NFFT    int
	Weights []float32
}

// Row returns the weights of mel band m.
func (f *FilterBank) Row(m int) []float32 {
	return f.Weights[m*f.NFFT : (m+1)*f.NFFT]
}

// Consistent reports whether the declared shape matches the weight buffer.
func (f *FilterBank) Consistent() bool {
	return f.NMel > 0 && f.NFFT > 0 && len(f.Weights) == f.NMel*f.NFFT
}

// SpecialTokens holds the control token ids for one model family.
type SpecialTokens struct {
	EndOfText         int
	StartOfTranscript int
	Translate         int
	Transcribe        int
	Previous          int
	SOLM              int
	NoTimestamps      int
	BeginTimestamp    int
}

// NewSpecialTokens returns the English-only ids, shifted by one for
// multilingual models.
func NewSpecialTokens(multilingual bool) SpecialTokens {
	sp := SpecialTokens{
		EndOfText:         50256,
		StartOfTranscript: 50257,
		Translate:         50357,
		Transcribe:        50358,
		Previous:          50360,
		SOLM:              50361,
		NoTimestamps:      50362,
		BeginTimestamp:    50363,
	}
	if multilingual {
		sp.EndOfText++
		sp.StartOfTranscript++
		sp.Translate++
		sp.Transcribe++
		sp.Previous++
		sp.SOLM++
		sp.NoTimestamps++
		sp.BeginTimestamp++
	}
	return sp
}

// Vocabulary maps token ids to text. It is read-only once loaded.
type Vocabulary struct {
	Multilingual bool
	Special      SpecialTokens
	// Explicit is the number of tokens serialized in the blob.
	Explicit int
	// Size is the synthesis ceiling; every id below it has an entry.
	Size int

	tokens map[int]string
}

// Token returns the text for id.
func (v *Vocabulary) Token(id int) (string, bool) {
	s, ok := v.tokens[id]
	return s, ok
}

// Len returns the number of ids with an entry.
func (v *Vocabulary) Len() int {
	return len(v.tokens)
}

// IsSpecial reports whether id is a control or timestamp token.
func (v *Vocabulary) IsSpecial(id int) bool {
	return id >= v.Special.EndOfText
}

// IsTimestamp reports whether id encodes a timestamp.
func (v *Vocabulary) IsTimestamp(id int) bool {
	return id > v.Special.BeginTimestamp
}

func newVocabulary(words []string, multilingual bool) *Vocabulary {
	size := SizeEnglish
	if multilingual {
		size = SizeMultilingual
	}
	v := &Vocabulary{
		Multilingual: multilingual,
		Special:      NewSpecialTokens(multilingual),
		Explicit:     len(words),
		Size:         size,
		tokens:       make(map[int]string, max(size, len(words))),
	}
	for id, w := range words {
		v.tokens[id] = w
	}
	for id := len(words); id < size; id++ {
		if _, ok := v.tokens[id]; ok {
			continue
		}
		v.tokens[id] = syntheticToken(id, v.Special)
	}
	return v
}

// syntheticToken names an id that has no serialized text. First match wins.
func syntheticToken(id int, sp SpecialTokens) string {
	switch {
	case id == sp.EndOfText:
		return "[_EOT_]"
	case id == sp.StartOfTranscript:
		return "[_SOT_]"
	case id == sp.Previous:
		return "[_PREV_]"
	case id == sp.NoTimestamps:
		return "[_NOT_]"
	case id == sp.BeginTimestamp:
		return "[_BEG_]"
	case id > sp.BeginTimestamp:
		return fmt.Sprintf("[_TT_%d]", id-sp.BeginTimestamp)
	default:
		return fmt.Sprintf("[_extra_token_%d]", id)
	}
}
