package transcribe

import (
	"testing"

	"github.com/chaz8081/gostt-pipeline/internal/vocab"
)

// testFilters is a 4-band bank for a 16-point FFT.
func testFilters() *vocab.FilterBank {
	const nMel, bins = 4, 9
	w := make([]float32, nMel*bins)
	for m := range nMel {
		for k := 2 * m; k < 2*m+2 && k < bins; k++ {
			w[m*bins+k] = 1
		}
	}
	return &vocab.FilterBank{NMel: nMel, NFFT: bins, Weights: w}
}

var testWords = []string{"!", "Hello", " world", "c", " again", "a", ".", "", "", "b"}

func testVocab(t *testing.T, multilingual bool) *vocab.Vocabulary {
	t.Helper()
	_, v, err := vocab.Load(vocab.Marshal(testFilters(), testWords), multilingual)
	if err != nil {
		t.Fatalf("vocab.Load() error = %v", err)
	}
	return v
}

func TestDecodeStopsAtEndOfText(t *testing.T) {
	v := testVocab(t, false)
	eot := int32(v.Special.EndOfText)

	got := DecodeTokens([]int32{5, 9, eot, 3, 2}, v)
	if got != "ab" {
		t.Errorf("DecodeTokens() = %q, want %q", got, "ab")
	}
}

func TestDecodeSkipsTimestamp(t *testing.T) {
	v := testVocab(t, false)
	ts := v.Special.BeginTimestamp + 7

	if s, ok := v.Token(ts); !ok || s != "[_TT_7]" {
		t.Fatalf("Token(%d) = %q, %v; want synthesized [_TT_7]", ts, s, ok)
	}
	got := DecodeTokens([]int32{5, int32(ts), 9}, v)
	if got != "ab" {
		t.Errorf("DecodeTokens() = %q, want %q", got, "ab")
	}
}

func TestDecodeTokens(t *testing.T) {
	en := testVocab(t, false)
	multi := testVocab(t, true)

	tests := []struct {
		name   string
		v      *vocab.Vocabulary
		tokens []int32
		want   string
	}{
		{"empty", en, nil, ""},
		{"leading spaces kept", en, []int32{1, 2, 4, 6}, "Hello world again."},
		{"empty token string", en, []int32{5, 7, 8, 9}, "ab"},
		{"negative id skipped", en, []int32{5, -3, 9}, "ab"},
		{"synthesized extra token below eot", en, []int32{100}, "[_extra_token_100]"},
		{"start of transcript skipped", en, []int32{int32(en.Special.StartOfTranscript), 5}, "a"},
		{"task and language tokens skipped", en, []int32{int32(en.Special.Transcribe), int32(en.Special.Translate), 5}, "a"},
		{"no timestamps skipped", en, []int32{int32(en.Special.NoTimestamps), 9}, "b"},
		{"past ceiling skipped", en, []int32{5, vocab.SizeMultilingual + 10, 9}, "ab"},
		{"eot first", en, []int32{int32(en.Special.EndOfText), 5}, ""},
		{"multilingual eot stops", multi, []int32{5, int32(multi.Special.EndOfText), 9}, "a"},
		// The English end-of-text id is a plain token in multilingual numbering.
		{"english eot in multilingual", multi, []int32{5, 50256, 9}, "a[_extra_token_50256]b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeTokens(tt.tokens, tt.v); got != tt.want {
				t.Errorf("DecodeTokens(%v) = %q, want %q", tt.tokens, got, tt.want)
			}
		})
	}
}
