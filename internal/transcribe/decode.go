package transcribe

import (
	"strings"

	"github.com/chaz8081/gostt-pipeline/internal/vocab"
)

// DecodeTokens turns one window of model output into text. Decoding stops
// at the first end-of-text token. Ids below end-of-text are looked up and
// appended verbatim, unknown ids are skipped, and every id above
// end-of-text (control and timestamp tokens) is skipped.
func DecodeTokens(tokens []int32, v *vocab.Vocabulary) string {
	eot := v.Special.EndOfText

	var b strings.Builder
	for _, t := range tokens {
		id := int(t)
		if id == eot {
			break
		}
		if id > eot {
			continue
		}
		if s, ok := v.Token(id); ok {
			b.WriteString(s)
		}
	}
	return b.String()
}
