package transcribe

import (
	"strings"
	"unicode"
)

// Score compares a transcript with a reference text at word level.
type Score struct {
	WER           float64 `json:"wer"` // (Substitutions+Insertions+Deletions) / RefWords
	Substitutions int     `json:"substitutions"`
	Insertions    int     `json:"insertions"`
	Deletions     int     `json:"deletions"`
	RefWords      int     `json:"ref_words"`
}

// edit is one DP cell: the cheapest alignment cost so far and its operations.
type edit struct {
	cost, sub, ins, del int
}

func (e edit) plus(sub, ins, del int) edit {
	return edit{cost: e.cost + 1, sub: e.sub + sub, ins: e.ins + ins, del: e.del + del}
}

// ScoreTranscript aligns hypothesis against reference after lowercasing and
// stripping punctuation. An empty reference scores zero.
func ScoreTranscript(reference, hypothesis string) Score {
	ref := words(reference)
	hyp := words(hypothesis)
	if len(ref) == 0 {
		return Score{}
	}

	prev := make([]edit, len(hyp)+1)
	cur := make([]edit, len(hyp)+1)
	for j := range prev {
		prev[j] = edit{cost: j, ins: j}
	}
	for i := 1; i <= len(ref); i++ {
		cur[0] = edit{cost: i, del: i}
		for j := 1; j <= len(hyp); j++ {
			if ref[i-1] == hyp[j-1] {
				cur[j] = prev[j-1]
				continue
			}
			// Ties prefer substitution, then deletion.
			best := prev[j-1].plus(1, 0, 0)
			if d := prev[j].plus(0, 0, 1); d.cost < best.cost {
				best = d
			}
			if in := cur[j-1].plus(0, 1, 0); in.cost < best.cost {
				best = in
			}
			cur[j] = best
		}
		prev, cur = cur, prev
	}

	last := prev[len(hyp)]
	return Score{
		WER:           float64(last.cost) / float64(len(ref)),
		Substitutions: last.sub,
		Insertions:    last.ins,
		Deletions:     last.del,
		RefWords:      len(ref),
	}
}

func words(s string) []string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Fields(s)
}
