package rules

import (
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// textMapping is a folded rendition of a text with, for each folded rune, the index of
// the original rune it came from.
type textMapping struct {
	folded  []rune
	origIdx []int
}

// fold lower-cases text with full Unicode case folding and strips combining marks, so
// "BADWORD", "badword" and "bádword" compare equal. A cases.Caser keeps state and is
// not safe for concurrent use, hence one per call.
func fold(text string) textMapping {
	caser := cases.Fold()
	orig := []rune(text)
	m := textMapping{
		folded:  make([]rune, 0, len(orig)),
		origIdx: make([]int, 0, len(orig)),
	}
	for i, r := range orig {
		for _, d := range norm.NFD.String(string(r)) {
			if unicode.Is(unicode.Mn, d) {
				continue
			}
			for _, f := range caser.String(string(d)) {
				m.folded = append(m.folded, f)
				m.origIdx = append(m.origIdx, i)
			}
		}
	}
	return m
}

func foldWord(word string) []rune {
	return fold(word).folded
}
