package evidence

import (
	"strings"
	"unicode"
)

// normalized carries lowercased, whitespace-collapsed text along with a map
// from each normalized byte back to its originating byte offset, so exact
// matches can be resolved to section positions in the source text.
type normalized struct {
	text    string
	offsets []int
}

func (n normalized) originalOffset(idx int) int {
	if idx < 0 || idx >= len(n.offsets) {
		return 0
	}
	return n.offsets[idx]
}

func normalize(s string) normalized {
	var (
		b       strings.Builder
		offsets []int
		inSpace = true
	)

	for i, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
				offsets = append(offsets, i)
				inSpace = true
			}
			continue
		}

		inSpace = false
		for _, lr := range strings.ToLower(string(r)) {
			for range len(string(lr)) {
				offsets = append(offsets, i)
			}
			b.WriteRune(lr)
		}
	}

	text := b.String()
	if strings.HasSuffix(text, " ") {
		text = text[:len(text)-1]
		offsets = offsets[:len(offsets)-1]
	}

	return normalized{text: text, offsets: offsets}
}
