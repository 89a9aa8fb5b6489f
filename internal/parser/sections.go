package parser

import (
	"regexp"
	"strings"
)

const maxHeadingLength = 80

var (
	markdownHeading = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
	numberedHeading = regexp.MustCompile(`^(\d+(?:\.\d+)*)[.)]?\s+(\S.*)$`)
	labeledHeading  = regexp.MustCompile(`(?i)^(section|appendix|annex|chapter|part)\s+[A-Z0-9][A-Za-z0-9.]*\b.*$`)
)

// detectSections scans page text line by line for heading-shaped lines:
// markdown headings, numbered headings (1.2.3 Title), explicit labels
// (Section 4, Appendix B), and short all-caps lines. Offsets are byte
// positions of the line start within the page text.
func detectSections(text string) []Section {
	if text == "" {
		return nil
	}

	var sections []Section
	offset := 0

	for line := range strings.Lines(text) {
		trimmed := strings.TrimRight(line, "\r\n")
		if label, ok := headingLabel(strings.TrimSpace(trimmed)); ok {
			sections = append(sections, Section{
				Label:  label,
				Offset: offset,
			})
		}
		offset += len(line)
	}

	return sections
}

func headingLabel(line string) (string, bool) {
	if line == "" || len(line) > maxHeadingLength {
		return "", false
	}

	if m := markdownHeading.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), true
	}

	if m := numberedHeading.FindStringSubmatch(line); m != nil {
		// require a multi-level number or a capitalized title to avoid
		// matching ordinary list items
		title := strings.TrimSpace(m[2])
		if strings.Contains(m[1], ".") || startsUpper(title) {
			return m[1] + " " + title, true
		}
		return "", false
	}

	if labeledHeading.MatchString(line) {
		return line, true
	}

	if isAllCapsHeading(line) {
		return line, true
	}

	return "", false
}

func startsUpper(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return c >= 'A' && c <= 'Z'
}

func isAllCapsHeading(line string) bool {
	letters := 0
	for _, r := range line {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= 'A' && r <= 'Z':
			letters++
		}
	}
	// require at least two words of letters to count as a heading
	return letters >= 4 && strings.Contains(strings.TrimSpace(line), " ")
}
