// Package moderation masks flagged words in text shown outside the active
// room: directory previews and notification bodies. The flag list is
// supplied by the caller at construction; matching is resilient to spacing,
// punctuation and common character substitutions.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	matcher  *goahocorasick.Machine
	maskChar rune
}

// mapping links the normalized search text back to rune positions in the
// original, so masking hits the original characters including the noise
// between them.
type mapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator builds the Aho-Corasick automaton from a normalized copy of
// the flagged word list.
func NewModerator(flagged []string, maskChar rune) (Moderator, error) {
	patterns := make([][]rune, 0, len(flagged))
	for _, word := range flagged {
		norm := normalize([]rune(word))
		if len(norm) == 0 {
			continue
		}
		patterns = append(patterns, norm)
	}
	if len(patterns) == 0 {
		return Moderator{maskChar: maskChar}, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{matcher: m, maskChar: maskChar}, nil
}

// Mask replaces every occurrence of a flagged pattern with the mask
// character while preserving the original length and spacing.
func (m *Moderator) Mask(original string) string {
	if m.matcher == nil {
		return original
	}

	mp := buildMapping(original)
	if len(mp.normalized) == 0 {
		return original
	}

	spans := m.matcher.MultiPatternSearch(mp.normalized, false)
	if len(spans) == 0 {
		return original
	}

	origRunes := []rune(original)
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)
		if normStart < 0 || normEnd > len(mp.origIdx) {
			continue
		}

		origStart := mp.origIdx[normStart]
		origEnd := mp.origIdx[normEnd-1] + 1
		for i := origStart; i < origEnd; i++ {
			origRunes[i] = m.maskChar
		}
	}
	return string(origRunes)
}

func buildMapping(input string) mapping {
	origRunes := []rune(input)
	mp := mapping{
		normalized: make([]rune, 0, len(origRunes)),
		origIdx:    make([]int, 0, len(origRunes)),
	}
	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		mp.normalized = append(mp.normalized, unicode.ToLower(clean))
		mp.origIdx = append(mp.origIdx, i)
	}
	return mp
}

func normalize(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune maps common leet speak characters back to their standard
// alphabet counterparts.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
