package export

import (
	"golang.org/x/text/unicode/bidi"
)

type bidiKind uint8

const (
	kindNeutral bidiKind = iota
	kindLTR
	kindRTL
	kindNumber
)

var mirroredRunes = map[rune]rune{
	'(': ')', ')': '(',
	'[': ']', ']': '[',
	'{': '}', '}': '{',
	'<': '>', '>': '<',
	'«': '»', '»': '«',
}

// VisualRTL reorders a single line of logical text into visual order for a
// right to left paragraph. Left to right words and digit runs keep their
// internal order; brackets inside right to left runs are mirrored. It is a
// TextShaper for renderers that lay glyphs out strictly left to right.
func VisualRTL(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	levels := embeddingLevels(bidiKinds(runes))

	for i, r := range runes {
		if levels[i] == 1 {
			if m, ok := mirroredRunes[r]; ok {
				runes[i] = m
			}
		}
	}
	for i := 0; i < len(runes); {
		if levels[i] < 2 {
			i++
			continue
		}
		j := i
		for j < len(runes) && levels[j] >= 2 {
			j++
		}
		reverseRunes(runes[i:j])
		i = j
	}
	reverseRunes(runes)
	return string(runes)
}

// bidiKinds resolves the weak types a single line needs: marks follow their
// base, separators between digits and terminators next to digits join the
// number, and digits after left to right text become left to right.
func bidiKinds(runes []rune) []bidiKind {
	classes := make([]bidi.Class, len(runes))
	for i, r := range runes {
		props, _ := bidi.LookupRune(r)
		class := props.Class()
		if class == bidi.NSM {
			class = bidi.R
			if i > 0 {
				class = classes[i-1]
			}
		}
		classes[i] = class
	}
	for i := 1; i+1 < len(classes); i++ {
		if (classes[i] == bidi.CS || classes[i] == bidi.ES) && classes[i-1] == bidi.EN && classes[i+1] == bidi.EN {
			classes[i] = bidi.EN
		}
	}
	for i := 0; i < len(classes); {
		if classes[i] != bidi.ET {
			i++
			continue
		}
		j := i
		for j < len(classes) && classes[j] == bidi.ET {
			j++
		}
		if (i > 0 && classes[i-1] == bidi.EN) || (j < len(classes) && classes[j] == bidi.EN) {
			for k := i; k < j; k++ {
				classes[k] = bidi.EN
			}
		}
		i = j
	}

	kinds := make([]bidiKind, len(classes))
	lastStrong := bidi.R
	for i, class := range classes {
		switch class {
		case bidi.L:
			kinds[i] = kindLTR
			lastStrong = bidi.L
		case bidi.R, bidi.AL:
			kinds[i] = kindRTL
			lastStrong = bidi.R
		case bidi.EN:
			if lastStrong == bidi.L {
				kinds[i] = kindLTR
			} else {
				kinds[i] = kindNumber
			}
		case bidi.AN:
			kinds[i] = kindNumber
		default:
			kinds[i] = kindNeutral
		}
	}
	return kinds
}

// embeddingLevels assigns level 1 to right to left text and level 2 to left
// to right text and numbers. Neutrals take level 2 only between two left to
// right runs; numbers count as right to left for that purpose.
func embeddingLevels(kinds []bidiKind) []uint8 {
	levels := make([]uint8, len(kinds))
	for i := 0; i < len(kinds); {
		switch kinds[i] {
		case kindLTR, kindNumber:
			levels[i] = 2
			i++
		case kindRTL:
			levels[i] = 1
			i++
		default:
			j := i
			for j < len(kinds) && kinds[j] == kindNeutral {
				j++
			}
			level := uint8(1)
			if i > 0 && j < len(kinds) && kinds[i-1] == kindLTR && kinds[j] == kindLTR {
				level = 2
			}
			for k := i; k < j; k++ {
				levels[k] = level
			}
			i = j
		}
	}
	return levels
}

func reverseRunes(runes []rune) {
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
}
