package extract

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Mojibake in the master document comes from emoji and box-drawing glyphs
// whose UTF-8 bytes were re-decoded through a legacy single-byte codepage:
// ✅ arrives as "‚úÖ", 🔴 as "üî¥", the variation selector as "Ô∏è".
// The result is a short run of accented Latin letters and odd punctuation
// that was never data. Those runs are stripped; intact emoji (which the
// classifier understands) and isolated accented letters inside real words
// are kept.

// mojibakeRun reports whether r belongs to the alphabet a codepage
// round-trip produces: accented Latin letters and the punctuation/symbol
// forms single-byte codepages map the high bytes to. Letters from real
// non-Latin scripts (Arabic, Cyrillic, Greek) are outside this alphabet;
// a codepage round-trip cannot produce them.
func mojibakeRun(r rune) bool {
	return (r >= 0x80 && r < 0x300) || (r >= 0x2010 && r < 0x2600)
}

// boxDrawing covers box-drawing and block-element glyphs, stripped even in
// isolation since they are pure table decoration.
func boxDrawing(r rune) bool {
	return r >= 0x2500 && r < 0x2600
}

// stripMojibake removes corrupted glyph sequences from a cell. Runs of two
// or more consecutive mojibake-alphabet runes are dropped wholesale; a lone
// accented letter (as in "café") survives.
func stripMojibake(cell string) string {
	if cell == "" {
		return cell
	}
	cell = norm.NFC.String(cell)

	runes := []rune(cell)
	var b strings.Builder
	b.Grow(len(cell))

	for i := 0; i < len(runes); {
		r := runes[i]
		if r == utf8.RuneError || boxDrawing(r) {
			i++
			continue
		}
		if !mojibakeRun(r) {
			b.WriteRune(r)
			i++
			continue
		}
		// Measure the run of suspect runes.
		j := i
		for j < len(runes) && mojibakeRun(runes[j]) {
			j++
		}
		if j-i >= 2 {
			i = j
			continue
		}
		b.WriteRune(r)
		i++
	}

	// Collapse whitespace the stripped glyphs left behind.
	return strings.Join(strings.Fields(b.String()), " ")
}
