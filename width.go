package termcast

import "github.com/unilibs/uniwidth"

// runeWidth returns the display width of r: 2 for wide glyphs (CJK, emoji),
// 1 for narrow, 0 for zero-width (combining marks, control chars). Unknown
// widths default to 1 per the trimmer's column-accounting rule.
func runeWidth(r rune) int {
	return uniwidth.RuneWidth(r)
}
