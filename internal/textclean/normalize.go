package textclean

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

type ligaturePair struct {
	from string
	to   string
}

var ligatureTable = []ligaturePair{
	{"ﬀ", "ff"},
	{"ﬁ", "fi"},
	{"ﬂ", "fl"},
	{"ﬃ", "ffi"},
	{"ﬄ", "ffl"},
	{"ﬅ", "ft"},
	{"ﬆ", "st"},
}

const nbsp = ' '

// oddSpaces are whitespace variants that must be folded to a plain space
// before NFKC runs, since NFKC would otherwise silently absorb some of
// them and make the per-category counters below meaningless.
var oddSpaces = []rune{
	nbsp,
	' ', ' ', ' ', ' ', ' ',
	' ', ' ', ' ', ' ', ' ', ' ',
	' ', ' ', '　',
}

var zeroWidthChars = []rune{
	'​', // zero width space
	'‌', // zero width non-joiner
	'‍', // zero width joiner
	0xFEFF, // BOM / zero width no-break space
	'؜', // Arabic letter mark
}

// hyphenationRegex joins a letter-hyphen-newline-letter break introduced by
// justified-text line wrapping, e.g. "re-\nsearch" -> "research".
var hyphenationRegex = regexp.MustCompile(`(\p{L})-\s*\n\s*(\p{L})`)

// Normalize cleans input for RAG indexing, returning the cleaned text and a
// report of what changed. It is idempotent: normalizing its own output
// returns it unchanged. NeedsNormalization on the output is false unless
// the text holds soft hyphens (U+00AD), which that check scores but this
// pass does not remove.
func Normalize(input string) (string, Report) {
	tokensBefore := countTokens(input)
	if !NeedsNormalization(input) {
		return input, Report{
			CharsBefore:  len(input),
			CharsAfter:   len(input),
			TokensBefore: tokensBefore,
			TokensAfter:  tokensBefore,
		}
	}

	var rep Report
	rep.CharsBefore = len(input)
	rep.TokensBefore = tokensBefore
	rep.Applied = true

	result := input

	for _, lig := range ligatureTable {
		if n := strings.Count(result, lig.from); n > 0 {
			result = strings.ReplaceAll(result, lig.from, lig.to)
			rep.Ligatures += n
		}
	}

	for _, sp := range oddSpaces {
		s := string(sp)
		if n := strings.Count(result, s); n > 0 {
			result = strings.ReplaceAll(result, s, " ")
			rep.ExtraSpaceFixes += n
			if sp == nbsp {
				rep.NBSPRemoved += n
			}
		}
	}

	// NFKC after ligature/space folding, so compatibility decomposition
	// never re-introduces a ligature or odd space we already normalized.
	result = norm.NFKC.String(result)

	preHyphen := result
	result = hyphenationRegex.ReplaceAllString(result, "$1$2")
	if result != preHyphen {
		rep.HyphenJoins = strings.Count(preHyphen, "-\n") + strings.Count(preHyphen, "- \n")
	}

	for _, zw := range zeroWidthChars {
		s := string(zw)
		if n := strings.Count(result, s); n > 0 {
			result = strings.ReplaceAll(result, s, "")
			rep.ZeroWidthRemoved += n
		}
	}

	result = collapseWhitespace(result)

	rep.CharsAfter = len(result)
	rep.TokensAfter = countTokens(result)

	return result, rep
}

// NeedsNormalization is a cheap pre-pass that scores a bounded scan of the
// input for problem characters, so clean documents skip the full pass.
// The threshold relaxes for very large inputs since a fixed-size scan
// window sees a smaller fraction of a long document.
func NeedsNormalization(input string) bool {
	if len(input) < 10 {
		return false
	}

	const maxScan = 10000
	score := 0
	scanned := 0
	for _, r := range input {
		if scanned >= maxScan {
			break
		}
		scanned++

		switch {
		case r >= 'ﬀ' && r <= 'ﬆ':
			score += 10
		case r == '​' || r == '‌' || r == '‍' || r == 0xFEFF || r == '؜':
			score += 8
		case r == nbsp || r == '­' || r == ' ' || r == ' ' || r == '　':
			score += 3
		case r >= ' ' && r <= ' ':
			score += 2
		}

		if score >= 10 {
			return true
		}
	}

	if strings.Contains(input, "-\n") || strings.Contains(input, "- \n") || strings.Contains(input, "-\r\n") {
		score += 5
	}

	threshold := 3
	if len(input) > 50000 {
		threshold = 8
	}
	return score >= threshold
}

// CountLigatures reports the number of typographic ligature characters in
// input, used by callers that only want the raw count without normalizing.
func CountLigatures(input string) int {
	n := 0
	for _, r := range input {
		if r >= 'ﬀ' && r <= 'ﬆ' {
			n++
		}
	}
	return n
}

func countTokens(s string) int {
	return len(strings.Fields(s))
}

// collapseWhitespace joins fields with a single space, eliminating runs of
// whitespace (including newlines) the ligature/odd-space passes above left
// behind. Matches the strings.Fields+Join idiom rather than a regex since
// the input is already ASCII-space-normalized by this point.
func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(utf8.RuneCountInString(s))
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f)
	}
	return b.String()
}
