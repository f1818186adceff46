package resolver

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// noiseWords lists generic filler tokens that carry no identity signal.
// Discriminating tokens (birth years, U-age labels, squad numerals,
// color names) are deliberately kept: "Club Ohio 2017" and
// "Club Ohio 2018" are different real teams.
var noiseWords = map[string]struct{}{
	"boys":   {},
	"girls":  {},
	"academy": {},
	"fc":     {},
	"sc":     {},
	"soccer": {},
	"club":   {},
	"team":   {},
	"the":    {},
	"youth":  {},
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// asciiFold strips combining marks so accented club names compare equal
// to their ASCII spellings.
var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName standardizes a raw team name for alias lookup by:
//  1. Trimming whitespace and lowercasing
//  2. Folding accented characters to ASCII
//  3. Stripping punctuation
//  4. Collapsing multiple spaces
//  5. Collapsing a duplicated leading club-name token run, a GotSport
//     export artifact ("Sporting Columbus Sporting Columbus Boys 2018
//     Bexley" carries the club name twice)
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}

	if folded, _, err := transform.String(asciiFold, name); err == nil {
		name = folded
	}

	name = strings.NewReplacer(
		",", " ",
		".", " ",
		"'", "",
		"\"", "",
		"&", " and ",
		"-", " ",
		"(", " ",
		")", " ",
		"/", " ",
	).Replace(name)

	name = multiSpaceRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	return strings.Join(collapseRepeatedPrefix(strings.Fields(name)), " ")
}

// collapseRepeatedPrefix removes one copy of the longest token run that
// appears twice back-to-back at the start of the name.
func collapseRepeatedPrefix(tokens []string) []string {
	for run := len(tokens) / 2; run >= 1; run-- {
		repeated := true
		for i := 0; i < run; i++ {
			if tokens[i] != tokens[run+i] {
				repeated = false
				break
			}
		}
		if repeated {
			return tokens[run:]
		}
	}
	return tokens
}

// tokenSet builds the comparison token set for a normalized name,
// dropping noise words. extra holds config-supplied additions to the
// built-in noise list.
func tokenSet(normalized string, extra map[string]struct{}) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(normalized) {
		if _, ok := noiseWords[tok]; ok {
			continue
		}
		if _, ok := extra[tok]; ok {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

// Similarity computes an order-insensitive token-set similarity between
// two token sets: the Sorensen-Dice coefficient, 2|A∩B| / (|A|+|B|).
// It is deterministic and explainable so the ambiguity-margin behavior
// stays auditable.
func Similarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	return 2 * float64(inter) / float64(len(a)+len(b))
}
