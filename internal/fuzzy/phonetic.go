package fuzzy

import "strings"

// quickCorrections maps frequent English misspelling patterns to their
// fixes. Checked before any similarity work; a hit short-circuits the
// whole correction pipeline.
var quickCorrections = map[string]string{
	"thier":    "their",
	"recieve":  "receive",
	"freind":   "friend",
	"wierd":    "weird",
	"beleive":  "believe",
	"seperate": "separate",
	"definate": "definite",
	"occured":  "occurred",
	"untill":   "until",
	"wich":     "which",
}

// digraphRewrites maps common phonetic digraph confusions. Applied as
// whole-token rewrites when the rewritten form is in the vocabulary.
var digraphRewrites = [][2]string{
	{"ph", "f"},
	{"f", "ph"},
	{"ck", "k"},
	{"qu", "kw"},
	{"ght", "t"},
}

// QuickCorrection returns a table-driven correction for t, if one exists.
func QuickCorrection(t string) (string, bool) {
	c, ok := quickCorrections[strings.ToLower(t)]
	return c, ok
}

// DigraphVariants returns rewrites of t under the digraph confusion table.
func DigraphVariants(t string) []string {
	lower := strings.ToLower(t)
	var out []string
	for _, dr := range digraphRewrites {
		if strings.Contains(lower, dr[0]) {
			v := strings.ReplaceAll(lower, dr[0], dr[1])
			if v != lower {
				out = append(out, v)
			}
		}
	}
	return out
}

// PhoneticCode produces a compact metaphone-style code: leading vowel kept,
// consonant digraphs collapsed, remaining vowels dropped, runs deduplicated.
func PhoneticCode(s string) string {
	lower := strings.ToLower(s)
	if lower == "" {
		return ""
	}

	replacer := strings.NewReplacer(
		"ph", "f",
		"ght", "t",
		"gh", "g",
		"kn", "n",
		"wr", "r",
		"wh", "w",
		"qu", "kw",
		"ck", "k",
		"sch", "sk",
		"th", "0",
		"sh", "x",
		"ch", "x",
	)
	s = replacer.Replace(lower)

	var b strings.Builder
	var last rune
	for i, r := range s {
		if r < 'a' || r > 'z' {
			if r != '0' && r != 'x' {
				continue
			}
		}
		isVowel := strings.ContainsRune("aeiouy", r)
		if isVowel && i > 0 {
			continue
		}
		// Map soft consonants onto their hard equivalents.
		switch r {
		case 'z':
			r = 's'
		case 'q':
			r = 'k'
		case 'd':
			r = 't'
		case 'v':
			r = 'f'
		}
		if r == last {
			continue
		}
		b.WriteRune(r)
		last = r
	}
	return b.String()
}

// PhoneticSimilarity compares the phonetic codes of two strings. Equal
// codes score 1; otherwise the codes are compared by edit distance.
func PhoneticSimilarity(a, b string) float64 {
	ca := PhoneticCode(a)
	cb := PhoneticCode(b)
	if ca == "" || cb == "" {
		return 0
	}
	if ca == cb {
		return 1
	}
	return LevenshteinSimilarity(ca, cb)
}
