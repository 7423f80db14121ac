package fuzzy

import "strings"

// qwertyNeighbors maps each key to the keys physically adjacent to it on a
// QWERTY layout. Substituting an adjacent key is the most common typo class.
var qwertyNeighbors = map[rune]string{
	'q': "wa", 'w': "qase", 'e': "wsdr", 'r': "edft", 't': "rfgy",
	'y': "tghu", 'u': "yhji", 'i': "ujko", 'o': "iklp", 'p': "ol",
	'a': "qwsz", 's': "awedxz", 'd': "serfcx", 'f': "drtgvc",
	'g': "ftyhbv", 'h': "gyujnb", 'j': "huikmn", 'k': "jiolm",
	'l': "kop", 'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb",
	'b': "vghn", 'n': "bhjm", 'm': "njk",
}

// keysAdjacent reports whether two keys are the same or neighbors.
func keysAdjacent(a, b rune) bool {
	if a == b {
		return true
	}
	return strings.ContainsRune(qwertyNeighbors[a], b)
}

// KeyboardSimilarity scores how plausible it is that b was typed while
// aiming for a. Aligned positions score 1 for an exact key and 0.5 for an
// adjacent key; length differences dilute the score.
func KeyboardSimilarity(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	shorter, longer := ra, rb
	if len(rb) < len(ra) {
		shorter, longer = rb, ra
	}

	var score float64
	for i, r := range shorter {
		o := longer[i]
		switch {
		case r == o:
			score += 1
		case keysAdjacent(r, o):
			score += 0.5
		}
	}
	return score / float64(len(longer))
}
