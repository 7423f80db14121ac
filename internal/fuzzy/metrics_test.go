package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, Levenshtein("kitten", "kitten", -1))
	assert.Equal(t, 3, Levenshtein("kitten", "sitting", -1))
	assert.Equal(t, 5, Levenshtein("", "hello", -1))

	// The cap short-circuits: anything beyond max reports max+1.
	assert.Equal(t, 2, Levenshtein("kitten", "sitting", 1))
	assert.Equal(t, 1, Levenshtein("phone", "phonee", 1))
}

func TestLevenshteinSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, LevenshteinSimilarity("same", "same"))
	assert.InDelta(t, 1-3.0/7.0, LevenshteinSimilarity("kitten", "sitting"), 0.001)
}

func TestJaroWinkler(t *testing.T) {
	// The classic pair.
	assert.InDelta(t, 0.961, JaroWinklerSimilarity("martha", "marhta"), 0.005)
	assert.Equal(t, 1.0, JaroWinklerSimilarity("same", "same"))
	assert.Equal(t, 0.0, JaroWinklerSimilarity("abc", "xyz"))

	// Shared prefixes outrank equal-distance suffix edits.
	assert.Greater(t,
		JaroWinklerSimilarity("phone", "phonx"),
		JaroWinklerSimilarity("phone", "xhone"))
}

func TestTrigramSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, TrigramSimilarity("same", "same", 3))
	assert.Equal(t, 0.0, TrigramSimilarity("", "x", 3))

	sim := TrigramSimilarity("running", "runing", 3)
	assert.Greater(t, sim, 0.5)
	assert.Less(t, sim, 1.0)

	// Boundary padding keeps same-length substitutions from scoring too
	// close: madmax/madman stays under the 0.5 tie-break line.
	assert.Less(t, TrigramSimilarity("madmax", "madman", 3), 0.5)
}

func TestAdaptiveTrigram_ShortTokens(t *testing.T) {
	// Trigram on 4-char tokens is too coarse; the adaptive form drops to
	// bigrams and still sees the overlap.
	adaptive := AdaptiveTrigramSimilarity("fone", "phone", 3)
	assert.Greater(t, adaptive, 0.3)
}

func TestPhoneticCode(t *testing.T) {
	assert.Equal(t, PhoneticCode("phone"), PhoneticCode("fone"))
	assert.Equal(t, PhoneticCode("night"), PhoneticCode("nite"))
	assert.NotEqual(t, PhoneticCode("phone"), PhoneticCode("table"))
}

func TestKeyboardSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, KeyboardSimilarity("cat", "cat"))

	assert.Greater(t, KeyboardSimilarity("cat", "car"), 0.0)
	assert.Greater(t,
		KeyboardSimilarity("test", "tesr"), // t→r adjacent
		KeyboardSimilarity("test", "tesp")) // t→p distant
}

func TestSharedBigramRatio(t *testing.T) {
	assert.Equal(t, 1.0, SharedBigramRatio("abc", "abc"))
	assert.Greater(t, SharedBigramRatio("phone", "phones"), 0.5)
	assert.Less(t, SharedBigramRatio("phone", "zebra"), 0.3)
}

func TestFrequencyWeight_Capped(t *testing.T) {
	assert.InDelta(t, 1.0, frequencyWeight(0), 0.001)
	assert.LessOrEqual(t, frequencyWeight(1000000), 3.0)
	assert.Greater(t, frequencyWeight(100), frequencyWeight(1))
}
