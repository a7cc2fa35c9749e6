package scoring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// SAFE SCORE TESTS
// =============================================================================

func TestSafeScorePassesThrough(t *testing.T) {
	s, err := SafeScore(Brevity(), "1234")
	require.NoError(t, err)
	assert.Equal(t, -4.0, s)
}

func TestSafeScoreWrapsPlainError(t *testing.T) {
	boom := errors.New("boom")
	_, err := SafeScore(Func(func(string) (float64, error) { return 0, boom }), "x")

	require.Error(t, err)
	var serr *ScoreError
	require.ErrorAs(t, err, &serr)
	assert.ErrorIs(t, err, boom)
}

func TestSafeScoreRecoversPanic(t *testing.T) {
	_, err := SafeScore(Func(func(string) (float64, error) { panic("bad scorer") }), "x")

	require.Error(t, err)
	var serr *ScoreError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Message, "bad scorer")
}

func TestSafeScoreKeepsScoreError(t *testing.T) {
	orig := NewScoreError("custom", nil)
	_, err := SafeScore(Func(func(string) (float64, error) { return 0, orig }), "x")

	var serr *ScoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "custom", serr.Message)
}

// =============================================================================
// BUILT-IN SCORER TESTS
// =============================================================================

func TestBrevityPrefersShorter(t *testing.T) {
	short, _ := Brevity().Score("4")
	long, _ := Brevity().Score("the answer is four")
	assert.Greater(t, short, long)
}

func TestWordOverlap(t *testing.T) {
	s := WordOverlap("the sky is blue")

	exact, err := s.Score("the sky is blue")
	require.NoError(t, err)
	assert.Equal(t, 1.0, exact)

	partial, err := s.Score("the sky is red")
	require.NoError(t, err)
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)

	none, err := s.Score("completely unrelated words here")
	require.NoError(t, err)
	assert.Equal(t, 0.0, none)
}

func TestWordOverlapEmptyInputs(t *testing.T) {
	s, err := WordOverlap("").Score("")
	require.NoError(t, err)
	assert.Equal(t, 0.0, s)
}

func TestComplexityCapsAtOne(t *testing.T) {
	long := "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen twenty twentyone."
	s, err := Complexity().Score(long)
	require.NoError(t, err)
	assert.Equal(t, 1.0, s)

	empty, err := Complexity().Score("")
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty)
}

func TestReadabilityBounds(t *testing.T) {
	s, err := Readability().Score("Short. Clear. Good.")
	require.NoError(t, err)
	assert.Greater(t, s, 0.0)
	assert.LessOrEqual(t, s, 1.0)

	empty, err := Readability().Score("")
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty)
}

func TestFactualityPenalty(t *testing.T) {
	s := FactualityPenalty()

	clean, err := s.Score("water boils at 100 degrees celsius at sea level")
	require.NoError(t, err)
	assert.Equal(t, 1.0, clean)

	flagged, err := s.Score("the Flat Earth society claims otherwise")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, flagged, 1e-9)
}

func TestCompositeWithAndWithoutGroundTruth(t *testing.T) {
	text := "The sky is blue because air scatters short wavelengths. Rayleigh scattering favors blue light."

	without, err := Composite("").Score(text)
	require.NoError(t, err)

	with, err := Composite("rayleigh scattering of blue light").Score(text)
	require.NoError(t, err)

	assert.NotEqual(t, without, with)
}

func TestScorersAreDeterministic(t *testing.T) {
	text := "A barber paradox has no solution in classical logic."
	scorers := []Scorer{Brevity(), WordOverlap("barber paradox"), Complexity(), Readability(), Composite("")}

	for _, s := range scorers {
		a, err := s.Score(text)
		require.NoError(t, err)
		b, err := s.Score(text)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}
