// Package scoring defines the score-function contract and a set of
// built-in scorers.
//
// A scorer must be a pure, deterministic function of the candidate text;
// higher is better. The engine treats a scoring failure as fatal for the
// proposal being scored (automatic rejection), never for the run.
package scoring

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// =============================================================================
// CONTRACT
// =============================================================================

// Scorer scores a candidate solution. Implementations must be pure and
// deterministic; the same text always yields the same score.
type Scorer interface {
	Score(text string) (float64, error)
}

// Func adapts a plain function to the Scorer interface.
type Func func(text string) (float64, error)

// Score implements Scorer.
func (f Func) Score(text string) (float64, error) {
	return f(text)
}

// ScoreError indicates the scoring function failed or panicked. The
// proposal it was scoring is rejected; the run continues.
type ScoreError struct {
	Message string
	Cause   error
}

func (e *ScoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("scoring: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("scoring: %s", e.Message)
}

func (e *ScoreError) Unwrap() error {
	return e.Cause
}

// NewScoreError creates a new ScoreError.
func NewScoreError(message string, cause error) *ScoreError {
	return &ScoreError{Message: message, Cause: cause}
}

// SafeScore evaluates a scorer with panic recovery. A panicking scorer is
// reported as a ScoreError instead of crashing the round loop; scorers are
// caller-supplied so the engine cannot trust them not to panic.
func SafeScore(s Scorer, text string) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			err = NewScoreError(fmt.Sprintf("panic: %v\n%s", r, stack), nil)
		}
	}()

	score, err = s.Score(text)
	if err != nil {
		var serr *ScoreError
		if !errors.As(err, &serr) {
			err = NewScoreError("score function failed", err)
		}
	}
	return score, err
}

// =============================================================================
// BUILT-IN SCORERS
// =============================================================================

// Brevity scores shorter answers higher (negative byte length). It needs
// no ground truth so it is safe as a default.
func Brevity() Scorer {
	return Func(func(text string) (float64, error) {
		return -float64(len(text)), nil
	})
}

// WordOverlap scores by Jaccard similarity between the candidate's word
// set and a ground-truth answer's word set, in [0, 1].
func WordOverlap(groundTruth string) Scorer {
	truth := wordSet(groundTruth)
	return Func(func(text string) (float64, error) {
		words := wordSet(text)
		intersection := 0
		for w := range words {
			if truth[w] {
				intersection++
			}
		}
		union := len(words) + len(truth) - intersection
		if union == 0 {
			return 0, nil
		}
		return float64(intersection) / float64(union), nil
	})
}

// Complexity scores explanation depth by average sentence length, capped
// at 1.0.
func Complexity() Scorer {
	return Func(func(text string) (float64, error) {
		sentences := splitSentences(text)
		if len(sentences) == 0 {
			return 0, nil
		}
		total := 0
		for _, s := range sentences {
			total += len(strings.Fields(s))
		}
		avg := float64(total) / float64(len(sentences))
		return min(avg/20.0, 1.0), nil
	})
}

// Readability approximates a Flesch-style reading-ease score in [0, 1];
// shorter sentences read easier.
func Readability() Scorer {
	return Func(func(text string) (float64, error) {
		words := strings.Fields(text)
		sentences := splitSentences(text)
		if len(words) == 0 || len(sentences) == 0 {
			return 0, nil
		}
		avg := float64(len(words)) / float64(len(sentences))
		return max(0, min(1, (30.0-avg)/30.0)), nil
	})
}

// FactualityPenalty penalizes candidates containing any of the given
// red-flag phrases, 0.3 per hit. With no phrases given a small default
// list of obviously false claims is used.
func FactualityPenalty(indicators ...string) Scorer {
	if len(indicators) == 0 {
		indicators = []string{"aliens built", "flat earth", "vaccines cause"}
	}
	lowered := make([]string, len(indicators))
	for i, s := range indicators {
		lowered[i] = strings.ToLower(s)
	}
	return Func(func(text string) (float64, error) {
		t := strings.ToLower(text)
		penalty := 0.0
		for _, ind := range lowered {
			if strings.Contains(t, ind) {
				penalty += 0.3
			}
		}
		return 1.0 - penalty, nil
	})
}

// Composite blends readability, complexity, and factuality at weights
// 0.3 / 0.3 / 0.4, plus a 0.5-weighted word-overlap accuracy component
// when a ground truth is available.
func Composite(groundTruth string) Scorer {
	readability := Readability()
	complexity := Complexity()
	factuality := FactualityPenalty()
	var accuracy Scorer
	if groundTruth != "" {
		accuracy = WordOverlap(groundTruth)
	}

	return Func(func(text string) (float64, error) {
		parts := []struct {
			scorer Scorer
			weight float64
		}{
			{readability, 0.3},
			{complexity, 0.3},
			{factuality, 0.4},
		}
		if accuracy != nil {
			parts = append(parts, struct {
				scorer Scorer
				weight float64
			}{accuracy, 0.5})
		}

		total := 0.0
		for _, p := range parts {
			s, err := p.scorer.Score(text)
			if err != nil {
				return 0, err
			}
			total += s * p.weight
		}
		return total / float64(len(parts)), nil
	})
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = true
	}
	return set
}

func splitSentences(text string) []string {
	parts := strings.Split(text, ".")
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
