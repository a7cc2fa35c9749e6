// Package prompts builds the prompt text for each oracle call the engine
// makes: initial answers, self- and peer-critiques, and refinements.
package prompts

import (
	"fmt"
	"strings"
)

// Initial builds the round-0 prompt that produces a chain's independent
// first candidate. The role hint diversifies otherwise identical prompts.
func Initial(role, task string) string {
	return fmt.Sprintf("You are %s. Solve the problem below as best you can.\n\n%s\n\nAnswer:", role, task)
}

// SelfCritique asks a chain to find weaknesses in its own candidate.
func SelfCritique(candidate string) string {
	return fmt.Sprintf(
		"Here is your answer:\n\n%s\n\nTask: List two specific weaknesses or potential errors in this answer.",
		candidate,
	)
}

// PeerCritique asks for an outside-expert critique of a candidate given
// one peer chain's answer for contrast.
func PeerCritique(candidate, peer string) string {
	return fmt.Sprintf(
		"Candidate answer:\n\n%s\n\nPeer answer:\n%s\n\nTask: As an outside expert, identify two flaws in the candidate above.",
		candidate, peer,
	)
}

// Refinement asks for a rewrite of the candidate that addresses every
// critique gathered this round. Critiques that degraded to empty text are
// skipped; with no critiques at all the rewrite is asked for directly.
func Refinement(candidate string, critiques []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original answer:\n%s\n\n", candidate)

	n := 0
	for _, c := range critiques {
		if strings.TrimSpace(c) == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "Critique %d:\n%s\n\n", n, c)
	}

	if n == 0 {
		b.WriteString("Task: Rewrite the answer, improving its accuracy and clarity.")
	} else {
		b.WriteString("Task: Rewrite the answer, fully addressing every issue mentioned above.")
	}
	return b.String()
}
