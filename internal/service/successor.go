package service

import (
	"fmt"

	"markov-go/internal/model/trigram"
)

// Rung names, in the order the ladder tries them
const (
	RungConstrained = "constrained" // closer required, or exclusion set when nothing is open
	RungRelaxed     = "relaxed"     // exclusion set only
	RungForced      = "forced"      // any observed successor
)

// rung is one filter of the successor ladder. A nil accept admits every token.
type rung struct {
	name   string
	accept func(trigram.Token) bool
}

// buildLadder returns the filters tried, in order, when choosing the next
// token. need is the closer on top of the pending stack, if any.
func (g *Generator) buildLadder(need string, hasNeed bool) []rung {
	notExcluded := func(t trigram.Token) bool {
		_, banned := g.exclude[t.Word]
		return !banned
	}

	first := notExcluded
	if hasNeed {
		first = func(t trigram.Token) bool {
			return g.label(t) == need
		}
	}

	return []rung{
		{name: RungConstrained, accept: first},
		{name: RungRelaxed, accept: notExcluded},
		{name: RungForced},
	}
}

// filterCandidates returns the successors admitted by accept
func filterCandidates(successors []trigram.Token, accept func(trigram.Token) bool) []trigram.Token {
	if accept == nil {
		return successors
	}
	var out []trigram.Token
	for _, t := range successors {
		if accept(t) {
			out = append(out, t)
		}
	}
	return out
}

// climbLadder picks a successor of ctx from the first rung with candidates.
// It fails with ErrUnseenContext when ctx has no successors at all.
func (g *Generator) climbLadder(ctx trigram.Context, ladder []rung) (trigram.Token, string, error) {
	successors, err := g.index.Lookup(ctx)
	if err != nil {
		return trigram.Token{}, "", err
	}

	for _, r := range ladder {
		candidates := filterCandidates(successors, r.accept)
		if len(candidates) == 0 {
			continue
		}
		return candidates[g.chooser.IntN(len(candidates))], r.name, nil
	}

	return trigram.Token{}, "", fmt.Errorf("%w: %s", ErrNoCandidate, ctx)
}
