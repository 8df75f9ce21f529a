package recognizer

import (
	"sort"
	"strings"

	"docscan/internal/domain"
	"docscan/internal/layout"
)

const (
	agreementBoost  = 0.2
	majorityPenalty = 0.8
	tieBreakPenalty = 0.6
)

type member struct {
	backend int
	token   domain.Token
}

type cluster struct {
	box     domain.BBox
	members []member
}

func (c *cluster) has(backend int) bool {
	for _, m := range c.members {
		if m.backend == backend {
			return true
		}
	}
	return false
}

// Vote merges successful results from several backends. Tokens whose boxes
// overlap by at least minIoU are treated as readings of the same region. Per
// region the majority text wins, ties go to the most confident reading, and
// the winning reading supplies the box. Agreement raises the token
// confidence; disagreement lowers it.
func Vote(results []*domain.BackendResult, minIoU float64) *domain.BackendResult {
	var clusters []*cluster
	names := make([]string, 0, len(results))
	for bi, res := range results {
		names = append(names, res.Backend)
		for _, t := range res.Tokens {
			var target *cluster
			bestIoU := 0.0
			for _, c := range clusters {
				if c.has(bi) {
					continue
				}
				if iou := c.box.IoU(t.Box); iou >= minIoU && iou > bestIoU {
					target, bestIoU = c, iou
				}
			}
			if target == nil {
				clusters = append(clusters, &cluster{box: t.Box, members: []member{{bi, t}}})
				continue
			}
			target.members = append(target.members, member{bi, t})
		}
	}

	tokens := make([]domain.Token, 0, len(clusters))
	for _, c := range clusters {
		tokens = append(tokens, c.resolve())
	}
	return &domain.BackendResult{
		Backend: strings.Join(names, "+"),
		Text:    layout.Text(tokens),
		Tokens:  tokens,
	}
}

// resolve picks the winning reading of a region.
func (c *cluster) resolve() domain.Token {
	if len(c.members) == 1 {
		return c.members[0].token
	}

	type tally struct {
		text  string
		votes int
		best  domain.Token
	}
	byText := map[string]*tally{}
	for _, m := range c.members {
		key := strings.TrimSpace(m.token.Text)
		t, ok := byText[key]
		if !ok {
			t = &tally{text: key, best: m.token}
			byText[key] = t
		}
		t.votes++
		if m.token.Confidence > t.best.Confidence {
			t.best = m.token
		}
	}
	tallies := make([]*tally, 0, len(byText))
	for _, t := range byText {
		tallies = append(tallies, t)
	}
	sort.Slice(tallies, func(i, j int) bool {
		a, b := tallies[i], tallies[j]
		if a.votes != b.votes {
			return a.votes > b.votes
		}
		if a.best.Confidence != b.best.Confidence {
			return a.best.Confidence > b.best.Confidence
		}
		return a.text < b.text
	})

	winner := tallies[0].best
	switch {
	case len(tallies) == 1:
		winner.Confidence += (1 - winner.Confidence) * agreementBoost
	case tallies[0].votes > tallies[1].votes:
		winner.Confidence *= majorityPenalty
	default:
		winner.Confidence *= tieBreakPenalty
	}
	return winner
}
