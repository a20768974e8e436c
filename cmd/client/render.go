package main

import (
	"fmt"
	"slices"
	"strings"

	"bingo/internal/game/card"
	"bingo/internal/session"
)

// renderCard draws the card as a grid. Marked cells are bracketed, called
// but unmarked cells get a star, blanks are dots.
func renderCard(c *card.Card, called []int) string {
	var b strings.Builder
	for r := range card.Rows {
		for col := range card.Columns {
			n := c.Numbers[r][col]
			switch {
			case n == 0:
				b.WriteString("  .  ")
			case c.Marked[r][col]:
				fmt.Fprintf(&b, " [%2d]", n)
			case slices.Contains(called, n):
				fmt.Fprintf(&b, " *%2d ", n)
			default:
				fmt.Fprintf(&b, "  %2d ", n)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func renderState(s session.Session) string {
	caller := s.CallerID
	if caller == "" {
		caller = "-"
	}
	line := fmt.Sprintf("session %s [%s] players %s (%d/%d) caller %s",
		s.ID, s.Status, strings.Join(s.PlayerIDs, ","), len(s.PlayerIDs), s.MaxPlayers, caller)
	if s.CurrentNumber != nil {
		line += fmt.Sprintf(" current %d", *s.CurrentNumber)
	}
	return line
}
