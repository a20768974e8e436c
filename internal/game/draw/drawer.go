// Package draw selects the next called number of a session.
package draw

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"bingo/internal/game/card"
)

// ErrNumbersExhausted is returned once every number in 1..90 has been called.
var ErrNumbersExhausted = errors.New("all numbers have been drawn")

// Drawer picks numbers uniformly from those not yet called.
type Drawer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDrawer returns a Drawer using rng, or a time-seeded PCG when rng is nil.
func NewDrawer(rng *rand.Rand) *Drawer {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Drawer{rng: rng}
}

// Draw returns a number from 1..90 absent from called.
func (d *Drawer) Draw(called []int) (int, error) {
	var seen [card.MaxNumber + 1]bool
	for _, n := range called {
		if n >= card.MinNumber && n <= card.MaxNumber {
			seen[n] = true
		}
	}
	remaining := make([]int, 0, card.MaxNumber)
	for n := card.MinNumber; n <= card.MaxNumber; n++ {
		if !seen[n] {
			remaining = append(remaining, n)
		}
	}
	if len(remaining) == 0 {
		return 0, ErrNumbersExhausted
	}

	d.mu.Lock()
	i := d.rng.IntN(len(remaining))
	d.mu.Unlock()
	return remaining[i], nil
}
