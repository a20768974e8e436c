package card

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Factory generates cards from a random source. The source is shared by
// every session actor, so access to it is serialized.
type Factory struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFactory returns a Factory drawing from rng. A nil rng gets a PCG
// seeded from the current time.
func NewFactory(rng *rand.Rand) *Factory {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Factory{rng: rng}
}

// Generate builds a new card: each row gets a uniformly random set of five
// columns and each chosen cell a uniformly random value from its column
// range that is not already on the card.
func (f *Factory) Generate() (*Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := &Card{}
	used := make(map[int]bool, NumbersTotal)

	for row := 0; row < Rows; row++ {
		cols := f.rng.Perm(Columns)[:NumbersPerRow]
		for _, col := range cols {
			n, err := f.pickFromColumn(col, used)
			if err != nil {
				return nil, err
			}
			used[n] = true
			c.Numbers[row][col] = n
		}
	}

	if err := CheckShape(c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return c, nil
}

// pickFromColumn chooses uniformly among the column values not yet used.
// Sampling from the remaining candidates is equivalent to rejection
// sampling but terminates even when the range is exhausted.
func (f *Factory) pickFromColumn(col int, used map[int]bool) (int, error) {
	lo, hi := ColumnRange(col)
	candidates := make([]int, 0, hi-lo+1)
	for n := lo; n <= hi; n++ {
		if !used[n] {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return 0, fmt.Errorf("%w: column %d range [%d,%d] exhausted", ErrGeneration, col, lo, hi)
	}
	return candidates[f.rng.IntN(len(candidates))], nil
}
