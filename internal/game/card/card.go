package card

import (
	"errors"
	"fmt"
)

const (
	Rows          = 3
	Columns       = 9
	NumbersPerRow = 5
	NumbersTotal  = Rows * NumbersPerRow

	MinNumber = 1
	MaxNumber = 90
)

// ErrGeneration is returned when a column's value range is exhausted while
// filling a card. It cannot happen with the standard 3x9 layout but the
// generator still reports it instead of looping.
var ErrGeneration = errors.New("card generation failed")

// Card is a player's 3x9 lotto ticket. A zero in Numbers is a blank cell.
// Marked mirrors Numbers and only ever flips from false to true.
type Card struct {
	SessionID string              `json:"sessionId" cbor:"session_id"`
	PlayerID  string              `json:"playerId" cbor:"player_id"`
	Numbers   [Rows][Columns]int  `json:"numbers" cbor:"numbers"`
	Marked    [Rows][Columns]bool `json:"marked" cbor:"marked"`
}

// Values returns the non-blank numbers of the card in row-major order.
func (c *Card) Values() []int {
	values := make([]int, 0, NumbersTotal)
	for row := 0; row < Rows; row++ {
		for col := 0; col < Columns; col++ {
			if n := c.Numbers[row][col]; n != 0 {
				values = append(values, n)
			}
		}
	}
	return values
}

// Contains reports whether number is printed anywhere on the card.
func (c *Card) Contains(number int) bool {
	for row := 0; row < Rows; row++ {
		for col := 0; col < Columns; col++ {
			if c.Numbers[row][col] == number && number != 0 {
				return true
			}
		}
	}
	return false
}

// Mark flags every cell holding number, but only when number has already
// been called. It returns true if at least one cell changed. Numbers that
// are absent, uncalled or already marked leave the card untouched.
func (c *Card) Mark(number int, called []int) bool {
	if number == 0 || !containsInt(called, number) {
		return false
	}
	changed := false
	for row := 0; row < Rows; row++ {
		for col := 0; col < Columns; col++ {
			if c.Numbers[row][col] == number && !c.Marked[row][col] {
				c.Marked[row][col] = true
				changed = true
			}
		}
	}
	return changed
}

// ColumnRange returns the inclusive value range of a column: [10c+1, 10c+9]
// for the first eight columns and [81, 90] for the last one.
func ColumnRange(col int) (lo, hi int) {
	lo = col*10 + 1
	hi = lo + 8
	if col == Columns-1 {
		hi = MaxNumber
	}
	return lo, hi
}

// ---- Shape checks ----

type cardValidator func(*Card) error

// CheckShape verifies the layout invariants of a card: five numbers per
// row, every number inside its column range, no repeated number.
func CheckShape(c *Card) error {
	validators := []cardValidator{
		validateRowCounts,
		validateColumnRanges,
		validateUnique,
	}
	for _, v := range validators {
		if err := v(c); err != nil {
			return err
		}
	}
	return nil
}

func validateRowCounts(c *Card) error {
	for row := 0; row < Rows; row++ {
		count := 0
		for col := 0; col < Columns; col++ {
			if c.Numbers[row][col] != 0 {
				count++
			}
		}
		if count != NumbersPerRow {
			return fmt.Errorf("row %d has %d numbers, want %d", row, count, NumbersPerRow)
		}
	}
	return nil
}

func validateColumnRanges(c *Card) error {
	for row := 0; row < Rows; row++ {
		for col := 0; col < Columns; col++ {
			n := c.Numbers[row][col]
			if n == 0 {
				continue
			}
			lo, hi := ColumnRange(col)
			if n < lo || n > hi {
				return fmt.Errorf("number %d at row %d col %d outside [%d,%d]", n, row, col, lo, hi)
			}
		}
	}
	return nil
}

func validateUnique(c *Card) error {
	seen := make(map[int]struct{}, NumbersTotal)
	for _, n := range c.Values() {
		if _, dup := seen[n]; dup {
			return fmt.Errorf("number %d appears more than once", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

func containsInt(values []int, target int) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
