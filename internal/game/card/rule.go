package card

// Validate reports whether a victory claim for c holds: every number on the
// card must have been called. The Marked grid is not consulted.
func Validate(c *Card, called []int) bool {
	if c == nil {
		return false
	}
	drawn := make(map[int]struct{}, len(called))
	for _, n := range called {
		drawn[n] = struct{}{}
	}
	for _, n := range c.Values() {
		if _, ok := drawn[n]; !ok {
			return false
		}
	}
	return true
}
