package dialogue

import (
	"math/rand"
	"time"
)

// Picker chooses among interchangeable phrase variants. *rand.Rand satisfies it.
type Picker interface {
	Intn(n int) int
}

// FixedPicker always picks the same variant, clamped to the available ones.
type FixedPicker int

func (p FixedPicker) Intn(n int) int {
	switch {
	case p < 0:
		return 0
	case int(p) >= n:
		return n - 1
	default:
		return int(p)
	}
}

// NewPicker returns a seeded random picker. A zero seed uses the clock.
func NewPicker(seed int64) Picker {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
