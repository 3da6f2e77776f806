package recurrence

import (
	"iter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/temporal"
)

// Keys encodes every instant of seq, preserving order and duplicates.
func Keys(seq iter.Seq[time.Time]) iter.Seq[temporal.Key] {
	return func(yield func(temporal.Key) bool) {
		for t := range seq {
			if !yield(temporal.Encode(t)) {
				return
			}
		}
	}
}
