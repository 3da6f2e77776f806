package recurrence

import (
	"fmt"
	"iter"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/samber/mo"
)

// TimeDelta repeats the start every Step minutes until the definition's
// until. An absent or non-positive step means a single occurrence.
type TimeDelta struct {
	Step mo.Option[int]
}

// Every is a TimeDelta stepping by d, rounded down to whole minutes.
func Every(d time.Duration) TimeDelta {
	return TimeDelta{Step: mo.Some(int(d / time.Minute))}
}

func (d TimeDelta) generate(def Definition) (iter.Seq[time.Time], error) {
	step, ok := d.Step.Get()
	until, bounded := def.Until.Get()
	if !ok || step <= 0 || !bounded {
		return single(def.Start), nil
	}
	span := (until.Unix() - def.Start.Unix()) / 60
	if n := span / int64(step); n > maxOccurrences {
		return nil, fmt.Errorf("%w: step of %d minutes yields about %d occurrences", apperrors.ErrInvalidRecurrenceRule, step, n)
	}

	policy := def.DST.Resolve(step)
	start := def.Start
	return func(yield func(time.Time) bool) {
		cur := start
		for {
			if !yield(cur) {
				return
			}
			next := advance(cur, step, policy)
			if next.After(until) {
				return
			}
			cur = next
		}
	}, nil
}

// advance moves t forward by step minutes. Adjust does the arithmetic on
// the wall clock of t's zone; if that does not move forward (an ambiguous
// fall-back hour) it falls back to absolute time.
func advance(t time.Time, step int, policy DSTPolicy) time.Time {
	if policy == DSTAdjust {
		next := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()+step, t.Second(), t.Nanosecond(), t.Location())
		if next.After(t) {
			return next
		}
	}
	return time.Unix(t.Unix()+int64(step)*60, int64(t.Nanosecond())).In(t.Location())
}
