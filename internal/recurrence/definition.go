// Package recurrence expands a start/rule/until triple into the ordered,
// finite sequence of occurrence instants it describes.
package recurrence

import (
	"fmt"
	"iter"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/samber/mo"
)

// maxOccurrences bounds the expansion of a single definition.
const maxOccurrences = 1 << 20

const minutesPerDay = 24 * 60

// DSTPolicy decides how a fixed step behaves across a DST transition.
type DSTPolicy string

const (
	// DSTAdjust preserves the wall-clock time of day.
	DSTAdjust DSTPolicy = "adjust"
	// DSTKeep preserves the elapsed duration.
	DSTKeep DSTPolicy = "keep"
	// DSTAuto keeps durations for steps under a day and adjusts otherwise.
	DSTAuto DSTPolicy = "auto"
)

// ParseDSTPolicy validates s.
func ParseDSTPolicy(s string) (DSTPolicy, error) {
	switch p := DSTPolicy(s); p {
	case DSTAdjust, DSTKeep, DSTAuto:
		return p, nil
	default:
		return "", fmt.Errorf("%w: dst policy %q", apperrors.ErrInvalidInput, s)
	}
}

// Resolve returns the concrete policy for a step in minutes.
func (p DSTPolicy) Resolve(step int) DSTPolicy {
	if p != DSTAuto && p != "" {
		return p
	}
	if step < minutesPerDay {
		return DSTKeep
	}
	return DSTAdjust
}

// Strategy selects how recurrence attribute values are interpreted.
type Strategy string

const (
	StrategyTimeDelta Strategy = "timedelta"
	StrategyICal      Strategy = "ical"
)

// ParseStrategy validates s.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyTimeDelta, StrategyICal:
		return st, nil
	default:
		return "", fmt.Errorf("%w: recurrence strategy %q", apperrors.ErrInvalidInput, s)
	}
}

// Recurrence is implemented by TimeDelta and RuleSet.
type Recurrence interface {
	generate(def Definition) (iter.Seq[time.Time], error)
}

// Definition is everything needed to enumerate occurrences.
type Definition struct {
	Start      time.Time
	Recurrence Recurrence
	Until      mo.Option[time.Time]
	DST        DSTPolicy
}

// Generate returns the occurrences of def in ascending order. The sequence
// always begins with def.Start and can be ranged over more than once.
func Generate(def Definition) (iter.Seq[time.Time], error) {
	if def.Start.IsZero() {
		return nil, fmt.Errorf("%w: missing start", apperrors.ErrInvalidTemporalValue)
	}
	if until, ok := def.Until.Get(); ok && until.Before(def.Start) {
		return single(def.Start), nil
	}
	if def.Recurrence == nil {
		return single(def.Start), nil
	}
	return def.Recurrence.generate(def)
}

func single(t time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		yield(t)
	}
}
