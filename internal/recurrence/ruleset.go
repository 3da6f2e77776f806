package recurrence

import (
	"fmt"
	"iter"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/teambition/rrule-go"
)

// RuleKind tags a Rule.
type RuleKind int

const (
	// RuleInclude adds the instants of a frequency rule.
	RuleInclude RuleKind = iota
	// RuleExclude removes the instants of a frequency rule.
	RuleExclude
	// RuleAdd adds a single instant.
	RuleAdd
	// RuleRemove removes a single instant.
	RuleRemove
)

func (k RuleKind) String() string {
	switch k {
	case RuleInclude:
		return "include"
	case RuleExclude:
		return "exclude"
	case RuleAdd:
		return "add"
	case RuleRemove:
		return "remove"
	default:
		return fmt.Sprintf("RuleKind(%d)", int(k))
	}
}

// Rule is one entry of a RuleSet. Option is used by frequency rules and At
// by single-instant rules. A zero Option.Dtstart, Option.Until or At is
// taken from the definition.
type Rule struct {
	Kind   RuleKind
	Option rrule.ROption
	At     time.Time
}

// Include returns an inclusion rule.
func Include(opt rrule.ROption) Rule { return Rule{Kind: RuleInclude, Option: opt} }

// Exclude returns an exclusion rule.
func Exclude(opt rrule.ROption) Rule { return Rule{Kind: RuleExclude, Option: opt} }

// Add returns a single added instant.
func Add(t time.Time) Rule { return Rule{Kind: RuleAdd, At: t} }

// Remove returns a single excluded instant.
func Remove(t time.Time) Rule { return Rule{Kind: RuleRemove, At: t} }

// RuleSet combines frequency rules and single instants. The occurrences are
// the start plus everything included, minus everything excluded, with
// instants before the start dropped. The start itself is never excluded.
type RuleSet struct {
	Rules []Rule
}

func (rs RuleSet) generate(def Definition) (iter.Seq[time.Time], error) {
	var adds, removes []time.Time
	for i, r := range rs.Rules {
		switch r.Kind {
		case RuleAdd, RuleRemove:
			at := r.At
			if at.IsZero() {
				at = def.Start
			}
			if r.Kind == RuleAdd {
				adds = append(adds, at)
			} else {
				removes = append(removes, at)
			}
		case RuleInclude, RuleExclude:
			occ, err := expand(r.Option, def)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): %w", i, r.Kind, err)
			}
			if r.Kind == RuleInclude {
				adds = append(adds, occ...)
			} else {
				removes = append(removes, occ...)
			}
		default:
			return nil, fmt.Errorf("%w: rule %d has unknown kind %d", apperrors.ErrInvalidRecurrenceRule, i, int(r.Kind))
		}
		if len(adds) > maxOccurrences || len(removes) > maxOccurrences {
			return nil, fmt.Errorf("%w: more than %d occurrences", apperrors.ErrInvalidRecurrenceRule, maxOccurrences)
		}
	}

	start := def.Start
	return func(yield func(time.Time) bool) {
		if !yield(start) {
			return
		}
		set := &rrule.Set{}
		for _, t := range adds {
			set.RDate(t)
		}
		for _, t := range removes {
			set.ExDate(t)
		}
		next := set.Iterator()
		for {
			t, ok := next()
			if !ok {
				return
			}
			if !t.After(start) {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}, nil
}

// expand enumerates one frequency rule. Rules bounded by neither an until
// nor a count contribute nothing.
func expand(opt rrule.ROption, def Definition) ([]time.Time, error) {
	if opt.Dtstart.IsZero() {
		opt.Dtstart = def.Start
	}
	if opt.Until.IsZero() {
		if until, ok := def.Until.Get(); ok {
			opt.Until = until
		}
	}
	if opt.Until.IsZero() && opt.Count <= 0 {
		return nil, nil
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidRecurrenceRule, err)
	}
	var out []time.Time
	next := r.Iterator()
	for {
		t, ok := next()
		if !ok {
			return out, nil
		}
		if len(out) == maxOccurrences {
			return nil, fmt.Errorf("%w: more than %d occurrences", apperrors.ErrInvalidRecurrenceRule, maxOccurrences)
		}
		out = append(out, t)
	}
}
