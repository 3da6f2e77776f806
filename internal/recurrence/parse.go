package recurrence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/temporal"
	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// Parser turns raw recurrence attribute values into a Recurrence. Naive
// dates inside rule payloads are read in the normalizer's zone.
type Parser struct {
	norm *temporal.Normalizer
}

func NewParser(norm *temporal.Normalizer) *Parser {
	if norm == nil {
		norm = temporal.NewNormalizer(time.UTC)
	}
	return &Parser{norm: norm}
}

// Recurrence interprets raw according to strategy. A nil result means the
// document does not recur.
func (p *Parser) Recurrence(strategy Strategy, raw any) (Recurrence, error) {
	switch strategy {
	case StrategyTimeDelta:
		return TimeDelta{Step: Step(raw)}, nil
	case StrategyICal:
		if raw == nil {
			return nil, nil
		}
		rs, err := p.RuleSet(raw)
		if err != nil {
			return nil, err
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("%w: recurrence strategy %q", apperrors.ErrInvalidInput, strategy)
	}
}

// RuleSet accepts RFC 5545 content lines (RRULE, EXRULE, RDATE, EXDATE),
// a JSON array or object of rule specs, decoded JSON values, or already
// built rules.
func (p *Parser) RuleSet(raw any) (RuleSet, error) {
	switch v := raw.(type) {
	case nil:
		return RuleSet{}, nil
	case RuleSet:
		return v, nil
	case *RuleSet:
		if v == nil {
			return RuleSet{}, nil
		}
		return *v, nil
	case []Rule:
		return RuleSet{Rules: v}, nil
	case Rule:
		return RuleSet{Rules: []Rule{v}}, nil
	case RuleSpec:
		return p.specs([]RuleSpec{v})
	case []RuleSpec:
		return p.specs(v)
	case string:
		return p.text(v)
	case []byte:
		return p.text(string(v))
	case json.RawMessage:
		return p.text(string(v))
	case []string:
		var rs RuleSet
		for i, s := range v {
			part, err := p.text(s)
			if err != nil {
				return RuleSet{}, fmt.Errorf("entry %d: %w", i, err)
			}
			rs.Rules = append(rs.Rules, part.Rules...)
		}
		return rs, nil
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return RuleSet{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidRecurrenceRule, err)
		}
		return p.decodeJSON(data)
	default:
		return RuleSet{}, fmt.Errorf("%w: unsupported payload type %T", apperrors.ErrInvalidRecurrenceRule, raw)
	}
}

func (p *Parser) text(s string) (RuleSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RuleSet{}, nil
	}
	switch s[0] {
	case '[', '{', '"':
		return p.decodeJSON([]byte(s))
	}
	return p.lines(strings.Split(s, "\n"))
}

func (p *Parser) decodeJSON(data []byte) (RuleSet, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return RuleSet{}, nil
	}
	var specs []RuleSpec
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &specs); err != nil {
			// An array of content lines is also accepted.
			var lines []string
			if json.Unmarshal(data, &lines) == nil {
				return p.RuleSet(lines)
			}
			return RuleSet{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidRecurrenceRule, err)
		}
	case '{':
		var spec RuleSpec
		if err := json.Unmarshal(data, &spec); err != nil {
			return RuleSet{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidRecurrenceRule, err)
		}
		specs = []RuleSpec{spec}
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return RuleSet{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidRecurrenceRule, err)
		}
		return p.text(s)
	default:
		return RuleSet{}, fmt.Errorf("%w: unexpected JSON payload", apperrors.ErrInvalidRecurrenceRule)
	}
	return p.specs(specs)
}

func (p *Parser) specs(specs []RuleSpec) (RuleSet, error) {
	rs := RuleSet{Rules: make([]Rule, 0, len(specs))}
	for i, spec := range specs {
		r, err := spec.rule(p.norm)
		if err != nil {
			return RuleSet{}, fmt.Errorf("rule %d: %w", i, err)
		}
		rs.Rules = append(rs.Rules, r)
	}
	return rs, nil
}

// lines parses RFC 5545 content lines. DTSTART lines are ignored because
// the document's start attribute is authoritative. A bare "FREQ=..." line
// is read as an RRULE.
func (p *Parser) lines(lines []string) (RuleSet, error) {
	loc := p.norm.Location()
	var rs RuleSet
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, "FREQ=") {
			line, upper = "RRULE:"+line, "RRULE:"+upper
		}
		idx := strings.IndexAny(upper, ";:")
		if idx <= 0 {
			return RuleSet{}, fmt.Errorf("%w: malformed line %q", apperrors.ErrInvalidRecurrenceRule, line)
		}
		name, rest := upper[:idx], line[idx+1:]

		switch name {
		case "RRULE", "EXRULE":
			opt, err := rrule.StrToROptionInLocation(strings.ToUpper(rest), loc)
			if err != nil {
				return RuleSet{}, fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidRecurrenceRule, name, err)
			}
			kind := RuleInclude
			if name == "EXRULE" {
				kind = RuleExclude
			}
			rs.Rules = append(rs.Rules, Rule{Kind: kind, Option: *opt})
		case "RDATE", "EXDATE":
			dates, err := rrule.StrToDatesInLoc(rest, loc)
			if err != nil {
				return RuleSet{}, fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidRecurrenceRule, name, err)
			}
			kind := RuleAdd
			if name == "EXDATE" {
				kind = RuleRemove
			}
			for _, d := range dates {
				rs.Rules = append(rs.Rules, Rule{Kind: kind, At: d})
			}
		case "DTSTART":
		default:
			return RuleSet{}, fmt.Errorf("%w: unsupported property %q", apperrors.ErrInvalidRecurrenceRule, name)
		}
	}
	return rs, nil
}

// Step converts an integer-like value to a step in minutes. Anything that
// is not a whole number yields no step.
func Step(raw any) mo.Option[int] {
	switch v := raw.(type) {
	case mo.Option[int]:
		return v
	case int:
		return mo.Some(v)
	case int8:
		return mo.Some(int(v))
	case int16:
		return mo.Some(int(v))
	case int32:
		return mo.Some(int(v))
	case int64:
		return intStep(v)
	case uint:
		return uintStep(uint64(v))
	case uint8:
		return mo.Some(int(v))
	case uint16:
		return mo.Some(int(v))
	case uint32:
		return uintStep(uint64(v))
	case uint64:
		return uintStep(v)
	case float32:
		return floatStep(float64(v))
	case float64:
		return floatStep(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return intStep(n)
		}
		return mo.None[int]()
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return intStep(n)
		}
		return mo.None[int]()
	case time.Duration:
		return intStep(int64(v / time.Minute))
	default:
		return mo.None[int]()
	}
}

func intStep(n int64) mo.Option[int] {
	if n > math.MaxInt32 || n < math.MinInt32 {
		return mo.None[int]()
	}
	return mo.Some(int(n))
}

func uintStep(n uint64) mo.Option[int] {
	if n > math.MaxInt32 {
		return mo.None[int]()
	}
	return mo.Some(int(n))
}

func floatStep(f float64) mo.Option[int] {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return mo.None[int]()
	}
	return intStep(int64(f))
}
