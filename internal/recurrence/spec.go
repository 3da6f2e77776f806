package recurrence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/temporal"
	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/teambition/rrule-go"
)

// RuleSpec is the JSON form of a rule. Without Freq it describes a single
// instant at Dtstart; with Freq it is a frequency rule. Exclude turns
// either into its removing counterpart. Dtstart and Until default to the
// definition's.
type RuleSpec struct {
	Freq       *Frequency `json:"freq,omitempty"`
	Dtstart    any        `json:"dtstart,omitempty"`
	Until      any        `json:"until,omitempty"`
	Exclude    bool       `json:"exclude,omitempty"`
	Interval   int        `json:"interval,omitempty"`
	Count      int        `json:"count,omitempty"`
	Wkst       *Weekday   `json:"wkst,omitempty"`
	Bysetpos   IntList    `json:"bysetpos,omitempty"`
	Bymonth    IntList    `json:"bymonth,omitempty"`
	Bymonthday IntList    `json:"bymonthday,omitempty"`
	Byyearday  IntList    `json:"byyearday,omitempty"`
	Byweekno   IntList    `json:"byweekno,omitempty"`
	Byweekday  Weekdays   `json:"byweekday,omitempty"`
	Byhour     IntList    `json:"byhour,omitempty"`
	Byminute   IntList    `json:"byminute,omitempty"`
}

func (s RuleSpec) rule(norm *temporal.Normalizer) (Rule, error) {
	dtstart, err := specTime(norm, "dtstart", s.Dtstart)
	if err != nil {
		return Rule{}, err
	}
	if s.Freq == nil {
		if s.Exclude {
			return Remove(dtstart), nil
		}
		return Add(dtstart), nil
	}

	until, err := specTime(norm, "until", s.Until)
	if err != nil {
		return Rule{}, err
	}
	if s.Interval < 0 || s.Count < 0 {
		return Rule{}, fmt.Errorf("%w: negative interval or count", apperrors.ErrInvalidRecurrenceRule)
	}
	opt := rrule.ROption{
		Freq:       rrule.Frequency(*s.Freq),
		Dtstart:    dtstart,
		Until:      until,
		Interval:   s.Interval,
		Count:      s.Count,
		Bysetpos:   s.Bysetpos,
		Bymonth:    s.Bymonth,
		Bymonthday: s.Bymonthday,
		Byyearday:  s.Byyearday,
		Byweekno:   s.Byweekno,
		Byhour:     s.Byhour,
		Byminute:   s.Byminute,
	}
	if s.Wkst != nil {
		opt.Wkst = s.Wkst.weekday()
	}
	for _, wd := range s.Byweekday {
		opt.Byweekday = append(opt.Byweekday, wd.weekday())
	}
	if s.Exclude {
		return Exclude(opt), nil
	}
	return Include(opt), nil
}

func specTime(norm *temporal.Normalizer, field string, raw any) (time.Time, error) {
	if raw == nil {
		return time.Time{}, nil
	}
	t, err := norm.Normalize(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidRecurrenceRule, field, err)
	}
	return t, nil
}

// Frequency accepts "DAILY" style names or the integers 0 (yearly) to 6
// (secondly).
type Frequency rrule.Frequency

func (f *Frequency) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		freq, err := rrule.StrToFreq(strings.ToUpper(strings.TrimSpace(name)))
		if err != nil {
			return err
		}
		*f = Frequency(freq)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("freq must be a name or an integer: %s", data)
	}
	if n < int(rrule.YEARLY) || n > int(rrule.SECONDLY) {
		return fmt.Errorf("freq %d out of range", n)
	}
	*f = Frequency(n)
	return nil
}

func (f Frequency) MarshalJSON() ([]byte, error) {
	return json.Marshal(rrule.Frequency(f).String())
}

// Weekday accepts "MO", "+2MO", "-1FR" or the integers 0 (Monday) to 6.
type Weekday struct {
	Day int
	N   int
}

var weekdays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

var weekdayNames = map[string]int{"MO": 0, "TU": 1, "WE": 2, "TH": 3, "FR": 4, "SA": 5, "SU": 6}

func (w Weekday) weekday() rrule.Weekday {
	wd := weekdays[w.Day]
	if w.N == 0 {
		return wd
	}
	return wd.Nth(w.N)
}

func (w *Weekday) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n < 0 || n > 6 {
			return fmt.Errorf("weekday %d out of range", n)
		}
		*w = Weekday{Day: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("weekday must be a name or an integer: %s", data)
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return fmt.Errorf("undefined weekday %q", s)
	}
	day, ok := weekdayNames[s[len(s)-2:]]
	if !ok {
		return fmt.Errorf("undefined weekday %q", s)
	}
	parsed := Weekday{Day: day}
	if prefix := s[:len(s)-2]; prefix != "" {
		if _, err := fmt.Sscanf(prefix, "%d", &parsed.N); err != nil {
			return fmt.Errorf("weekday ordinal %q: %w", prefix, err)
		}
	}
	*w = parsed
	return nil
}

// Weekdays accepts a single weekday or a list.
type Weekdays []Weekday

func (ws *Weekdays) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []Weekday
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*ws = list
		return nil
	}
	var one Weekday
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*ws = Weekdays{one}
	return nil
}

// IntList accepts a single integer or a list.
type IntList []int

func (l *IntList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []int
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*l = list
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*l = IntList{n}
	return nil
}
