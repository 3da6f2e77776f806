package accessor

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

// Property names read from a VEVENT. EXRULE is deprecated in RFC 5545 and
// has no go-ical constant.
const propExceptionRule = "EXRULE"

var recurrenceProps = []string{
	ical.PropRecurrenceRule,
	propExceptionRule,
	ical.PropRecurrenceDates,
	ical.PropExceptionDates,
}

// Event adapts a VEVENT. The recurrence value is the event's RRULE, EXRULE,
// RDATE and EXDATE content lines, and until is the first RRULE's UNTIL.
type Event struct {
	uid        string
	start      any
	recurrence string
	until      any
}

// FromEvent reads ev. DTSTART values without a TZID are read in loc.
func FromEvent(ev *ical.Event, loc *time.Location) *Event {
	if loc == nil {
		loc = time.UTC
	}
	e := &Event{}
	if uid := ev.Props.Get(ical.PropUID); uid != nil {
		e.uid = uid.Value
	}
	if prop := ev.Props.Get(ical.PropDateTimeStart); prop != nil {
		if t, err := prop.DateTime(loc); err == nil {
			e.start = t
		} else {
			e.start = prop.Value
		}
	}

	var lines []string
	for _, name := range recurrenceProps {
		for _, prop := range ev.Props[name] {
			if prop.Value == "" {
				continue
			}
			lines = append(lines, contentLine(name, prop))
		}
	}
	e.recurrence = strings.Join(lines, "\n")

	if prop := ev.Props.Get(ical.PropRecurrenceRule); prop != nil {
		if opt, err := rrule.StrToROptionInLocation(prop.Value, loc); err == nil && !opt.Until.IsZero() {
			e.until = opt.Until
		}
	}
	return e
}

// contentLine re-serializes the parameters the rule parser understands.
func contentLine(name string, prop ical.Prop) string {
	var b strings.Builder
	b.WriteString(name)
	for _, param := range []string{ical.ParamValue, ical.ParamTimezoneID} {
		if v := prop.Params.Get(param); v != "" {
			fmt.Fprintf(&b, ";%s=%s", param, v)
		}
	}
	b.WriteByte(':')
	b.WriteString(prop.Value)
	return b.String()
}

func (e *Event) UID() string { return e.uid }

func (e *Event) Start() (any, bool)      { return present(e.start) }
func (e *Event) Recurrence() (any, bool) { return present(e.recurrence) }
func (e *Event) Until() (any, bool)      { return present(e.until) }

// EventID maps a UID to a stable document id.
func EventID(uid string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(uid))
	return h.Sum32()
}

// DecodeEvents reads every VEVENT from a stream of one or more VCALENDARs.
func DecodeEvents(r io.Reader) ([]ical.Event, error) {
	dec := ical.NewDecoder(r)
	var events []ical.Event
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding calendar: %w", err)
		}
		events = append(events, cal.Events()...)
	}
	return events, nil
}
