package recurrence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/temporal"
	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"
)

func newParser(t *testing.T) *Parser {
	return NewParser(temporal.NewNormalizer(vienna(t)))
}

func kinds(rs RuleSet) []RuleKind {
	out := make([]RuleKind, len(rs.Rules))
	for i, r := range rs.Rules {
		out[i] = r.Kind
	}
	return out
}

func TestParseContentLines(t *testing.T) {
	p := newParser(t)
	rs, err := p.RuleSet("DTSTART:20100101T100000Z\nRRULE:FREQ=DAILY;COUNT=3\nEXRULE:FREQ=WEEKLY;BYDAY=SA\nRDATE;TZID=Europe/Vienna:20100110T080000,20100111T080000\nEXDATE:20100102T100000Z")
	require.NoError(t, err)

	assert.Equal(t, []RuleKind{RuleInclude, RuleExclude, RuleAdd, RuleAdd, RuleRemove}, kinds(rs))
	assert.Equal(t, rrule.DAILY, rs.Rules[0].Option.Freq)
	assert.Equal(t, 3, rs.Rules[0].Option.Count)
	assert.Equal(t, "Europe/Vienna", rs.Rules[2].At.Location().String())
	assert.Equal(t, 8, rs.Rules[2].At.Hour())
	assert.True(t, rs.Rules[4].At.Equal(time.Date(2010, 1, 2, 10, 0, 0, 0, time.UTC)))
}

func TestParseBareRuleUsesDefaultZone(t *testing.T) {
	p := newParser(t)
	rs, err := p.RuleSet("FREQ=WEEKLY;BYDAY=MO,WE;UNTIL=20100201T000000")
	require.NoError(t, err)
	require.Len(t, rs.Rules, 1)
	assert.Equal(t, RuleInclude, rs.Rules[0].Kind)
	assert.Len(t, rs.Rules[0].Option.Byweekday, 2)
	assert.Equal(t, "Europe/Vienna", rs.Rules[0].Option.Until.Location().String())
}

func TestParseJSONSpecs(t *testing.T) {
	p := newParser(t)
	payload := `[
		{"freq": "DAILY", "count": 3},
		{"dtstart": "2010-01-02T10:00:00Z", "exclude": true},
		{"dtstart": "2010-01-09T10:00"},
		{"freq": 2, "exclude": true, "byweekday": ["+2MO", 4], "bymonthday": 5, "wkst": "SU"}
	]`
	rs, err := p.RuleSet(payload)
	require.NoError(t, err)

	assert.Equal(t, []RuleKind{RuleInclude, RuleRemove, RuleAdd, RuleExclude}, kinds(rs))
	assert.True(t, rs.Rules[1].At.Equal(time.Date(2010, 1, 2, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Europe/Vienna", rs.Rules[2].At.Location().String())

	weekly := rs.Rules[3].Option
	assert.Equal(t, rrule.WEEKLY, weekly.Freq)
	require.Len(t, weekly.Byweekday, 2)
	assert.Equal(t, "+2MO", weekly.Byweekday[0].String())
	assert.Equal(t, "FR", weekly.Byweekday[1].String())
	assert.Equal(t, []int{5}, weekly.Bymonthday)
	assert.Equal(t, "SU", weekly.Wkst.String())
}

func TestParseDecodedValues(t *testing.T) {
	p := newParser(t)

	var decoded any
	require.NoError(t, json.Unmarshal([]byte(`{"freq": "monthly", "interval": 2}`), &decoded))
	rs, err := p.RuleSet(decoded)
	require.NoError(t, err)
	require.Len(t, rs.Rules, 1)
	assert.Equal(t, rrule.MONTHLY, rs.Rules[0].Option.Freq)
	assert.Equal(t, 2, rs.Rules[0].Option.Interval)

	rs, err = p.RuleSet([]string{"RRULE:FREQ=DAILY;COUNT=2", `{"dtstart": "2010-03-01"}`})
	require.NoError(t, err)
	assert.Equal(t, []RuleKind{RuleInclude, RuleAdd}, kinds(rs))

	rs, err = p.RuleSet(json.RawMessage(`"RRULE:FREQ=YEARLY;COUNT=2"`))
	require.NoError(t, err)
	assert.Equal(t, []RuleKind{RuleInclude}, kinds(rs))

	rs, err = p.RuleSet(json.RawMessage(`["RRULE:FREQ=YEARLY;COUNT=2", "EXDATE:20110101T000000Z"]`))
	require.NoError(t, err)
	assert.Equal(t, []RuleKind{RuleInclude, RuleRemove}, kinds(rs))

	rs, err = p.RuleSet("  ")
	require.NoError(t, err)
	assert.Empty(t, rs.Rules)
}

func TestParseRejects(t *testing.T) {
	p := newParser(t)
	for _, raw := range []any{
		"XRULE:FREQ=DAILY",
		"RRULE:FREQ=SOMETIMES",
		"RRULE:FREQ=DAILY;COUNT",
		"EXDATE;VALUE=PERIOD:20100101T000000Z/PT1H",
		"no colon here",
		`[{"freq": "DAILY", "dtstart": "garbage"}]`,
		`[{"freq": "FORTNIGHTLY"}]`,
		`[{"freq": "DAILY", "byweekday": "XX"}]`,
		`[{"freq": 9}]`,
		`{"freq": "DAILY", "count": -1}`,
		42,
	} {
		_, err := p.RuleSet(raw)
		assert.ErrorIs(t, err, apperrors.ErrInvalidRecurrenceRule, "%v", raw)
	}
}

func TestParserRecurrence(t *testing.T) {
	p := newParser(t)

	rec, err := p.Recurrence(StrategyICal, nil)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = p.Recurrence(StrategyTimeDelta, "90")
	require.NoError(t, err)
	assert.Equal(t, TimeDelta{Step: mo.Some(90)}, rec)

	rec, err = p.Recurrence(StrategyICal, "RRULE:FREQ=DAILY;COUNT=2")
	require.NoError(t, err)
	assert.IsType(t, RuleSet{}, rec)

	_, err = p.Recurrence(Strategy("cron"), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestParsedRulesGenerate(t *testing.T) {
	loc := vienna(t)
	p := newParser(t)
	rec, err := p.Recurrence(StrategyICal, "RRULE:FREQ=DAILY\nEXDATE;TZID=Europe/Vienna:20100103T080000")
	require.NoError(t, err)

	got := collect(t, Definition{
		Start:      time.Date(2010, 1, 1, 8, 0, 0, 0, loc),
		Recurrence: rec,
		Until:      mo.Some(time.Date(2010, 1, 4, 8, 0, 0, 0, loc)),
	})
	days := make([]int, 0, len(got))
	for _, occ := range got {
		days = append(days, occ.Day())
	}
	assert.Equal(t, []int{1, 2, 4}, days)
}

func TestStep(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want mo.Option[int]
	}{
		{"int", 1440, mo.Some(1440)},
		{"int64", int64(60), mo.Some(60)},
		{"uint16", uint16(15), mo.Some(15)},
		{"zero", 0, mo.Some(0)},
		{"integral float", 30.0, mo.Some(30)},
		{"fractional float", 30.5, mo.None[int]()},
		{"json number", json.Number("45"), mo.Some(45)},
		{"numeric string", " 120 ", mo.Some(120)},
		{"text", "daily", mo.None[int]()},
		{"duration", 2 * time.Hour, mo.Some(120)},
		{"option", mo.Some(5), mo.Some(5)},
		{"nil", nil, mo.None[int]()},
		{"bool", true, mo.None[int]()},
		{"huge", uint64(1) << 40, mo.None[int]()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Step(tt.raw))
		})
	}
}
