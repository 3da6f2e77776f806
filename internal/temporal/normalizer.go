package temporal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
)

// Layouts tried, in order, for string input. Layouts without an offset are
// interpreted in the normalizer's default zone.
var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"20060102T150405Z",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02T15:04Z07:00",
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
		"20060102T150405",
		"20060102",
	}
)

// Normalizer turns raw attribute values into minute-truncated, zone-aware
// instants. Naive values are promoted to the default zone.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer returns a Normalizer promoting naive values to loc (UTC if
// nil).
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// Location is the default zone for naive values.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Normalize interprets raw as an instant. Supported inputs are time.Time,
// Key, Unix seconds as integers or floats, and strings in RFC 3339, ISO
// 8601 date/date-time or iCalendar basic format. The zone of zone-aware
// input is kept.
func (n *Normalizer) Normalize(raw any) (time.Time, error) {
	var t time.Time
	switch v := raw.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("%w: no value", apperrors.ErrInvalidTemporalValue)
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("%w: nil time", apperrors.ErrInvalidTemporalValue)
		}
		t = *v
	case Key:
		t = Decode(v)
	case int:
		t = time.Unix(int64(v), 0).In(n.loc)
	case int64:
		t = time.Unix(v, 0).In(n.loc)
	case float64:
		t = time.Unix(int64(v), 0).In(n.loc)
	case json.Number:
		secs, err := v.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidTemporalValue, v.String())
		}
		t = time.Unix(secs, 0).In(n.loc)
	case string:
		parsed, err := n.parse(v)
		if err != nil {
			return time.Time{}, err
		}
		t = parsed
	case fmt.Stringer:
		parsed, err := n.parse(v.String())
		if err != nil {
			return time.Time{}, err
		}
		t = parsed
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", apperrors.ErrInvalidTemporalValue, raw)
	}

	if t.IsZero() {
		return time.Time{}, fmt.Errorf("%w: zero time", apperrors.ErrInvalidTemporalValue)
	}
	if y := t.UTC().Year(); y < MinYear || y > MaxYear {
		return time.Time{}, fmt.Errorf("%w: year %d out of range", apperrors.ErrInvalidTemporalValue, y)
	}
	return t.Truncate(time.Minute), nil
}

// Key normalizes raw and encodes it.
func (n *Normalizer) Key(raw any) (Key, error) {
	t, err := n.Normalize(raw)
	if err != nil {
		return 0, err
	}
	return Encode(t), nil
}

func (n *Normalizer) parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty string", apperrors.ErrInvalidTemporalValue)
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse %q", apperrors.ErrInvalidTemporalValue, s)
}
