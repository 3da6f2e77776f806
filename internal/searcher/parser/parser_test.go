package parser

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/temporal"
	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModes(t *testing.T) {
	norm := temporal.NewNormalizer(time.UTC)
	keys := Keys{temporal.Key(30), temporal.Key(15)}

	tests := []struct {
		name     string
		req      Request
		mode     Mode
		min, max bool
	}{
		{"point", Request{Keys: keys}, ModePoint, false, false},
		{"range both", Request{Keys: keys, Range: "min:max"}, ModeRange, true, true},
		{"range min only", Request{Keys: keys, Range: "min"}, ModeRange, true, false},
		{"usage overrides range", Request{Keys: keys, Range: "min:max", Usage: "Range:Max"}, ModeRange, false, true},
		{"non-range usage", Request{Keys: keys, Range: "min:max", Usage: "exact"}, ModePoint, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Parse("start", tt.req, norm)
			require.NoError(t, err)
			assert.Equal(t, "start", plan.Index)
			assert.Equal(t, tt.mode, plan.Mode)
			assert.Equal(t, tt.min, plan.Min)
			assert.Equal(t, tt.max, plan.Max)
			assert.Equal(t, []temporal.Key{30, 15}, plan.Keys)
			assert.Equal(t, OperatorAnd, plan.Operator)
		})
	}
}

func TestParseOperator(t *testing.T) {
	norm := temporal.NewNormalizer(time.UTC)

	plan, err := Parse("start", Request{Operator: "OR"}, norm)
	require.NoError(t, err)
	assert.Equal(t, OperatorOr, plan.Operator)

	_, err = Parse("start", Request{Operator: "xor"}, norm)
	assert.ErrorIs(t, err, apperrors.ErrInvalidQueryOperator)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))
}

func TestParseRejectsBadKey(t *testing.T) {
	norm := temporal.NewNormalizer(time.UTC)
	_, err := Parse("start", Request{Keys: Keys{"2024-01-01", "someday"}}, norm)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTemporalValue)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))
}

func TestParseUsesIndexZone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Vienna")
	require.NoError(t, err)

	plan, err := Parse("start", Request{Keys: Keys{"2024-01-01T09:00:00"}}, temporal.NewNormalizer(loc))
	require.NoError(t, err)
	assert.Equal(t, temporal.Encode(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)), plan.Keys[0])
}

func TestRequestJSON(t *testing.T) {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"query":"2024-01-01","operator":"or"}`), &req))
	assert.Equal(t, Keys{"2024-01-01"}, req.Keys)

	require.NoError(t, json.Unmarshal([]byte(`{"query":[1704067200,"2024-01-02"],"range":"min:max","indexes":["start","end"],"candidates":[3,4]}`), &req))
	assert.Equal(t, Keys{json.Number("1704067200"), "2024-01-02"}, req.Keys)
	assert.Equal(t, []string{"start", "end"}, req.Indexes)
	assert.Equal(t, []uint32{3, 4}, req.Candidates)
}

func TestFingerprint(t *testing.T) {
	norm := temporal.NewNormalizer(time.UTC)
	a, _ := Parse("start", Request{Keys: Keys{temporal.Key(30), temporal.Key(15), temporal.Key(15)}}, norm)
	b, _ := Parse("start", Request{Keys: Keys{temporal.Key(15), temporal.Key(30)}}, norm)
	c, _ := Parse("end", Request{Keys: Keys{temporal.Key(15), temporal.Key(30)}}, norm)
	d, _ := Parse("start", Request{Keys: Keys{temporal.Key(15), temporal.Key(30)}, Operator: "or"}, norm)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, b.Fingerprint(), c.Fingerprint())
	assert.NotEqual(t, b.Fingerprint(), d.Fingerprint())
}
