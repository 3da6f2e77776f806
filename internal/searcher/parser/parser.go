// Package parser turns query requests into plans of encoded keys, a set
// operator and an optional range directive.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/temporal"
	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
)

// Operator combines the document sets of point keys.
type Operator string

const (
	OperatorAnd Operator = "and"
	OperatorOr  Operator = "or"
)

// Mode selects point-list or range evaluation.
type Mode int

const (
	ModePoint Mode = iota
	ModeRange
)

func (m Mode) String() string {
	if m == ModeRange {
		return "range"
	}
	return "point"
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Request is a query against one or more indexes. Keys accepts a single
// value or a list in JSON. Range is any string containing "min" and/or
// "max". Usage, such as "range:min:max", overrides Range.
type Request struct {
	Keys       Keys     `json:"query"`
	Operator   string   `json:"operator,omitempty"`
	Range      string   `json:"range,omitempty"`
	Usage      string   `json:"usage,omitempty"`
	Indexes    []string `json:"indexes,omitempty"`
	Candidates []uint32 `json:"candidates,omitempty"`
}

// Keys holds raw query values. JSON numbers decode as json.Number.
type Keys []any

func (k *Keys) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*k = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	if list, ok := v.([]any); ok {
		*k = list
		return nil
	}
	*k = Keys{v}
	return nil
}

// QueryPlan is a request resolved against the zone of one index.
type QueryPlan struct {
	Index    string         `json:"index"`
	Keys     []temporal.Key `json:"keys"`
	Operator Operator       `json:"operator"`
	Mode     Mode           `json:"mode"`
	Min      bool           `json:"min,omitempty"`
	Max      bool           `json:"max,omitempty"`
}

// Parse validates the operator and normalizes every key with norm. An
// invalid operator or key is a hard error.
func Parse(index string, req Request, norm *temporal.Normalizer) (*QueryPlan, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(req.Operator)))
	if op == "" {
		op = OperatorAnd
	}
	if op != OperatorAnd && op != OperatorOr {
		return nil, apperrors.Newf(apperrors.ErrInvalidQueryOperator, http.StatusBadRequest, "operator not valid: %s", req.Operator)
	}

	plan := &QueryPlan{
		Index:    index,
		Keys:     make([]temporal.Key, 0, len(req.Keys)),
		Operator: op,
	}
	if req.Range != "" {
		plan.Mode = ModeRange
		plan.Min = strings.Contains(req.Range, "min")
		plan.Max = strings.Contains(req.Range, "max")
	}
	if req.Usage != "" {
		parts := strings.Split(strings.ToLower(req.Usage), ":")
		plan.Mode, plan.Min, plan.Max = ModePoint, false, false
		if parts[0] == "range" {
			plan.Mode = ModeRange
			plan.Min = slices.Contains(parts[1:], "min")
			plan.Max = slices.Contains(parts[1:], "max")
		}
	}

	for i, raw := range req.Keys {
		key, err := norm.Key(raw)
		if err != nil {
			return nil, apperrors.New(fmt.Errorf("query key %d: %w", i, err), http.StatusBadRequest, err.Error())
		}
		plan.Keys = append(plan.Keys, key)
	}
	return plan, nil
}

// Fingerprint identifies the plan for caching. Point keys are sorted since
// both operators are commutative.
func (p *QueryPlan) Fingerprint() string {
	keys := slices.Clone(p.Keys)
	if p.Mode == ModePoint {
		slices.Sort(keys)
		keys = slices.Compact(keys)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|min=%t|max=%t|", p.Index, p.Mode, p.Operator, p.Min, p.Max)
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", uint32(k))
	}
	return b.String()
}
