// Package accessor defines how the index reads start, recurrence and until
// values from a document, with implementations for attribute maps and
// iCalendar events.
package accessor

// DocumentAccessor yields the three values the index needs. The boolean is
// false when the document has no such value.
type DocumentAccessor interface {
	Start() (any, bool)
	Recurrence() (any, bool)
	Until() (any, bool)
}

// Values is a DocumentAccessor over fixed values. Nil fields are absent.
type Values struct {
	StartValue      any
	RecurrenceValue any
	UntilValue      any
}

func (v Values) Start() (any, bool)      { return present(v.StartValue) }
func (v Values) Recurrence() (any, bool) { return present(v.RecurrenceValue) }
func (v Values) Until() (any, bool)      { return present(v.UntilValue) }

// Names are the attribute names configured for an index.
type Names struct {
	Start      string
	Recurrence string
	Until      string
}

// Attributes reads values from a generic attribute map. Values of type
// func() any are called on access.
type Attributes struct {
	attrs map[string]any
	names Names
}

// FromMap returns an accessor reading names from attrs.
func FromMap(attrs map[string]any, names Names) Attributes {
	return Attributes{attrs: attrs, names: names}
}

func (a Attributes) Start() (any, bool)      { return a.lookup(a.names.Start) }
func (a Attributes) Recurrence() (any, bool) { return a.lookup(a.names.Recurrence) }
func (a Attributes) Until() (any, bool)      { return a.lookup(a.names.Until) }

func (a Attributes) lookup(name string) (any, bool) {
	if name == "" {
		return nil, false
	}
	v, ok := a.attrs[name]
	if !ok {
		return nil, false
	}
	if fn, isFn := v.(func() any); isFn {
		v = fn()
	}
	return present(v)
}

func present(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.(string); ok && s == "" {
		return nil, false
	}
	return v, true
}
