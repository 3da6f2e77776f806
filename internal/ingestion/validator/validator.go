// Package validator checks index events before they are published or
// applied.
package validator

import (
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	maxValueLength      = 256
	maxRecurrenceLength = 65536
)

// ValidateIndexEvent returns validation.Errors keyed by JSON field name.
func ValidateIndexEvent(e *ingestion.IndexEvent) error {
	indexing := e.Action == ingestion.ActionIndex
	return validation.ValidateStruct(e,
		validation.Field(&e.Action, validation.Required, validation.In(ingestion.ActionIndex, ingestion.ActionUnindex)),
		validation.Field(&e.Index, validation.Length(0, maxValueLength)),
		validation.Field(&e.Start, validation.When(indexing, validation.Required), validation.Length(0, maxValueLength)),
		validation.Field(&e.Until, validation.Length(0, maxValueLength)),
		validation.Field(&e.Recurrence, validation.Length(0, maxRecurrenceLength)),
	)
}
