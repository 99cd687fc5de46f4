package models

import "errors"

// Domain error taxonomy. Callers match with errors.Is; wrapping adds the
// requirement id / year / month needed to locate the offending record.
var (
	// ErrInvalidPeriodicity signals an out-of-enum periodicity value. This is
	// a configuration error and must never degrade to "nothing planned".
	ErrInvalidPeriodicity = errors.New("invalid periodicity")

	// ErrMalformedPlan signals a stored plan year with a month count other
	// than twelve.
	ErrMalformedPlan = errors.New("malformed plan")

	// ErrNotFound signals a missing requirement or evidence reference.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTarget signals an evidence action without a valid
	// requirement/month context.
	ErrInvalidTarget = errors.New("invalid evidence target")

	// ErrTransport wraps persistence or storage collaborator failures before
	// they reach the presentation layer.
	ErrTransport = errors.New("transport error")
)
