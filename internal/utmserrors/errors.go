// Package utmserrors defines the sentinel error taxonomy shared by every
// UTMS component. Call sites wrap these with fmt.Errorf and
// "%w" so callers can still match with errors.Is.
package utmserrors

import "errors"

var (
	// ErrParse indicates malformed source: bad S-expression syntax, an
	// unknown time-expression operator, or an unparseable unit.
	ErrParse = errors.New("parse error")

	// ErrSchema indicates a duplicate type key, a missing required
	// attribute, or a reference to an unknown complex type or entity type.
	ErrSchema = errors.New("schema error")

	// ErrValidation indicates a value failed type coercion or enum
	// membership checks.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates an entity, pattern, or type was not present.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates an illegal state transition: starting an
	// already-active occurrence, or ending an idle one.
	ErrConflict = errors.New("conflict")

	// ErrNoOccurrence indicates a recurrence pattern produced no instant
	// within its search horizon.
	ErrNoOccurrence = errors.New("no occurrence within horizon")

	// ErrEvaluator is returned by or wraps errors from expression evaluation.
	ErrEvaluator = errors.New("evaluator error")

	// ErrIO indicates a persistence failure (category file write, cache
	// write, cursor write).
	ErrIO = errors.New("io error")
)
