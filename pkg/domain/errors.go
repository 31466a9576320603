package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures reported to callers of the composition engine.
type ErrorKind string

// Error kinds surfaced to the presentation layer.
const (
	KindBootstrap                       ErrorKind = "bootstrap"
	KindDuplicateStandardProfile        ErrorKind = "duplicate_standard_profile"
	KindDuplicateGroupAssignment        ErrorKind = "duplicate_group_assignment"
	KindInvalidReferenceComponent       ErrorKind = "invalid_reference_component"
	KindCannotRemoveBaseGroup           ErrorKind = "cannot_remove_base_group"
	KindCannotRemoveDefaultDistribution ErrorKind = "cannot_remove_default_distribution"
	KindCannotRemoveStandardProfile     ErrorKind = "cannot_remove_standard_profile"
	KindOutOfRange                      ErrorKind = "out_of_range"
	KindUnbalancedComposition           ErrorKind = "unbalanced_composition"
	KindConflict                        ErrorKind = "conflict"
	KindNotFound                        ErrorKind = "not_found"
	KindAlreadyExists                   ErrorKind = "already_exists"
	KindStorage                         ErrorKind = "storage"
)

// Error is the structured error value returned by the engine. Kind is always
// set; Entity, ID and Field identify the offending record or input. Cause is
// reachable through errors.Unwrap but never rendered by Error.
type Error struct {
	Kind   ErrorKind
	Entity EntityType
	ID     string
	Field  string
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Entity != "" || e.ID != "" {
		b.WriteString(": ")
		b.WriteString(string(e.Entity))
		if e.ID != "" {
			fmt.Fprintf(&b, " %q", e.ID)
		}
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (field %s)", e.Field)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches sentinel errors of the same kind. A target carrying an ID or
// field only matches errors about that same record or input.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.ID != "" && t.ID != e.ID {
		return false
	}
	if t.Field != "" && t.Field != e.Field {
		return false
	}
	return true
}

// Sentinels for errors.Is checks.
var (
	ErrBootstrap                       = &Error{Kind: KindBootstrap}
	ErrDuplicateStandardProfile        = &Error{Kind: KindDuplicateStandardProfile}
	ErrDuplicateGroupAssignment        = &Error{Kind: KindDuplicateGroupAssignment}
	ErrInvalidReferenceComponent       = &Error{Kind: KindInvalidReferenceComponent}
	ErrCannotRemoveBaseGroup           = &Error{Kind: KindCannotRemoveBaseGroup}
	ErrCannotRemoveDefaultDistribution = &Error{Kind: KindCannotRemoveDefaultDistribution}
	ErrCannotRemoveStandardProfile     = &Error{Kind: KindCannotRemoveStandardProfile}
	ErrOutOfRange                      = &Error{Kind: KindOutOfRange}
	ErrUnbalancedComposition           = &Error{Kind: KindUnbalancedComposition}
	ErrConflict                        = &Error{Kind: KindConflict}
	ErrNotFound                        = &Error{Kind: KindNotFound}
	ErrAlreadyExists                   = &Error{Kind: KindAlreadyExists}
	ErrStorage                         = &Error{Kind: KindStorage}
)

// NotFound reports a missing record.
func NotFound(entity EntityType, id string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id}
}

// AlreadyExists reports a uniqueness violation not covered by a dedicated kind.
func AlreadyExists(entity EntityType, id, detail string) *Error {
	return &Error{Kind: KindAlreadyExists, Entity: entity, ID: id, Detail: detail}
}

// OutOfRange reports a value outside its permitted interval.
func OutOfRange(field string, value, lo, hi float64) *Error {
	return &Error{
		Kind:   KindOutOfRange,
		Field:  field,
		Detail: fmt.Sprintf("%g not within [%g, %g]", value, lo, hi),
	}
}

// Unbalanced reports a snapshot whose averages do not sum to one.
func Unbalanced(snapshotID string, sum float64) *Error {
	return &Error{
		Kind:   KindUnbalancedComposition,
		Entity: EntitySnapshot,
		ID:     snapshotID,
		Field:  "average",
		Detail: fmt.Sprintf("shares sum to %.10g, want 1", sum),
	}
}

// Conflict reports a concurrent modification detected at commit time.
func Conflict(entity EntityType, id string, detail string) *Error {
	return &Error{Kind: KindConflict, Entity: entity, ID: id, Detail: detail}
}

// StorageFailure reports a backend write that could not be applied. The
// backend error is kept as Cause for logging and stays out of the message.
func StorageFailure(entity EntityType, id string, cause error) *Error {
	return &Error{Kind: KindStorage, Entity: entity, ID: id, Detail: "write not persisted", Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsRetryable reports whether re-reading and reapplying the operation may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
