package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies every ledger failure. Callers branch on the kind,
// never on the message.
type ErrorKind string

const (
	ErrNotFound          ErrorKind = "NotFound"
	ErrNotActive         ErrorKind = "NotActive"
	ErrUnknownTemplate   ErrorKind = "UnknownTemplate"
	ErrUnknownChoice     ErrorKind = "UnknownChoice"
	ErrUnauthorized      ErrorKind = "Unauthorized"
	ErrInvalidArgument   ErrorKind = "InvalidArgument"
	ErrConflict          ErrorKind = "Conflict"
	ErrDuplicateTemplate ErrorKind = "DuplicateTemplate"
)

// Reason refines InvalidArgument with the domain rule that rejected the input.
type Reason string

const (
	ReasonSchemaViolation       Reason = "SchemaViolation"
	ReasonNonPositiveAmount     Reason = "NonPositiveAmount"
	ReasonInsufficientFunds     Reason = "InsufficientFunds"
	ReasonTooEarly              Reason = "TooEarly"
	ReasonAlreadyPaidThisPeriod Reason = "AlreadyPaidThisPeriod"
	ReasonPastDue               Reason = "PastDue"
	ReasonMismatch              Reason = "Mismatch"
	ReasonOutsideTerm           Reason = "OutsideTerm"
	ReasonPrecondition          Reason = "Precondition"
)

// Error is the typed ledger error. Messages name contracts, templates and
// fields but never payload values, so they are safe to return to any party.
type Error struct {
	Kind       ErrorKind
	Reason     Reason
	Message    string
	ContractID ContractID
	Template   string
	Choice     string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Reason != "" {
		b.WriteString("/")
		b.WriteString(string(e.Reason))
	}
	b.WriteString(": ")
	b.WriteString(e.Message)

	var ctx []string
	if e.ContractID != 0 {
		ctx = append(ctx, "contract="+e.ContractID.String())
	}
	if e.Template != "" {
		ctx = append(ctx, "template="+e.Template)
	}
	if e.Choice != "" {
		ctx = append(ctx, "choice="+e.Choice)
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}
	return b.String()
}

// Retryable reports whether resubmitting the same command may succeed.
// Only conflicts are retryable; everything else is deterministic.
func (e *Error) Retryable() bool {
	return e.Kind == ErrConflict
}

// Errorf creates an Error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Invalid creates an InvalidArgument error with a reason.
func Invalid(reason Reason, format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidArgument, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// OnContract returns a copy of e annotated with a contract id.
func (e *Error) OnContract(id ContractID) *Error {
	out := *e
	out.ContractID = id
	return &out
}

// OnChoice returns a copy of e annotated with template and choice names.
func (e *Error) OnChoice(template, choice string) *Error {
	out := *e
	out.Template = template
	out.Choice = choice
	return &out
}

// AsError unwraps err to a ledger *Error.
func AsError(err error) (*Error, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// KindOf returns the kind of a ledger error, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	if le, ok := AsError(err); ok {
		return le.Kind
	}
	return ""
}

// ReasonOf returns the InvalidArgument reason, or "".
func ReasonOf(err error) Reason {
	if le, ok := AsError(err); ok {
		return le.Reason
	}
	return ""
}

// IsKind reports whether err is a ledger error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// IsConflict reports whether err lost a race with a concurrent transition.
func IsConflict(err error) bool {
	return IsKind(err, ErrConflict)
}
