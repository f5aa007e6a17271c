package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SundayYogurt/clearance_service/internal/domain"
)

// Error kinds. Match with errors.Is; details are on *Error.
var (
	ErrConfiguration      = errors.New("configuration error")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrUpload             = errors.New("document upload failed")
	ErrPaymentNotRecorded = errors.New("payment received but not recorded")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrPersistence        = errors.New("persistence failed")
)

type Error struct {
	Op        string
	Kind      error
	Message   string
	Reference string
	Fields    []string
	Slot      domain.DocumentSlot
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	if e.Message != "" {
		b.WriteString(e.Message)
	} else if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Reference != "" {
		fmt.Fprintf(&b, " (reference %s)", e.Reference)
	}
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts the workflow error from err, if any.
func AsError(err error) (*Error, bool) {
	var we *Error
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}

func configurationError(op, msg string) error {
	return &Error{Op: op, Kind: ErrConfiguration, Message: msg}
}

func validationError(op, msg string, fields ...string) error {
	return &Error{Op: op, Kind: ErrValidation, Message: msg, Fields: fields}
}

func transitionError(op string, from Stage) error {
	return &Error{Op: op, Kind: ErrInvalidTransition, Message: fmt.Sprintf("not allowed in stage %q", from)}
}
