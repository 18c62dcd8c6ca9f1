package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrConfiguration     = errors.New("configuration error")
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrLoad              = errors.New("load error")
	ErrSynthesis         = errors.New("synthesis error")
	ErrRecognition       = errors.New("recognition error")
	ErrWorkerLifecycle   = errors.New("worker lifecycle error")
	ErrTransient         = errors.New("transient failure")
	ErrCancelled         = errors.New("cancelled")
)

// Kind is the coarse error class used for failure reasons and metric labels.
type Kind string

const (
	KindNone              Kind = ""
	KindValidation        Kind = "validation"
	KindConfiguration     Kind = "configuration"
	KindEngineUnavailable Kind = "engine_unavailable"
	KindLoad              Kind = "load"
	KindSynthesis         Kind = "synthesis"
	KindRecognition       Kind = "recognition"
	KindWorkerLifecycle   Kind = "worker_lifecycle"
	KindCancelled         Kind = "cancelled"
	KindUnknown           Kind = "unknown"
)

// Error is the typed form of a tagged failure. It matches its marker and its
// cause with errors.Is and can be extracted with errors.As.
type Error struct {
	Marker    error
	Component string
	Operation string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Component, e.Operation, e.Message)
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Marker, detail, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Marker, detail)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Err}
}

// Kind returns the taxonomy class of the marker.
func (e *Error) Kind() Kind { return Classify(e.Marker) }

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &Error{
		Marker:    marker,
		Component: strings.TrimSpace(component),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Err:       err,
	}
}

// Message returns the human part of the outermost tagged error followed by
// its cause, or the full error text when err carries no tag.
func Message(err error) string {
	var tagged *Error
	if !errors.As(err, &tagged) || tagged.Message == "" {
		return Reason(err)
	}
	if tagged.Err != nil {
		return tagged.Message + ": " + Reason(tagged.Err)
	}
	return tagged.Message
}

// Classify maps an error onto the taxonomy. Context cancellation is reported
// as KindCancelled so callers can tell a user abort from an engine failure.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrEngineUnavailable):
		return KindEngineUnavailable
	case errors.Is(err, ErrLoad):
		return KindLoad
	case errors.Is(err, ErrSynthesis):
		return KindSynthesis
	case errors.Is(err, ErrRecognition):
		return KindRecognition
	case errors.Is(err, ErrWorkerLifecycle):
		return KindWorkerLifecycle
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	default:
		return KindUnknown
	}
}

// Reason renders an error as a single-line failure reason for logs and
// summaries.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	msg = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(msg)
	if msg == "" {
		return string(Classify(err))
	}
	return msg
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
