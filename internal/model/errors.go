package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures returned by the pipeline. Callers branch on
// the kind, never on message text.
type ErrorKind string

const (
	KindValidation             ErrorKind = "validation"
	KindInvalidClassification  ErrorKind = "invalid_classification"
	KindAuthorization          ErrorKind = "authorization"
	KindNotCurrentStage        ErrorKind = "not_current_stage"
	KindConcurrentModification ErrorKind = "concurrent_modification"
	KindInvalidTransition      ErrorKind = "invalid_transition"
	KindNotFound               ErrorKind = "not_found"
	KindStageFailure           ErrorKind = "stage_failure"
	KindInfrastructure         ErrorKind = "infrastructure"
)

// Error is the typed error carried across the pipeline API.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrInvalidClassification  = &Error{Kind: KindInvalidClassification}
	ErrAuthorization          = &Error{Kind: KindAuthorization}
	ErrNotCurrentStage        = &Error{Kind: KindNotCurrentStage}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification}
	ErrInvalidTransition      = &Error{Kind: KindInvalidTransition}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrStageFailure           = &Error{Kind: KindStageFailure}
	ErrInfrastructure         = &Error{Kind: KindInfrastructure}
)

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// ErrorKind exposes the classification for callers holding a plain error.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// KindOf returns the kind of err, or "" when err is not a pipeline error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func newf(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error { return newf(KindValidation, format, args...) }

func InvalidClassificationf(format string, args ...any) error {
	return newf(KindInvalidClassification, format, args...)
}

func Authorizationf(format string, args ...any) error { return newf(KindAuthorization, format, args...) }

func NotCurrentStagef(format string, args ...any) error {
	return newf(KindNotCurrentStage, format, args...)
}

func ConcurrentModificationf(format string, args ...any) error {
	return newf(KindConcurrentModification, format, args...)
}

func InvalidTransitionf(format string, args ...any) error {
	return newf(KindInvalidTransition, format, args...)
}

func NotFoundf(format string, args ...any) error { return newf(KindNotFound, format, args...) }

func StageFailuref(format string, args ...any) error { return newf(KindStageFailure, format, args...) }

// Infrastructure wraps an adapter failure (scanner, mover, queue) so the
// retry policy can recognise it.
func Infrastructure(msg string, err error) error {
	return &Error{Kind: KindInfrastructure, Msg: msg, Err: err}
}
