package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure so callers can branch on it without
// parsing messages.
type Kind string

const (
	KindMissingPrerequisite   Kind = "MissingPrerequisite"
	KindExternalCallTransient Kind = "ExternalCallTransient"
	KindExternalCallExhausted Kind = "ExternalCallExhausted"
	KindExternalCallBlocked   Kind = "ExternalCallBlocked"
	KindExternalCallRejected  Kind = "ExternalCallRejected"
	KindResponseSchemaInvalid Kind = "ResponseSchemaInvalid"
	KindResourceNotFound      Kind = "ResourceNotFound"
	KindResourceInvalid       Kind = "ResourceInvalid"
	KindCanceled              Kind = "Canceled"
)

// Retryable reports whether another attempt of the same call may succeed.
func (k Kind) Retryable() bool {
	return k == KindExternalCallTransient
}

// Failure is the error value stages return and the executor records on the
// state. It carries a machine-checkable Kind plus a short human message.
type Failure struct {
	Kind    Kind
	Stage   string
	Message string
	Err     error
}

// Fail builds a Failure. stage may be empty when the failure originates below
// the stage layer (clients, retry wrapper); Attribute fills it in later.
func Fail(kind Kind, stage, message string, err error) *Failure {
	return &Failure{
		Kind:    kind,
		Stage:   strings.TrimSpace(stage),
		Message: strings.TrimSpace(message),
		Err:     err,
	}
}

func (f *Failure) Error() string {
	if f == nil {
		return "<nil>"
	}
	parts := make([]string, 0, 3)
	if f.Stage != "" {
		parts = append(parts, f.Stage)
	}
	if f.Message != "" {
		parts = append(parts, f.Message)
	} else {
		parts = append(parts, string(f.Kind))
	}
	if f.Err != nil {
		parts = append(parts, f.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (f *Failure) Unwrap() error { return f.Err }

// ErrorKind satisfies the classifier interface used by the task store.
func (f *Failure) ErrorKind() string { return string(f.Kind) }

// Detail is the serialisable view of a failure.
type Detail struct {
	Kind    Kind   `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

// Detail renders the failure for JSON responses and persistence.
func (f *Failure) Detail() Detail {
	if f == nil {
		return Detail{}
	}
	message := f.Message
	if f.Err != nil {
		if message == "" {
			message = f.Err.Error()
		} else {
			message = message + ": " + f.Err.Error()
		}
	}
	return Detail{Kind: f.Kind, Stage: f.Stage, Message: message}
}

func (f *Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Detail())
}

// AsFailure returns the outermost Failure in err's chain.
func AsFailure(err error) (*Failure, bool) {
	var failure *Failure
	if errors.As(err, &failure) && failure != nil {
		return failure, true
	}
	return nil, false
}

// KindOf returns the kind of the outermost Failure in err's chain, or an empty
// Kind when err is unclassified.
func KindOf(err error) Kind {
	if failure, ok := AsFailure(err); ok {
		return failure.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Attribute converts any error into a Failure owned by stage. Unclassified
// errors take the fallback kind; context cancellation always maps to
// KindCanceled.
func Attribute(err error, stage string, fallback Kind) *Failure {
	if err == nil {
		return nil
	}
	if failure, ok := AsFailure(err); ok {
		if failure.Stage != "" || stage == "" {
			return failure
		}
		clone := *failure
		clone.Stage = strings.TrimSpace(stage)
		return &clone
	}
	if errors.Is(err, context.Canceled) {
		return Fail(KindCanceled, stage, "canceled", err)
	}
	if fallback == "" {
		fallback = KindExternalCallTransient
	}
	return Fail(fallback, stage, "", err)
}

// Details returns the serialisable view of any error.
func Details(err error) Detail {
	if err == nil {
		return Detail{}
	}
	if failure, ok := AsFailure(err); ok {
		return failure.Detail()
	}
	return Detail{Message: strings.TrimSpace(err.Error())}
}

// Missing builds the MissingPrerequisite failure a stage returns when an input
// it depends on is absent.
func Missing(stage string, fields ...string) *Failure {
	return Fail(KindMissingPrerequisite, stage, fmt.Sprintf("missing prerequisite: %s", strings.Join(fields, ", ")), nil)
}
