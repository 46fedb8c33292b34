package service

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/maheshrc27/postflow/internal/models"
)

// PublishError is the only failure shape adapters hand back to the executor.
type PublishError struct {
	Kind     models.FailureKind
	Platform models.Platform
	Message  string
	Err      error
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Platform, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Message)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func newPublishError(kind models.FailureKind, platform models.Platform, err error, format string, args ...any) *PublishError {
	return &PublishError{Kind: kind, Platform: platform, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(platform models.Platform, format string, args ...any) *PublishError {
	return newPublishError(models.FailureValidation, platform, nil, format, args...)
}

func Credential(platform models.Platform, err error, format string, args ...any) *PublishError {
	return newPublishError(models.FailureCredential, platform, err, format, args...)
}

func Transient(platform models.Platform, err error, format string, args ...any) *PublishError {
	return newPublishError(models.FailureTransient, platform, err, format, args...)
}

func Permanent(platform models.Platform, err error, format string, args ...any) *PublishError {
	return newPublishError(models.FailurePermanent, platform, err, format, args...)
}

// KindOf returns the failure kind carried by err. Errors that escaped classification,
// including an interrupted context, are treated as transient.
func KindOf(err error) models.FailureKind {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return models.FailureTransient
}

// MessageOf is the text stored on the unit for a failed attempt.
func MessageOf(err error) string {
	var pe *PublishError
	if errors.As(err, &pe) {
		if pe.Err != nil {
			return fmt.Sprintf("%s: %v", pe.Message, pe.Err)
		}
		return pe.Message
	}
	return err.Error()
}

func classifyStatus(code int) models.FailureKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return models.FailureCredential
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500:
		return models.FailureTransient
	default:
		return models.FailurePermanent
	}
}

// statusError builds the classified error for a non-2xx platform response.
func statusError(platform models.Platform, step string, code int, detail string) *PublishError {
	if detail == "" {
		detail = http.StatusText(code)
	}
	return newPublishError(classifyStatus(code), platform, nil, "%s failed with status %d: %s", step, code, detail)
}
