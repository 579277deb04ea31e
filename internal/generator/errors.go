package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why generation gave up.
type Kind string

const (
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindOverloaded        Kind = "overloaded"
	KindEmptyResponse     Kind = "empty_response"
	KindMalformedResponse Kind = "malformed_response"
	KindService           Kind = "service"
)

var (
	// ErrEmptyResponse is returned when the service answers with no text.
	ErrEmptyResponse = errors.New("generation service returned an empty response")

	// ErrMalformedResponse is returned when the answer holds no script.
	ErrMalformedResponse = errors.New("generation service response contained no script")
)

// ServiceError is a structured failure reported by the generation service.
type ServiceError struct {
	Code    int
	Status  string
	Message string
}

func (e *ServiceError) Error() string {
	switch {
	case e.Status != "" && e.Code != 0:
		return fmt.Sprintf("%d %s: %s", e.Code, e.Status, e.Message)
	case e.Code != 0:
		return fmt.Sprintf("%d: %s", e.Code, e.Message)
	case e.Status != "":
		return fmt.Sprintf("%s: %s", e.Status, e.Message)
	}
	return e.Message
}

// GenerationError is returned by Generate when no attempt produced a script.
type GenerationError struct {
	Kind     Kind
	Attempts int
	Message  string
	Err      error
}

func (e *GenerationError) Error() string {
	return e.Message
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func newGenerationError(err error, attempts int) *GenerationError {
	kind := kindOf(err)
	return &GenerationError{
		Kind:     kind,
		Attempts: attempts,
		Message:  userMessage(kind, err),
		Err:      err,
	}
}

func kindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrEmptyResponse):
		return KindEmptyResponse
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformedResponse
	case isQuota(err):
		return KindQuotaExceeded
	case isOverload(err):
		return KindOverloaded
	}
	return KindService
}

func userMessage(kind Kind, err error) string {
	switch kind {
	case KindQuotaExceeded:
		return "The generation service quota is exhausted (429). Wait a few minutes and retry, or try again tomorrow."
	case KindOverloaded:
		return "The generation service is overloaded (503). Please retry in a few minutes."
	case KindEmptyResponse:
		return "The generation service returned an empty response. Please retry."
	case KindMalformedResponse:
		return "The generation service did not return a Python script. Try rephrasing the instruction in cell A1."
	}
	return "Script generation failed: " + CleanMessage(errorText(err))
}

func errorText(err error) string {
	var svc *ServiceError
	if errors.As(err, &svc) && svc.Message != "" {
		return svc.Message
	}
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// apiErrorPayload is the JSON error envelope the service embeds in messages.
type apiErrorPayload struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// CleanMessage unwraps a JSON error payload embedded in msg, returning its
// inner message. msg is returned trimmed when no payload parses.
func CleanMessage(msg string) string {
	start := strings.Index(msg, "{")
	end := strings.LastIndex(msg, "}")
	if start >= 0 && end > start {
		var payload apiErrorPayload
		if err := json.Unmarshal([]byte(msg[start:end+1]), &payload); err == nil {
			if inner := strings.TrimSpace(payload.Error.Message); inner != "" {
				return CleanMessage(inner)
			}
		}
	}
	return strings.TrimSpace(msg)
}
