package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

var (
	// ErrNetwork covers unreachable hosts and timeouts.
	ErrNetwork      = errors.New("backend unreachable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	// ErrRejected is any other non-2xx answer or a body with success=false.
	ErrRejected = errors.New("request rejected")
)

// Error describes a failed call. errors.Is matches its Kind.
type Error struct {
	Op      string
	Status  int
	Message string
	Kind    error
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil && e.Message == "" {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// fromResponse classifies the error googleapi.CheckResponse produced for a
// non-2xx answer.
func fromResponse(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return &Error{Op: op, Kind: ErrRejected, Err: err}
	}
	e := &Error{Op: op, Status: gerr.Code, Message: detailMessage(gerr.Body), Err: err}
	switch {
	case gerr.Code == http.StatusUnauthorized:
		e.Kind = ErrUnauthorized
	case gerr.Code == http.StatusNotFound:
		e.Kind = ErrNotFound
	case gerr.Code >= 500 && gerr.Code != http.StatusNotImplemented:
		// A proxy or tunnel in front of a stopped backend answers 502/503/504.
		e.Kind = ErrNetwork
	default:
		e.Kind = ErrRejected
	}
	return e
}

// detailMessage extracts {"detail": "..."}, {"detail": {"message": "..."}}
// or {"message": "..."} from an error body.
func detailMessage(body string) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if json.Unmarshal([]byte(body), &payload) != nil {
		return ""
	}
	if len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Detail, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return payload.Message
}
