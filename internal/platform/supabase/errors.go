package supabase

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates the requested row or user does not exist.
	ErrNotFound = errors.New("supabase: not found")
	// ErrDuplicate indicates a unique constraint violation reported by the store.
	ErrDuplicate = errors.New("supabase: duplicate entry")
	// ErrMalformedResponse indicates a 2xx response whose body did not have the expected shape.
	ErrMalformedResponse = errors.New("supabase: malformed response")
)

// uniqueViolation is the Postgres SQLSTATE PostgREST forwards for unique constraint failures.
const uniqueViolation = "23505"

// APIError captures a non-success response. Body keeps the raw text for diagnostics.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
	Body    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Is lets callers match on ErrDuplicate and ErrNotFound with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrDuplicate:
		return e.Code == uniqueViolation
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// errorBody covers both PostgREST ({code,message,details,hint}) and GoTrue
// ({code,error_code,msg}) error payloads.
type errorBody struct {
	Code      json.RawMessage `json:"code"`
	ErrorCode string          `json:"error_code"`
	Message   string          `json:"message"`
	Msg       string          `json:"msg"`
	Details   string          `json:"details"`
	Hint      string          `json:"hint"`
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	apiErr := &APIError{Method: method, Path: path, Status: status, Body: string(body)}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return apiErr
	}
	// GoTrue reports code as the HTTP status number; PostgREST as a SQLSTATE string.
	var code string
	if err := json.Unmarshal(parsed.Code, &code); err == nil {
		apiErr.Code = code
	}
	if apiErr.Code == "" {
		apiErr.Code = parsed.ErrorCode
	}
	apiErr.Message = parsed.Message
	if apiErr.Message == "" {
		apiErr.Message = parsed.Msg
	}
	apiErr.Details = parsed.Details
	apiErr.Hint = parsed.Hint
	return apiErr
}
