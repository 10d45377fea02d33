package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hyperjump/quire/internal/domain"
)

// APIError is a non-2xx answer from the document service.
type APIError struct {
	Verb       string
	Status     int
	StatusText string
	// Message is the server's {"error": ...} text, or the generic
	// "<verb> failed: <status> <statusText>" when the body was not JSON.
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Is lets callers match API errors against the domain sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrNotFound:
		return e.Status == http.StatusNotFound
	case domain.ErrValidation:
		return e.Status == http.StatusBadRequest
	case domain.ErrConflict:
		return e.Status == http.StatusConflict
	case domain.ErrTooLarge:
		return e.Status == http.StatusRequestEntityTooLarge
	}
	return false
}

type errorBody struct {
	Error string `json:"error"`
}

// newAPIError builds the error for a failed response with the given body.
func newAPIError(verb string, resp *http.Response, body []byte) *APIError {
	e := &APIError{
		Verb:       verb,
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && strings.TrimSpace(eb.Error) != "" {
		e.Message = eb.Error
		return e
	}
	e.Message = fmt.Sprintf("%s failed: %d %s", verb, e.Status, e.StatusText)
	return e
}

// statusText prefers the reason phrase the server sent.
func statusText(resp *http.Response) string {
	if text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); text != "" && text != resp.Status {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
