// Package api provides a client for the portal REST API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"sort"
	"strings"

	"github.com/taxdesk/taxdesk/internal/models"
)

// ErrEmptyBaseURL is returned by NewClient when no API URL is configured.
var ErrEmptyBaseURL = errors.New("API base URL is empty - set api_url in the config file or TAXDESK_API_URL")

// ErrMissingToken is returned by NewClient when no bearer token is configured.
var ErrMissingToken = errors.New("API token is empty - run 'taxdesk config init' or set TAXDESK_TOKEN")

// APIError is a non-2xx response (or a success=false body) from the portal.
// Message is the server-provided text, shown to the user verbatim.
type APIError struct {
	StatusCode int
	Message    string
	Op         string // "list folders", "create folder", "upload document"
}

func (e *APIError) Error() string {
	return e.Message
}

// HTTPStatus lets the retry classifier use the status instead of the message.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// newAPIError builds an APIError from a response body.
// The message is taken from message, error or detail; otherwise the raw body;
// otherwise the status text.
func newAPIError(op string, status int, body []byte) *APIError {
	return &APIError{
		StatusCode: status,
		Message:    errorMessage(status, body),
		Op:         op,
	}
}

func errorMessage(status int, body []byte) string {
	var eb models.ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if text := strings.TrimSpace(eb.Text()); text != "" {
			return text
		}
	}

	// DRF-style field errors: {"title": ["This field is required."]}
	var fields map[string][]string
	if err := json.Unmarshal(body, &fields); err == nil && len(fields) > 0 {
		parts := make([]string, 0, len(fields))
		for field, msgs := range fields {
			parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(msgs, " ")))
		}
		if len(parts) == 1 {
			return parts[0]
		}
		sort.Strings(parts)
		return strings.Join(parts, "; ")
	}

	if raw := strings.TrimSpace(string(body)); raw != "" {
		return raw
	}
	if text := nethttp.StatusText(status); text != "" {
		return fmt.Sprintf("%d %s", status, text)
	}
	return fmt.Sprintf("request failed with status %d", status)
}

// IsConflict reports whether err indicates a duplicate (409, or a
// server message saying the name is taken).
func IsConflict(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == nethttp.StatusConflict {
		return true
	}

	errStr := strings.ToLower(err.Error())
	conflictIndicators := []string{
		"already exists",
		"duplicate",
		"name already in use",
	}
	for _, indicator := range conflictIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is a 404 from the portal.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == nethttp.StatusNotFound
}

// IsUnauthorized reports whether err is a 401/403 from the portal.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == nethttp.StatusUnauthorized || apiErr.StatusCode == nethttp.StatusForbidden)
}
