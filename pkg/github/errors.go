package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBodySize caps how much of an error response is read.
const maxErrorBodySize = 64 * 1024

// APIError represents a non-2xx response from the GitHub API.
type APIError struct {
	Message          string            `json:"message"`
	DocumentationURL string            `json:"documentation_url,omitempty"`
	Errors           []ValidationError `json:"errors,omitempty"`
	StatusCode       int               `json:"-"`
}

// ValidationError describes a field-level failure returned with 422 responses.
type ValidationError struct {
	Resource string `json:"resource"`
	Code     string `json:"code"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "github: HTTP %d: %s", e.StatusCode, e.Message)
	for _, v := range e.Errors {
		if v.Message != "" {
			fmt.Fprintf(&b, "; %s.%s: %s", v.Resource, v.Field, v.Message)
		} else {
			fmt.Fprintf(&b, "; %s.%s: %s", v.Resource, v.Field, v.Code)
		}
	}
	return b.String()
}

// parseAPIError builds an APIError from a failed response. The caller closes the body.
func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		apiErr.Message = fmt.Sprintf("(could not read body: %v)", err)
		return apiErr
	}
	if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// IsNotFound reports whether err is a GitHub API 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsValidationFailed reports whether err is a GitHub API 422 response.
func IsValidationFailed(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity
}

// IsReferenceExists reports whether err is the 422 GitHub returns when creating a ref
// whose name is already taken.
func IsReferenceExists(err error) bool {
	var apiErr *APIError
	if !IsValidationFailed(err) || !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "reference already exists")
}

// IsRateLimited reports whether err is a primary (403) or secondary (429) rate limit response.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(apiErr.Message)
	return apiErr.StatusCode == http.StatusForbidden &&
		(strings.Contains(lower, "rate limit") || strings.Contains(lower, "abuse detection"))
}
