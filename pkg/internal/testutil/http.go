// Package testutil provides fakes shared by the issue-pilot test suites.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// MockHTTPDoer implements github.HTTPDoer for testing.
// It's programmable - you can configure responses for specific requests.
type MockHTTPDoer struct {
	responses map[string][]mockResponse
	errors    map[string]error
	calls     []HTTPCall
	mu        sync.Mutex
}

type mockResponse struct {
	body       []byte
	statusCode int
}

// HTTPCall records a single HTTP call.
type HTTPCall struct {
	Header http.Header
	Method string
	URL    string
	Body   []byte
}

// NewMockHTTPDoer creates a new MockHTTPDoer.
func NewMockHTTPDoer() *MockHTTPDoer {
	return &MockHTTPDoer{
		responses: make(map[string][]mockResponse),
		errors:    make(map[string]error),
	}
}

// Do records the request and returns the configured response. Responses queued with
// AddResponse are served in order; the last one is repeated once the queue drains.
func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	m.calls = append(m.calls, HTTPCall{
		Method: req.Method,
		URL:    req.URL.String(),
		Body:   body,
		Header: req.Header.Clone(),
	})

	key := m.makeKey(req.Method, req.URL.String())
	if err, ok := m.errors[key]; ok {
		return nil, err
	}

	queue, ok := m.responses[key]
	if !ok || len(queue) == 0 {
		return newResponse(http.StatusNotFound, []byte(`{"message":"Not Found"}`)), nil
	}
	next := queue[0]
	if len(queue) > 1 {
		m.responses[key] = queue[1:]
	}
	return newResponse(next.statusCode, next.body), nil
}

func newResponse(statusCode int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Status:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

// SetResponse configures the only response for a method and URL. Strings and byte
// slices are sent verbatim; anything else is JSON encoded.
func (m *MockHTTPDoer) SetResponse(method, url string, statusCode int, body any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[m.makeKey(method, url)] = []mockResponse{{statusCode: statusCode, body: encodeBody(body)}}
}

// AddResponse queues an additional response for a method and URL.
func (m *MockHTTPDoer) AddResponse(method, url string, statusCode int, body any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.makeKey(method, url)
	m.responses[key] = append(m.responses[key], mockResponse{statusCode: statusCode, body: encodeBody(body)})
}

// SetError configures an error for a specific method and URL.
func (m *MockHTTPDoer) SetError(method, url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[m.makeKey(method, url)] = err
}

// Calls returns all recorded HTTP calls.
func (m *MockHTTPDoer) Calls() []HTTPCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]HTTPCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallsTo returns the recorded calls whose method matches and whose URL contains substr.
func (m *MockHTTPDoer) CallsTo(method, substr string) []HTTPCall {
	var matched []HTTPCall
	for _, c := range m.Calls() {
		if c.Method == method && strings.Contains(c.URL, substr) {
			matched = append(matched, c)
		}
	}
	return matched
}

// Reset clears all configured responses and recorded calls.
func (m *MockHTTPDoer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses = make(map[string][]mockResponse)
	m.errors = make(map[string]error)
	m.calls = nil
}

func (*MockHTTPDoer) makeKey(method, url string) string {
	return method + ":" + url
}

func encodeBody(body any) []byte {
	switch b := body.(type) {
	case nil:
		return nil
	case string:
		return []byte(b)
	case []byte:
		return b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			panic(fmt.Sprintf("failed to marshal response body: %v", err))
		}
		return data
	}
}
