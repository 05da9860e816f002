package providerutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 8 * 1024

// HTTPError is returned when the remote endpoint answers with a non-2xx
// status code.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("provider: http status %d: %s", e.StatusCode, e.Body)
}

// CheckStatus returns an *HTTPError for non-2xx responses, consuming a
// bounded amount of the body. The body is not closed.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPError{StatusCode: resp.StatusCode, Body: string(b)}
}

// ReadJSON decodes a JSON response body into v and closes the body.
//
// If the response status code is not in the 2xx range, ReadJSON
// returns an *HTTPError of the form:
//
//	provider: http status <code>: <truncated-body>
func ReadJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := CheckStatus(resp); err != nil {
		return err
	}
	dec := json.NewDecoder(resp.Body)
	return dec.Decode(v)
}

// NewHTTPClient returns the HTTP client used when none is provided.
// A zero timeout means no client-side limit.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
