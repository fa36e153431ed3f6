package dream_layer_api

import (
	"fmt"
	"net/http"
)

// StatusError is returned for any response outside the 2xx range.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d %s",
			e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}

	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// ResponseError is returned when a 2xx response does not carry what the
// endpoint promises, e.g. a non-"success" status field.
type ResponseError struct {
	Endpoint string
	Message  string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}
