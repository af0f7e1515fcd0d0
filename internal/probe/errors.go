package probe

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// Kind groups request failures for logging. Every kind is handled the same way.
type Kind string

const (
	KindHTTP     Kind = "http"
	KindTimeout  Kind = "timeout"
	KindNetwork  Kind = "network"
	KindParse    Kind = "parse"
	KindCanceled Kind = "canceled"
)

// maxErrorBody caps how much of a failed response is kept for the log line.
// The rest of the body is still read and discarded.
const maxErrorBody = 512

// HTTPError is returned when the server answered with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("request failed with status %s", e.Status)
	}
	return fmt.Sprintf("request failed with status code %d", e.StatusCode)
}

// ClientError is a failure with no usable HTTP answer, or an answer whose
// body could not be read or parsed.
type ClientError struct {
	Kind Kind
	Err  error
}

func (e *ClientError) Error() string {
	return e.Err.Error()
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

func newClientError(err error) *ClientError {
	return &ClientError{Kind: classify(err), Err: err}
}

// KindOf reports the failure kind of err.
func KindOf(err error) Kind {
	var he *HTTPError
	if errors.As(err, &he) {
		return KindHTTP
	}
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return classify(err)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

func classify(err error) Kind {
	var ne net.Error
	switch {
	case errors.As(err, &ne) && ne.Timeout():
		return KindTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindNetwork
}
