package probe

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/PratikDhanave/capgo-event-probe/internal/config"
	"github.com/PratikDhanave/capgo-event-probe/internal/logging"
)

// Poster sends a JSON body and returns the body of a 2xx answer.
// Timeouts and retries belong to the implementation.
type Poster interface {
	PostJSON(ctx context.Context, url string, body []byte, header http.Header) ([]byte, error)
}

// RetryingPoster is a Poster backed by go-retryablehttp. It applies a
// per-attempt timeout and the library's retry policy and backoff.
type RetryingPoster struct {
	client *retryablehttp.Client
}

// NewRetryingPoster builds a poster from the timeout and retry settings in cfg.
func NewRetryingPoster(cfg config.Config, lg *zap.Logger) *RetryingPoster {
	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = cfg.Timeout

	c := retryablehttp.NewClient()
	c.HTTPClient = hc
	c.RetryMax = cfg.Retries
	c.RetryWaitMin = cfg.RetryWaitMin
	c.RetryWaitMax = cfg.RetryWaitMax
	c.Logger = logging.ForRetryClient(lg)
	c.CheckRetry = retryPolicy
	// Hand the last response back so its status can be reported and its body drained here.
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if n := attemptCounter(req.Context()); n != nil {
			n.Add(1)
		}
		lg.Info("sending attempt",
			zap.String("run_id", runID(req.Context())),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", cfg.Retries+1))
	}

	return &RetryingPoster{client: c}
}

// PostJSON POSTs body to url. A non-2xx answer is returned as *HTTPError and
// any other failure as *ClientError. The response body is always read to EOF
// and closed.
func (p *RetryingPoster) PostJSON(ctx context.Context, url string, body []byte, header http.Header) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, &ClientError{Kind: KindNetwork, Err: errors.Wrap(err, "build request")}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := p.client.Do(req)
	if resp == nil {
		if err == nil {
			err = errors.New("no response")
		}
		return nil, newClientError(err)
	}
	defer drainAndClose(resp.Body)

	// The policy can give up on a context error after a response arrived.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, newClientError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(snippet),
		}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newClientError(errors.Wrap(err, "read response body"))
	}
	return b, nil
}

// retryPolicy is retryablehttp's default policy, except that a host that
// does not resolve fails at once.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	var dnsErr *net.DNSError
	if err != nil && errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return false, err
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

type (
	attemptsKey struct{}
	runIDKey    struct{}
)

func withAttemptCounter(ctx context.Context, n *atomic.Int32) context.Context {
	return context.WithValue(ctx, attemptsKey{}, n)
}

func attemptCounter(ctx context.Context) *atomic.Int32 {
	n, _ := ctx.Value(attemptsKey{}).(*atomic.Int32)
	return n
}

func withRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func runID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
