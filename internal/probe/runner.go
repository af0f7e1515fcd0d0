package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/PratikDhanave/capgo-event-probe/internal/config"
	"github.com/PratikDhanave/capgo-event-probe/internal/models"
)

// Outcome is the result of one probe run. Err is nil on success.
type Outcome struct {
	RunID      string
	Response   json.RawMessage
	Err        error
	Kind       Kind
	StatusCode int
	Attempts   int
	Elapsed    time.Duration
}

// Success reports whether the request completed with a parsable 2xx answer.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// Runner sends the fixed test event once and reports how it went.
type Runner struct {
	cfg     config.Config
	poster  Poster
	logger  *zap.Logger
	payload models.EventPayload
}

// NewRunner creates a Runner. cfg is expected to be validated.
func NewRunner(cfg config.Config, poster Poster, lg *zap.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		poster:  poster,
		logger:  lg,
		payload: models.TestPayload(),
	}
}

// Run performs the request and never returns later than cfg.Deadline()
// after it was called. Failures are logged and returned in the Outcome.
func (r *Runner) Run(ctx context.Context) Outcome {
	start := time.Now()
	out := Outcome{RunID: uuid.NewString()}
	lg := r.logger.With(zap.String("run_id", out.RunID))

	lg.Info("probe start", zap.String("go", runtime.Version()))

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Deadline())
	defer cancel()

	var attempts atomic.Int32
	ctx = withAttemptCounter(ctx, &attempts)
	ctx = withRunID(ctx, out.RunID)

	resp, err := r.send(ctx, lg)
	out.Attempts = int(attempts.Load())
	out.Elapsed = time.Since(start)

	if err != nil {
		out.Err = err
		out.Kind = KindOf(err)
		out.StatusCode = StatusCode(err)

		fields := []zap.Field{
			zap.String("error_type", string(out.Kind)),
			zap.Error(err),
			zap.Int("attempts", out.Attempts),
			zap.Duration("elapsed", out.Elapsed),
		}
		if out.StatusCode != 0 {
			fields = append(fields, zap.Int("status", out.StatusCode))
		}
		var he *HTTPError
		if errors.As(err, &he) && he.Body != "" {
			fields = append(fields, zap.String("body", he.Body))
		}
		lg.Warn("request failed, error handled", fields...)
		return out
	}

	out.Response = resp
	lg.Info("request completed",
		zap.ByteString("response", resp),
		zap.Int("attempts", out.Attempts),
		zap.Duration("elapsed", out.Elapsed))
	return out
}

func (r *Runner) send(ctx context.Context, lg *zap.Logger) (json.RawMessage, error) {
	body, err := json.Marshal(r.payload)
	if err != nil {
		return nil, &ClientError{Kind: KindParse, Err: errors.Wrap(err, "encode payload")}
	}

	header := http.Header{}
	header.Set(models.CapgKeyHeader, r.cfg.CapgKey)

	lg.Info("before request",
		zap.String("url", r.cfg.URL),
		zap.Duration("timeout", r.cfg.Timeout),
		zap.Int("retries", r.cfg.Retries),
		zap.Duration("deadline", r.cfg.Deadline()))

	raw, err := r.poster.PostJSON(ctx, r.cfg.URL, body, header)
	if err != nil {
		return nil, err
	}
	return parseBody(raw)
}

// parseBody accepts an empty body as an empty result and otherwise requires
// valid JSON, returned in compact form.
func parseBody(raw []byte) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage{}, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, &ClientError{Kind: KindParse, Err: errors.Wrap(err, "parse response body")}
	}
	return buf.Bytes(), nil
}
