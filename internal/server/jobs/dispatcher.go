// Package jobs forwards job descriptors to the external job platform. The
// gateway is fire-and-forget: it returns the platform's acknowledgement and
// never tracks the job afterwards.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"github.com/dmitrijs2005/datakeeper/internal/server/auth"
	"github.com/dmitrijs2005/datakeeper/internal/server/models"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

// maxMessageBytes bounds how much of a rejection body is echoed back.
const maxMessageBytes = 1024

type Dispatcher interface {
	Dispatch(ctx context.Context, cred *auth.Credential, job models.JobDescriptor) (*models.JobAck, error)
}

// HTTPDispatcher posts descriptors as JSON to the platform URL.
type HTTPDispatcher struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	retries uint64
	backoff time.Duration
	logger  logging.Logger
}

// NewHTTPDispatcher builds a dispatcher allowing rps requests per second and
// retries transient failures up to retries times. A non-positive rps disables
// rate limiting.
func NewHTTPDispatcher(url string, rps float64, retries int, client *http.Client, logger logging.Logger) *HTTPDispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if retries < 0 {
		retries = 0
	}
	return &HTTPDispatcher{
		url:     url,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		retries: uint64(retries),
		backoff: 100 * time.Millisecond,
		logger:  logger.With("module", "jobs"),
	}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, cred *auth.Credential, job models.JobDescriptor) (*models.JobAck, error) {
	if cred == nil {
		return nil, common.ErrMissingCredential
	}
	if strings.TrimSpace(job.Name) == "" {
		return nil, fmt.Errorf("%w: job name is required", common.ErrMalformedRequest)
	}

	// every attempt carries the same key so the platform can drop duplicates
	if job.IdempotencyKey == "" {
		key, err := common.MakeRandHexString(16)
		if err != nil {
			return nil, fmt.Errorf("%w: idempotency key: %w", common.ErrorInternal, err)
		}
		job.IdempotencyKey = key
	}

	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrMalformedRequest, err)
	}

	var ack *models.JobAck
	backoff := retry.WithMaxRetries(d.retries, retry.NewExponential(d.backoff))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limit: %w", common.ErrTimeout, err)
		}
		a, err := d.post(ctx, cred, body)
		if err != nil {
			var t *transientError
			if errors.As(err, &t) {
				d.logger.Warn(ctx, "job dispatch attempt failed", "job", job.Name, "attempt", attempt, "error", t.err)
				return retry.RetryableError(err)
			}
			return err
		}
		ack = a
		return nil
	})
	if err != nil {
		return nil, dispatchError(ctx, err)
	}

	d.logger.Info(ctx, "job dispatched", "job", job.Name, "job_id", ack.JobID, "attempts", attempt)
	return ack, nil
}

// transientError marks failures worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (d *HTTPDispatcher) post(ctx context.Context, cred *auth.Credential, body []byte) (*models.JobAck, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if cred.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &transientError{err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &transientError{err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &transientError{err: fmt.Errorf("platform returned %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: %s", common.ErrJobRejected, rejectionMessage(resp.StatusCode, payload))
	}

	ack := &models.JobAck{Accepted: true}
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, ack); err != nil {
			return nil, fmt.Errorf("%w: malformed acknowledgement: %w", common.ErrDownstream, err)
		}
		ack.Accepted = true
	}
	return ack, nil
}

// rejectionMessage prefers a "message" field of a JSON body, else the raw body.
func rejectionMessage(status int, payload []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(payload, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	msg := strings.TrimSpace(string(payload))
	if len(msg) > maxMessageBytes {
		msg = msg[:maxMessageBytes]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return msg
}

func dispatchError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrJobRejected), errors.Is(err, common.ErrMalformedRequest), errors.Is(err, common.ErrDownstream), errors.Is(err, common.ErrTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), ctx.Err() != nil:
		return fmt.Errorf("%w: job dispatch: %w", common.ErrTimeout, err)
	default:
		return fmt.Errorf("%w: job dispatch: %w", common.ErrDownstream, err)
	}
}

// Disabled is used when no platform URL is configured.
type Disabled struct{}

func (Disabled) Dispatch(context.Context, *auth.Credential, models.JobDescriptor) (*models.JobAck, error) {
	return nil, fmt.Errorf("%w: job platform is not configured", common.ErrDownstream)
}
