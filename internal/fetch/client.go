// Package fetch provides the HTTP client for the remote annotation service.
//
// The client maps every endpoint the review session consumes: the task list,
// the task config, the next sample to review, label patches and the server
// status. Any non-2xx response is a uniform failure (*HTTPError); the only
// structured outcome is ErrExhausted when the service has nothing left.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/JackEngelmann/nlpanno/internal/sample"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 10 << 20

var (
	// ErrExhausted is returned by NextSample when no unlabeled sample is left.
	ErrExhausted = errors.New("fetch: no sample left to review")
	// ErrUnknownTask is returned by TaskConfig when the task id is not listed.
	ErrUnknownTask = errors.New("fetch: unknown task")
)

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("fetch: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("fetch: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// transient reports whether a read may succeed when repeated.
func (e *HTTPError) transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Options tune the client. Zero values select the defaults.
type Options struct {
	Timeout       time.Duration // per request; default 10s
	RatePerSecond float64       // request rate cap; 0 disables limiting
	MaxRetries    uint64        // retries for transient read failures
	RetryBase     time.Duration // first backoff step; default 200ms
	UserAgent     string
}

// Client talks to the annotation service under baseURL (e.g. http://localhost:8000).
type Client struct {
	base       *url.URL
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	retryBase  time.Duration
	userAgent  string
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("fetch: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("fetch: base url %q must be http or https", baseURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 200 * time.Millisecond
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "nlpanno-review/1.0"
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	return &Client{
		base:       u,
		client:     &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBase,
		userAgent:  opts.UserAgent,
	}, nil
}

// Tasks lists the annotation tasks (GET /api/tasks).
func (c *Client) Tasks(ctx context.Context) ([]sample.AnnotationTask, error) {
	body, err := c.get(ctx, "/api/tasks")
	if err != nil {
		return nil, err
	}
	var tasks []sample.AnnotationTask
	if err := json.Unmarshal(body, &tasks); err != nil {
		return nil, fmt.Errorf("fetch: decode tasks: %w", err)
	}
	return tasks, nil
}

// TaskConfig loads the classes of a task. With an empty taskID the
// single-task endpoint GET /api/taskConfig is used; otherwise the task is
// looked up in the task list.
func (c *Client) TaskConfig(ctx context.Context, taskID string) (sample.AnnotationTask, error) {
	if taskID == "" {
		body, err := c.get(ctx, "/api/taskConfig")
		if err != nil {
			return sample.AnnotationTask{}, err
		}
		var task sample.AnnotationTask
		if err := json.Unmarshal(body, &task); err != nil {
			return sample.AnnotationTask{}, fmt.Errorf("fetch: decode task config: %w", err)
		}
		return task, nil
	}

	tasks, err := c.Tasks(ctx)
	if err != nil {
		return sample.AnnotationTask{}, err
	}
	for _, t := range tasks {
		if t.ID == taskID {
			return t, nil
		}
	}
	return sample.AnnotationTask{}, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
}

// NextSample asks the service which sample to review next. Returns
// ErrExhausted when the service answers null.
func (c *Client) NextSample(ctx context.Context, taskID string) (sample.Sample, error) {
	path := "/api/nextSample"
	if taskID != "" {
		path = "/api/tasks/" + url.PathEscape(taskID) + "/nextSample"
	}

	body, err := c.get(ctx, path)
	if err != nil {
		return sample.Sample{}, err
	}
	s, ok, err := sample.DecodeNextSample(body)
	if err != nil {
		return sample.Sample{}, fmt.Errorf("fetch: %w", err)
	}
	if !ok {
		return sample.Sample{}, ErrExhausted
	}
	return s, nil
}

// PatchSample persists a label change and returns the server's view of the
// sample after the update. Patches are never retried.
func (c *Client) PatchSample(ctx context.Context, id string, delta sample.LabelDelta) (sample.Sample, error) {
	payload, err := json.Marshal(sample.PatchFor(id, delta))
	if err != nil {
		return sample.Sample{}, fmt.Errorf("fetch: encode patch: %w", err)
	}

	body, err := c.do(ctx, http.MethodPatch, "/api/samples/"+url.PathEscape(id), payload)
	if err != nil {
		return sample.Sample{}, err
	}

	var s sample.Sample
	if err := json.Unmarshal(body, &s); err != nil {
		return sample.Sample{}, fmt.Errorf("fetch: decode patched sample: %w", err)
	}
	return s, nil
}

// Status reads the server status (GET /api/status).
func (c *Client) Status(ctx context.Context) (sample.Status, error) {
	body, err := c.get(ctx, "/api/status")
	if err != nil {
		return sample.Status{}, err
	}
	var st sample.Status
	if err := json.Unmarshal(body, &st); err != nil {
		return sample.Status{}, fmt.Errorf("fetch: decode status: %w", err)
	}
	return st, nil
}

// get performs a read, retrying transient failures up to maxRetries times.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if c.maxRetries == 0 {
		return c.do(ctx, http.MethodGet, path, nil)
	}

	var body []byte
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		b, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && !httpErr.transient() {
				return err
			}
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// do sends one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch: rate limiter wait: %w", err)
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("fetch: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}
