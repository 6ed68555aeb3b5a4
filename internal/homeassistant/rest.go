package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
)

// RESTClient calls Home Assistant services over the REST API.
type RESTClient struct {
	opts       Options
	httpClient *http.Client
}

// NewREST returns a REST client.
func NewREST(opts Options) *RESTClient {
	opts = opts.withDefaults()
	return &RESTClient{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

// TurnOn switches the entity on.
func (c *RESTClient) TurnOn(ctx context.Context) error {
	return c.CallService(ctx, ServiceTurnOn)
}

// TurnOff switches the entity off.
func (c *RESTClient) TurnOff(ctx context.Context) error {
	return c.CallService(ctx, ServiceTurnOff)
}

// CallService posts service for the configured entity and logs the outcome.
func (c *RESTClient) CallService(ctx context.Context, service string) error {
	start := time.Now()
	attempts, err := c.callWithRetry(ctx, service)
	logCall(c.opts, service, "rest", attempts, time.Since(start), err)
	return err
}

func (c *RESTClient) callWithRetry(ctx context.Context, service string) (int, error) {
	body, err := json.Marshal(map[string]string{"entity_id": c.opts.EntityID})
	if err != nil {
		return 0, util.WrapError("marshal service data", err)
	}
	apiURL := fmt.Sprintf("%s/api/services/%s/%s", c.opts.BaseURL, url.PathEscape(c.opts.Domain), url.PathEscape(service))

	backoff := util.NewBackoff(c.opts.RetryWait, maxRetryWait)
	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := backoff.Wait(ctx); err != nil {
				return attempt, errors.Join(lastErr, err)
			}
		}

		wait, err := c.post(ctx, apiURL, body)
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			return attempt + 1, err
		}
		if wait > 0 {
			if err := util.SleepContext(ctx, wait); err != nil {
				return attempt + 1, errors.Join(lastErr, err)
			}
		}
	}
	return c.opts.MaxRetries + 1, lastErr
}

// post sends one request. It returns the Retry-After delay of a 429.
func (c *RESTClient) post(ctx context.Context, apiURL string, body []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return 0, util.WrapError("create request", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, util.WrapError("send request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "home assistant response body")()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, nil
	}
	return retryAfter(resp), responseError(resp)
}

// State reads the entity's current state.
func (c *RESTClient) State(ctx context.Context) (*EntityState, error) {
	apiURL := fmt.Sprintf("%s/api/states/%s", c.opts.BaseURL, url.PathEscape(c.opts.EntityID))
	var state EntityState
	if err := c.getJSON(ctx, apiURL, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Ping checks that the API is reachable and the token is accepted.
func (c *RESTClient) Ping(ctx context.Context) error {
	var msg struct {
		Message string `json:"message"`
	}
	return c.getJSON(ctx, c.opts.BaseURL+"/api/", &msg)
}

func (c *RESTClient) getJSON(ctx context.Context, apiURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return util.WrapError("create request", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return util.WrapError("send request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "home assistant response body")()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return util.WrapError("decode response", err)
	}
	return nil
}

func (c *RESTClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.opts.Token)
}

func responseError(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
	return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data))}
}

// retryAfter parses an integer Retry-After header on 429 responses.
func retryAfter(resp *http.Response) time.Duration {
	if resp.StatusCode != http.StatusTooManyRequests {
		return 0
	}
	seconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return 0
	}
	return min(time.Duration(seconds)*time.Second, maxRetryWait)
}

// retryable reports whether err is worth another attempt.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, ErrUnauthorized) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	var resultErr *ResultError
	return !errors.As(err, &resultErr)
}

// logCall records the outcome of one service call.
func logCall(opts Options, service, transport string, attempts int, elapsed time.Duration, err error) {
	attrs := []any{
		"service", opts.ServiceName(service),
		"entity_id", opts.EntityID,
		"transport", transport,
		"attempts", attempts,
		"duration", elapsed.Round(time.Millisecond),
	}
	if err != nil {
		slog.Error("home assistant service call failed", append(attrs, "error", err)...)
		return
	}
	slog.Info("home assistant service called", attrs...)
}
