// Package intra is the rate-limited client for the school-intranet REST
// API. It multiplexes several OAuth client-credential identities behind a
// single global admission limiter, classifies upstream failures, and
// memoizes expensive reads through the cache layer.
package intra

import (
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/campuswatch/campuswatch/internal/cache"
)

const (
	defaultBaseURL = "https://api.intra.42.fr/v2/"
	defaultAuthURL = "https://api.intra.42.fr/oauth/token"

	maxAttempts      = 10
	maxResponseBytes = 10 << 20 // cap reads from API responses
)

// Options configures a Client.
type Options struct {
	BaseURL        string
	AuthURL        string
	RedirectURL    string
	Applications   []Application
	RateLimit      float64       // aggregate calls/sec across all credentials
	RequestTimeout time.Duration // per-call hard budget
	Cache          cache.Store
	Logger         *slog.Logger
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = defaultBaseURL
	}
	if o.AuthURL == "" {
		o.AuthURL = defaultAuthURL
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 20
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 60 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Client issues GET requests against the upstream API through the
// credential pool, under the global admission limiter, with a bounded
// retry/rotation policy. Callers only ever see the terminal errors
// (NotFoundError, TimeoutError, UnknownError); token expiry and rate
// limiting are recovered internally.
type Client struct {
	baseURL     string
	authURL     string
	redirectURL string
	pool        *Pool
	limiter     *rate.Limiter
	http        *http.Client
	cache       cache.Store
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewClient creates a Client. Call Load before issuing requests.
func NewClient(opts Options) *Client {
	opts.defaults()
	return &Client{
		baseURL:     opts.BaseURL,
		authURL:     opts.AuthURL,
		redirectURL: opts.RedirectURL,
		pool:        NewPool(opts.Applications, opts.AuthURL, opts.Logger),
		limiter:     rate.NewLimiter(rate.Limit(opts.RateLimit), int(opts.RateLimit)),
		http:        &http.Client{Timeout: opts.RequestTimeout},
		cache:       opts.Cache,
		logger:      opts.Logger.With("component", "intra"),
		tracer:      otel.Tracer("campuswatch/intra"),
	}
}

// Load fetches initial tokens for every registered application.
func (c *Client) Load(ctx context.Context) error {
	return c.pool.Load(ctx)
}

// Pool exposes the credential pool for the status endpoint.
func (c *Client) Pool() *Pool { return c.pool }

// Request issues a GET against the given endpoint using pooled
// credentials and returns the raw JSON body.
func (c *Client) Request(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	return c.request(ctx, endpoint, params, "")
}

// RequestWithToken issues a GET using a personal access token instead of
// the pool. Such calls never rotate credentials on 429.
func (c *Client) RequestWithToken(ctx context.Context, endpoint, token string, params url.Values) (json.RawMessage, error) {
	return c.request(ctx, endpoint, params, token)
}

func (c *Client) request(ctx context.Context, endpoint string, params url.Values, personalToken string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("intra: admission wait: %w", err)
	}

	ctx, span := c.tracer.Start(ctx, "intra.request",
		trace.WithAttributes(attribute.String("intra.endpoint", endpoint)))
	defer span.End()

	var (
		lastStatus int
		lastReason string
		refreshed  bool
	)

	for attempt := 1; attempt <= maxAttempts; {
		var cred *Credential
		token := personalToken
		if token == "" {
			cred = c.pool.Acquire()
			if cred == nil {
				return nil, errors.New("intra: no credentials registered")
			}
			token = cred.Token()
		}

		status, reason, body, err := c.do(ctx, endpoint, params, token)
		if err != nil {
			if isTimeout(err) {
				span.SetStatus(codes.Error, "timeout")
				requestsTotal.WithLabelValues("timeout").Inc()
				c.logger.Error("request timed out", "endpoint", endpoint, "attempt", attempt)
				return nil, &TimeoutError{Endpoint: endpoint}
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Connection-level failure: transient, retry within budget.
			c.logger.Warn("request transport error", "endpoint", endpoint, "attempt", attempt, "error", err)
			retriesTotal.Inc()
			attempt++
			continue
		}

		lastStatus, lastReason = status, reason
		span.SetAttributes(attribute.Int("http.status_code", status))

		switch {
		case status == http.StatusOK || status == http.StatusCreated:
			if !json.Valid(body) {
				// Success status with a malformed body: transient.
				c.logger.Warn("malformed response body", "endpoint", endpoint, "attempt", attempt)
				retriesTotal.Inc()
				attempt++
				continue
			}
			requestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
			return json.RawMessage(body), nil

		case status == http.StatusUnauthorized && cred != nil && !refreshed && tokenExpired(body):
			// Refresh only this credential and retry the same request
			// once, without consuming the attempt budget.
			c.logger.Warn("access token expired, refreshing", "endpoint", endpoint, "uid", cred.UID())
			tokenRefreshTotal.Inc()
			if err := cred.Refresh(ctx); err != nil {
				return nil, err
			}
			refreshed = true
			continue

		case status == http.StatusNotFound:
			requestsTotal.WithLabelValues("404").Inc()
			c.logger.Error("resource not found", "endpoint", endpoint, "attempt", attempt)
			return nil, &NotFoundError{Endpoint: endpoint, Reason: reason}

		case status == http.StatusTooManyRequests:
			// Rotate to a different credential on the next acquire.
			// Personal-token calls retry with the same token.
			c.logger.Warn("rate limited", "endpoint", endpoint, "attempt", attempt)
			retriesTotal.Inc()
			attempt++
			continue

		default:
			c.logger.Warn("unexpected status", "endpoint", endpoint, "status", status, "attempt", attempt)
			retriesTotal.Inc()
			attempt++
			continue
		}
	}

	requestsTotal.WithLabelValues("exhausted").Inc()
	span.SetStatus(codes.Error, "attempts exhausted")
	return nil, &UnknownError{Endpoint: endpoint, Status: lastStatus, Reason: lastReason}
}

// do performs one physical HTTP call.
func (c *Client) do(ctx context.Context, endpoint string, params url.Values, token string) (status int, reason string, body []byte, err error) {
	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return 0, "", nil, fmt.Errorf("intra: parse endpoint %q: %w", endpoint, err)
	}

	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, "", nil, fmt.Errorf("intra: create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, "", nil, fmt.Errorf("intra: read response: %w", err)
	}

	return resp.StatusCode, resp.Status, body, nil
}

// tokenExpired reports whether a 401 body carries the upstream's
// token-expiry signal.
func tokenExpired(body []byte) bool {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return payload.Message == "The access token expired"
}

func isTimeout(err error) bool {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
