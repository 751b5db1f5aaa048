package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client is everything the reconciler needs from the registry.
type Client interface {
	FetchEventSettings(ctx context.Context, ep Endpoint, eventID string) (*EventSettings, error)
	FetchCategories(ctx context.Context, ep Endpoint, eventID string) ([]Category, error)
	FetchItems(ctx context.Context, ep Endpoint, eventID string) ([]Item, error)
	FetchEvent(ctx context.Context, ep Endpoint, eventID string) (*Event, error)
	FetchOrders(ctx context.Context, ep Endpoint, eventID string) ([]Order, error)
	FetchEventCheckinLists(ctx context.Context, ep Endpoint, eventID string) ([]CheckinList, error)
	PushCheckin(ctx context.Context, ep Endpoint, secret, checkinListID, timestamp string) error
	CancelPendingRequests()
}

// StatusError is returned for non-2xx registry responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registry %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Options configures HTTPClient.
type Options struct {
	Timeout time.Duration
	// RequestsPerMinute paces requests per organizer base URL; <= 0 disables pacing.
	RequestsPerMinute int
	// MaxRetryAfter caps how long a 429 Retry-After is honoured.
	MaxRetryAfter time.Duration
	// HTTPClient overrides the underlying client (tests).
	HTTPClient *http.Client
}

// HTTPClient talks to a Pretix-style REST API.
type HTTPClient struct {
	http          *http.Client
	logger        *zap.Logger
	rpm           int
	maxRetryAfter time.Duration

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	scope       context.Context
	cancelScope context.CancelFunc
}

// NewHTTPClient creates a registry client.
func NewHTTPClient(opts Options, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	maxRetryAfter := opts.MaxRetryAfter
	if maxRetryAfter <= 0 {
		maxRetryAfter = 2 * time.Minute
	}
	scope, cancel := context.WithCancel(context.Background())
	return &HTTPClient{
		http:          hc,
		logger:        logger,
		rpm:           opts.RequestsPerMinute,
		maxRetryAfter: maxRetryAfter,
		limiters:      make(map[string]*rate.Limiter),
		scope:         scope,
		cancelScope:   cancel,
	}
}

// CancelPendingRequests aborts every in-flight request made through this client.
// Requests started afterwards are unaffected.
func (c *HTTPClient) CancelPendingRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelScope()
	c.scope, c.cancelScope = context.WithCancel(context.Background())
}

func (c *HTTPClient) withScope(ctx context.Context) (context.Context, context.CancelFunc) {
	c.mu.Lock()
	scope := c.scope
	c.mu.Unlock()
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(scope, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *HTTPClient) limiter(baseURL string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[baseURL]
	if !ok {
		if c.rpm <= 0 {
			l = rate.NewLimiter(rate.Inf, 1)
		} else {
			l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(c.rpm)), 1)
		}
		c.limiters[baseURL] = l
	}
	return l
}

func (c *HTTPClient) FetchEventSettings(ctx context.Context, ep Endpoint, eventID string) (*EventSettings, error) {
	var out EventSettings
	if err := c.do(ctx, ep, http.MethodGet, eventPath(eventID, "settings/"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) FetchCategories(ctx context.Context, ep Endpoint, eventID string) ([]Category, error) {
	return fetchAll[Category](ctx, c, ep, eventPath(eventID, "categories/"))
}

func (c *HTTPClient) FetchItems(ctx context.Context, ep Endpoint, eventID string) ([]Item, error) {
	return fetchAll[Item](ctx, c, ep, eventPath(eventID, "items/"))
}

func (c *HTTPClient) FetchEvent(ctx context.Context, ep Endpoint, eventID string) (*Event, error) {
	var out Event
	if err := c.do(ctx, ep, http.MethodGet, eventPath(eventID, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) FetchOrders(ctx context.Context, ep Endpoint, eventID string) ([]Order, error) {
	return fetchAll[Order](ctx, c, ep, eventPath(eventID, "orders/"))
}

func (c *HTTPClient) FetchEventCheckinLists(ctx context.Context, ep Endpoint, eventID string) ([]CheckinList, error) {
	return fetchAll[CheckinList](ctx, c, ep, eventPath(eventID, "checkinlists/"))
}

// PushCheckin redeems a position secret on a check-in list at the given ISO timestamp.
func (c *HTTPClient) PushCheckin(ctx context.Context, ep Endpoint, secret, checkinListID, timestamp string) error {
	var list any = checkinListID
	if n, err := strconv.ParseInt(checkinListID, 10, 64); err == nil {
		list = n
	}
	body := redeemRequest{Secret: secret, Lists: []any{list}, Datetime: timestamp}
	return c.do(ctx, ep, http.MethodPost, "/checkinrpc/redeem/", body, nil)
}

func eventPath(eventID, suffix string) string {
	return "/events/" + url.PathEscape(eventID) + "/" + suffix
}

func fetchAll[T any](ctx context.Context, c *HTTPClient, ep Endpoint, path string) ([]T, error) {
	var all []T
	next := path
	for next != "" {
		var p page[T]
		if err := c.do(ctx, ep, http.MethodGet, next, nil, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Results...)
		next = ""
		if p.Next != nil {
			next = *p.Next
		}
	}
	return all, nil
}

// do performs one request, pacing per organizer and retrying 429s that carry Retry-After.
// path is either relative to the endpoint base URL or an absolute "next" page URL.
func (c *HTTPClient) do(ctx context.Context, ep Endpoint, method, path string, body, out any) error {
	ctx, done := c.withScope(ctx)
	defer done()

	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = strings.TrimRight(ep.BaseURL, "/") + path
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	limiter := c.limiter(ep.BaseURL)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Token "+ep.Token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		c.logger.Debug("registry request", zap.String("method", method), zap.String("url", target))
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("registry %s %s: %w", method, target, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait, ok := retryAfter(resp.Header.Get("Retry-After"), c.maxRetryAfter)
			drain(resp)
			if !ok {
				return &StatusError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: "rate limited"}
			}
			c.logger.Warn("registry rate limited", zap.String("url", target), zap.Duration("retry_after", wait))
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		err = decode(resp, method, target, out)
		drain(resp)
		return err
	}
}

func decode(resp *http.Response, method, target string, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: string(msg)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func retryAfter(header string, limit time.Duration) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(header, 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	d := time.Duration(secs * float64(time.Second))
	if d > limit {
		return 0, false
	}
	return d, true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsCanceled reports whether err came from a cancelled request.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
