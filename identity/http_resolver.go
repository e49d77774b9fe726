package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// HTTPResolver resolves identities against the game's user API, with retries
// on transient failures, a client-side rate limit, and an expiring cache in
// front (see cache.go). Construct with NewHTTPResolver.
type HTTPResolver struct {
	host    string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

type leveledSlog struct {
	inner *slog.Logger
}

// intermediate retry failures are warnings, not errors
func (l leveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}
func (l leveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}
func (l leveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Info(msg, keysAndValues...)
}
func (l leveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

// NewHTTPResolver builds a resolver for the user API at host, limited to
// ratePerSec outbound requests per second.
func NewHTTPResolver(host string, ratePerSec int, logger *slog.Logger) *HTTPResolver {
	logger = logger.With("component", "identity")

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = cleanhttp.DefaultPooledTransport()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: logger})
	retryClient.CheckRetry = noRetryOn429

	client := retryClient.StandardClient()
	client.Timeout = 15 * time.Second

	return &HTTPResolver{
		host:    strings.TrimSuffix(host, "/"),
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		logger:  logger,
	}
}

// 429 is left to the application rather than retried
func noRetryOn429(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func (r *HTTPResolver) Lookup(ctx context.Context, id uint64) (*Player, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/users/%d", r.host, id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user API lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPlayerNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user API lookup failed: status %d", resp.StatusCode)
	}

	var p Player
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("user API returned bad body: %w", err)
	}
	return &p, nil
}

type usernameQuery struct {
	Usernames          []string `json:"usernames"`
	ExcludeBannedUsers bool     `json:"excludeBannedUsers"`
}

type usernameResponse struct {
	Data []Player `json:"data"`
}

func (r *HTTPResolver) ResolveUsername(ctx context.Context, username string) (*Player, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(usernameQuery{Usernames: []string{username}})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.host+"/v1/usernames/users", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("username resolution failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("username resolution failed: status %d", resp.StatusCode)
	}

	var out usernameResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("user API returned bad body: %w", err)
	}
	for i := range out.Data {
		if strings.EqualFold(out.Data[i].Username, username) {
			return &out.Data[i], nil
		}
	}
	return nil, ErrPlayerNotFound
}

var _ Resolver = (*HTTPResolver)(nil)
