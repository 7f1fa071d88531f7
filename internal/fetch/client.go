// Package fetch provides provider-specific clients for the upstream data
// domains: validator telemetry, on-chain liquidity, the restaking registry
// and the price/yield feed.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/restake-risk-ea/internal/config"
)

var (
	// ErrNotConfigured means a provider lacks the settings needed to query it.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrMissingCredential is the ErrNotConfigured case of an absent API key.
	ErrMissingCredential = fmt.Errorf("%w: missing credential", ErrNotConfigured)
)

// maxBodyBytes bounds how much of an upstream response is read
const maxBodyBytes = 8 << 20

// Options configures the transport shared by provider clients
type Options struct {
	// HTTPClient overrides the retrying client, mainly for tests
	HTTPClient *http.Client

	// Outbound request rate per provider; zero or less disables limiting
	RPS   float64
	Burst int
}

// OptionsFromConfig builds client options from application config
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		RPS:   cfg.UpstreamRPS,
		Burst: cfg.UpstreamBurst,
	}
}

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c
}

// StandardClient converts a retryablehttp.Client to a standard http.Client
func StandardClient(retryClient *retryablehttp.Client) *http.Client {
	return retryClient.StandardClient()
}

// requester performs rate-limited requests for one provider.
type requester struct {
	provider   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newRequester(provider string, opts Options) requester {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = StandardClient(newRetryClient())
	}
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	return requester{
		provider:   provider,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// do sends req and returns the body of a 200 response.
func (r requester) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s rate limit wait: %w", r.provider, err)
	}

	logrus.WithFields(logrus.Fields{
		"provider": r.provider,
		"url":      req.URL.String(),
	}).Debug("Fetching upstream")

	resp, err := r.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("error fetching data from %s: %w", r.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading %s response: %w", r.provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s API error: status %d, body: %s", r.provider, resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
