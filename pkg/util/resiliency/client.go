// Package resiliency wraps http.Client with the retry, circuit-breaking
// and rate-limiting behavior the attestation-source adapters share. A slow
// or flapping trust anchor must degrade that source, not stall the chain.
package resiliency

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Client wraps http.Client with exponential backoff + jitter, a circuit
// breaker, and an outbound rate limiter.
type Client struct {
	client     *http.Client
	maxRetries int
	breaker    *CircuitBreaker
	limiter    *rate.Limiter
}

// Options tunes a Client. Zero values select the defaults.
type Options struct {
	Name             string
	Timeout          time.Duration
	MaxRetries       int
	BreakerThreshold int
	BreakerReset     time.Duration
	RequestsPerSec   float64
}

// NewClient returns a resilient HTTP client for one upstream.
func NewClient(opts Options) *Client {
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BreakerThreshold == 0 {
		opts.BreakerThreshold = 5
	}
	if opts.BreakerReset == 0 {
		opts.BreakerReset = 10 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 10
	}
	return &Client{
		client:     &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
		breaker:    NewCircuitBreaker(opts.Name, opts.BreakerThreshold, opts.BreakerReset),
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSec), int(math.Ceil(opts.RequestsPerSec))),
	}
}

// Do executes the request, retrying 5xx responses and transport errors
// with exponential backoff and jitter. The request context bounds the
// whole attempt sequence, including backoff sleeps.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	if !c.breaker.Allow() {
		return nil, fmt.Errorf("circuit breaker open for %s", c.breaker.name)
	}

	var resp *http.Response
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.client.Do(req)

		if err == nil && resp.StatusCode < 500 {
			c.breaker.Success()
			return resp, nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		if i == c.maxRetries {
			break
		}

		backoff := time.Duration(math.Pow(2, float64(i))) * 100 * time.Millisecond
		jitter := time.Duration(0)
		if n, jerr := rand.Int(rand.Reader, big.NewInt(50)); jerr == nil {
			jitter = time.Duration(n.Int64()) * time.Millisecond
		}
		select {
		case <-ctx.Done():
			c.breaker.Failure()
			return nil, ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}

	c.breaker.Failure()
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("upstream %s still failing after %d retries: status %d", c.breaker.name, c.maxRetries, resp.StatusCode)
}

// CircuitBreaker implements a simple state machine for failure detection.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	failureCount int
	threshold    int
	lastFailure  time.Time
	resetTimeout time.Duration
	state        string // "CLOSED", "OPEN", "HALF_OPEN"
}

func NewCircuitBreaker(name string, threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: timeout,
		state:        "CLOSED",
	}
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == "OPEN" {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = "HALF_OPEN"
			return true
		}
		return false
	}
	return true
}

func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == "HALF_OPEN" {
		cb.state = "CLOSED"
	}
	cb.failureCount = 0
}

func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.lastFailure = time.Now()
	if cb.failureCount >= cb.threshold {
		cb.state = "OPEN"
	}
}
