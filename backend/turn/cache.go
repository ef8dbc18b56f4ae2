// Package turn fetches and memoizes short-lived NAT-traversal credentials
// from an upstream provider.
package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultEndpoint     = "https://speed.cloudflare.com/turn-creds"
	defaultTTL          = 20 * time.Minute
	defaultFetchTimeout = 10 * time.Second

	maxCredentialBodySize = 64 * 1024
)

// Cache is a single process-wide memo of upstream TURN credentials. A fetch
// failure never surfaces to callers; they see the previous value, which may
// be nil if the cache was never populated.
type Cache struct {
	logger   zerolog.Logger
	mx       *sync.Mutex
	client   *http.Client
	endpoint string
	ttl      time.Duration
	now      func() time.Time

	creds     json.RawMessage
	expiresAt time.Time
}

type Config struct {
	Logger   *zerolog.Logger
	Endpoint string

	// TTL defaults to 20 minutes.
	TTL time.Duration

	// Client and Now are injectable for tests.
	Client *http.Client
	Now    func() time.Time
}

func New(cfg Config) *Cache {
	c := &Cache{
		logger:   cfg.Logger.With().Str("component", "turn-cache").Logger(),
		mx:       &sync.Mutex{},
		client:   cfg.Client,
		endpoint: cfg.Endpoint,
		ttl:      cfg.TTL,
		now:      cfg.Now,
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: defaultFetchTimeout}
	}
	if c.endpoint == "" {
		c.endpoint = defaultEndpoint
	}
	if c.ttl <= 0 {
		c.ttl = defaultTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Credentials returns the cached payload, refreshing it from upstream when
// expired. Nil is a valid steady-state result, not an error. The lock is held
// across the fetch, which also serializes concurrent refreshes into one
// upstream call.
func (c *Cache) Credentials(ctx context.Context) json.RawMessage {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.creds != nil && c.now().Before(c.expiresAt) {
		return c.creds
	}

	creds, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Str("endpoint", c.endpoint).Msg("credential fetch failed")
		return c.creds
	}

	c.creds = creds
	c.expiresAt = c.now().Add(c.ttl)
	c.logger.Debug().Msg("fetched TURN credentials")
	return c.creds
}

func (c *Cache) fetch(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected upstream status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCredentialBodySize))
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, errors.New("upstream body is not valid JSON")
	}
	return body, nil
}
