package metar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/salvatore0626/PiZeroMetarMap/pkg/logger"
)

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errCircuitOpen = errors.New("circuit breaker open")
)

// ClientConfig contains the HTTP client settings
type ClientConfig struct {
	BaseURL        string
	UserAgent      string
	RequestTimeout time.Duration
	MaxRetries     int
	MaxBatchSize   int
}

// Client fetches METAR reports from the aviation weather API
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

// NewClient creates a new METAR API client
func NewClient(config ClientConfig, log *logger.Logger) *Client {
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 150
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "aviationweather",
			Timeout: 2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		logger: log.Named("metar-client"),
	}
}

// Fetch requests current METARs for the given stations within the lookback
// window and returns the latest normalized Condition per station.
func (c *Client) Fetch(ctx context.Context, stationIDs []string, lookback time.Duration) (map[string]Condition, error) {
	ids := normalizeIDs(stationIDs)
	if len(ids) == 0 {
		return map[string]Condition{}, nil
	}

	hours := int(lookback.Hours())
	if hours < 1 {
		hours = 1
	}

	now := time.Now().UTC()
	var conditions []Condition
	for start := 0; start < len(ids); start += c.config.MaxBatchSize {
		end := start + c.config.MaxBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		body, err := c.fetchChunk(ctx, ids[start:end], hours)
		if err != nil {
			return nil, err
		}

		for _, record := range ParseRecords(body) {
			if cond, ok := ConditionFromRecord(record, now); ok {
				conditions = append(conditions, cond)
			}
		}
	}

	return Latest(conditions), nil
}

// fetchChunk performs one batched request with retry, exponential backoff,
// and the circuit breaker. Rate-limit responses back off harder.
func (c *Client) fetchChunk(ctx context.Context, ids []string, hours int) ([]byte, error) {
	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("hours", fmt.Sprintf("%d", hours))
	query.Set("format", "json")
	requestURL := fmt.Sprintf("%s/api/data/metar?%s", c.config.BaseURL, query.Encode())

	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Info("Retrying METAR fetch",
				logger.Int("attempt", attempt),
				logger.Int("max_attempts", c.config.MaxRetries+1),
				logger.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		body, err := c.doRequest(ctx, requestURL)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if errors.Is(err, errCircuitOpen) {
			return nil, err
		}
		if errors.Is(err, errRateLimited) {
			// Back off harder when the API pushes back
			backoff *= 2
		}

		c.logger.Warn("METAR fetch attempt failed, may retry",
			logger.Error(err),
			logger.Int("attempt", attempt+1),
			logger.Int("max_attempts", c.config.MaxRetries+1))
	}

	return nil, fmt.Errorf("all %d attempts failed: %w", c.config.MaxRetries+1, lastErr)
}

// doRequest executes a single HTTP request through the circuit breaker
func (c *Client) doRequest(ctx context.Context, requestURL string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.config.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("error making request to weather API: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNoContent:
			return []byte{}, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, errRateLimited
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: status %d", errServerError, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("error reading weather API response: %w", err)
		}
		return body, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return nil, err
	}
	return result.([]byte), nil
}

// normalizeIDs upper-cases, de-duplicates, and sorts station identifiers
func normalizeIDs(stationIDs []string) []string {
	seen := make(map[string]bool, len(stationIDs))
	ids := make([]string, 0, len(stationIDs))
	for _, id := range stationIDs {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
