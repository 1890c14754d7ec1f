package uri

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/tokenlens/mint-indexer/internal/adapter"
	"github.com/tokenlens/mint-indexer/internal/domain"
	"github.com/tokenlens/mint-indexer/internal/logger"
)

// Config holds configuration for the gateway fetcher
type Config struct {
	// Gateways is the ordered list of content gateway base URLs.
	// The first entry is the canonical gateway used for rewritten URLs.
	Gateways []string
	// RetryCount is how many times a failed race across all gateways is retried
	RetryCount int
	// RetryDelay is the fixed delay between race retries
	RetryDelay time.Duration
}

// Fetcher resolves content-addressed documents through interchangeable
// gateway hosts: every configured gateway is raced concurrently and the
// first success wins.
type Fetcher interface {
	// FetchJSON fetches the document for cid and decodes it as JSON
	FetchJSON(ctx context.Context, cid string) (map[string]interface{}, error)
	// CheckExists verifies that cid is served by at least one gateway.
	// On success it returns the canonical first-gateway URL for cid.
	CheckExists(ctx context.Context, cid string) (string, error)
	// CanonicalURL returns the first-gateway URL for cid without any check
	CanonicalURL(cid string) string
}

type fetcher struct {
	httpClient adapter.HTTPClient
	config     *Config
	breakers   map[string]*gobreaker.CircuitBreaker
}

// NewFetcher creates a gateway fetcher. Each gateway gets its own circuit
// breaker so a dead host stops consuming race slots quickly.
func NewFetcher(httpClient adapter.HTTPClient, config *Config) Fetcher {
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(config.Gateways))
	for _, gw := range config.Gateways {
		breakers[gw] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    gw,
			Timeout: 30 * time.Second,
		})
	}
	return &fetcher{
		httpClient: httpClient,
		config:     config,
		breakers:   breakers,
	}
}

// ContentPath extracts the content identifier from a metadata URI.
// Supports ipfs:// URIs and gateway URLs containing /ipfs/.
func ContentPath(uri string) (string, bool) {
	if cid, ok := strings.CutPrefix(uri, "ipfs://"); ok && cid != "" {
		return cid, true
	}
	if _, rest, ok := strings.Cut(uri, "/ipfs/"); ok && rest != "" {
		return rest, true
	}
	return "", false
}

func (f *fetcher) CanonicalURL(cid string) string {
	if len(f.config.Gateways) == 0 {
		return ""
	}
	return fmt.Sprintf("%s/ipfs/%s", f.config.Gateways[0], cid)
}

// FetchJSON fetches the document for cid, racing all gateways and retrying
// the whole race up to RetryCount times
func (f *fetcher) FetchJSON(ctx context.Context, cid string) (map[string]interface{}, error) {
	var doc map[string]interface{}

	operation := func() error {
		res, err := f.race(ctx, cid, func(raceCtx context.Context, url string) (interface{}, error) {
			var body map[string]interface{}
			if err := f.httpClient.GetJSON(raceCtx, url, &body); err != nil {
				return nil, err
			}
			return body, nil
		})
		if err != nil {
			return err
		}
		doc = res.(map[string]interface{})
		return nil
	}

	if err := f.retryRace(ctx, operation); err != nil {
		return nil, err
	}
	return doc, nil
}

// CheckExists races HEAD requests across the gateways and returns the
// canonical first-gateway URL when any gateway serves the content
func (f *fetcher) CheckExists(ctx context.Context, cid string) (string, error) {
	operation := func() error {
		_, err := f.race(ctx, cid, func(raceCtx context.Context, url string) (interface{}, error) {
			resp, err := f.httpClient.Head(raceCtx, url)
			if err != nil {
				return nil, err
			}
			if err := resp.Body.Close(); err != nil {
				logger.WarnCtx(raceCtx, "failed to close response body", zap.Error(err), zap.String("url", url))
			}
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
			}
			return url, nil
		})
		return err
	}

	if err := f.retryRace(ctx, operation); err != nil {
		return "", err
	}
	return f.CanonicalURL(cid), nil
}

// retryRace retries a whole gateway race with a fixed delay. Expressing the
// retry as a bounded combinator keeps the retry count independently testable.
func (f *fetcher) retryRace(ctx context.Context, operation func() error) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(f.config.RetryDelay), uint64(f.config.RetryCount)),
		ctx,
	)
	return backoff.Retry(operation, b)
}

// race runs attempt against every gateway concurrently and returns the first
// success. Remaining attempts are canceled once a winner is found.
func (f *fetcher) race(ctx context.Context, cid string, attempt func(ctx context.Context, url string) (interface{}, error)) (interface{}, error) {
	if len(f.config.Gateways) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("no gateways configured: %w", domain.ErrNoGatewayAvailable))
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		value interface{}
		err   error
	}

	resultCh := make(chan result, len(f.config.Gateways))
	var wg sync.WaitGroup

	for _, gateway := range f.config.Gateways {
		wg.Add(1)
		go func(gw string) {
			defer wg.Done()

			url := fmt.Sprintf("%s/ipfs/%s", gw, cid)
			value, err := f.breakers[gw].Execute(func() (interface{}, error) {
				return attempt(raceCtx, url)
			})
			resultCh <- result{value: value, err: err}
		}(gateway)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var lastErr error
	for res := range resultCh {
		if res.err == nil {
			cancel()
			return res.value, nil
		}
		lastErr = res.err
	}

	return nil, fmt.Errorf("%w for %s: %v", domain.ErrNoGatewayAvailable, cid, lastErr)
}
