package uri_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenlens/mint-indexer/internal/domain"
	"github.com/tokenlens/mint-indexer/internal/logger"
	"github.com/tokenlens/mint-indexer/internal/uri"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

// fakeHTTPClient routes requests by URL prefix to scripted behaviors
type fakeHTTPClient struct {
	mu     sync.Mutex
	calls  map[string]int
	getFn  func(ctx context.Context, url string, result interface{}) error
	headFn func(ctx context.Context, url string) (*http.Response, error)
}

func (c *fakeHTTPClient) record(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[url]++
}

func (c *fakeHTTPClient) callCount(url string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[url]
}

func (c *fakeHTTPClient) GetJSON(ctx context.Context, url string, result interface{}) error {
	c.record(url)
	return c.getFn(ctx, url, result)
}

func (c *fakeHTTPClient) Head(ctx context.Context, url string) (*http.Response, error) {
	c.record(url)
	return c.headFn(ctx, url)
}

func headResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func TestContentPath(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		cid  string
		ok   bool
	}{
		{
			name: "ipfs scheme",
			uri:  "ipfs://bafybeigdyrzt5example",
			cid:  "bafybeigdyrzt5example",
			ok:   true,
		},
		{
			name: "gateway url",
			uri:  "https://ipfs.io/ipfs/QmExample/metadata.json",
			cid:  "QmExample/metadata.json",
			ok:   true,
		},
		{
			name: "plain https url",
			uri:  "https://example.com/metadata.json",
			ok:   false,
		},
		{
			name: "empty ipfs scheme",
			uri:  "ipfs://",
			ok:   false,
		},
		{
			name: "empty string",
			uri:  "",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cid, ok := uri.ContentPath(tt.uri)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.cid, cid)
		})
	}
}

func TestFetcher_FetchJSON_FirstSuccessWins(t *testing.T) {
	client := &fakeHTTPClient{
		getFn: func(ctx context.Context, url string, result interface{}) error {
			switch {
			case strings.HasPrefix(url, "https://gw-a"):
				return errors.New("gateway timeout")
			case strings.HasPrefix(url, "https://gw-b"):
				*(result.(*map[string]interface{})) = map[string]interface{}{"name": "Pepe"}
				return nil
			default:
				// Slow loser, canceled once the winner is in
				<-ctx.Done()
				return ctx.Err()
			}
		},
	}

	fetcher := uri.NewFetcher(client, &uri.Config{
		Gateways:   []string{"https://gw-a", "https://gw-b", "https://gw-c"},
		RetryCount: 0,
		RetryDelay: time.Millisecond,
	})

	doc, err := fetcher.FetchJSON(context.Background(), "QmExample")
	require.NoError(t, err)
	assert.Equal(t, "Pepe", doc["name"])
}

func TestFetcher_FetchJSON_RetriesWholeRace(t *testing.T) {
	client := &fakeHTTPClient{
		getFn: func(ctx context.Context, url string, result interface{}) error {
			return errors.New("gateway timeout")
		},
	}

	fetcher := uri.NewFetcher(client, &uri.Config{
		Gateways:   []string{"https://gw-a", "https://gw-b"},
		RetryCount: 2,
		RetryDelay: time.Millisecond,
	})

	_, err := fetcher.FetchJSON(context.Background(), "QmExample")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoGatewayAvailable)

	// Initial race plus two retries, every gateway attempted each time
	assert.Equal(t, 3, client.callCount("https://gw-a/ipfs/QmExample"))
	assert.Equal(t, 3, client.callCount("https://gw-b/ipfs/QmExample"))
}

func TestFetcher_FetchJSON_NoGatewaysConfigured(t *testing.T) {
	fetcher := uri.NewFetcher(&fakeHTTPClient{}, &uri.Config{
		RetryCount: 3,
		RetryDelay: time.Millisecond,
	})

	_, err := fetcher.FetchJSON(context.Background(), "QmExample")
	assert.ErrorIs(t, err, domain.ErrNoGatewayAvailable)
}

func TestFetcher_CheckExists_ReturnsCanonicalURL(t *testing.T) {
	client := &fakeHTTPClient{
		headFn: func(ctx context.Context, url string) (*http.Response, error) {
			if strings.HasPrefix(url, "https://gw-b") {
				return headResponse(http.StatusOK), nil
			}
			return headResponse(http.StatusNotFound), nil
		},
	}

	fetcher := uri.NewFetcher(client, &uri.Config{
		Gateways:   []string{"https://gw-a", "https://gw-b"},
		RetryCount: 0,
		RetryDelay: time.Millisecond,
	})

	// Whichever gateway answers, the rewritten URL points at the first one
	url, err := fetcher.CheckExists(context.Background(), "QmExample")
	require.NoError(t, err)
	assert.Equal(t, "https://gw-a/ipfs/QmExample", url)
}

func TestFetcher_CheckExists_AllGatewaysMissing(t *testing.T) {
	client := &fakeHTTPClient{
		headFn: func(ctx context.Context, url string) (*http.Response, error) {
			return headResponse(http.StatusNotFound), nil
		},
	}

	fetcher := uri.NewFetcher(client, &uri.Config{
		Gateways:   []string{"https://gw-a", "https://gw-b"},
		RetryCount: 0,
		RetryDelay: time.Millisecond,
	})

	_, err := fetcher.CheckExists(context.Background(), "QmExample")
	assert.ErrorIs(t, err, domain.ErrNoGatewayAvailable)
}

func TestFetcher_CanonicalURL(t *testing.T) {
	fetcher := uri.NewFetcher(&fakeHTTPClient{}, &uri.Config{
		Gateways: []string{"https://gw-a", "https://gw-b"},
	})
	assert.Equal(t, "https://gw-a/ipfs/QmExample", fetcher.CanonicalURL("QmExample"))

	empty := uri.NewFetcher(&fakeHTTPClient{}, &uri.Config{})
	assert.Equal(t, "", empty.CanonicalURL("QmExample"))
}
