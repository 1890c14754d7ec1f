package credentials_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenlens/mint-indexer/internal/credentials"
	"github.com/tokenlens/mint-indexer/internal/domain"
	"github.com/tokenlens/mint-indexer/internal/logger"
	"github.com/tokenlens/mint-indexer/internal/mocks"
	"github.com/tokenlens/mint-indexer/internal/store/schema"
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

func activeCreds(tokens ...string) []schema.Credential {
	creds := make([]schema.Credential, 0, len(tokens))
	for _, token := range tokens {
		creds = append(creds, schema.Credential{Token: token, Active: true})
	}
	return creds
}

func TestPool_CurrentOnEmptyPool(t *testing.T) {
	st := &mocks.Store{}
	pool := credentials.NewPool(st)
	require.NoError(t, pool.Load(context.Background()))

	_, err := pool.Current()
	assert.ErrorIs(t, err, domain.ErrNoCredential)
	assert.Equal(t, 0, pool.Size())
}

func TestPool_LoadFailurePropagates(t *testing.T) {
	st := &mocks.Store{
		GetActiveCredentialsFn: func(ctx context.Context) ([]schema.Credential, error) {
			return nil, errors.New("connection refused")
		},
	}
	pool := credentials.NewPool(st)

	err := pool.Load(context.Background())
	assert.ErrorContains(t, err, "failed to load credentials")
}

func TestPool_RotateAdvancesAndWrapsWithReload(t *testing.T) {
	loads := 0
	st := &mocks.Store{
		GetActiveCredentialsFn: func(ctx context.Context) ([]schema.Credential, error) {
			loads++
			return activeCreds("token-a", "token-b"), nil
		},
	}
	pool := credentials.NewPool(st)
	require.NoError(t, pool.Load(context.Background()))
	require.Equal(t, 1, loads)

	cred, err := pool.Current()
	require.NoError(t, err)
	assert.Equal(t, "token-a", cred.Token)

	// Advancing within the pool does not hit the store
	require.NoError(t, pool.Rotate(context.Background()))
	cred, err = pool.Current()
	require.NoError(t, err)
	assert.Equal(t, "token-b", cred.Token)
	assert.Equal(t, 1, loads)

	// Wrapping past the end reloads, picking up newly provisioned credentials
	require.NoError(t, pool.Rotate(context.Background()))
	cred, err = pool.Current()
	require.NoError(t, err)
	assert.Equal(t, "token-a", cred.Token)
	assert.Equal(t, 2, loads)
}

func TestPool_DisableCurrentRemovesAndPersists(t *testing.T) {
	var disabled []string
	st := &mocks.Store{
		GetActiveCredentialsFn: func(ctx context.Context) ([]schema.Credential, error) {
			return activeCreds("token-a", "token-b"), nil
		},
		DisableCredentialFn: func(ctx context.Context, token string) error {
			disabled = append(disabled, token)
			return nil
		},
	}
	pool := credentials.NewPool(st)
	require.NoError(t, pool.Load(context.Background()))

	require.NoError(t, pool.DisableCurrent(context.Background()))
	assert.Equal(t, []string{"token-a"}, disabled)
	assert.Equal(t, 1, pool.Size())

	cred, err := pool.Current()
	require.NoError(t, err)
	assert.Equal(t, "token-b", cred.Token)
}

func TestPool_DisableCurrentOnEmptyPool(t *testing.T) {
	st := &mocks.Store{}
	pool := credentials.NewPool(st)
	require.NoError(t, pool.Load(context.Background()))

	err := pool.DisableCurrent(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoCredential)
}

func TestPool_DisableCurrentKeepsPoolOnStoreFailure(t *testing.T) {
	st := &mocks.Store{
		GetActiveCredentialsFn: func(ctx context.Context) ([]schema.Credential, error) {
			return activeCreds("token-a"), nil
		},
		DisableCredentialFn: func(ctx context.Context, token string) error {
			return errors.New("connection refused")
		},
	}
	pool := credentials.NewPool(st)
	require.NoError(t, pool.Load(context.Background()))

	err := pool.DisableCurrent(context.Background())
	assert.ErrorContains(t, err, "failed to disable credential")
	// The credential stays available until deactivation is persisted
	assert.Equal(t, 1, pool.Size())
}

func TestPool_RotateOnEmptyPoolReloads(t *testing.T) {
	loads := 0
	st := &mocks.Store{
		GetActiveCredentialsFn: func(ctx context.Context) ([]schema.Credential, error) {
			loads++
			if loads == 1 {
				return nil, nil
			}
			return activeCreds("token-new"), nil
		},
	}
	pool := credentials.NewPool(st)
	require.NoError(t, pool.Load(context.Background()))
	require.Equal(t, 0, pool.Size())

	require.NoError(t, pool.Rotate(context.Background()))
	cred, err := pool.Current()
	require.NoError(t, err)
	assert.Equal(t, "token-new", cred.Token)
}

func TestPool_MarkUsedTouchesCurrentCredential(t *testing.T) {
	var touched []string
	st := &mocks.Store{
		GetActiveCredentialsFn: func(ctx context.Context) ([]schema.Credential, error) {
			return activeCreds("token-a"), nil
		},
		TouchCredentialFn: func(ctx context.Context, token string) error {
			touched = append(touched, token)
			return nil
		},
	}
	pool := credentials.NewPool(st)
	require.NoError(t, pool.Load(context.Background()))

	pool.MarkUsed(context.Background())
	assert.Equal(t, []string{"token-a"}, touched)

	// Empty pool usage is a no-op
	pool2 := credentials.NewPool(&mocks.Store{
		TouchCredentialFn: func(ctx context.Context, token string) error {
			t.Fatal("unexpected touch")
			return nil
		},
	})
	pool2.MarkUsed(context.Background())
}
