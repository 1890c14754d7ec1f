package credentials

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tokenlens/mint-indexer/internal/domain"
	"github.com/tokenlens/mint-indexer/internal/logger"
	"github.com/tokenlens/mint-indexer/internal/store"
	"github.com/tokenlens/mint-indexer/internal/store/schema"
)

// Pool owns the set of feed access tokens and the rotation cursor.
// All mutation is funneled through its methods so that rotation stays atomic;
// the feed connection never touches credential state directly.
type Pool struct {
	mu     sync.Mutex
	store  store.Store
	creds  []schema.Credential
	cursor int
}

// NewPool creates a credential pool backed by the store
func NewPool(st store.Store) *Pool {
	return &Pool{store: st}
}

// Load fetches all currently active credentials and resets the rotation cursor
func (p *Pool) Load(ctx context.Context) error {
	creds, err := p.store.GetActiveCredentials(ctx)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds = creds
	p.cursor = 0

	logger.InfoCtx(ctx, "Credential pool loaded", zap.Int("count", len(creds)))
	return nil
}

// Current returns the credential at the rotation cursor.
// Returns domain.ErrNoCredential when the pool is empty.
func (p *Pool) Current() (*schema.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.creds) == 0 {
		return nil, domain.ErrNoCredential
	}

	cred := p.creds[p.cursor]
	return &cred, nil
}

// DisableCurrent marks the cursor's credential permanently inactive and
// removes it from the in-memory pool. The deactivation is persisted so the
// credential is not reloaded.
func (p *Pool) DisableCurrent(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.creds) == 0 {
		return domain.ErrNoCredential
	}

	cred := p.creds[p.cursor]
	if err := p.store.DisableCredential(ctx, cred.Token); err != nil {
		return fmt.Errorf("failed to disable credential: %w", err)
	}

	p.creds = append(p.creds[:p.cursor], p.creds[p.cursor+1:]...)
	if p.cursor >= len(p.creds) {
		p.cursor = 0
	}

	logger.WarnCtx(ctx, "Credential disabled", zap.Int("remaining", len(p.creds)))
	return nil
}

// Rotate advances the cursor to the next credential, reloading the pool from
// the store when the cursor would wrap past the end.
func (p *Pool) Rotate(ctx context.Context) error {
	p.mu.Lock()

	if len(p.creds) == 0 {
		p.mu.Unlock()
		return p.Load(ctx)
	}

	p.cursor++
	if p.cursor < len(p.creds) {
		logger.InfoCtx(ctx, "Rotated to next credential", zap.Int("cursor", p.cursor))
		p.mu.Unlock()
		return nil
	}

	// Wrapped: pick up any credentials added since the last load
	p.mu.Unlock()
	return p.Load(ctx)
}

// MarkUsed records a successful subscription with the current credential
func (p *Pool) MarkUsed(ctx context.Context) {
	p.mu.Lock()
	if len(p.creds) == 0 {
		p.mu.Unlock()
		return
	}
	token := p.creds[p.cursor].Token
	p.mu.Unlock()

	if err := p.store.TouchCredential(ctx, token); err != nil {
		logger.WarnCtx(ctx, "Failed to record credential usage", zap.Error(err))
	}
}

// Size returns the number of credentials currently in the pool
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}
