package broker

import (
	"context"
	"log/slog"
	"sync"

	"bracketd/internal/domain"
)

// TokenManager owns the cached venue token. Before reusing a cached token it
// probes it with the venue's cheap validate call and logs in again if the
// probe fails. A failure here is fatal only to the in-flight operation, never
// to the process.
type TokenManager struct {
	gw  Gateway
	log *slog.Logger

	mu    sync.Mutex
	token string
}

// NewTokenManager creates a TokenManager over the given gateway.
func NewTokenManager(gw Gateway, log *slog.Logger) *TokenManager {
	return &TokenManager{gw: gw, log: log}
}

// Token returns a usable bearer token, reusing the cached one when it still
// validates. Set forceRefresh to skip the probe and log in unconditionally.
func (m *TokenManager) Token(ctx context.Context, forceRefresh bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && !forceRefresh {
		if err := m.gw.ValidateToken(ctx, m.token); err == nil {
			return m.token, nil
		}
		m.log.Info("cached token no longer valid, re-authenticating")
	}

	token, err := m.gw.Login(ctx)
	if err != nil {
		m.token = ""
		return "", domain.WrapError(domain.KindAuthFailure, err, "authenticating with venue")
	}
	m.token = token
	return token, nil
}

// Invalidate drops the cached token so the next Token call logs in again.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}
