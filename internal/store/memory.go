package store

import (
	"context"
	"sync"
	"time"

	"github.com/fedsim/fedsim/pkg/models"
)

// MemoryStore is an in-memory Store. It is the default driver for the
// simulator and for tests; all state is lost on restart.
type MemoryStore struct {
	clients       map[string]*models.Client
	environments  map[string]*models.SamlEnvironment
	refreshTokens map[string]*models.RefreshToken
	consumedCodes map[string]time.Time
	revokedIDs    map[string]time.Time
	mu            sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients:       make(map[string]*models.Client),
		environments:  make(map[string]*models.SamlEnvironment),
		refreshTokens: make(map[string]*models.RefreshToken),
		consumedCodes: make(map[string]time.Time),
		revokedIDs:    make(map[string]time.Time),
	}
}

func (s *MemoryStore) GetClient(_ context.Context, id string) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return client, nil
}

func (s *MemoryStore) PutClient(_ context.Context, client *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = client
	return nil
}

func (s *MemoryStore) ListClients(_ context.Context) ([]*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clients := make([]*models.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	return clients, nil
}

func (s *MemoryStore) GetEnvironment(_ context.Context, entityID string) (*models.SamlEnvironment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.environments[entityID]
	if !ok {
		return nil, ErrNotFound
	}
	return env, nil
}

func (s *MemoryStore) PutEnvironment(_ context.Context, env *models.SamlEnvironment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.environments[env.EntityID] = env
	return nil
}

func (s *MemoryStore) ListEnvironments(_ context.Context) ([]*models.SamlEnvironment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	envs := make([]*models.SamlEnvironment, 0, len(s.environments))
	for _, env := range s.environments {
		envs = append(envs, env)
	}
	return envs, nil
}

func (s *MemoryStore) PutRefreshToken(_ context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens[token.Token] = token
	return nil
}

func (s *MemoryStore) GetRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.refreshTokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	return rt, nil
}

func (s *MemoryStore) DeleteRefreshToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refreshTokens, token)
	return nil
}

func (s *MemoryStore) MarkCodeConsumed(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, consumed := s.consumedCodes[jti]; consumed {
		return ErrAlreadyConsumed
	}
	s.consumedCodes[jti] = expiresAt
	return nil
}

func (s *MemoryStore) RevokeTokenID(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokedIDs[jti] = expiresAt
	return nil
}

func (s *MemoryStore) IsTokenIDRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, revoked := s.revokedIDs[jti]
	return revoked, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, exp := range s.consumedCodes {
		if exp.Before(now) {
			delete(s.consumedCodes, jti)
		}
	}
	for jti, exp := range s.revokedIDs {
		if exp.Before(now) {
			delete(s.revokedIDs, jti)
		}
	}
	for token, rt := range s.refreshTokens {
		if rt.ExpiresAt.Before(now) {
			delete(s.refreshTokens, token)
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
