// Package store provides the credential store consumed by the protocol
// engines: client and environment records (read-mostly) plus the mutable
// token state (refresh tokens, consumed codes, revoked token IDs).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fedsim/fedsim/pkg/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyConsumed is returned by MarkCodeConsumed when the code was
	// already exchanged once.
	ErrAlreadyConsumed = errors.New("code already consumed")
)

// Store is the record store the engines run against. Implementations must
// provide atomic create/read/delete per record; no partial writes may be
// observable.
type Store interface {
	GetClient(ctx context.Context, id string) (*models.Client, error)
	PutClient(ctx context.Context, client *models.Client) error
	ListClients(ctx context.Context) ([]*models.Client, error)

	GetEnvironment(ctx context.Context, entityID string) (*models.SamlEnvironment, error)
	PutEnvironment(ctx context.Context, env *models.SamlEnvironment) error
	ListEnvironments(ctx context.Context) ([]*models.SamlEnvironment, error)

	PutRefreshToken(ctx context.Context, token *models.RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error

	// MarkCodeConsumed atomically records that an authorization code (by
	// jti) has been exchanged. A second call for the same jti fails with
	// ErrAlreadyConsumed. expiresAt bounds how long the entry is kept.
	MarkCodeConsumed(ctx context.Context, jti string, expiresAt time.Time) error

	// RevokeTokenID marks an access token (by jti) revoked until expiresAt.
	RevokeTokenID(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenIDRevoked(ctx context.Context, jti string) (bool, error)

	// DeleteExpired removes consumed-code and revocation entries whose
	// expiry is before now. Refresh tokens past expiry are removed too.
	DeleteExpired(ctx context.Context, now time.Time) error

	Close() error
}
