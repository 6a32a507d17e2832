package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fedsim/fedsim/pkg/models"
)

// SQLiteStore is a Store backed by a sqlite database. Client and
// environment records are stored as JSON documents keyed by id; the
// mutable token state lives in dedicated tables so the single-use checks
// stay atomic at the database level.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS clients (
	id         TEXT PRIMARY KEY,
	document   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS environments (
	entity_id  TEXT PRIMARY KEY,
	document   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS refresh_tokens (
	token      TEXT PRIMARY KEY,
	client_id  TEXT NOT NULL,
	subject    TEXT NOT NULL,
	scope      TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS consumed_codes (
	jti        TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS revoked_token_ids (
	jti        TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL
);
`

// NewSQLiteStore opens (and if needed initializes) a sqlite-backed store.
// Use ":memory:" for an ephemeral database.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetClient(ctx context.Context, id string) (*models.Client, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM clients WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	client := &models.Client{}
	aux := clientDocument{Client: client}
	if err := json.Unmarshal([]byte(doc), &aux); err != nil {
		return nil, fmt.Errorf("corrupt client record %q: %w", id, err)
	}
	client.SecretHash = aux.SecretHash
	return client, nil
}

// clientDocument re-exposes the secret hash, which models.Client keeps out
// of JSON responses, for persistence only.
type clientDocument struct {
	*models.Client
	SecretHash string `json:"secret_hash"`
}

func (s *SQLiteStore) PutClient(ctx context.Context, client *models.Client) error {
	doc, err := json.Marshal(clientDocument{client, client.SecretHash})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO clients (id, document) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET document = excluded.document`,
		client.ID, string(doc))
	return err
}

func (s *SQLiteStore) ListClients(ctx context.Context) ([]*models.Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM clients`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		client := &models.Client{}
		aux := clientDocument{Client: client}
		if err := json.Unmarshal([]byte(doc), &aux); err != nil {
			return nil, err
		}
		client.SecretHash = aux.SecretHash
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

func (s *SQLiteStore) GetEnvironment(ctx context.Context, entityID string) (*models.SamlEnvironment, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM environments WHERE entity_id = ?`, entityID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var env models.SamlEnvironment
	if err := json.Unmarshal([]byte(doc), &env); err != nil {
		return nil, fmt.Errorf("corrupt environment record %q: %w", entityID, err)
	}
	return &env, nil
}

func (s *SQLiteStore) PutEnvironment(ctx context.Context, env *models.SamlEnvironment) error {
	doc, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO environments (entity_id, document) VALUES (?, ?)
		 ON CONFLICT(entity_id) DO UPDATE SET document = excluded.document`,
		env.EntityID, string(doc))
	return err
}

func (s *SQLiteStore) ListEnvironments(ctx context.Context) ([]*models.SamlEnvironment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM environments`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var envs []*models.SamlEnvironment
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var env models.SamlEnvironment
		if err := json.Unmarshal([]byte(doc), &env); err != nil {
			return nil, err
		}
		envs = append(envs, &env)
	}
	return envs, rows.Err()
}

func (s *SQLiteStore) PutRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token, client_id, subject, scope, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		token.Token, token.ClientID, token.Subject, token.Scope,
		token.ExpiresAt.Unix(), token.CreatedAt.Unix())
	return err
}

func (s *SQLiteStore) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt := &models.RefreshToken{}
	var expiresAt, createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT token, client_id, subject, scope, expires_at, created_at
		 FROM refresh_tokens WHERE token = ?`, token).
		Scan(&rt.Token, &rt.ClientID, &rt.Subject, &rt.Scope, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rt.ExpiresAt = time.Unix(expiresAt, 0)
	rt.CreatedAt = time.Unix(createdAt, 0)
	return rt, nil
}

func (s *SQLiteStore) DeleteRefreshToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = ?`, token)
	return err
}

func (s *SQLiteStore) MarkCodeConsumed(ctx context.Context, jti string, expiresAt time.Time) error {
	// INSERT with a primary-key conflict doubles as the atomic
	// consumed-before check.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consumed_codes (jti, expires_at) VALUES (?, ?)`,
		jti, expiresAt.Unix())
	if err != nil {
		return ErrAlreadyConsumed
	}
	return nil
}

func (s *SQLiteStore) RevokeTokenID(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO revoked_token_ids (jti, expires_at) VALUES (?, ?)
		 ON CONFLICT(jti) DO UPDATE SET expires_at = excluded.expires_at`,
		jti, expiresAt.Unix())
	return err
}

func (s *SQLiteStore) IsTokenIDRevoked(ctx context.Context, jti string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM revoked_token_ids WHERE jti = ?`, jti).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) error {
	ts := now.Unix()
	for _, stmt := range []string{
		`DELETE FROM consumed_codes WHERE expires_at < ?`,
		`DELETE FROM revoked_token_ids WHERE expires_at < ?`,
		`DELETE FROM refresh_tokens WHERE expires_at < ?`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt, ts); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
