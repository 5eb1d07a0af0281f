// Package creds stores the venue session cookie, sealed at rest. The cookie
// itself is produced by an external login flow and pasted in via the CLI.
package creds

import (
	"context"
	"fmt"
	"time"

	"github.com/example/court-scheduler/internal/crypto"
	"github.com/example/court-scheduler/internal/db"
)

// the single credential row; one venue account per deployment
const credName = "venue_session"

type Store struct {
	db   *db.DB
	aead *crypto.AEAD
}

func NewStore(d *db.DB, aead *crypto.AEAD) *Store {
	return &Store{db: d, aead: aead}
}

func (s *Store) SetSessionCookie(ctx context.Context, cookie string) error {
	sealed, err := s.aead.EncryptToString(cookie)
	if err != nil {
		return fmt.Errorf("seal cookie: %w", err)
	}
	return s.db.Exec(ctx, `
INSERT INTO venue_credentials (name, cookie_sealed, updated_at)
VALUES ($1,$2,$3)
ON CONFLICT (name) DO UPDATE SET cookie_sealed=EXCLUDED.cookie_sealed, updated_at=EXCLUDED.updated_at`,
		credName, sealed, time.Now().UTC(),
	)
}

// SessionCookie satisfies venue.CredentialsProvider. A missing row is not an
// error: the client just goes out unauthenticated and the venue says so.
func (s *Store) SessionCookie(ctx context.Context) (string, error) {
	var sealed string
	err := s.db.QueryRow(ctx, `SELECT cookie_sealed FROM venue_credentials WHERE name=$1`, credName).Scan(&sealed)
	if err != nil {
		if db.IsNotFound(db.WrapNotFound(err)) {
			return "", nil
		}
		return "", err
	}
	cookie, err := s.aead.DecryptString(sealed)
	if err != nil {
		return "", fmt.Errorf("unseal cookie: %w", err)
	}
	return cookie, nil
}
