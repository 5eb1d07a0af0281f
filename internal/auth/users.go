package auth

import (
	"context"

	"github.com/example/court-scheduler/internal/db"
)

// PGUsers is the Postgres-backed account table.
type PGUsers struct{ db *db.DB }

func NewPGUsers(d *db.DB) *PGUsers { return &PGUsers{db: d} }

func (u *PGUsers) Create(ctx context.Context, username, passwordBcrypt string) error {
	return u.db.Exec(ctx,
		`INSERT INTO users (username, password_bcrypt) VALUES ($1,$2)`,
		username, passwordBcrypt)
}

func (u *PGUsers) Lookup(ctx context.Context, username string) (int64, string, error) {
	var (
		id   int64
		hash string
	)
	err := u.db.QueryRow(ctx,
		`SELECT id, password_bcrypt FROM users WHERE username=$1`, username).
		Scan(&id, &hash)
	if err != nil {
		return 0, "", db.WrapNotFound(err)
	}
	return id, hash, nil
}
