package postgres

import (
	"errors"

	"github.com/NordCoder/Passage/internal/domain/user"
	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinels are shared with the domain so callers need not import this package.
var (
	ErrNotFound = user.ErrNotFound
	ErrConflict = user.ErrConflict
	// ErrStaleToken means the stored refresh token no longer matches the one presented.
	ErrStaleToken = user.ErrStaleToken
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
