package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NordCoder/Passage/internal/domain/user"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var _ user.Repo = (*UserRepo)(nil)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, username, email, full_name, avatar, cover_image, password_hash, refresh_token, created_at, updated_at`

const (
	qUserInsert = `
INSERT INTO users (id, username, email, full_name, avatar, cover_image, password_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + userColumns + `;`

	qUserByID = `
SELECT ` + userColumns + `
FROM users
WHERE id = $1;`

	qUserByIdentity = `
SELECT ` + userColumns + `
FROM users
WHERE username = $1 OR email = $1
LIMIT 1;`

	// both values are checked against both columns so login by either
	// identifier stays unambiguous
	qUserExists = `
SELECT EXISTS (
    SELECT 1 FROM users
    WHERE username IN ($1, $2) OR email IN ($1, $2)
);`

	qUserSetRefresh = `
UPDATE users
SET refresh_token = $2,
    updated_at    = now()
WHERE id = $1;`

	qUserRotateRefresh = `
UPDATE users
SET refresh_token = $3,
    updated_at    = now()
WHERE id = $1 AND refresh_token = $2 AND refresh_token <> '';`

	qUserSetPassword = `
UPDATE users
SET password_hash = $2,
    updated_at    = now()
WHERE id = $1;`

	qUserSetProfile = `
UPDATE users
SET full_name  = $2,
    email      = $3,
    updated_at = now()
WHERE id = $1
RETURNING ` + userColumns + `;`

	qUserSetAvatar = `
UPDATE users
SET avatar     = $2,
    updated_at = now()
WHERE id = $1
RETURNING ` + userColumns + `;`

	qUserSetCover = `
UPDATE users
SET cover_image = $2,
    updated_at  = now()
WHERE id = $1
RETURNING ` + userColumns + `;`
)

func (r *UserRepo) Create(ctx context.Context, u *user.User) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	row := r.db.execQueryer(ctx).QueryRow(ctx, qUserInsert,
		u.ID, u.Username, u.Email, u.FullName, u.Avatar, u.CoverImage, u.PasswordHash)
	if err := scanUser(row, u); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("user insert: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var u user.User
	if err := scanUser(r.db.execQueryer(ctx).QueryRow(ctx, qUserByID, id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) FindByIdentity(ctx context.Context, identifier string) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	identifier = strings.ToLower(strings.TrimSpace(identifier))
	var u user.User
	if err := scanUser(r.db.execQueryer(ctx).QueryRow(ctx, qUserByIdentity, identifier), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var exists bool
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qUserExists, username, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return exists, nil
}

func (r *UserRepo) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	return r.execOne(ctx, "set refresh token", qUserSetRefresh, id, token)
}

// RotateRefreshToken swaps presented for next only if presented is still the
// stored value. Zero rows affected yields ErrStaleToken.
func (r *UserRepo) RotateRefreshToken(ctx context.Context, id uuid.UUID, presented, next string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qUserRotateRefresh, id, presented, next)
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleToken
	}
	return nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.execOne(ctx, "update password", qUserSetPassword, id, hash)
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, fullName, email string) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var u user.User
	row := r.db.execQueryer(ctx).QueryRow(ctx, qUserSetProfile, id, fullName, strings.ToLower(email))
	if err := scanUser(row, &u); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) UpdateImage(ctx context.Context, id uuid.UUID, kind user.ImageKind, url string) (*user.User, error) {
	var q string
	switch kind {
	case user.ImageAvatar:
		q = qUserSetAvatar
	case user.ImageCoverImage:
		q = qUserSetCover
	default:
		return nil, fmt.Errorf("unknown image kind %q", kind)
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var u user.User
	if err := scanUser(r.db.execQueryer(ctx).QueryRow(ctx, q, id, url), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) execOne(ctx context.Context, op, q string, args ...any) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row, out *user.User) error {
	if err := row.Scan(
		&out.ID, &out.Username, &out.Email, &out.FullName, &out.Avatar, &out.CoverImage,
		&out.PasswordHash, &out.RefreshToken, &out.CreatedAt, &out.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("scan user: %w", err)
	}
	return nil
}
