package user

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrConflict   = errors.New("user already exists")
	ErrStaleToken = errors.New("stale refresh token")
)

// Repo is the credential store. Implementations return ErrNotFound,
// ErrConflict or ErrStaleToken (possibly wrapped) for the matching conditions.
type Repo interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// FindByIdentity matches identifier exactly against username or email.
	FindByIdentity(ctx context.Context, identifier string) (*User, error)
	// ExistsByUsernameOrEmail reports whether either value is already taken.
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)

	SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error
	// RotateRefreshToken stores next only if the current value equals presented.
	RotateRefreshToken(ctx context.Context, id uuid.UUID, presented, next string) error

	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	UpdateProfile(ctx context.Context, id uuid.UUID, fullName, email string) (*User, error)
	UpdateImage(ctx context.Context, id uuid.UUID, kind ImageKind, url string) (*User, error)
}
