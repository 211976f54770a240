package auth

import (
	"context"

	"github.com/google/uuid"
)

type TokenCodec interface {
	IssueAccess(subject uuid.UUID) (IssuedToken, error)
	IssueRefresh(subject uuid.UUID) (IssuedToken, error)
	Verify(token string, class TokenClass) (*Claims, error)
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// LoginLimiter throttles failed password attempts. A nil LoginLimiter
// disables throttling.
type LoginLimiter interface {
	Allow(ctx context.Context, identifier, ip string) (bool, error)
	Fail(ctx context.Context, identifier, ip string) error
	Reset(ctx context.Context, identifier, ip string) error
}
