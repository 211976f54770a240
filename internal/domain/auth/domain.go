package auth

import (
	"time"

	"github.com/google/uuid"
)

// TokenClass scopes a token to the secret and audience it was issued for.
type TokenClass string

const (
	ClassAccess  TokenClass = "access"
	ClassRefresh TokenClass = "refresh"
)

type Claims struct {
	Subject   uuid.UUID
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Class     TokenClass
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
