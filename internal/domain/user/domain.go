package user

import (
	"time"

	"github.com/google/uuid"
)

// User is the stored identity record. PasswordHash and RefreshToken never
// leave the service; use Public for anything returned to a client.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	FullName     string
	Avatar       string
	CoverImage   string
	PasswordHash string
	RefreshToken string // empty means no active session
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public is the identity without credential fields.
type Public struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullname"`
	Avatar     string    `json:"avatar"`
	CoverImage string    `json:"coverImage"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (u *User) Public() *Public {
	return &Public{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName,
		Avatar:     u.Avatar,
		CoverImage: u.CoverImage,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

type ImageKind string

const (
	ImageAvatar     ImageKind = "avatar"
	ImageCoverImage ImageKind = "cover-image"
)
