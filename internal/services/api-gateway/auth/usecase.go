package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/NordCoder/Passage/internal/apperr"
	authx "github.com/NordCoder/Passage/internal/auth"
	domainauth "github.com/NordCoder/Passage/internal/domain/auth"
	"github.com/NordCoder/Passage/internal/domain/media"
	"github.com/NordCoder/Passage/internal/domain/outbox"
	"github.com/NordCoder/Passage/internal/domain/user"
	"github.com/NordCoder/Passage/internal/obs"
	outboxx "github.com/NordCoder/Passage/internal/outbox"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transactor runs fn in one database transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Deps struct {
	Users    user.Repo
	Tokens   domainauth.TokenCodec
	Hasher   domainauth.PasswordHasher
	Tx       Transactor
	Outbox   outbox.Repository
	Uploader media.Uploader
	// Limiter may be nil.
	Limiter domainauth.LoginLimiter
	Logger  *zap.Logger
	Now     func() time.Time
}

// Usecase owns the session lifecycle: login, refresh rotation, logout and
// password change, plus the account operations around them.
type Usecase struct {
	users    user.Repo
	tokens   domainauth.TokenCodec
	hasher   domainauth.PasswordHasher
	tx       Transactor
	outbox   outbox.Repository
	uploader media.Uploader
	limiter  domainauth.LoginLimiter
	log      *zap.Logger
	now      func() time.Time
}

func NewUseCase(d Deps) *Usecase {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Usecase{
		users:    d.Users,
		tokens:   d.Tokens,
		hasher:   d.Hasher,
		tx:       d.Tx,
		outbox:   d.Outbox,
		uploader: d.Uploader,
		limiter:  d.Limiter,
		log:      d.Logger.With(zap.String("component", "auth.usecase")),
		now:      d.Now,
	}
}

type LoginInput struct {
	Identifier string
	Password   string
	ClientIP   string
}

type Session struct {
	User   *user.Public
	Tokens domainauth.TokenPair
}

type RegisterInput struct {
	Username   string
	Email      string
	FullName   string
	Password   string
	AvatarPath string
	// CoverImagePath is optional.
	CoverImagePath string
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (u *Usecase) Login(ctx context.Context, in LoginInput) (*Session, error) {
	identifier := normalize(in.Identifier)
	if identifier == "" {
		return nil, apperr.Validation("Username or email is required")
	}
	if in.Password == "" {
		return nil, apperr.Validation("Password is required")
	}

	if !u.allowLogin(ctx, identifier, in.ClientIP) {
		obs.Logins.WithLabelValues("throttled").Inc()
		return nil, apperr.TooManyRequests("Too many failed login attempts, try again later")
	}

	rec, err := u.users.FindByIdentity(ctx, identifier)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			u.failLogin(ctx, identifier, in.ClientIP)
			obs.Logins.WithLabelValues("unknown_user").Inc()
			return nil, apperr.NotFound("User does not exist")
		}
		return nil, apperr.Internal(fmt.Errorf("find user: %w", err))
	}

	if !u.hasher.Verify(in.Password, rec.PasswordHash) {
		u.failLogin(ctx, identifier, in.ClientIP)
		obs.Logins.WithLabelValues("bad_password").Inc()
		return nil, apperr.InvalidCredentials("Invalid user credentials")
	}

	pair, err := u.issuePair(rec.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	// overwriting the stored token ends any session opened elsewhere
	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := u.users.SetRefreshToken(ctx, rec.ID, pair.Refresh.Value); err != nil {
			return fmt.Errorf("store refresh token: %w", err)
		}
		return outboxx.EnqueueAccountEvent(ctx, u.outbox, outbox.KindSessionStarted, rec, u.now())
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if u.limiter != nil {
		if err := u.limiter.Reset(ctx, identifier, in.ClientIP); err != nil {
			obs.WithTrace(ctx, u.log).Warn("login limiter reset", zap.Error(err))
		}
	}
	obs.Logins.WithLabelValues("ok").Inc()

	rec.RefreshToken = pair.Refresh.Value
	return &Session{User: rec.Public(), Tokens: pair}, nil
}

// Refresh rotates presented into a new pair. Every failure is Unauthorized.
func (u *Usecase) Refresh(ctx context.Context, presented string) (domainauth.TokenPair, error) {
	if presented == "" {
		obs.Refreshes.WithLabelValues("missing").Inc()
		return domainauth.TokenPair{}, apperr.Unauthorized("Unauthorized request")
	}

	claims, err := u.tokens.Verify(presented, domainauth.ClassRefresh)
	if err != nil {
		obs.Refreshes.WithLabelValues("invalid").Inc()
		return domainauth.TokenPair{}, apperr.Wrap(apperr.KindUnauthorized, "Invalid refresh token", err)
	}

	rec, err := u.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			obs.Refreshes.WithLabelValues("unknown_user").Inc()
			return domainauth.TokenPair{}, apperr.Unauthorized("Invalid refresh token")
		}
		return domainauth.TokenPair{}, apperr.Internal(fmt.Errorf("load user: %w", err))
	}

	if rec.RefreshToken == "" || subtle.ConstantTimeCompare([]byte(rec.RefreshToken), []byte(presented)) != 1 {
		obs.Refreshes.WithLabelValues("stale").Inc()
		return domainauth.TokenPair{}, apperr.Unauthorized("Refresh token is expired or used")
	}

	pair, err := u.issuePair(rec.ID)
	if err != nil {
		return domainauth.TokenPair{}, apperr.Internal(err)
	}

	if err := u.users.RotateRefreshToken(ctx, rec.ID, presented, pair.Refresh.Value); err != nil {
		if errors.Is(err, user.ErrStaleToken) {
			// a concurrent refresh with the same token won
			obs.Refreshes.WithLabelValues("stale").Inc()
			return domainauth.TokenPair{}, apperr.Unauthorized("Refresh token is expired or used")
		}
		return domainauth.TokenPair{}, apperr.Internal(fmt.Errorf("rotate refresh token: %w", err))
	}
	obs.Refreshes.WithLabelValues("ok").Inc()
	return pair, nil
}

// Logout clears the stored refresh token. Repeated calls succeed.
func (u *Usecase) Logout(ctx context.Context, id uuid.UUID) error {
	rec, err := u.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil
		}
		return apperr.Internal(fmt.Errorf("load user: %w", err))
	}
	if rec.RefreshToken == "" {
		return nil
	}

	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := u.users.SetRefreshToken(ctx, id, ""); err != nil && !errors.Is(err, user.ErrNotFound) {
			return fmt.Errorf("clear refresh token: %w", err)
		}
		return outboxx.EnqueueAccountEvent(ctx, u.outbox, outbox.KindSessionEnded, rec, u.now())
	})
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// ChangePassword replaces the hash. The current session stays valid.
func (u *Usecase) ChangePassword(ctx context.Context, id uuid.UUID, oldPassword, newPassword string) error {
	if oldPassword == "" || strings.TrimSpace(newPassword) == "" {
		return apperr.Validation("Old and new password are required")
	}

	rec, err := u.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return apperr.NotFound("User does not exist")
		}
		return apperr.Internal(fmt.Errorf("load user: %w", err))
	}
	if !u.hasher.Verify(oldPassword, rec.PasswordHash) {
		return apperr.InvalidCredentials("Invalid old password")
	}

	hash, err := u.hashPassword(newPassword)
	if err != nil {
		return err
	}

	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := u.users.UpdatePassword(ctx, id, hash); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		return outboxx.EnqueueAccountEvent(ctx, u.outbox, outbox.KindPasswordChanged, rec, u.now())
	})
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (u *Usecase) Register(ctx context.Context, in RegisterInput) (*user.Public, error) {
	in.Username = normalize(in.Username)
	in.Email = normalize(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)

	var missing []string
	for _, f := range []struct{ name, val string }{
		{"username", in.Username},
		{"email", in.Email},
		{"fullname", in.FullName},
		{"password", strings.TrimSpace(in.Password)},
	} {
		if f.val == "" {
			missing = append(missing, f.name+" is required")
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("All fields are required", missing...)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, apperr.Validation("Email is invalid")
	}
	// login matches username or email, so the two must never overlap
	if strings.Contains(in.Username, "@") {
		return nil, apperr.Validation("Username must not contain @")
	}

	exists, err := u.users.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("check existing user: %w", err))
	}
	if exists {
		return nil, apperr.Conflict("User with email or username already exists")
	}

	if in.AvatarPath == "" {
		return nil, apperr.Validation("Avatar file is required")
	}
	avatarURL, err := u.uploader.Upload(ctx, in.AvatarPath)
	if err != nil {
		obs.WithTrace(ctx, u.log).Warn("avatar upload", zap.Error(err))
		return nil, apperr.Validation("Avatar file is required")
	}
	var coverURL string
	if in.CoverImagePath != "" {
		// cover image is optional, a failed upload leaves it empty
		if coverURL, err = u.uploader.Upload(ctx, in.CoverImagePath); err != nil {
			obs.WithTrace(ctx, u.log).Warn("cover image upload", zap.Error(err))
			coverURL = ""
		}
	}

	hash, err := u.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	rec := &user.User{
		ID:           uuid.New(),
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		Avatar:       avatarURL,
		CoverImage:   coverURL,
		PasswordHash: hash,
	}
	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := u.users.Create(ctx, rec); err != nil {
			return err
		}
		return outboxx.EnqueueAccountEvent(ctx, u.outbox, outbox.KindAccountRegistered, rec, u.now())
	})
	if err != nil {
		if errors.Is(err, user.ErrConflict) {
			return nil, apperr.Conflict("User with email or username already exists")
		}
		return nil, apperr.Internal(fmt.Errorf("create user: %w", err))
	}
	return rec.Public(), nil
}

func (u *Usecase) CurrentUser(ctx context.Context) (*user.Public, error) {
	p, ok := UserFromContext(ctx)
	if !ok {
		return nil, apperr.Unauthorized("Unauthorized request")
	}
	return p, nil
}

func (u *Usecase) UpdateAccount(ctx context.Context, id uuid.UUID, fullName, email string) (*user.Public, error) {
	fullName = strings.TrimSpace(fullName)
	email = normalize(email)
	if fullName == "" || email == "" {
		return nil, apperr.Validation("All fields are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("Email is invalid")
	}

	rec, err := u.users.UpdateProfile(ctx, id, fullName, email)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrConflict):
			return nil, apperr.Conflict("Email is already in use")
		case errors.Is(err, user.ErrNotFound):
			return nil, apperr.NotFound("User does not exist")
		}
		return nil, apperr.Internal(fmt.Errorf("update profile: %w", err))
	}
	return rec.Public(), nil
}

func (u *Usecase) UpdateImage(ctx context.Context, id uuid.UUID, kind user.ImageKind, localPath string) (*user.Public, error) {
	label := imageLabel(kind)
	if localPath == "" {
		return nil, apperr.Validation(label + " file is missing")
	}
	url, err := u.uploader.Upload(ctx, localPath)
	if err != nil {
		obs.WithTrace(ctx, u.log).Warn("image upload", zap.String("kind", string(kind)), zap.Error(err))
		return nil, apperr.Validation("Error while uploading " + strings.ToLower(label))
	}

	rec, err := u.users.UpdateImage(ctx, id, kind, url)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, apperr.NotFound("User does not exist")
		}
		return nil, apperr.Internal(fmt.Errorf("update %s: %w", kind, err))
	}
	return rec.Public(), nil
}

func imageLabel(kind user.ImageKind) string {
	if kind == user.ImageCoverImage {
		return "Cover image"
	}
	return "Avatar"
}

func (u *Usecase) issuePair(id uuid.UUID) (domainauth.TokenPair, error) {
	access, err := u.tokens.IssueAccess(id)
	if err != nil {
		return domainauth.TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := u.tokens.IssueRefresh(id)
	if err != nil {
		return domainauth.TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return domainauth.TokenPair{Access: access, Refresh: refresh}, nil
}

func (u *Usecase) hashPassword(plaintext string) (string, error) {
	hash, err := u.hasher.Hash(plaintext)
	if err != nil {
		if errors.Is(err, authx.ErrPasswordTooLong) {
			return "", apperr.Validation("Password must be at most 72 bytes")
		}
		return "", apperr.Internal(err)
	}
	return hash, nil
}

// allowLogin fails open when the limiter backend is unavailable.
func (u *Usecase) allowLogin(ctx context.Context, identifier, ip string) bool {
	if u.limiter == nil {
		return true
	}
	ok, err := u.limiter.Allow(ctx, identifier, ip)
	if err != nil {
		obs.WithTrace(ctx, u.log).Warn("login limiter unavailable", zap.Error(err))
		return true
	}
	return ok
}

func (u *Usecase) failLogin(ctx context.Context, identifier, ip string) {
	if u.limiter == nil {
		return
	}
	if err := u.limiter.Fail(ctx, identifier, ip); err != nil {
		obs.WithTrace(ctx, u.log).Warn("login limiter record failure", zap.Error(err))
	}
}
