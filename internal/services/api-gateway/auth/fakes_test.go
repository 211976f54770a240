package auth

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	authx "github.com/NordCoder/Passage/internal/auth"
	"github.com/NordCoder/Passage/internal/domain/outbox"
	"github.com/NordCoder/Passage/internal/domain/user"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memUsers struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*user.User
	fails error
}

func newMemUsers() *memUsers { return &memUsers{byID: map[uuid.UUID]*user.User{}} }

func (m *memUsers) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.byID {
		if e.Username == u.Username || e.Email == u.Email {
			return user.ErrConflict
		}
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails != nil {
		return nil, m.fails
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByIdentity(_ context.Context, identifier string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Username == identifier || u.Email == identifier {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memUsers) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		for _, v := range []string{username, email} {
			if u.Username == v || u.Email == v {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *memUsers) SetRefreshToken(_ context.Context, id uuid.UUID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return user.ErrNotFound
	}
	u.RefreshToken = token
	return nil
}

func (m *memUsers) RotateRefreshToken(_ context.Context, id uuid.UUID, presented, next string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || u.RefreshToken == "" || u.RefreshToken != presented {
		return user.ErrStaleToken
	}
	u.RefreshToken = next
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUsers) UpdateProfile(_ context.Context, id uuid.UUID, fullName, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	for _, e := range m.byID {
		if e.ID != id && e.Email == email {
			return nil, user.ErrConflict
		}
	}
	u.FullName, u.Email = fullName, email
	cp := *u
	return &cp, nil
}

func (m *memUsers) UpdateImage(_ context.Context, id uuid.UUID, kind user.ImageKind, url string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	if kind == user.ImageCoverImage {
		u.CoverImage = url
	} else {
		u.Avatar = url
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) stored(t *testing.T, id uuid.UUID) user.User {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	require.True(t, ok)
	return *u
}

type directTx struct{}

func (directTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type memOutbox struct {
	mu    sync.Mutex
	kinds []outbox.Kind
}

func (o *memOutbox) Enqueue(_ context.Context, _ string, kind outbox.Kind, _ []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds = append(o.kinds, kind)
	return nil
}

func (o *memOutbox) PickBatch(context.Context, int, time.Duration) ([]outbox.Message, error) {
	return nil, nil
}

func (o *memOutbox) MarkSuccess(context.Context, []string) error { return nil }

func (o *memOutbox) seen() []outbox.Kind {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]outbox.Kind(nil), o.kinds...)
}

// fakeUploader records the paths it saw and whether each existed at upload time.
type fakeUploader struct {
	mu      sync.Mutex
	paths   []string
	failFor string
}

func (f *fakeUploader) Upload(_ context.Context, localPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	f.paths = append(f.paths, localPath)
	if f.failFor != "" && strings.HasSuffix(localPath, f.failFor) {
		return "", errors.New("storage unavailable")
	}
	return "https://cdn.test/media/" + uuid.NewString(), nil
}

func (f *fakeUploader) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

type memLimiter struct {
	mu       sync.Mutex
	max      int
	failures map[string]int
	err      error
}

func (l *memLimiter) Allow(_ context.Context, identifier, _ string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	return l.failures[identifier] < l.max, nil
}

func (l *memLimiter) Fail(_ context.Context, identifier, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failures == nil {
		l.failures = map[string]int{}
	}
	l.failures[identifier]++
	return l.err
}

func (l *memLimiter) Reset(_ context.Context, identifier, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, identifier)
	return nil
}

type fixture struct {
	users    *memUsers
	outbox   *memOutbox
	uploader *fakeUploader
	codec    *authx.JWTCodec
	hasher   *authx.BcryptHasher
	uc       *Usecase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec, err := authx.NewJWTCodec(authx.TokenConfig{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		Issuer:        "passage-test",
	})
	require.NoError(t, err)

	f := &fixture{
		users:    newMemUsers(),
		outbox:   &memOutbox{},
		uploader: &fakeUploader{},
		codec:    codec,
		hasher:   authx.NewBcryptHasher(bcrypt.MinCost),
	}
	f.uc = NewUseCase(Deps{
		Users:    f.users,
		Tokens:   f.codec,
		Hasher:   f.hasher,
		Tx:       directTx{},
		Outbox:   f.outbox,
		Uploader: f.uploader,
	})
	return f
}

// seed stores a user with the given password and returns its id.
func (f *fixture) seed(t *testing.T, username, email, password string) uuid.UUID {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	u := &user.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		FullName:     "Seeded " + username,
		Avatar:       "https://cdn.test/a.png",
		PasswordHash: hash,
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u.ID
}
