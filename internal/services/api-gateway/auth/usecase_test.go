package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/NordCoder/Passage/internal/apperr"
	domainauth "github.com/NordCoder/Passage/internal/domain/auth"
	"github.com/NordCoder/Passage/internal/domain/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_IssuesVerifiableTokensAndStoresRefresh(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "ana", "ana@x.io", "pw1")

	sess, err := f.uc.Login(context.Background(), LoginInput{Identifier: "ANA@x.io", Password: "pw1"})
	require.NoError(t, err)
	assert.Equal(t, id, sess.User.ID)

	claims, err := f.codec.Verify(sess.Tokens.Access.Value, domainauth.ClassAccess)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Subject)

	_, err = f.codec.Verify(sess.Tokens.Refresh.Value, domainauth.ClassRefresh)
	require.NoError(t, err)

	assert.Equal(t, sess.Tokens.Refresh.Value, f.users.stored(t, id).RefreshToken)
	assert.Equal(t, []outbox.Kind{outbox.KindSessionStarted}, f.outbox.seen())
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ana", "ana@x.io", "pw1")

	_, err := f.uc.Login(context.Background(), LoginInput{Identifier: "bob", Password: "pw1"})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = f.uc.Login(context.Background(), LoginInput{Identifier: "ana", Password: "nope"})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidCredentials))

	_, err = f.uc.Login(context.Background(), LoginInput{Identifier: " ", Password: "pw1"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestLogin_LimiterBlocksAfterFailures(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ana", "ana@x.io", "pw1")
	f.uc.limiter = &memLimiter{max: 2}

	for range 2 {
		_, err := f.uc.Login(context.Background(), LoginInput{Identifier: "ana", Password: "bad"})
		require.True(t, apperr.IsKind(err, apperr.KindInvalidCredentials))
	}
	_, err := f.uc.Login(context.Background(), LoginInput{Identifier: "ana", Password: "pw1"})
	assert.True(t, apperr.IsKind(err, apperr.KindTooManyRequests))
}

func TestLogin_LimiterFailsOpen(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ana", "ana@x.io", "pw1")
	f.uc.limiter = &memLimiter{max: 1, err: errors.New("redis down")}

	_, err := f.uc.Login(context.Background(), LoginInput{Identifier: "ana", Password: "pw1"})
	assert.NoError(t, err)
}

func TestRefresh_RotatesAndRejectsReuse(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "ana", "ana@x.io", "pw1")
	sess, err := f.uc.Login(context.Background(), LoginInput{Identifier: "ana", Password: "pw1"})
	require.NoError(t, err)

	pair, err := f.uc.Refresh(context.Background(), sess.Tokens.Refresh.Value)
	require.NoError(t, err)
	assert.NotEqual(t, sess.Tokens.Refresh.Value, pair.Refresh.Value)
	assert.Equal(t, pair.Refresh.Value, f.users.stored(t, id).RefreshToken)

	_, err = f.uc.Refresh(context.Background(), sess.Tokens.Refresh.Value)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}

func TestRefresh_RejectsAccessTokenAndGarbage(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ana", "ana@x.io", "pw1")
	sess, err := f.uc.Login(context.Background(), LoginInput{Identifier: "ana", Password: "pw1"})
	require.NoError(t, err)

	for _, tok := range []string{"", "garbage", sess.Tokens.Access.Value} {
		_, err := f.uc.Refresh(context.Background(), tok)
		assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized), "token %q", tok)
	}
}

func TestRefresh_ConcurrentSameTokenOneWinner(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ana", "ana@x.io", "pw1")
	sess, err := f.uc.Login(context.Background(), LoginInput{Identifier: "ana", Password: "pw1"})
	require.NoError(t, err)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.uc.Refresh(context.Background(), sess.Tokens.Refresh.Value); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestLogout_InvalidatesRefreshAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "ana", "ana@x.io", "pw1")
	sess, err := f.uc.Login(context.Background(), LoginInput{Identifier: "ana", Password: "pw1"})
	require.NoError(t, err)

	require.NoError(t, f.uc.Logout(context.Background(), id))
	require.NoError(t, f.uc.Logout(context.Background(), id))
	require.NoError(t, f.uc.Logout(context.Background(), uuid.New()))
	assert.Empty(t, f.users.stored(t, id).RefreshToken)

	_, err = f.uc.Refresh(context.Background(), sess.Tokens.Refresh.Value)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	assert.Equal(t, []outbox.Kind{outbox.KindSessionStarted, outbox.KindSessionEnded}, f.outbox.seen())
}

func TestLogin_SecondLoginDisplacesFirstSession(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ana", "ana@x.io", "pw1")
	first, err := f.uc.Login(context.Background(), LoginInput{Identifier: "ana", Password: "pw1"})
	require.NoError(t, err)
	_, err = f.uc.Login(context.Background(), LoginInput{Identifier: "ana", Password: "pw1"})
	require.NoError(t, err)

	_, err = f.uc.Refresh(context.Background(), first.Tokens.Refresh.Value)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}

func TestChangePassword_KeepsSession(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "ana", "ana@x.io", "pw1")
	sess, err := f.uc.Login(context.Background(), LoginInput{Identifier: "ana", Password: "pw1"})
	require.NoError(t, err)

	err = f.uc.ChangePassword(context.Background(), id, "wrong", "pw2")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidCredentials))
	err = f.uc.ChangePassword(context.Background(), id, "pw1", "   ")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	require.NoError(t, f.uc.ChangePassword(context.Background(), id, "pw1", "pw2"))

	_, err = f.uc.Login(context.Background(), LoginInput{Identifier: "ana", Password: "pw1"})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidCredentials))

	// the session opened before the change is still usable
	assert.Equal(t, sess.Tokens.Refresh.Value, f.users.stored(t, id).RefreshToken)
	assert.Contains(t, f.outbox.seen(), outbox.KindPasswordChanged)
}

func tempFile(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("img"), 0o600))
	return p
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	avatar := tempFile(t, "a.png")

	pub, err := f.uc.Register(context.Background(), RegisterInput{
		Username: "Ana", Email: "ana@x.io", FullName: "Ana", Password: "pw1", AvatarPath: avatar,
	})
	require.NoError(t, err)
	assert.Equal(t, "ana", pub.Username)
	assert.NotEmpty(t, pub.Avatar)
	assert.Empty(t, pub.CoverImage)
	assert.Equal(t, []outbox.Kind{outbox.KindAccountRegistered}, f.outbox.seen())

	stored := f.users.stored(t, pub.ID)
	assert.NotEqual(t, "pw1", stored.PasswordHash)
	assert.True(t, f.hasher.Verify("pw1", stored.PasswordHash))

	_, err = f.uc.Register(context.Background(), RegisterInput{
		Username: "ana", Email: "other@x.io", FullName: "Ana", Password: "pw1", AvatarPath: avatar,
	})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Register(context.Background(), RegisterInput{Username: "ana"})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Len(t, ae.Errors, 3)

	_, err = f.uc.Register(context.Background(), RegisterInput{
		Username: "ana", Email: "ana@x.io", FullName: "Ana", Password: "pw1",
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	f.uploader.failFor = "a.png"
	_, err = f.uc.Register(context.Background(), RegisterInput{
		Username: "ana", Email: "ana@x.io", FullName: "Ana", Password: "pw1", AvatarPath: tempFile(t, "a.png"),
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestRegister_UsernameCannotShadowEmail(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ana", "ana@x.io", "pw1")
	avatar := tempFile(t, "a.png")

	_, err := f.uc.Register(context.Background(), RegisterInput{
		Username: "ana@x.io", Email: "mallory@x.io", FullName: "M", Password: "pw2", AvatarPath: avatar,
	})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Empty(t, f.uploader.seen(), "rejected before any upload")

	sess, err := f.uc.Login(context.Background(), LoginInput{Identifier: "ana@x.io", Password: "pw1"})
	require.NoError(t, err)
	assert.Equal(t, "ana", sess.User.Username)
}

func TestUpdateAccountAndImage(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "ana", "ana@x.io", "pw1")
	f.seed(t, "bob", "bob@x.io", "pw1")

	pub, err := f.uc.UpdateAccount(context.Background(), id, "Ana Maria", "ANA2@x.io")
	require.NoError(t, err)
	assert.Equal(t, "ana2@x.io", pub.Email)

	_, err = f.uc.UpdateAccount(context.Background(), id, "Ana", "bob@x.io")
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	pub, err = f.uc.UpdateImage(context.Background(), id, "cover-image", tempFile(t, "c.jpg"))
	require.NoError(t, err)
	assert.NotEmpty(t, pub.CoverImage)

	_, err = f.uc.UpdateImage(context.Background(), id, "avatar", "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}
