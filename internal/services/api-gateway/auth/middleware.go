package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/NordCoder/Passage/internal/apperr"
	authx "github.com/NordCoder/Passage/internal/auth"
	domainauth "github.com/NordCoder/Passage/internal/domain/auth"
	"github.com/NordCoder/Passage/internal/domain/user"
	"github.com/NordCoder/Passage/internal/httpx"
	"github.com/NordCoder/Passage/internal/obs"
	"go.uber.org/zap"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

type ctxKey struct{}

func WithUser(ctx context.Context, u *user.Public) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func UserFromContext(ctx context.Context) (*user.Public, bool) {
	u, ok := ctx.Value(ctxKey{}).(*user.Public)
	return u, ok && u != nil
}

// Middleware authenticates the access token from the accessToken cookie or an
// "Authorization: Bearer" header. The cookie is tried first.
type Middleware struct {
	tokens domainauth.TokenCodec
	users  user.Repo
	log    *zap.Logger
}

func NewMiddleware(tokens domainauth.TokenCodec, users user.Repo, log *zap.Logger) *Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return &Middleware{tokens: tokens, users: users, log: log.With(zap.String("component", "auth.middleware"))}
}

func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		candidates := accessTokens(r)
		if len(candidates) == 0 {
			m.reject(w, r, "missing", apperr.Unauthorized("Unauthorized request"))
			return
		}

		claims, err := m.verifyFirst(candidates)
		if err != nil {
			m.reject(w, r, rejectReason(err), apperr.Wrap(apperr.KindUnauthorized, "Invalid access token", err))
			return
		}

		u, err := m.users.GetByID(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				m.reject(w, r, "unknown_user", apperr.Unauthorized("Invalid access token"))
				return
			}
			httpx.WriteError(w, r, m.log, apperr.Internal(err))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u.Public())))
	})
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, reason string, err error) {
	obs.AuthRejections.WithLabelValues(reason).Inc()
	obs.WithTrace(r.Context(), m.log).Debug("request rejected", zap.String("reason", reason), zap.String("path", r.URL.Path))
	httpx.WriteError(w, r, m.log, err)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, authx.ErrTokenExpired):
		return "expired"
	case errors.Is(err, authx.ErrTokenSignature):
		return "signature"
	default:
		return "malformed"
	}
}

// verifyFirst returns the claims of the first candidate that verifies. When
// none does, the error of the first candidate is reported.
func (m *Middleware) verifyFirst(candidates []string) (*domainauth.Claims, error) {
	var firstErr error
	for _, tok := range candidates {
		claims, err := m.tokens.Verify(tok, domainauth.ClassAccess)
		if err == nil {
			return claims, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// accessTokens lists the presented tokens, cookie first. A stale cookie left
// in the browser must not hide a valid bearer header.
func accessTokens(r *http.Request) []string {
	var out []string
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		out = append(out, c.Value)
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		if tok := strings.TrimSpace(h[7:]); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
