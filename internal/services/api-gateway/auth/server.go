package auth

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/NordCoder/Passage/internal/apperr"
	domainauth "github.com/NordCoder/Passage/internal/domain/auth"
	"github.com/NordCoder/Passage/internal/domain/user"
	"github.com/NordCoder/Passage/internal/httpx"
	"go.uber.org/zap"
)

type Opts struct {
	Logger         *zap.Logger
	CookieSecure   bool
	CookieDomain   string
	MaxUploadBytes int64
	// TempDir holds staged uploads; empty means os.TempDir.
	TempDir string
}

// Server exposes the account and session operations over HTTP.
type Server struct {
	uc   *Usecase
	log  *zap.Logger
	opts Opts
}

func NewServer(uc *Usecase, o Opts) *Server {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = 10 << 20
	}
	return &Server{uc: uc, log: o.Logger.With(zap.String("component", "auth.server")), opts: o}
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateAccountRequest struct {
	FullName string `json:"fullname"`
	Email    string `json:"email"`
}

type sessionResponse struct {
	User         *user.Public `json:"user,omitempty"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteError(w, r, s.log, err)
}

func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	if err := s.parseMultipart(w, r); err != nil {
		s.fail(w, r, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	avatar, err := stageFormFile(r, "avatar", s.opts.TempDir)
	if err != nil {
		s.fail(w, r, apperr.Internal(err))
		return
	}
	defer s.release(avatar)
	cover, err := stageFormFile(r, "coverImage", s.opts.TempDir)
	if err != nil {
		s.fail(w, r, apperr.Internal(err))
		return
	}
	defer s.release(cover)

	pub, err := s.uc.Register(r.Context(), RegisterInput{
		Username:       r.FormValue("username"),
		Email:          r.FormValue("email"),
		FullName:       r.FormValue("fullname"),
		Password:       r.FormValue("password"),
		AvatarPath:     avatar.Path(),
		CoverImagePath: cover.Path(),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.Success(w, http.StatusCreated, pub, "User registered successfully")
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		s.fail(w, r, apperr.Validation("Invalid JSON body"))
		return
	}
	identifier := req.Username
	if strings.TrimSpace(identifier) == "" {
		identifier = req.Email
	}

	sess, err := s.uc.Login(r.Context(), LoginInput{
		Identifier: identifier,
		Password:   req.Password,
		ClientIP:   clientIP(r),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setSessionCookies(w, sess.Tokens)
	httpx.Success(w, http.StatusOK, sessionResponse{
		User:         sess.User,
		AccessToken:  sess.Tokens.Access.Value,
		RefreshToken: sess.Tokens.Refresh.Value,
	}, "User logged in successfully")
}

func (s *Server) RefreshToken(w http.ResponseWriter, r *http.Request) {
	presented := ""
	if c, err := r.Cookie(RefreshCookie); err == nil {
		presented = c.Value
	}
	if presented == "" {
		var req refreshRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			s.fail(w, r, apperr.Validation("Invalid JSON body"))
			return
		}
		presented = req.RefreshToken
	}

	pair, err := s.uc.Refresh(r.Context(), presented)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setSessionCookies(w, pair)
	httpx.Success(w, http.StatusOK, sessionResponse{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
	}, "Access token refreshed")
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	me, ok := UserFromContext(r.Context())
	if !ok {
		s.fail(w, r, apperr.Unauthorized("Unauthorized request"))
		return
	}
	if err := s.uc.Logout(r.Context(), me.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.clearSessionCookies(w)
	httpx.Success(w, http.StatusOK, struct{}{}, "User logged out")
}

func (s *Server) ChangePassword(w http.ResponseWriter, r *http.Request) {
	me, ok := UserFromContext(r.Context())
	if !ok {
		s.fail(w, r, apperr.Unauthorized("Unauthorized request"))
		return
	}
	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		s.fail(w, r, apperr.Validation("Invalid JSON body"))
		return
	}
	if err := s.uc.ChangePassword(r.Context(), me.ID, req.OldPassword, req.NewPassword); err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, struct{}{}, "Password changed successfully")
}

func (s *Server) CurrentUser(w http.ResponseWriter, r *http.Request) {
	me, err := s.uc.CurrentUser(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, me, "Current user fetched successfully")
}

func (s *Server) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	me, ok := UserFromContext(r.Context())
	if !ok {
		s.fail(w, r, apperr.Unauthorized("Unauthorized request"))
		return
	}
	var req updateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		s.fail(w, r, apperr.Validation("Invalid JSON body"))
		return
	}
	pub, err := s.uc.UpdateAccount(r.Context(), me.ID, req.FullName, req.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, pub, "Account details updated successfully")
}

func (s *Server) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	s.updateImage(w, r, user.ImageAvatar, "avatar")
}

func (s *Server) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	s.updateImage(w, r, user.ImageCoverImage, "coverImage")
}

func (s *Server) updateImage(w http.ResponseWriter, r *http.Request, kind user.ImageKind, field string) {
	me, ok := UserFromContext(r.Context())
	if !ok {
		s.fail(w, r, apperr.Unauthorized("Unauthorized request"))
		return
	}
	if err := s.parseMultipart(w, r); err != nil {
		s.fail(w, r, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	staged, err := stageFormFile(r, field, s.opts.TempDir)
	if err != nil {
		s.fail(w, r, apperr.Internal(err))
		return
	}
	defer s.release(staged)

	pub, err := s.uc.UpdateImage(r.Context(), me.ID, kind, staged.Path())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, pub, imageLabel(kind)+" updated successfully")
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("Upload is too large")
		}
		return apperr.Validation("Invalid multipart form")
	}
	return nil
}

func (s *Server) release(f *stagedFile) {
	path := f.Path()
	if err := f.Release(); err != nil {
		s.log.Warn("release staged file", zap.String("path", path), zap.Error(err))
	}
}

func (s *Server) setSessionCookies(w http.ResponseWriter, pair domainauth.TokenPair) {
	http.SetCookie(w, s.cookie(AccessCookie, pair.Access.Value, pair.Access.ExpiresAt))
	http.SetCookie(w, s.cookie(RefreshCookie, pair.Refresh.Value, pair.Refresh.ExpiresAt))
}

func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		c := s.cookie(name, "", time.Unix(0, 0))
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (s *Server) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.opts.CookieDomain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
