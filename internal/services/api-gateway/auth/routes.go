package auth

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/NordCoder/Passage/internal/apperr"
	"github.com/NordCoder/Passage/internal/httpx"
	"github.com/NordCoder/Passage/internal/obs"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
)

const RoutePrefix = "/api/v1/users"

// NewMux mounts every account route on a gateway mux. Routes marked protected
// run behind mw.
func NewMux(s *Server, mw *Middleware, log *zap.Logger) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux(
		runtime.WithRoutingErrorHandler(routingErrorHandler(log)),
	)

	routes := []struct {
		method    string
		path      string
		h         http.HandlerFunc
		protected bool
	}{
		{http.MethodPost, "/register", s.Register, false},
		{http.MethodPost, "/login", s.Login, false},
		{http.MethodPost, "/refresh-token", s.RefreshToken, false},
		{http.MethodPost, "/logout", s.Logout, true},
		{http.MethodPost, "/change-password", s.ChangePassword, true},
		{http.MethodGet, "/current-user", s.CurrentUser, true},
		{http.MethodPatch, "/update-account", s.UpdateAccount, true},
		{http.MethodPatch, "/avatar", s.UpdateAvatar, true},
		{http.MethodPatch, "/cover-image", s.UpdateCoverImage, true},
	}
	for _, rt := range routes {
		var h http.Handler = rt.h
		if rt.protected {
			h = mw.Wrap(h)
		}
		pattern := RoutePrefix + rt.path
		if err := mux.HandlePath(rt.method, pattern, timed(pattern, h)); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func timed(route string, h http.Handler) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(sw, r)
		obs.HTTPDuration.WithLabelValues(route, strconv.Itoa(sw.status)).Observe(time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func routingErrorHandler(log *zap.Logger) runtime.RoutingErrorHandlerFunc {
	return func(_ context.Context, _ *runtime.ServeMux, _ runtime.Marshaler, w http.ResponseWriter, r *http.Request, status int) {
		var err *apperr.Error
		switch status {
		case http.StatusNotFound:
			err = apperr.NotFound("Route not found")
		default:
			err = apperr.Validation(http.StatusText(status))
			err.Status = status
		}
		httpx.WriteError(w, r, log, err)
	}
}
