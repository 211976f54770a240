// Package httpx holds the response envelope shared by every HTTP handler.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/NordCoder/Passage/internal/apperr"
	"github.com/NordCoder/Passage/internal/obs"
	"go.uber.org/zap"
)

type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

type ErrorEnvelope struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Success    bool     `json:"success"`
	Errors     []string `json:"errors"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Success writes data inside the success envelope. success is derived from status.
func Success(w http.ResponseWriter, status int, data any, msg string) {
	WriteJSON(w, status, Envelope{
		StatusCode: status,
		Data:       data,
		Message:    msg,
		Success:    status < http.StatusBadRequest,
	})
}

// WriteError renders err as the error envelope. Errors that are not *apperr.Error
// are logged and rendered as a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		ae = apperr.Internal(err)
	}
	if ae.Status >= http.StatusInternalServerError && log != nil {
		obs.WithTrace(r.Context(), log).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	details := ae.Errors
	if details == nil {
		details = []string{}
	}
	WriteJSON(w, ae.Status, ErrorEnvelope{
		StatusCode: ae.Status,
		Message:    ae.Message,
		Success:    false,
		Errors:     details,
	})
}
