package main

import (
	"net/http"
	"time"

	authx "github.com/NordCoder/Passage/internal/auth"
	config "github.com/NordCoder/Passage/internal/config/api-gateway"
	domainauth "github.com/NordCoder/Passage/internal/domain/auth"
	"github.com/NordCoder/Passage/internal/domain/media"
	"github.com/NordCoder/Passage/internal/httpx"
	"github.com/NordCoder/Passage/internal/obs"
	pg "github.com/NordCoder/Passage/internal/repository/postgres"
	"github.com/NordCoder/Passage/internal/services/api-gateway/auth"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, db *pg.DB, limiter domainauth.LoginLimiter, uploader media.Uploader) (*http.Server, error) {
	codec, err := authx.NewJWTCodec(cfg.Auth.AsTokenConfig())
	if err != nil {
		return nil, err
	}
	users := pg.NewUserRepo(db)

	uc := auth.NewUseCase(auth.Deps{
		Users:    users,
		Tokens:   codec,
		Hasher:   authx.NewBcryptHasher(cfg.Auth.BcryptCost),
		Tx:       pg.NewTransactor(db, logger),
		Outbox:   pg.NewOutboxRepo(db),
		Uploader: uploader,
		Limiter:  limiter,
		Logger:   logger,
	})
	srv := auth.NewServer(uc, auth.Opts{
		Logger:         logger,
		CookieSecure:   cfg.Auth.CookieSecure,
		CookieDomain:   cfg.Auth.CookieDomain,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})
	mux, err := auth.NewMux(srv, auth.NewMiddleware(codec, users, logger), logger)
	if err != nil {
		return nil, err
	}

	root := obs.MetricsMux(map[string]obs.HealthCheck{"postgres": db.Ping})
	root.Handle("/", mux)

	var handler http.Handler = httpx.Recover(logger, root)
	handler = httpx.CORS(cfg.Server.CORSOrigins)(handler)
	handler = otelhttp.NewHandler(handler, "api-gateway",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}, nil
}

func serveHTTP(srv *http.Server, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
	return srv.ListenAndServe()
}
