package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/NordCoder/Passage/internal/obs"
	pg "github.com/NordCoder/Passage/internal/repository/postgres"
	"go.uber.org/zap"
)

func main() {
	l, err := obs.NewLogger(obs.LogConfig{Level: "info", App: "passage-migrator"})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		l.Fatal("DB_DSN is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := pg.Migrate(ctx, dsn); err != nil {
		l.Fatal("migrate up", zap.Error(err))
	}
	l.Info("migrations: up OK")
}
