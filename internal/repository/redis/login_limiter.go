package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domainauth "github.com/NordCoder/Passage/internal/domain/auth"
	goredis "github.com/redis/go-redis/v9"
)

type Config struct {
	Addr        string
	Password    string
	DB          int
	MaxAttempts int
	Cooldown    time.Duration
}

// LoginLimiter counts failed logins per identifier and per client IP in fixed
// windows. A key over MaxAttempts blocks until its window expires.
type LoginLimiter struct {
	rdb         goredis.UniversalClient
	maxAttempts int
	cooldown    time.Duration
}

var _ domainauth.LoginLimiter = (*LoginLimiter)(nil)

func NewClient(cfg Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewLoginLimiter(rdb goredis.UniversalClient, cfg Config) *LoginLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Minute
	}
	return &LoginLimiter{rdb: rdb, maxAttempts: cfg.MaxAttempts, cooldown: cfg.Cooldown}
}

func (l *LoginLimiter) Allow(ctx context.Context, identifier, ip string) (bool, error) {
	for _, key := range keys(identifier, ip) {
		count, err := l.rdb.Get(ctx, key).Int64()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			return false, fmt.Errorf("limiter get: %w", err)
		}
		if count >= int64(l.maxAttempts) {
			return false, nil
		}
	}
	return true, nil
}

// Fail counts a failure on every key. INCR and EXPIRE NX run in one MULTI so
// a counter never exists without a TTL; NX keeps the window fixed from the
// first failure.
func (l *LoginLimiter) Fail(ctx context.Context, identifier, ip string) error {
	_, err := l.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for _, key := range keys(identifier, ip) {
			p.Incr(ctx, key)
			p.ExpireNX(ctx, key, l.cooldown)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("limiter fail: %w", err)
	}
	return nil
}

func (l *LoginLimiter) Reset(ctx context.Context, identifier, ip string) error {
	// the ip window is shared by every account behind that address
	if err := l.rdb.Del(ctx, userKey(identifier)).Err(); err != nil {
		return fmt.Errorf("limiter reset: %w", err)
	}
	return nil
}

func userKey(identifier string) string {
	return "passage:login:user:" + strings.ToLower(strings.TrimSpace(identifier))
}

func ipKey(ip string) string { return "passage:login:ip:" + ip }

func keys(identifier, ip string) []string {
	out := []string{userKey(identifier)}
	if ip != "" {
		out = append(out, ipKey(ip))
	}
	return out
}
