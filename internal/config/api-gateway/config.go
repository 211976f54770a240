package api_gateway_config

import (
	"time"

	"github.com/NordCoder/Passage/internal/auth"
	"github.com/NordCoder/Passage/internal/obs"
	"github.com/NordCoder/Passage/internal/outbox"
	pg "github.com/NordCoder/Passage/internal/repository/postgres"
	redisx "github.com/NordCoder/Passage/internal/repository/redis"
	s3x "github.com/NordCoder/Passage/internal/repository/s3"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// AsOTELConfig tags spans with the app version and environment.
func (c *Config) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:         c.OTEL.Enable,
		Endpoint:       c.OTEL.OTLPEndpoint,
		ServiceName:    c.OTEL.ServiceName,
		ServiceVersion: c.App.Version,
		Environment:    c.App.Env,
		SampleRatio:    c.OTEL.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

type Auth struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	Issuer        string        `mapstructure:"issuer"`
	BcryptCost    int           `mapstructure:"bcrypt_cost"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`
	CookieDomain  string        `mapstructure:"cookie_domain"`
}

func (a *Auth) AsTokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessSecret:  []byte(a.AccessSecret),
		RefreshSecret: []byte(a.RefreshSecret),
		AccessTTL:     a.AccessTTL,
		RefreshTTL:    a.RefreshTTL,
		Issuer:        a.Issuer,
	}
}

type Limiter struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
}

func (l *Limiter) Enabled() bool { return l.RedisAddr != "" }

func (l *Limiter) AsRedisConfig() redisx.Config {
	return redisx.Config{
		Addr:        l.RedisAddr,
		Password:    l.RedisPassword,
		DB:          l.RedisDB,
		MaxAttempts: l.MaxAttempts,
		Cooldown:    l.Cooldown,
	}
}

type S3 struct {
	Endpoint      string `mapstructure:"endpoint"`
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

func (s *S3) AsUploaderConfig() s3x.Config {
	return s3x.Config{
		Endpoint:      s.Endpoint,
		Region:        s.Region,
		Bucket:        s.Bucket,
		AccessKey:     s.AccessKey,
		SecretKey:     s.SecretKey,
		PublicBaseURL: s.PublicBaseURL,
	}
}

type Kafka struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Outbox struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	WaitTime      time.Duration `mapstructure:"wait_time"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`
}

func (o *Outbox) AsRunnerConfig() outbox.Config {
	return outbox.Config{
		Workers:       o.Workers,
		BatchSize:     o.BatchSize,
		WaitTime:      o.WaitTime,
		InProgressTTL: o.InProgressTTL,
	}
}

type Config struct {
	App     App       `mapstructure:"app"`
	Server  Server    `mapstructure:"server"`
	DB      pg.Config `mapstructure:"db"`
	OTEL    OTEL      `mapstructure:"otel"`
	Log     Log       `mapstructure:"log"`
	Auth    Auth      `mapstructure:"auth"`
	Limiter Limiter   `mapstructure:"limiter"`
	S3      S3        `mapstructure:"s3"`
	Kafka   Kafka     `mapstructure:"kafka"`
	Outbox  Outbox    `mapstructure:"outbox"`
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }

const (
	ErrNoDSN            ErrConfig = "config: db.dsn is required"
	ErrNoAccessSecret   ErrConfig = "config: auth.access_secret is required"
	ErrNoRefreshSecret  ErrConfig = "config: auth.refresh_secret is required"
	ErrSecretsIdentical ErrConfig = "config: auth.access_secret and auth.refresh_secret must differ"
	ErrNoBucket         ErrConfig = "config: s3.bucket is required"
)
