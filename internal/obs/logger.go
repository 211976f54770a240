package obs

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig selects the zap preset. Pretty switches to the colored
// development encoder for local runs; otherwise JSON lines go to stderr.
type LogConfig struct {
	Level  string
	Pretty bool
	App    string
	Env    string
	Ver    string
}

// parseLevel falls back to info for an empty or unknown level so a typo in
// config never silences the service.
func parseLevel(s string) (zapcore.Level, bool) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return zapcore.InfoLevel, false
	}
	return lvl, true
}

func (c LogConfig) zapConfig() zap.Config {
	cfg := zap.NewProductionConfig()
	if c.Pretty {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = !c.Pretty
	return cfg
}

// staticFields skips empty values so one-shot tools (migrator, kafka-init)
// do not log blank env and version keys.
func (c LogConfig) staticFields() []zap.Field {
	var out []zap.Field
	for _, kv := range [][2]string{{"service", c.App}, {"env", c.Env}, {"version", c.Ver}} {
		if kv[1] != "" {
			out = append(out, zap.String(kv[0], kv[1]))
		}
	}
	return out
}

func NewLogger(c LogConfig) (*zap.Logger, error) {
	cfg := c.zapConfig()
	lvl, known := parseLevel(c.Level)
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build(zap.Fields(c.staticFields()...))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if !known {
		l.Warn("unknown log level, using info", zap.String("level", c.Level))
	}
	return l, nil
}
