package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Development gets the console encoder.
func New(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// GatewayLoggers returns one logger per gateway name. Each tees the base logger
// with a JSON file core writing <dir>/<name>.log at warn level and above, so a
// gateway's malformed payloads and failures can be replayed by hand.
// An empty dir returns base-derived loggers without files.
func GatewayLoggers(dir string, base *zap.Logger, names []string) (map[string]*zap.Logger, func(), error) {
	loggers := make(map[string]*zap.Logger, len(names))
	var files []*os.File

	cleanup := func() {
		for _, f := range files {
			_ = f.Sync()
			_ = f.Close()
		}
	}

	if dir == "" {
		for _, name := range names {
			loggers[name] = base.With(zap.String("gateway", name))
		}
		return loggers, cleanup, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cleanup, fmt.Errorf("create log dir %s: %w", dir, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	for _, name := range names {
		path := filepath.Join(dir, name+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("open %s: %w", path, err)
		}
		files = append(files, f)

		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.WarnLevel)
		loggers[name] = base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		})).With(zap.String("gateway", name))
	}

	return loggers, cleanup, nil
}
