package logger

import (
	"io"
	"os"
	"strings"

	"github.com/samvad-hq/vancodes/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// S is the process logger, set by Init.
var S *zap.SugaredLogger

// Logger is the logging surface the manager, VAN client and publishers use.
// Each call logs obj as one structured field named key.
type Logger interface {
	InfoObj(msg, key string, obj interface{})
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

// Init builds the process logger on stderr, leaving stdout to command output.
func Init(cfg *config.Config) (Logger, error) {
	return build(cfg, os.Stderr), nil
}

func build(cfg *config.Config, w io.Writer) Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	// Production runs emit JSON for collectors; anything else gets the
	// console encoder.
	var enc zapcore.Encoder
	if strings.EqualFold(cfg.Env, "production") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), ParseLevel(cfg.LogLevel))
	base := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("app", cfg.AppName), zap.String("env", cfg.Env)),
	)
	S = base.Sugar()
	return New(base)
}

// ParseLevel maps a config string onto a zap level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "warning":
		return zapcore.WarnLevel
	case "":
		return zapcore.InfoLevel
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Close flushes the process logger. Sync errors on terminals are expected
// and returned for the caller to ignore.
func Close() error {
	if S == nil {
		return nil
	}
	return S.Sync()
}

type zapLogger struct {
	l *zap.Logger
}

// New wraps an existing zap logger. A nil logger yields a NopLogger.
func New(l *zap.Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return zapLogger{l: l.WithOptions(zap.AddCallerSkip(1))}
}

func (z zapLogger) InfoObj(msg, key string, obj interface{})  { z.l.Info(msg, zap.Any(key, obj)) }
func (z zapLogger) DebugObj(msg, key string, obj interface{}) { z.l.Debug(msg, zap.Any(key, obj)) }
func (z zapLogger) WarnObj(msg, key string, obj interface{})  { z.l.Warn(msg, zap.Any(key, obj)) }
func (z zapLogger) ErrorObj(msg, key string, obj interface{}) { z.l.Error(msg, zap.Any(key, obj)) }

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) InfoObj(string, string, interface{})  {}
func (NopLogger) DebugObj(string, string, interface{}) {}
func (NopLogger) WarnObj(string, string, interface{})  {}
func (NopLogger) ErrorObj(string, string, interface{}) {}
