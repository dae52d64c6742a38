package logger

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"examgrader/pkg/utils/contextkey"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, encoding and destinations. Paths other than stdout/stderr are rotated files.
type Config struct {
	Level      string `yaml:"level"`      // debug, info, warn, error
	Format     string `yaml:"format"`     // json, console
	OutputPath string `yaml:"outputPath"` // default stdout
	ErrorPath  string `yaml:"errorPath"`  // default stderr

	MaxSizeMB  int  `yaml:"maxSizeMB"`
	MaxBackups int  `yaml:"maxBackups"`
	MaxAgeDays int  `yaml:"maxAgeDays"`
	Compress   bool `yaml:"compress"`
}

// Logger is a zap logger that stamps request-scoped context values on every entry.
type Logger struct {
	zap *zap.Logger
}

var global atomic.Pointer[Logger]

// contextFields lists the context values copied onto log entries, in output order.
var contextFields = []contextkey.Key{
	contextkey.TraceID,
	contextkey.RequestID,
	contextkey.UserID,
	contextkey.SubmissionID,
}

func Init(cfg Config) error {
	l, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

func NewLogger(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), cfg.sink(cfg.OutputPath, "stdout"), level)
	z := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(3),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.ErrorOutput(cfg.sink(cfg.ErrorPath, "stderr")),
	)
	return &Logger{zap: z}, nil
}

// NewWithZap wraps z as is. Tests use it with an observer core.
func NewWithZap(z *zap.Logger) *Logger {
	return &Logger{zap: z}
}

func newEncoder(format string) zapcore.Encoder {
	ec := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    "func",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.RFC3339),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == "json" {
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(ec)
}

func (c Config) sink(path, fallback string) zapcore.WriteSyncer {
	if path == "" {
		path = fallback
	}
	switch path {
	case "stdout":
		return zapcore.Lock(os.Stdout)
	case "stderr":
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   c.Compress,
	})
}

func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// WithContext returns the underlying logger with the context's ids attached.
func (l *Logger) WithContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return l.zap
	}
	fields := make([]zap.Field, 0, len(contextFields))
	for _, key := range contextFields {
		if v := ctx.Value(key); v != nil {
			fields = append(fields, zap.String(key.String(), fmt.Sprint(v)))
		}
	}
	return l.zap.With(fields...)
}

func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	if ce := l.WithContext(ctx).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func write(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	if l := global.Load(); l != nil {
		l.log(ctx, level, msg, fields)
	}
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	write(ctx, zapcore.DebugLevel, msg, fields)
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	write(ctx, zapcore.InfoLevel, msg, fields)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	write(ctx, zapcore.WarnLevel, msg, fields)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	write(ctx, zapcore.ErrorLevel, msg, fields)
}

// Sync flushes the global logger; a no-op before Init.
func Sync() error {
	if l := global.Load(); l != nil {
		return l.Sync()
	}
	return nil
}

// SetLogger swaps the global logger; nil silences the package-level functions.
func SetLogger(l *Logger) {
	global.Store(l)
}

func GetLogger() *Logger {
	return global.Load()
}
