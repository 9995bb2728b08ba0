// Package logging adapts zap to the auth Logger interface.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"

	OutputStdout = "stdout"
	OutputStderr = "stderr"
	OutputFile   = "file"
)

// Config selects where and how log lines are written. It is passed at
// construction time, there is no process wide switch.
type Config struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// DefaultConfig logs info and above as JSON to stdout
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: FormatJSON,
		Output: OutputStdout,
	}
}

// Logger implements auth.Logger on top of a zap SugaredLogger
type Logger struct {
	sugar  *zap.SugaredLogger
	closer io.Closer
}

// New builds a Logger from cfg
func New(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid log level").
				WithMetadata(map[string]any{"level": cfg.Level})
		}
		level = lvl
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", FormatJSON:
		encoder = zapcore.NewJSONEncoder(encCfg)
	case FormatConsole:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, goerrors.New(fmt.Sprintf("unknown log format %q", cfg.Format), goerrors.CategoryBadInput)
	}

	var (
		sink   zapcore.WriteSyncer
		closer io.Closer
	)
	switch strings.ToLower(cfg.Output) {
	case "", OutputStdout:
		sink = zapcore.Lock(os.Stdout)
	case OutputStderr:
		sink = zapcore.Lock(os.Stderr)
	case OutputFile:
		if cfg.FilePath == "" {
			return nil, goerrors.New("log file path is required for file output", goerrors.CategoryBadInput)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open log file").
				WithMetadata(map[string]any{"path": cfg.FilePath})
		}
		sink = zapcore.AddSync(f)
		closer = f
	default:
		return nil, goerrors.New(fmt.Sprintf("unknown log output %q", cfg.Output), goerrors.CategoryBadInput)
	}

	core := zapcore.NewCore(encoder, sink, level)
	l := NewFromZap(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)))
	l.closer = closer
	return l, nil
}

// NewFromZap wraps an existing zap logger
func NewFromZap(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{sugar: z.Sugar()}
}

func (l *Logger) Debug(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.sugar.Errorf(format, args...)
}

// Named returns a child logger tagged with name
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name)}
}

// Close flushes buffered entries and releases the log file, if any
func (l *Logger) Close() error {
	_ = l.sugar.Sync()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
