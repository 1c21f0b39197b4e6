// Package file is a JSON log backend with size based rotation.
package file

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Params struct {
	Path       string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Logger struct {
	sugar *zap.SugaredLogger
}

func New(params Params) (*Logger, error) {
	if params.Path == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(params.Path), 0o755); err != nil {
		return nil, fmt.Errorf("can't create log directory: %w", err)
	}

	level := zap.NewAtomicLevel()
	if params.Level != "" {
		if err := level.UnmarshalText([]byte(params.Level)); err != nil {
			return nil, fmt.Errorf("can't parse log level %q: %w", params.Level, err)
		}
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   params.Path,
		MaxSize:    params.MaxSizeMB,
		MaxBackups: params.MaxBackups,
		MaxAge:     params.MaxAgeDays,
		Compress:   params.Compress,
	})

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), writer, level)
	// Skip the facade frames so the caller is the code that logged.
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(3))
	return &Logger{sugar: z.Sugar()}, nil
}

func (l *Logger) Debug(message string, keyvals ...any) { l.sugar.Debugw(message, keyvals...) }
func (l *Logger) Info(message string, keyvals ...any)  { l.sugar.Infow(message, keyvals...) }
func (l *Logger) Warn(message string, keyvals ...any)  { l.sugar.Warnw(message, keyvals...) }
func (l *Logger) Error(message string, keyvals ...any) { l.sugar.Errorw(message, keyvals...) }
func (l *Logger) Fatal(message string, keyvals ...any) { l.sugar.Fatalw(message, keyvals...) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
