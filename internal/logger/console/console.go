package console

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Logger writes human-readable lines to a terminal.
type Logger struct {
	logger *log.Logger
}

type Params struct {
	Debug  bool
	Prefix string
	Output io.Writer
}

func New(params Params) *Logger {
	level := log.InfoLevel
	if params.Debug {
		level = log.DebugLevel
	}
	out := params.Output
	if out == nil {
		out = os.Stderr
	}
	return &Logger{
		logger: log.NewWithOptions(out, log.Options{
			ReportTimestamp: true,
			Level:           level,
			Prefix:          params.Prefix,
		}),
	}
}

func (c *Logger) Debug(message string, keyvals ...any) { c.logger.Debug(message, keyvals...) }
func (c *Logger) Info(message string, keyvals ...any)  { c.logger.Info(message, keyvals...) }
func (c *Logger) Warn(message string, keyvals ...any)  { c.logger.Warn(message, keyvals...) }
func (c *Logger) Error(message string, keyvals ...any) { c.logger.Error(message, keyvals...) }
func (c *Logger) Fatal(message string, keyvals ...any) { c.logger.Fatal(message, keyvals...) }
