// Package logging provides structured logging for the CLI and the library packages.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const consoleTimeFormat = "15:04:05"

// Logger wraps zerolog with component context. Loggers derived with Named
// share the output of their parent, so SetOutput redirects all of them.
type Logger struct {
	zlog      zerolog.Logger
	component string
	output    *swapWriter
}

// swapWriter is an io.Writer whose destination can be replaced while
// loggers are writing to it.
type swapWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *swapWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *swapWriter) swap(w io.Writer) io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.w
	s.w = w
	return prev
}

func (s *swapWriter) current() io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w
}

// NewLogger creates a new console logger tagged with the given component.
// Logs go to stderr so stdout stays clean for command output (e.g. `cat`).
func NewLogger(component string) *Logger {
	sw := &swapWriter{w: os.Stderr}
	return newLogger(component, zerolog.ConsoleWriter{Out: sw, TimeFormat: consoleTimeFormat}, sw)
}

// NewLoggerWithOutput creates a logger writing JSON lines to w.
func NewLoggerWithOutput(component string, w io.Writer) *Logger {
	sw := &swapWriter{w: w}
	return newLogger(component, sw, sw)
}

func newLogger(component string, w io.Writer, sw *swapWriter) *Logger {
	ctx := zerolog.New(w).With().Timestamp()
	if component != "" {
		ctx = ctx.Str("component", component)
	}
	return &Logger{
		zlog:      ctx.Logger(),
		component: component,
		output:    sw,
	}
}

// NewNopLogger returns a logger that discards everything. Used by tests and
// by library callers that do not care about logs.
func NewNopLogger() *Logger {
	return &Logger{zlog: zerolog.Nop(), output: &swapWriter{w: io.Discard}}
}

// NewDefaultCLILogger creates a default CLI logger.
func NewDefaultCLILogger() *Logger {
	return NewLogger("")
}

// Named returns a child logger for a sub-component sharing the same output.
func (l *Logger) Named(component string) *Logger {
	if l == nil {
		return NewNopLogger()
	}
	return &Logger{
		zlog:      l.zlog.With().Str("component", component).Logger(),
		component: component,
		output:    l.output,
	}
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// With creates a child logger with additional context.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// SetOutput redirects this logger and every logger derived from the same
// root to w, returning the previous destination. Used to route log lines
// through the progress container so they do not tear the bars apart.
func (l *Logger) SetOutput(w io.Writer) io.Writer {
	return l.output.swap(w)
}

// Output returns the current output writer.
func (l *Logger) Output() io.Writer {
	return l.output.current()
}

// LeveledLogger adapts the logger to the key/value interface expected by
// go-retryablehttp. Info and debug chatter from the retry loop is demoted to
// debug so a normal run only shows retries that actually happened.
func (l *Logger) LeveledLogger() *RetryLogger {
	return &RetryLogger{l: l}
}

// RetryLogger implements retryablehttp.LeveledLogger.
type RetryLogger struct {
	l *Logger
}

func (r *RetryLogger) Error(msg string, keysAndValues ...interface{}) {
	withFields(r.l.zlog.Error(), keysAndValues).Msg(msg)
}

func (r *RetryLogger) Info(msg string, keysAndValues ...interface{}) {
	withFields(r.l.zlog.Debug(), keysAndValues).Msg(msg)
}

func (r *RetryLogger) Debug(msg string, keysAndValues ...interface{}) {
	withFields(r.l.zlog.Debug(), keysAndValues).Msg(msg)
}

func (r *RetryLogger) Warn(msg string, keysAndValues ...interface{}) {
	withFields(r.l.zlog.Warn(), keysAndValues).Msg(msg)
}

func withFields(e *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		e = e.Interface(key, keysAndValues[i+1])
	}
	return e
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ParseLevel maps a config/flag string to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}

func init() {
	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Configure global logger
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: consoleTimeFormat,
	})
}
