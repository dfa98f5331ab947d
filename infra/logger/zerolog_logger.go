package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	outputMu sync.RWMutex
	output   io.Writer
	console  *bool
)

// Configure sets the global level and output format for loggers created
// afterwards. format is "json" or "console"; an empty value keeps the APP_ENV
// based detection.
func Configure(level, format string) error {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return fmt.Errorf("log level %q: %w", level, err)
		}
		lvl = parsed
	}
	zerolog.SetGlobalLevel(lvl)

	outputMu.Lock()
	defer outputMu.Unlock()
	switch strings.ToLower(format) {
	case "":
		console = nil
	case "console":
		c := true
		console = &c
	case "json":
		c := false
		console = &c
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// SetOutput redirects loggers created afterwards to w. A nil writer restores
// stdout.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
}

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger creates a ZerologLogger tagged with the provided component.
func NewZerologLogger(component string) Logger {
	outputMu.RLock()
	var out io.Writer = os.Stdout
	if output != nil {
		out = output
	}
	useConsole := strings.ToLower(os.Getenv("APP_ENV")) == "dev"
	if console != nil {
		useConsole = *console
	}
	outputMu.RUnlock()

	if useConsole {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	z := zerolog.New(out).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

func withFields(ev *zerolog.Event, fields map[string]any) *zerolog.Event {
	for k, v := range fields {
		if err, ok := v.(error); ok {
			ev = ev.AnErr(k, err)
			continue
		}
		ev = ev.Interface(k, v)
	}
	return ev
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	withFields(l.log.Debug(), fields).Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Infow(msg string, fields map[string]any) {
	withFields(l.log.Info(), fields).Msg(msg)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Warnw(msg string, fields map[string]any) {
	withFields(l.log.Warn(), fields).Msg(msg)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}

func (l *ZerologLogger) Errorw(msg string, fields map[string]any) {
	withFields(l.log.Error(), fields).Msg(msg)
}
