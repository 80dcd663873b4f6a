package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var log = zerolog.New(os.Stdout).With().Timestamp().Logger()

type Config struct {
	Level  string
	Pretty bool
}

// Entry is a logger carrying extra fields, returned by WithError and WithFields.
type Entry struct {
	l zerolog.Logger
}

func Init() {
	InitWithConfig(Config{Level: "info"})
}

func InitWithConfig(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	log = zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", "allowance").
		Logger()
}

// SetOutput redirects the logger, keeping debug level so everything is captured.
func SetOutput(w io.Writer) {
	log = zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

// Info logs msg with optional key/value pairs: Info("msg", "status", 200).
func Info(msg string, kv ...interface{}) {
	withPairs(log.Info(), kv).Msg(msg)
}

func Infof(format string, v ...interface{}) {
	log.Info().Msgf(format, v...)
}

func Warn(msg string, kv ...interface{}) {
	withPairs(log.Warn(), kv).Msg(msg)
}

func Error(msg string, kv ...interface{}) {
	withPairs(log.Error(), kv).Msg(msg)
}

func Errorf(format string, v ...interface{}) {
	log.Error().Msgf(format, v...)
}

func Debug(msg string, kv ...interface{}) {
	withPairs(log.Debug(), kv).Msg(msg)
}

func Debugf(format string, v ...interface{}) {
	log.Debug().Msgf(format, v...)
}

func Fatal(msg string) {
	log.Fatal().Msg(msg)
}

func Fatalf(format string, v ...interface{}) {
	log.Fatal().Msgf(format, v...)
}

func WithError(err error) Entry {
	return Entry{l: log.With().Err(err).Logger()}
}

func WithFields(fields map[string]interface{}) Entry {
	return Entry{l: log.With().Fields(fields).Logger()}
}

func (e Entry) Info(msg string) {
	e.l.Info().Msg(msg)
}

func (e Entry) Warn(msg string) {
	e.l.Warn().Msg(msg)
}

func (e Entry) Error(msg string) {
	e.l.Error().Msg(msg)
}

func withPairs(ev *zerolog.Event, kv []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		ev = ev.Interface(key, kv[i+1])
	}
	if len(kv)%2 == 1 {
		ev = ev.Interface("extra", kv[len(kv)-1])
	}
	return ev
}
