package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Leveled logging facade used across the service.
// Backed by zerolog; call Init early during startup (default level is Info).

var (
	mu  sync.RWMutex
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
)

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
func Init(level string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		log = log.Level(zerolog.DebugLevel)
	case "warn", "warning":
		log = log.Level(zerolog.WarnLevel)
	case "error":
		log = log.Level(zerolog.ErrorLevel)
	case "fatal":
		log = log.Level(zerolog.FatalLevel)
	default:
		log = log.Level(zerolog.InfoLevel)
	}
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &log
}

func Debugf(format string, v ...interface{}) { current().Debug().Msgf(format, v...) }
func Infof(format string, v ...interface{})  { current().Info().Msgf(format, v...) }
func Warnf(format string, v ...interface{})  { current().Warn().Msgf(format, v...) }
func Errorf(format string, v ...interface{}) { current().Error().Msgf(format, v...) }

// Fatalf logs and exits the process.
func Fatalf(format string, v ...interface{}) { current().Fatal().Msgf(format, v...) }

// Single-string helpers kept for brevity at call sites.
func Debug(msg string) { current().Debug().Msg(msg) }
func Info(msg string)  { current().Info().Msg(msg) }
func Warn(msg string)  { current().Warn().Msg(msg) }
func Error(msg string) { current().Error().Msg(msg) }

// LevelString returns the current level as text.
func LevelString() string {
	return current().GetLevel().String()
}
