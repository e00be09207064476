// Package log is the application's leveled key/value logger.
//
// Call sites pass a message plus alternating key/value pairs:
//
//	log.Info("event saved", "calendar_id", id, "uid", uid)
//	log.Error("save failed", err, "calendar_id", id)
//
// Output goes to stderr (stdout is reserved for CLI results and the MCP
// stdio transport).
package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stderr, LevelInfo)
)

func newLogger(w io.Writer, l Level) zerolog.Logger {
	return zerolog.New(w).
		Level(zerologLevel(l)).
		With().
		Timestamp().
		Logger()
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// SetLevel changes the minimum level that is written.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Level(zerologLevel(l))
}

// SetOutput redirects log output, keeping the current level.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Output(w)
}

// ParseLevel maps "debug", "info", "warn" and "error" (any case) to a
// Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func Debug(msg string, kv ...any) {
	current().Debug().Fields(pairs(kv)).Msg(msg)
}

func Info(msg string, kv ...any) {
	current().Info().Fields(pairs(kv)).Msg(msg)
}

func Warn(msg string, kv ...any) {
	current().Warn().Fields(pairs(kv)).Msg(msg)
}

func Error(msg string, err error, kv ...any) {
	current().Error().Err(err).Fields(pairs(kv)).Msg(msg)
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := logger
	return &l
}

// pairs drops a trailing key without a value and any non-string key.
func pairs(kv []any) map[string]any {
	out := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		out[key] = kv[i+1]
	}
	return out
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
