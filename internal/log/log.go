package log

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	mu       sync.Mutex
	logger   *stdlog.Logger
	minLevel = LevelInfo
)

func ensureLogger() *stdlog.Logger {
	if logger == nil {
		logger = stdlog.New(os.Stderr, "", 0)
	}
	return logger
}

// SetLevel sets the minimum level emitted. Unknown levels are ignored.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	switch l {
	case LevelDebug, LevelInfo, LevelError:
		minLevel = l
	}
}

// ParseLevel maps a config/CLI string onto a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func Debug(msg string, kv ...any) {
	write(LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	write(LevelInfo, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend the error into the key-value list.
	extended := append([]any{"err", err}, kv...)
	write(LevelError, msg, extended...)
}

func write(level Level, msg string, kv ...any) {
	mu.Lock()
	defer mu.Unlock()

	if !enabled(level) {
		return
	}

	// Line format: 2025-01-01T00:00:00Z [LEVEL] msg key=value ...
	line := time.Now().Format(time.RFC3339Nano) + " [" + string(level) + "] " + msg
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		line += " " + key + "=" + fmt.Sprint(kv[i+1])
	}
	// An odd trailing argument is ignored.

	ensureLogger().Println(line)
}

func enabled(level Level) bool {
	switch minLevel {
	case LevelDebug:
		return true
	case LevelError:
		return level == LevelError
	default:
		return level == LevelInfo || level == LevelError
	}
}
