// internal/logging/levels.go
package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug. Used for prompt and response bodies.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a level name case-insensitively. "trace" and
// "warning" are accepted alongside the zap names.
func LevelFromString(level string) (zapcore.Level, error) {
	switch level = strings.ToLower(strings.TrimSpace(level)); level {
	case "trace":
		return TraceLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}
