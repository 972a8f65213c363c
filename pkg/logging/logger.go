// Package logging builds the hclog loggers shared by the cartfriend
// components.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Environment variables read by the logger factory.
const (
	EnvLogLevel = "CARTFRIEND_LOG_LEVEL"
	EnvJSONLog  = "CARTFRIEND_JSON_LOG"
)

// DefaultLevel applies when EnvLogLevel is unset.
const DefaultLevel = "warn"

// Sub-logger names used by the components.
const (
	ComponentSettings = "settings"
	ComponentBankSwap = "bankswap"
	ComponentImage    = "image"
	ComponentLock     = "lock"
	ComponentProgress = "progress"
)

// componentPrefixes marks text output by the component that wrote it.
var componentPrefixes = map[string]string{
	ComponentSettings: "📦 ",
	ComponentBankSwap: "🔄 ",
	ComponentImage:    "💽 ",
	ComponentLock:     "🔒 ",
	ComponentProgress: "⏳ ",
}

// rootPrefix marks lines of the root logger and of unknown components.
const rootPrefix = "💾 "

// NewLogger returns the root logger. Text output gets a per-component emoji
// prefix; with EnvJSONLog=1 output is plain hclog JSON. Timestamps are UTC.
func NewLogger(name string, level string, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
	}

	jsonFormat := os.Getenv(EnvJSONLog) == "1"
	if !jsonFormat {
		output = NewPrefixWriter(componentPrefixes, rootPrefix, output)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		JSONFormat: jsonFormat,
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z",
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	})
}

// GetLogLevel returns EnvLogLevel, or DefaultLevel.
func GetLogLevel() string {
	if level := os.Getenv(EnvLogLevel); level != "" {
		return level
	}
	return DefaultLevel
}
