// Package logging configures the process-wide logrus logger.
//
// Levels can be given either as logrus names (debug, info, warn, ...) or as
// co-simulation core log level names (helics_log_level_warning, ...), so a
// single config value drives both the federates and this process.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	EnvLogLevel  = "COSIM_LOG_LEVEL"
	EnvLogFormat = "COSIM_LOG_FORMAT"
)

// Core log level names and their numeric values.
var LogLevelMap = map[string]int{
	"helics_log_level_dumplog":     -10,
	"helics_log_level_no_print":    -4,
	"helics_log_level_error":       0,
	"helics_log_level_profiling":   2,
	"helics_log_level_warning":     3,
	"helics_log_level_summary":     6,
	"helics_log_level_connections": 9,
	"helics_log_level_interfaces":  12,
	"helics_log_level_timing":      15,
	"helics_log_level_data":        18,
	"helics_log_level_debug":       21,
	"helics_log_level_trace":       24,
}

var mu sync.Mutex

// Configure sets the standard logger level and formatter. The environment
// variable COSIM_LOG_LEVEL wins over level.
func Configure(level string) {
	ConfigureOutput(level, os.Stderr)
}

func ConfigureOutput(level string, out io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if env := strings.TrimSpace(os.Getenv(EnvLogLevel)); env != "" {
		level = env
	}
	lvl, ok := ParseLevel(level)
	if !ok {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(out)

	switch strings.ToLower(os.Getenv(EnvLogFormat)) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// ParseLevel accepts logrus level names and core log level names.
func ParseLevel(raw string) (logrus.Level, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return logrus.InfoLevel, false
	}
	if n, ok := LogLevelMap[raw]; ok {
		return FromCoreLevel(n), true
	}
	lvl, err := logrus.ParseLevel(raw)
	if err != nil {
		return logrus.InfoLevel, false
	}
	return lvl, true
}

// FromCoreLevel maps a numeric core log level onto the closest logrus level.
func FromCoreLevel(n int) logrus.Level {
	switch {
	case n < 0:
		return logrus.PanicLevel
	case n < 3:
		return logrus.ErrorLevel
	case n < 6:
		return logrus.WarnLevel
	case n < 15:
		return logrus.InfoLevel
	case n < 24:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// ForFederate returns an entry tagged with the federate name.
func ForFederate(name string) *logrus.Entry {
	return logrus.WithField("federate", name)
}
