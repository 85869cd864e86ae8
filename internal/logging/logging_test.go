package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want logrus.Level
		ok   bool
	}{
		{"debug", logrus.DebugLevel, true},
		{"WARN", logrus.WarnLevel, true},
		{"helics_log_level_warning", logrus.WarnLevel, true},
		{"helics_log_level_error", logrus.ErrorLevel, true},
		{"helics_log_level_summary", logrus.InfoLevel, true},
		{"helics_log_level_debug", logrus.DebugLevel, true},
		{"helics_log_level_trace", logrus.TraceLevel, true},
		{"", logrus.InfoLevel, false},
		{"loud", logrus.InfoLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseLevel(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigureEnvOverride(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	var buf bytes.Buffer
	ConfigureOutput("debug", &buf)
	t.Cleanup(func() {
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.InfoLevel)
	})

	assert.Equal(t, logrus.ErrorLevel, logrus.GetLevel())
	ForFederate("Controller").Warn("hidden")
	assert.Empty(t, buf.String())
}
