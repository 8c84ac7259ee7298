package infra

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		level string
		want  zerolog.Level
	}{
		{"production default", "production", "", zerolog.InfoLevel},
		{"development default", "development", "", zerolog.DebugLevel},
		{"override", "production", "WARN", zerolog.WarnLevel},
		{"bad override ignored", "production", "loud", zerolog.InfoLevel},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if got := newLogger(tc.env, tc.level, &buf).GetLevel(); got != tc.want {
				t.Fatalf("level = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestNewLoggerTagsService(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger("production", "", &buf)
	l.Info().Msg("hello")
	if !strings.Contains(buf.String(), `"service":"cinemastudio"`) {
		t.Fatalf("log line = %s", buf.String())
	}
}
