package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/leadboard/internal/config"
	"github.com/rs/zerolog"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LogConfig{Level: "info", Format: "json"}, "leadboard-api", &buf)

	log.Info().Str("lead_id", "l-1").Msg("Lead updated")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "leadboard-api" {
		t.Errorf("Expected service field, got %v", entry["service"])
	}
	if entry["lead_id"] != "l-1" {
		t.Errorf("Expected lead_id field, got %v", entry["lead_id"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithWriter_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LogConfig{Level: "warn"}, "leadboard", &buf)

	log.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got %q", buf.String())
	}
}
