package logger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jesses-code-adventures/billing/internal/config"
)

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want LogConfig
	}{
		{
			name: "empty falls back to defaults",
			want: DefaultConfig(),
		},
		{
			name: "set values win",
			cfg:  config.Config{LogLevel: "debug", LogFormat: "json", LogOutput: "stdout"},
			want: LogConfig{Level: "debug", Format: "json", TimeFormat: time.RFC3339, Output: "stdout"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromConfig(&tt.cfg); got != tt.want {
				t.Errorf("FromConfig = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSetup(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())
	previous := log.Logger
	defer func() { log.Logger = previous }()

	cfg := DefaultConfig()
	cfg.Level = "warn"
	cfg.Format = "json"
	cfg.Output = filepath.Join(t.TempDir(), "billing.log")
	if err := Setup(cfg); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Errorf("level = %s, want warn", zerolog.GlobalLevel())
	}

	cfg.Level = "loud"
	if err := Setup(cfg); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
