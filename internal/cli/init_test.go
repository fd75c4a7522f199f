package cli

import (
	"context"
	"log/slog"
	"os"
	"testing"
)

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger("debug", "json")
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level should be enabled")
	}
	if got := SetupLogger("error", "").Enabled(context.Background(), slog.LevelWarn); got {
		t.Error("warn should be disabled at error level")
	}
}

func TestLoadConfig(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("PORT", "9090")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "9090" || cfg.DataBackend != "memory" {
		t.Errorf("cfg = %+v", cfg)
	}

	t.Setenv("DATA_BACKEND", "sheets")
	if _, err := LoadConfig(); err == nil {
		t.Error("expected validation error")
	}
}
