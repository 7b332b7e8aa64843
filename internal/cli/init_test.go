package cli

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"budget/internal/config"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		logger := SetupLogger(tt.level)
		if !logger.Enabled(context.Background(), tt.want) {
			t.Errorf("SetupLogger(%q) does not log at %v", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && logger.Enabled(context.Background(), tt.want-4) {
			t.Errorf("SetupLogger(%q) logs below %v", tt.level, tt.want)
		}
	}
}

func TestOpenRecordStore(t *testing.T) {
	logger := SetupLogger("error")
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{"memory", config.Config{DataBackend: "memory"}, false},
		{"sqlite", config.Config{DataBackend: "sqlite", SQLiteDBPath: filepath.Join(t.TempDir(), "budget.db")}, false},
		{"unknown", config.Config{DataBackend: "postgres"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := OpenRecordStore(ctx, logger, &tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenRecordStore() error = %v", err)
			}
			defer res.Cleanup()
			if err := res.Store.Set(ctx, "ping", []byte("ok")); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
		})
	}
}
