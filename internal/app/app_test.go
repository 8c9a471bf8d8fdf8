package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trackcast/internal/config"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		errSub string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"empty listen", func(c *config.Config) { c.Server.Listen = " " }, "server.listen"},
		{"bad poll timeout", func(c *config.Config) { c.Telegram.PollTimeout = "soon" }, "telegram.poll_timeout"},
		{"token required", func(c *config.Config) { c.Telegram.Enabled = true }, "telegram.token"},
		{"bad broadcast chat", func(c *config.Config) { c.Telegram.BroadcastChat = "general" }, "telegram.broadcast_chat"},
		{"negative rate", func(c *config.Config) { c.Telegram.RatePerSec = -1 }, "rate_per_sec"},
		{"unknown storage", func(c *config.Config) { c.Storage.Driver = "redis" }, "unknown storage.driver"},
		{"sqlite bad timeout", func(c *config.Config) {
			c.Storage = &config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "fast"}
		}, "storage.busy_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.errSub == "" {
				if err != nil {
					t.Fatalf("validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errSub) {
				t.Fatalf("err=%v want containing %q", err, tt.errSub)
			}
		})
	}
}

func TestMapStorageConfig(t *testing.T) {
	tests := []struct {
		in      *config.StorageConfig
		driver  string
		enabled bool
		busy    time.Duration
	}{
		{nil, "", false, 0},
		{&config.StorageConfig{Driver: "none"}, "", false, 0},
		{&config.StorageConfig{Driver: "FILE", Path: "./data/x"}, "file", true, 0},
		{&config.StorageConfig{Driver: "sqlite", Path: "a.db"}, "sqlite", true, time.Second},
		{&config.StorageConfig{Driver: "sqlite3", Path: "a.db", BusyTimeout: "3s"}, "sqlite3", true, 3 * time.Second},
	}
	for _, tt := range tests {
		cfg := config.Default()
		cfg.Storage = tt.in
		sc, enabled, err := mapStorageConfig(cfg)
		if err != nil {
			t.Fatalf("%+v: %v", tt.in, err)
		}
		if enabled != tt.enabled || sc.Driver != tt.driver || sc.BusyTimeout != tt.busy {
			t.Fatalf("%+v: got %+v enabled=%v", tt.in, sc, enabled)
		}
	}
}

func TestStartStop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `trackedPlayers: []
autobroadcast:
  enabled: true
  interval_seconds: 30
server:
  listen: 127.0.0.1:0
  operators: []
  console: false
logging:
  level: ERROR
  console: false
  file:
    enabled: false
    path: ""
telegram:
  enabled: false
  token: ""
  owner_user_ids: []
  broadcast_chat: ""
  poll_timeout: 10s
  rate_per_sec: 1
storage:
  driver: file
  path: ` + filepath.Join(dir, "audit") + "\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := NewApp(path)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-a.Done():
		t.Fatalf("app stopped early: %v", a.Err())
	case <-time.After(50 * time.Millisecond):
	}

	stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.Err() != nil {
		t.Fatalf("supervisor error: %v", a.Err())
	}

	cfg, err := config.NewManager(path).Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !cfg.Autobroadcast.Enabled || cfg.Autobroadcast.IntervalSeconds != 30 {
		t.Fatalf("autobroadcast=%+v", cfg.Autobroadcast)
	}
}

func TestNewAppRejectsInvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("telegram:\n  poll_timeout: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewApp(path); err == nil || !strings.Contains(err.Error(), "telegram.poll_timeout") {
		t.Fatalf("err=%v", err)
	}
}
