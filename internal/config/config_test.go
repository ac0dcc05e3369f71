package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	chdirTo := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(chdirTo); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PWD", chdirTo)
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, k := range []string{"LUNA_SERVER", "LUNA_DB", "LUNA_LOG_LEVEL", "LUNA_LOG_FORMAT", "LUNA_WEB_ADDR", "LUNA_POLL_INTERVAL", "LUNA_SYNC_FRIEND_REMOVALS"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "http://localhost:5000/api" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
	if cfg.Latitude != 40.7128 || cfg.Longitude != -74.0060 {
		t.Errorf("coordinates = %v,%v", cfg.Latitude, cfg.Longitude)
	}
	if !cfg.SyncFriendRemovals {
		t.Error("SyncFriendRemovals should default to true")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "luna.yaml")
	data := "server: http://file.example/api\npoll_interval: 2s\nsync_friend_removals: false\nlog_level: warn\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LUNA_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "http://file.example/api" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.PollInterval)
	}
	if cfg.SyncFriendRemovals {
		t.Error("SyncFriendRemovals should come from the file")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, env should win over file", cfg.LogLevel)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	isolate(t)

	if err := os.WriteFile(".env", []byte("LUNA_POLL_INTERVAL=750ms\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("LUNA_POLL_INTERVAL") })
	os.Unsetenv("LUNA_POLL_INTERVAL")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollInterval != 750*time.Millisecond {
		t.Errorf("PollInterval = %v, want 750ms", cfg.PollInterval)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	isolate(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoad_BadEnv(t *testing.T) {
	isolate(t)
	t.Setenv("LUNA_POLL_INTERVAL", "soon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unparsable LUNA_POLL_INTERVAL")
	}
}

func TestResolveDBPath(t *testing.T) {
	isolate(t)

	cfg := DefaultClientConfig()
	p, err := cfg.ResolveDBPath()
	if err != nil {
		t.Fatalf("ResolveDBPath: %v", err)
	}
	if filepath.Base(p) != "luna.db" {
		t.Errorf("path = %q", p)
	}
	cfg.DBPath = ":memory:"
	if p, _ := cfg.ResolveDBPath(); p != ":memory:" {
		t.Errorf("explicit path = %q", p)
	}
}
