package core_test

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"example.com/probed/core"
	"example.com/probed/net/probe"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probed.toml")
	raw := []byte("port = 60667\ntimestamp_mode = \"userland\"\ndscp = 46\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	var cfg core.SvcConfig
	core.LoadConfig(&cfg, path, zap.NewNop())

	if got := core.Port(cfg); got != 60667 {
		t.Errorf("Port = %d, want 60667", got)
	}
	if got := core.TimestampMode(cfg); got != probe.TimestampModeUserland {
		t.Errorf("TimestampMode = %v, want userland", got)
	}
	if got := core.Dscp(cfg, zap.NewNop()); got != 46 {
		t.Errorf("Dscp = %d, want 46", got)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg core.SvcConfig
	if got := core.Port(cfg); got != core.DefaultPort {
		t.Errorf("Port = %d, want %d", got, core.DefaultPort)
	}
	if got := core.TimestampMode(cfg); got != probe.TimestampModeKernel {
		t.Errorf("TimestampMode = %v, want kernel", got)
	}
}
