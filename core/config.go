package core

import (
	"bytes"
	"os"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"example.com/probed/net/probe"
)

// DefaultPort is the probe/control port used when none is configured.
const DefaultPort = 60666

type SvcConfig struct {
	Port          uint16 `toml:"port,omitempty"`
	RemoteAddr    string `toml:"remote_address,omitempty"`
	Interface     string `toml:"interface,omitempty"`
	TimestampMode string `toml:"timestamp_mode,omitempty"`
	DSCP          uint8  `toml:"dscp,omitempty"` // must be in range [0, 63]
	MetricsAddr   string `toml:"metrics_address,omitempty"`
	Interval      string `toml:"probe_interval,omitempty"`
}

func LoadConfig[T any](cfgStruct T, configFile string, log *zap.Logger) { // T is pointer to config struct
	raw, err := os.ReadFile(configFile)
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}
	err = toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields().Decode(cfgStruct)
	if err != nil {
		log.Fatal("failed to decode configuration", zap.Error(err))
	}
}

func Port(cfg SvcConfig) uint16 {
	if cfg.Port == 0 {
		return DefaultPort
	}
	return cfg.Port
}

// TimestampMode maps the configured timestamp source to the sender mode.
// Kernel timestamping is the default; anything but "userland" selects it.
func TimestampMode(cfg SvcConfig) probe.TimestampMode {
	if cfg.TimestampMode == "userland" {
		return probe.TimestampModeUserland
	}
	return probe.TimestampModeKernel
}

func Dscp(cfg SvcConfig, log *zap.Logger) uint8 {
	if cfg.DSCP > 63 {
		log.Fatal("invalid configuration", zap.Uint8("dscp", cfg.DSCP))
	}
	return cfg.DSCP
}
