// Package config loads directory node and chat peer settings. Values are
// layered: built-in defaults, then an optional YAML file named by --config,
// then command-line flags. Only flags that are given on the command line
// override earlier layers.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"p2p-directory/internal/discovery"
	"p2p-directory/internal/telemetry"
)

const (
	DefaultProtocol   = "/p2p-directory/1.0"
	DefaultServerPort = 62649
)

var ErrInvalid = errors.New("invalid configuration")

// LANConfig toggles UDP rendezvous.
type LANConfig struct {
	Enabled             bool `yaml:"enabled"`
	discovery.LANConfig `yaml:",inline"`
}

// StoreConfig selects the account store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "json" or "bolt"
	Path    string `yaml:"path"`    // relative paths live in the data dir
}

const (
	BackendJSON = "json"
	BackendBolt = "bolt"
)

// configFlag finds --config / -c in args without parsing anything else, so
// the file can be applied before the flags that override it.
func configFlag(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			break
		}
		for _, name := range []string{"--config", "-c"} {
			if v, ok := strings.CutPrefix(a, name+"="); ok {
				return v
			}
			if a == name && i+1 < len(args) {
				return args[i+1]
			}
		}
	}
	return ""
}

// loadYAML overlays path onto out. Unknown keys are an error.
func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	return nil
}

func addCommonFlags(fs *pflag.FlagSet, configPath *string, dataDir *string, lan *LANConfig, log *telemetry.LogConfig, debug *bool) {
	fs.StringVarP(configPath, "config", "c", *configPath, "YAML config file")
	fs.StringVar(dataDir, "data-dir", *dataDir, "directory for keys and state")
	fs.BoolVar(&lan.Enabled, "lan", lan.Enabled, "enable LAN rendezvous")
	fs.IntVar(&lan.Port, "lan-port", lan.Port, "UDP port for LAN rendezvous")
	fs.DurationVar(&lan.Timeout, "lan-timeout", lan.Timeout, "how long to wait for LAN answers")
	fs.StringVar(&log.File, "log-file", log.File, "also log to this file, rotated")
	fs.BoolVar(debug, "debug", *debug, "verbose logging")
}

func defaultLAN(enabled bool) LANConfig {
	return LANConfig{Enabled: enabled, LANConfig: discovery.DefaultLANConfig()}
}

func defaultLog() telemetry.LogConfig {
	return telemetry.LogConfig{MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28}
}

func parse(fs *pflag.FlagSet, args []string, overlay func(path string) error) error {
	if path := configFlag(args); path != "" {
		if err := overlay(path); err != nil {
			return err
		}
	}
	return fs.Parse(args)
}

func checkCommon(protocol, dataDir string, lan LANConfig) error {
	if protocol == "" {
		return fmt.Errorf("%w: empty protocol", ErrInvalid)
	}
	if dataDir == "" {
		return fmt.Errorf("%w: empty data dir", ErrInvalid)
	}
	if lan.Enabled && (lan.Port <= 0 || lan.Port > 65535 || lan.Timeout <= 0) {
		return fmt.Errorf("%w: lan port %d timeout %s", ErrInvalid, lan.Port, lan.Timeout)
	}
	return nil
}
