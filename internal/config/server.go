package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"p2p-directory/internal/paths"
	"p2p-directory/internal/telemetry"
)

// AuthLimitConfig throttles failed REGISTER and LOGIN attempts per remote
// host. Burst 0 turns throttling off.
type AuthLimitConfig struct {
	PerMinute float64 `yaml:"per_minute"`
	Burst     int     `yaml:"burst"`
}

// Server configures the directory node.
type Server struct {
	Name             string              `yaml:"name"`
	Listen           string              `yaml:"listen"`
	Protocol         string              `yaml:"protocol"`
	DataDir          string              `yaml:"data_dir"`
	IdentityFile     string              `yaml:"identity_file"`
	Store            StoreConfig         `yaml:"store"`
	MetricsAddr      string              `yaml:"metrics_addr"` // empty disables
	HandshakeTimeout time.Duration       `yaml:"handshake_timeout"`
	KeepAlive        time.Duration       `yaml:"keep_alive"`
	AuthLimit        AuthLimitConfig     `yaml:"auth_limit"`
	LAN              LANConfig           `yaml:"lan"`
	Log              telemetry.LogConfig `yaml:"log"`
	Debug            bool                `yaml:"debug"`
}

func DefaultServer() Server {
	return Server{
		Name:             "directory",
		Listen:           net.JoinHostPort("0.0.0.0", strconv.Itoa(DefaultServerPort)),
		Protocol:         DefaultProtocol,
		DataDir:          paths.DefaultDataDir(),
		IdentityFile:     "directory.key",
		Store:            StoreConfig{Backend: BackendJSON, Path: "users.json"},
		MetricsAddr:      "127.0.0.1:9464",
		HandshakeTimeout: 5 * time.Second,
		KeepAlive:        15 * time.Second,
		AuthLimit:        AuthLimitConfig{PerMinute: 6, Burst: 10},
		LAN:              defaultLAN(true),
		Log:              defaultLog(),
	}
}

// LoadServer applies defaults, the --config file and then args.
func LoadServer(args []string) (Server, error) {
	cfg := DefaultServer()
	var configPath string

	fs := pflag.NewFlagSet("directory-node", pflag.ContinueOnError)
	addCommonFlags(fs, &configPath, &cfg.DataDir, &cfg.LAN, &cfg.Log, &cfg.Debug)
	fs.StringVar(&cfg.Name, "name", cfg.Name, "name announced to peers")
	fs.StringVarP(&cfg.Listen, "listen", "l", cfg.Listen, "TCP listen address")
	fs.StringVar(&cfg.Protocol, "protocol", cfg.Protocol, "protocol id peers must match")
	fs.StringVar(&cfg.IdentityFile, "identity", cfg.IdentityFile, "identity key file")
	fs.StringVar(&cfg.Store.Backend, "store", cfg.Store.Backend, "account store backend: json or bolt")
	fs.StringVar(&cfg.Store.Path, "store-path", cfg.Store.Path, "account store file")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus listen address, empty to disable")
	fs.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "Noise handshake deadline")
	fs.DurationVar(&cfg.KeepAlive, "keep-alive", cfg.KeepAlive, "TCP keep-alive period")
	fs.Float64Var(&cfg.AuthLimit.PerMinute, "auth-per-minute", cfg.AuthLimit.PerMinute, "failed logins refilled per minute")
	fs.IntVar(&cfg.AuthLimit.Burst, "auth-burst", cfg.AuthLimit.Burst, "failed logins allowed before throttling, 0 disables")

	// flags write straight into cfg, and Parse only touches the ones given,
	// so the file overlay must land before it
	if err := parse(fs, args, func(path string) error { return loadYAML(path, &cfg) }); err != nil {
		return Server{}, err
	}
	return cfg, cfg.finish()
}

func (c *Server) finish() error {
	if err := checkCommon(c.Protocol, c.DataDir, c.LAN); err != nil {
		return err
	}
	if c.Listen == "" {
		return fmt.Errorf("%w: empty listen address", ErrInvalid)
	}
	switch c.Store.Backend {
	case BackendJSON, BackendBolt:
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalid, c.Store.Backend)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("%w: empty store path", ErrInvalid)
	}
	if c.AuthLimit.Burst < 0 || c.AuthLimit.PerMinute < 0 {
		return fmt.Errorf("%w: negative auth limit", ErrInvalid)
	}
	c.IdentityFile = paths.In(c.DataDir, c.IdentityFile)
	c.Store.Path = paths.In(c.DataDir, c.Store.Path)
	c.Log.File = paths.In(c.DataDir, c.Log.File)
	return nil
}
