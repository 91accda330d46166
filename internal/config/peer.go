package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"p2p-directory/internal/paths"
	"p2p-directory/internal/telemetry"
)

// Peer configures the chat peer.
type Peer struct {
	Name           string              `yaml:"name"`
	Listen         string              `yaml:"listen"`
	Protocol       string              `yaml:"protocol"`
	DataDir        string              `yaml:"data_dir"`
	IdentityFile   string              `yaml:"identity_file"`
	Directory      string              `yaml:"directory"`     // host:port of a directory node
	DirectoryID    string              `yaml:"directory_id"`  // pins the directory identity when set
	PollInterval   time.Duration       `yaml:"poll_interval"` // 0 disables LIST polling
	RequestTimeout time.Duration       `yaml:"request_timeout"`
	LAN            LANConfig           `yaml:"lan"`
	Log            telemetry.LogConfig `yaml:"log"`
	Debug          bool                `yaml:"debug"`
}

func DefaultPeer() Peer {
	return Peer{
		Listen:         "0.0.0.0:0",
		Protocol:       DefaultProtocol,
		DataDir:        paths.DefaultDataDir(),
		IdentityFile:   "peer.key",
		PollInterval:   5 * time.Second,
		RequestTimeout: 5 * time.Second,
		LAN:            defaultLAN(true),
		Log:            defaultLog(),
	}
}

// LoadPeer applies defaults, the --config file and then args.
func LoadPeer(args []string) (Peer, error) {
	cfg := DefaultPeer()
	var configPath string

	fs := pflag.NewFlagSet("chat-peer", pflag.ContinueOnError)
	addCommonFlags(fs, &configPath, &cfg.DataDir, &cfg.LAN, &cfg.Log, &cfg.Debug)
	fs.StringVarP(&cfg.Name, "name", "n", cfg.Name, "display name sent in the handshake")
	fs.StringVarP(&cfg.Listen, "listen", "l", cfg.Listen, "TCP listen address for incoming chat")
	fs.StringVar(&cfg.Protocol, "protocol", cfg.Protocol, "protocol id the directory must match")
	fs.StringVar(&cfg.IdentityFile, "identity", cfg.IdentityFile, "identity key file")
	fs.StringVarP(&cfg.Directory, "directory", "d", cfg.Directory, "directory node address")
	fs.StringVar(&cfg.DirectoryID, "directory-id", cfg.DirectoryID, "expected directory peer id")
	fs.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "LIST polling interval, 0 to disable")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "per-request timeout")

	if err := parse(fs, args, func(path string) error { return loadYAML(path, &cfg) }); err != nil {
		return Peer{}, err
	}
	return cfg, cfg.finish()
}

func (c *Peer) finish() error {
	if err := checkCommon(c.Protocol, c.DataDir, c.LAN); err != nil {
		return err
	}
	if c.Directory == "" && !c.LAN.Enabled {
		return fmt.Errorf("%w: no directory address and LAN rendezvous disabled", ErrInvalid)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalid)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("%w: negative poll interval", ErrInvalid)
	}
	c.IdentityFile = paths.In(c.DataDir, c.IdentityFile)
	c.Log.File = paths.In(c.DataDir, c.Log.File)
	return nil
}
