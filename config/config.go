// Package config contains netmesh node configuration definitions.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/infogrid/netmesh/netmesh"
	"github.com/infogrid/netmesh/proxy"
	"github.com/infogrid/netmesh/sweeper"
	"github.com/infogrid/netmesh/transport/httpt"
	"github.com/infogrid/netmesh/transport/p2p"
)

const (
	defaultDataDirName = "netmesh"
	lockFile           = "LOCK"
)

// Transports understood by the node.
const (
	TransportP2P  = "p2p"
	TransportHTTP = "http"
)

// Config defines the top level configuration for a netmesh node.
type Config struct {
	// Preset names the configuration the file and flags are applied to.
	Preset     string `mapstructure:"preset"`
	BaseConfig `mapstructure:"main"`
	MeshBase   netmesh.Config `mapstructure:"meshbase"`
	Proxy      proxy.Config   `mapstructure:"proxy"`
	Sweeper    sweeper.Config `mapstructure:"sweeper"`
	P2P        p2p.Config     `mapstructure:"p2p"`
	HTTP       httpt.Config   `mapstructure:"http"`
	Logging    LoggerConfig   `mapstructure:"logging"`
}

// BaseConfig defines the options shared by the whole node.
type BaseConfig struct {
	DataDir    string `mapstructure:"data-folder"`
	ConfigFile string `mapstructure:"config"`

	// Transport is either p2p or http.
	Transport string `mapstructure:"transport"`
	// Listen is a multiaddr for p2p and host:port for http.
	Listen string `mapstructure:"listen"`
	// Identifier is the external form of the MeshBase identifier. It is
	// derived from the peer identity when using p2p. For http it defaults to
	// the address the listener is bound to.
	Identifier string `mapstructure:"identifier"`
	// Bootnodes are MeshBases the node knows about at startup, in external
	// form. For p2p they are multiaddrs ending in /p2p/<peer id>.
	Bootnodes []string `mapstructure:"bootnodes"`

	CollectMetrics bool   `mapstructure:"metrics"`
	MetricsAddr    string `mapstructure:"metrics-addr"`

	// ProfilerURL is the address of a pyroscope server. Profiling is off
	// when empty.
	ProfilerURL  string `mapstructure:"profiler-url"`
	ProfilerName string `mapstructure:"profiler-name"`
}

// FileLock is the path of the lock held while a node uses the data dir.
func (cfg *BaseConfig) FileLock() string {
	return filepath.Join(cfg.DataDir, lockFile)
}

// DefaultConfig returns the default configuration for a netmesh node.
func DefaultConfig() Config {
	return Config{
		BaseConfig: defaultBaseConfig(),
		MeshBase:   netmesh.DefaultConfig(),
		Proxy:      proxy.DefaultConfig(),
		Sweeper:    sweeper.DefaultConfig(),
		P2P:        p2p.DefaultConfig(),
		HTTP:       httpt.DefaultConfig(),
		Logging:    DefaultLoggingConfig(),
	}
}

func defaultBaseConfig() BaseConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return BaseConfig{
		DataDir:      filepath.Join(home, defaultDataDirName),
		Transport:    TransportP2P,
		Listen:       "/ip4/0.0.0.0/tcp/7513",
		MetricsAddr:  "127.0.0.1:1010",
		ProfilerName: "netmesh",
	}
}

// Validate checks values that can not be checked by decoding alone.
func (cfg *Config) Validate() error {
	switch cfg.Transport {
	case TransportP2P, TransportHTTP:
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if cfg.DataDir == "" {
		return errors.New("data-folder is empty")
	}
	if cfg.Proxy.RetryInterval <= 0 || cfg.Proxy.MaxRetryInterval < cfg.Proxy.RetryInterval {
		return fmt.Errorf("invalid retry intervals %v and %v", cfg.Proxy.RetryInterval, cfg.Proxy.MaxRetryInterval)
	}
	if cfg.Sweeper.Enabled {
		if _, err := sweeper.ParsePolicy(cfg.Sweeper.Policy, cfg.Sweeper.MaxUnread); err != nil {
			return err
		}
	}
	return nil
}

// DecodeHook is used when unmarshaling viper state into Config.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// LoadConfig reads the config file into vip. An empty location is not an
// error, defaults are used instead.
func LoadConfig(fileLocation string, vip *viper.Viper) error {
	if fileLocation == "" {
		return nil
	}
	vip.SetConfigFile(fileLocation)
	if err := vip.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", fileLocation, err)
	}
	return nil
}

// Unmarshal decodes the state of vip on top of conf.
func Unmarshal(vip *viper.Viper, conf *Config) error {
	if err := vip.Unmarshal(conf, viper.DecodeHook(DecodeHook())); err != nil {
		return fmt.Errorf("unmarshal viper: %w", err)
	}
	return nil
}

// Load reads the file at fileLocation on top of base.
func Load(fileLocation string, base Config) (*Config, error) {
	vip := viper.New()
	if err := LoadConfig(fileLocation, vip); err != nil {
		return nil, err
	}
	conf := base
	if err := Unmarshal(vip, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}
