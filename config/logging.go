package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/infogrid/netmesh/log"
)

const defaultLoggingLevel = zapcore.InfoLevel

// LoggerConfig holds the logging level for each module.
type LoggerConfig struct {
	Encoder              string `mapstructure:"log-encoder"`
	AppLoggerLevel       string `mapstructure:"app"`
	MeshBaseLoggerLevel  string `mapstructure:"meshbase"`
	StoreLoggerLevel     string `mapstructure:"store"`
	ProxyLoggerLevel     string `mapstructure:"proxy"`
	SweeperLoggerLevel   string `mapstructure:"sweeper"`
	TransportLoggerLevel string `mapstructure:"transport"`
}

func DefaultLoggingConfig() LoggerConfig {
	return LoggerConfig{
		Encoder:              log.ConsoleEncoding,
		AppLoggerLevel:       defaultLoggingLevel.String(),
		MeshBaseLoggerLevel:  defaultLoggingLevel.String(),
		StoreLoggerLevel:     zapcore.WarnLevel.String(),
		ProxyLoggerLevel:     defaultLoggingLevel.String(),
		SweeperLoggerLevel:   defaultLoggingLevel.String(),
		TransportLoggerLevel: zapcore.WarnLevel.String(),
	}
}

// Modules returns the level of each named module.
func (c LoggerConfig) Modules() map[string]string {
	return map[string]string{
		"meshbase":  c.MeshBaseLoggerLevel,
		"store":     c.StoreLoggerLevel,
		"proxy":     c.ProxyLoggerLevel,
		"sweeper":   c.SweeperLoggerLevel,
		"transport": c.TransportLoggerLevel,
	}
}

// Root builds the application logger.
func (c LoggerConfig) Root() (*zap.Logger, error) {
	lvl, err := log.ParseLevel(c.AppLoggerLevel)
	if err != nil {
		return nil, err
	}
	return log.New("netmesh", lvl, c.Encoder)
}
