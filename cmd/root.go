// Package cmd holds the command line flags shared by netmesh executables.
package cmd

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/infogrid/netmesh/config"
	"github.com/infogrid/netmesh/config/presets"
)

var (
	// Version is the application version, set at build time.
	Version string
	// Commit is the git commit the binary was built from.
	Commit string
)

// AddFlags binds the command line flags of a node to conf. It returns the
// location of the config file given with --config.
func AddFlags(flagSet *pflag.FlagSet, conf *config.Config) (configPath *string) {
	flagSet.StringVarP(&conf.Preset, "preset", "p", conf.Preset,
		fmt.Sprintf("preset overwrites default values of the config. options %+s", presets.Options()))
	configPath = flagSet.StringP("config", "c", "", "load configuration from file")

	/** ======================== BaseConfig Flags ========================== **/
	flagSet.StringVarP(&conf.DataDir, "data-folder", "d",
		conf.DataDir, "specify data directory for netmesh")
	flagSet.StringVar(&conf.Transport, "transport",
		conf.Transport, "transport used to reach other meshbases: p2p or http")
	flagSet.StringVar(&conf.Listen, "listen",
		conf.Listen, "address for listening, a multiaddr for p2p and host:port for http")
	flagSet.StringVar(&conf.Identifier, "identifier",
		conf.Identifier, "external form of the meshbase identifier, only used with http")
	flagSet.StringSliceVar(&conf.Bootnodes, "bootnodes",
		conf.Bootnodes, "meshbases known at startup")
	flagSet.BoolVar(&conf.CollectMetrics, "metrics",
		conf.CollectMetrics, "collect node metrics")
	flagSet.StringVar(&conf.MetricsAddr, "metrics-addr",
		conf.MetricsAddr, "address of the metrics server")
	flagSet.StringVar(&conf.ProfilerURL, "profiler-url",
		conf.ProfilerURL, "send profiler data to this pyroscope server")
	flagSet.StringVar(&conf.ProfilerName, "profiler-name",
		conf.ProfilerName, "application name reported to the profiler")

	/** ======================== Proxy Flags ========================== **/
	flagSet.IntVar(&conf.Proxy.MaxRetries, "max-retries",
		conf.Proxy.MaxRetries, "retries before an unresponsive meshbase is considered lost")
	flagSet.DurationVar(&conf.Proxy.RetryInterval, "retry-interval",
		conf.Proxy.RetryInterval, "wait before the first retry of an unacknowledged message")
	flagSet.DurationVar(&conf.Proxy.MaxRetryInterval, "max-retry-interval",
		conf.Proxy.MaxRetryInterval, "upper bound of the wait between retries")
	flagSet.DurationVar(&conf.Proxy.GapTimeout, "gap-timeout",
		conf.Proxy.GapTimeout, "wait for a missing message before resynchronizing")
	flagSet.DurationVar(&conf.Proxy.LockWaitTimeout, "lock-wait-timeout",
		conf.Proxy.LockWaitTimeout, "wait for locks, home replicas and new replicas")

	/** ======================== Sweeper Flags ========================== **/
	flagSet.BoolVar(&conf.Sweeper.Enabled, "sweeper",
		conf.Sweeper.Enabled, "remove replicas that are no longer needed")
	flagSet.DurationVar(&conf.Sweeper.Interval, "sweeper-interval",
		conf.Sweeper.Interval, "interval between two lots of the sweeper")
	flagSet.StringVar(&conf.Sweeper.Policy, "sweeper-policy",
		conf.Sweeper.Policy, "comma separated list of expires, not-read-for and orphaned")

	/** ======================== Logging Flags ========================== **/
	flagSet.StringVar(&conf.Logging.Encoder, "log-encoder",
		conf.Logging.Encoder, "log as json or console")
	flagSet.StringVar(&conf.Logging.AppLoggerLevel, "log-level",
		conf.Logging.AppLoggerLevel, "level of the application logger")
	return configPath
}
