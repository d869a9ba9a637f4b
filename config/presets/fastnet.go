package presets

import (
	"time"

	"github.com/infogrid/netmesh/config"
)

func init() {
	register("fastnet", fastnet())
}

// fastnet shortens every protocol interval so that lost peers and gaps are
// detected within seconds.
func fastnet() config.Config {
	conf := config.DefaultConfig()

	conf.Proxy.RetryInterval = 200 * time.Millisecond
	conf.Proxy.MaxRetryInterval = 2 * time.Second
	conf.Proxy.MaxRetries = 5
	conf.Proxy.GapTimeout = 3 * time.Second
	conf.Proxy.LockWaitTimeout = 5 * time.Second
	conf.Proxy.Timeout = 10 * time.Second

	conf.P2P.StreamTimeout = 5 * time.Second
	conf.HTTP.RequestTimeout = 5 * time.Second

	conf.Sweeper.Interval = 5 * time.Second
	conf.Sweeper.BatchSize = 100
	conf.Logging.ProxyLoggerLevel = "debug"
	return conf
}
