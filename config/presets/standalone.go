package presets

import (
	"os"
	"path/filepath"
	"time"

	"github.com/infogrid/netmesh/config"
)

func init() {
	register("standalone", standalone())
}

// standalone runs a single node on the loopback interface with the http
// transport.
func standalone() config.Config {
	conf := config.DefaultConfig()
	conf.DataDir = filepath.Join(os.TempDir(), "netmesh")
	conf.Transport = config.TransportHTTP
	conf.Listen = "127.0.0.1:7514"
	conf.Identifier = "http://127.0.0.1:7514/"

	conf.Sweeper.Interval = 10 * time.Second
	conf.Sweeper.Policy = "expires,orphaned"
	return conf
}
