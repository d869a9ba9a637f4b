// netmeshd runs a netmesh node.
package main

import (
	"os"

	"github.com/infogrid/netmesh/cmd"
	"github.com/infogrid/netmesh/node"
)

var (
	version string
	commit  string
)

func main() {
	cmd.Version = version
	cmd.Commit = commit
	if err := node.GetCommand().Execute(); err != nil {
		// cobra printed the error already
		os.Exit(1)
	}
}
