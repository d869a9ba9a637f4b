// Package presets provides named configurations that replace the defaults.
package presets

import (
	"fmt"
	"slices"
	"sort"

	"github.com/infogrid/netmesh/config"
)

var presets = map[string]config.Config{}

func register(name string, conf config.Config) {
	if _, exists := presets[name]; exists {
		panic(fmt.Sprintf("preset %s registered twice", name))
	}
	presets[name] = conf
}

// Options returns the names of all presets.
func Options() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the preset with the given name.
func Get(name string) (config.Config, error) {
	conf, exists := presets[name]
	if !exists {
		return config.Config{}, fmt.Errorf("preset %s doesn't exist, options %v", name, Options())
	}
	conf.Bootnodes = slices.Clone(conf.Bootnodes)
	return conf, nil
}
