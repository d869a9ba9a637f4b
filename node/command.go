package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/infogrid/netmesh/cmd"
	"github.com/infogrid/netmesh/config"
	"github.com/infogrid/netmesh/config/presets"
)

// GetCommand returns the command that runs a netmesh node.
func GetCommand() *cobra.Command {
	conf := config.DefaultConfig()
	var configPath *string
	c := &cobra.Command{
		Use:          "netmeshd",
		Short:        "start a netmesh node",
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			if err := configure(c, *configPath, &conf); err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return New(WithConfig(&conf)).Run(ctx)
		},
	}
	configPath = cmd.AddFlags(c.PersistentFlags(), &conf)

	c.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(c *cobra.Command, args []string) {
			fmt.Print(cmd.Version)
			if cmd.Commit != "" {
				fmt.Printf("+%s", cmd.Commit)
			}
			fmt.Println()
		},
	})
	return c
}

func configure(c *cobra.Command, configPath string, conf *config.Config) error {
	if err := loadConfig(conf, conf.Preset, configPath); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// flags win over the preset and the file
	if err := c.ParseFlags(os.Args[1:]); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	return nil
}

// loadConfig loads the preset, if any, and then overrides it with the values
// of the config file.
func loadConfig(conf *config.Config, preset, path string) error {
	v := viper.New()
	if err := config.LoadConfig(path, v); err != nil {
		return err
	}
	if len(preset) == 0 && v.IsSet("preset") {
		preset = v.GetString("preset")
	}
	if len(preset) > 0 {
		p, err := presets.Get(preset)
		if err != nil {
			return err
		}
		*conf = p
		conf.Preset = preset
	}
	return config.Unmarshal(v, conf)
}
