package cmd

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/statevec-sim/statevec-sim/sim"
)

// configCmd prints the engine config as YAML
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the default engine config, or validate and print --config",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := sim.DefaultConfig()
		if configPath != "" {
			var err error
			if cfg, err = sim.LoadConfig(configPath); err != nil {
				logrus.Fatalf("%v", err)
			}
		}
		if err := writeConfig(os.Stdout, cfg); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func writeConfig(w io.Writer, cfg sim.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func init() {
	configCmd.Flags().StringVar(&configPath, "config", "", "Path to an engine config YAML")
}
