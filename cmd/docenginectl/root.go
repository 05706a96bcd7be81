package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/calvinalkan/docengine/internal/config"
)

// globalFlags are shared across subcommands; each subcommand loads its own
// config.Config from these using config.Load's precedence rules.
type globalFlags struct {
	dataPath   string
	configPath string
}

func newRootCmd(sigCh <-chan os.Signal) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "docenginectl",
		Short:         "Operate a Document Collection Engine data directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.dataPath, "data-path", "", "data directory (overrides config)")
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "explicit config file")

	root.AddCommand(newServeCmd(flags, sigCh))
	root.AddCommand(newSchemasCmd(flags))
	root.AddCommand(newReindexCmd(flags))
	root.AddCommand(newConfigCmd(flags))

	return root
}

// loadConfig resolves config.Config for the current invocation (§6
// configuration precedence: defaults < global file < project file < flags).
func loadConfig(flags *globalFlags) (config.Config, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return config.Config{}, err
	}
	cfg, _, err := config.Load(workDir, flags.configPath, config.Config{DataPath: flags.dataPath}, flags.dataPath != "", os.Environ())
	return cfg, err
}
