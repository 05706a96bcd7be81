package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calvinalkan/docengine/internal/config"
)

func newConfigCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration (defaults < global file < project file < flags)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			out, err := config.Format(cfg)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
}
