package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calvinalkan/docengine/pkg/database"
)

func newReindexCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex [collection...]",
		Short: "Rebuild the index of one or more collections from their document store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			codec, err := cfg.Codec()
			if err != nil {
				return err
			}

			ctx := context.Background()
			db, err := database.Open(ctx, database.Options{DataPath: cfg.DataPath, DocumentCodec: codec})
			if err != nil {
				return fmt.Errorf("opening database at %s: %w", cfg.DataPath, err)
			}
			defer db.Close(ctx) //nolint:errcheck // best-effort close once reindexing is done

			for _, name := range args {
				c, err := db.Lookup(ctx, name)
				if err != nil {
					return err
				}
				if err := c.Reindex(ctx); err != nil {
					return fmt.Errorf("reindexing %s: %w", name, err)
				}
				fmt.Printf("reindexed %s\n", name)
			}
			return nil
		},
	}
	return cmd
}
