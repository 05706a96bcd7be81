package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calvinalkan/docengine/pkg/database"
	"github.com/calvinalkan/docengine/pkg/schema"
)

func newSchemasCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schemas [collection...]",
		Short: "Print the inferred schema of one or more collections in a data directory",
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
			defer db.Close(ctx) //nolint:errcheck // best-effort close on a read-only inspection command

			out := map[string]any{}
			for _, name := range args {
				c, err := db.Lookup(ctx, name)
				if err != nil {
					return err
				}
				out[name] = summarizeSchema(c.Schema())
			}

			encoded, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}
	return cmd
}

// summarizeSchema renders a Schema's field catalog as a JSON-friendly
// value; Schema itself carries unexported storage, so this walks Fields().
func summarizeSchema(sch *schema.Schema) map[string]any {
	fields := make([]map[string]any, 0, len(sch.Fields()))
	for _, f := range sch.Fields() {
		entry := map[string]any{"name": f.Name, "type": f.Type.String()}
		if f.Type == schema.TypeArray {
			entry["elementType"] = f.ElemType.String()
		}
		if f.Nested != nil {
			entry["nested"] = summarizeSchema(f.Nested)
		}
		fields = append(fields, entry)
	}
	return map[string]any{"collection": sch.CollectionName, "fields": fields}
}
