package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/calvinalkan/docengine/internal/httpapi"
	"github.com/calvinalkan/docengine/internal/telemetry"
	"github.com/calvinalkan/docengine/pkg/collection"
	"github.com/calvinalkan/docengine/pkg/database"
)

func newServeCmd(flags *globalFlags, sigCh <-chan os.Signal) *cobra.Command {
	var addr string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST surface over a data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			level := telemetry.LevelInfo
			if debug {
				level = telemetry.LevelDebug
			}
			logger, sync, err := telemetry.New(telemetry.Options{Level: level, JSON: true})
			if err != nil {
				return err
			}
			defer sync() //nolint:errcheck // best-effort flush on exit

			codec, err := cfg.Codec()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := database.Open(ctx, database.Options{
				DataPath:      cfg.DataPath,
				DocumentCodec: codec,
				CollectionOptions: collection.Options{
					IndexConfig: cfg.IndexConfig(),
					Logger:      logger,
				},
				Logger: logger,
			})
			if err != nil {
				return fmt.Errorf("opening database at %s: %w", cfg.DataPath, err)
			}

			server := httpapi.New(db, logger)
			httpServer := &http.Server{Addr: addr, Handler: server}

			errCh := make(chan error, 1)
			go func() { errCh <- httpServer.ListenAndServe() }()

			logger.Info("serving", "addr", addr, "data_path", cfg.DataPath)

			select {
			case <-sigCh:
				logger.Info("shutting down")
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					_ = db.Close(context.Background())
					return err
				}
			}

			shutdownCtx := context.Background()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error(err, "http server shutdown")
			}
			return db.Close(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug-level logging")
	return cmd
}
