/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/acronis/task-gateway/log"
	"github.com/acronis/task-gateway/service"
)

const closeTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var cfgPath string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Long: `Start the gateway.

Configuration is read from the file passed by --config (YAML or JSON) and from TASKGW_* environment
variables, e.g. TASKGW_GATEWAY_AUTH_JWTSECRET or TASKGW_GATEWAY_ENVIRONMENT. A .env file in the
working directory is loaded first when present.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			cfg, err := loadAppConfig(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	serveCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to the configuration file")
	return serveCmd
}

func runServe(ctx context.Context, cfg *AppConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()

	a, err := buildApp(ctx, cfg, logger, appOpts{})
	if err != nil {
		logger.Error("gateway cannot be started", log.Error(err))
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if closeErr := a.Close(closeCtx); closeErr != nil {
			logger.Error("error while releasing gateway resources", log.Error(closeErr))
		}
	}()

	return service.New(logger, a.Unit).StartContext(ctx)
}
