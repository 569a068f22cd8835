package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nyxo-labs/anthrobridge/internal/backend"
	"github.com/nyxo-labs/anthrobridge/internal/cache"
	"github.com/nyxo-labs/anthrobridge/internal/config"
	"github.com/nyxo-labs/anthrobridge/internal/logging"
	"github.com/nyxo-labs/anthrobridge/internal/server"
	"github.com/nyxo-labs/anthrobridge/internal/server/tracelog"
)

func serveCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			log := logging.New(logging.Level(cfg.LogLevel))

			elig, err := cache.NewEligibilityPredicate(cfg.CacheEligibilityExpr)
			if err != nil {
				return fmt.Errorf("compiling cache eligibility expression: %w", err)
			}
			metrics := cache.NewMetrics()
			c := cache.New(cfg.CacheMaxBytes, metrics)

			var openaiClient *backend.OpenAIClient
			var directClient *backend.AnthropicClient
			if cfg.BackendStyle == "anthropic" {
				directClient = backend.NewAnthropicClient(cfg.BackendBaseURL, cfg.BackendAPIKey)
			}
			openaiClient = backend.NewOpenAIClient(cfg.BackendBaseURL, cfg.BackendAPIKey)

			trace := tracelog.New(cfg.RequestLogPath, cfg.TraceDir)

			srv := server.New(cfg, log, openaiClient, directClient, c, elig, trace)

			log.Infof("anthrobridge listening on %s (backend %s, style=%s)", cfg.ListenAddr, cfg.BackendBaseURL, cfg.BackendStyle)
			return srv.Engine().Run(cfg.ListenAddr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	return cmd
}
