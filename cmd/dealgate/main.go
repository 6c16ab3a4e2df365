package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dealgate/dealgate/internal/api"
	"github.com/dealgate/dealgate/internal/config"
	"github.com/dealgate/dealgate/internal/dispatch"
	"github.com/dealgate/dealgate/internal/ingest"
	"github.com/dealgate/dealgate/internal/pipeline"
	"github.com/dealgate/dealgate/internal/registry"
	"github.com/dealgate/dealgate/internal/storage"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "dealgate",
		Short: "dealgate — two-way webhook gateway for a sales-pipeline CRM",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(sourceCmd(&configPath))
	rootCmd.AddCommand(endpointCmd(&configPath))
	rootCmd.AddCommand(statsCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dealgate server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("database migrations completed")

			crm := pipeline.NewClient(cfg.CRM.BaseURL, cfg.CRM.Token, cfg.CRM.Timeout, log)
			reg := registry.New(store, crm, cfg.Inbound.BaseURL)
			gateway := ingest.NewGateway(store, crm, log)
			dispatcher := dispatch.NewDispatcher(store, log)

			pool := dispatch.NewPool(cfg.Dispatch, store, log)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			server := api.NewServer(cfg.Server, store, reg, gateway, dispatcher, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Int("workers", cfg.Dispatch.Workers).
				Str("storage", cfg.Storage.Driver).
				Msg("dealgate is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			pool.Stop()

			log.Info().Msg("dealgate stopped")
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

func sourceCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage inbound webhook sources",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an inbound source for an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, _ := cmd.Flags().GetString("org")
			name, _ := cmd.Flags().GetString("name")
			boardID, _ := cmd.Flags().GetString("board")
			stageID, _ := cmd.Flags().GetString("stage")
			if orgID == "" || boardID == "" || stageID == "" {
				return fmt.Errorf("--org, --board and --stage are required")
			}
			if name == "" {
				name = "Lead intake"
			}

			_, _, reg, cleanup, err := registryFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			src, err := reg.CreateInboundSource(context.Background(), orgID, registry.SourceParams{
				Name:         name,
				EntryBoardID: boardID,
				EntryStageID: stageID,
			})
			if err != nil {
				return fmt.Errorf("failed to create source: %w", err)
			}

			out, _ := json.MarshalIndent(map[string]interface{}{
				"source": src,
				"url":    reg.InboundURL(src.ID),
			}, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	createCmd.Flags().String("org", "", "organization id")
	createCmd.Flags().String("name", "", "source name")
	createCmd.Flags().String("board", "", "entry board id")
	createCmd.Flags().String("stage", "", "entry stage id")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List inbound sources for an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, _ := cmd.Flags().GetString("org")
			if orgID == "" {
				return fmt.Errorf("--org is required")
			}

			_, _, reg, cleanup, err := registryFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			sources, err := reg.ListInboundSources(context.Background(), orgID)
			if err != nil {
				return fmt.Errorf("failed to list sources: %w", err)
			}

			if len(sources) == 0 {
				fmt.Println("No inbound sources found.")
				return nil
			}

			for _, src := range sources {
				state := "inactive"
				if src.Active {
					state = "active"
				}
				fmt.Printf("  %s  %s  [%s]  %s\n", src.ID, src.Name, state, reg.InboundURL(src.ID))
			}
			return nil
		},
	}
	listCmd.Flags().String("org", "", "organization id")

	cmd.AddCommand(createCmd, listCmd)
	return cmd
}

func endpointCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "endpoint",
		Short: "Manage outbound endpoints",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List outbound endpoints for an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, _ := cmd.Flags().GetString("org")
			if orgID == "" {
				return fmt.Errorf("--org is required")
			}

			_, _, reg, cleanup, err := registryFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			endpoints, err := reg.ListOutboundEndpoints(context.Background(), orgID)
			if err != nil {
				return fmt.Errorf("failed to list endpoints: %w", err)
			}

			if len(endpoints) == 0 {
				fmt.Println("No outbound endpoints found.")
				return nil
			}

			for _, ep := range endpoints {
				state := "inactive"
				if ep.Active {
					state = "active"
				}
				fmt.Printf("  %s  %s  [%s]  %s\n", ep.ID, ep.Name, state, ep.URL)
			}
			return nil
		},
	}
	listCmd.Flags().String("org", "", "organization id")

	cmd.AddCommand(listCmd)
	return cmd
}

func statsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show webhook stats for an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("usage: dealgate stats <org_id>")
			}

			_, store, _, cleanup, err := registryFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := store.GetStats(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			out, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dealgate v%s\n", version)
		},
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func setupStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func registryFromConfig(configPath string) (*config.Config, storage.Store, *registry.Registry, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging)
	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	crm := pipeline.NewClient(cfg.CRM.BaseURL, cfg.CRM.Token, cfg.CRM.Timeout, log)
	reg := registry.New(store, crm, cfg.Inbound.BaseURL)

	return cfg, store, reg, func() { store.Close() }, nil
}
