package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/carloslauriano/draftmail/api"
	"github.com/carloslauriano/draftmail/draft"
	"github.com/carloslauriano/draftmail/server"
	"github.com/carloslauriano/draftmail/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	draftRecipient string
	draftBusiness  string
)

// serveCmd sobe a API HTTP e os listeners de email habilitados
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the enabled mail listeners",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		gen, err := draft.NewGenerator(ctx, cfg.Generator)
		if err != nil {
			return fmt.Errorf("erro ao inicializar gerador: %w", err)
		}

		router := api.NewRouter(api.NewHandler(store, gen, logger), cfg.HTTP.AllowedOrigins)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return server.StartHTTPServer(gctx, cfg, router, logger)
		})
		if cfg.SMTP.Enabled {
			g.Go(func() error {
				return server.StartSMTPServer(gctx, cfg, store, logger)
			})
		}
		if cfg.IMAP.Enabled {
			g.Go(func() error {
				return server.StartIMAPServer(gctx, cfg, store, logger)
			})
		}

		err = g.Wait()
		logger.Info("shutdown complete", zap.Error(err))
		return err
	},
}

// migrateCmd só cria o schema
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the emails table if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		logger.Info("schema ready", zap.String("database", cfg.Database.Type))
		return nil
	},
}

// draftCmd gera um rascunho e imprime como JSON
var draftCmd = &cobra.Command{
	Use:   "draft <prompt...>",
	Short: "Generate one draft from a prompt and print it as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		gen, err := draft.NewGenerator(ctx, cfg.Generator)
		if err != nil {
			return fmt.Errorf("erro ao inicializar gerador: %w", err)
		}

		d, err := gen.Generate(ctx, strings.Join(args, " "), draft.Context{
			Recipient: draftRecipient,
			Business:  draftBusiness,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	},
}

// openStore cria o armazenamento configurado e garante o schema
func openStore(ctx context.Context) (storage.Storage, error) {
	store, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("erro ao inicializar armazenamento: %w", err)
	}
	if err := store.Open(ctx); err != nil {
		return nil, fmt.Errorf("erro ao abrir armazenamento: %w", err)
	}
	return store, nil
}
