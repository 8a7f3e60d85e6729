package main

import (
	"fmt"
	"os"

	"github.com/carloslauriano/draftmail/config"
	"github.com/carloslauriano/draftmail/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags globais
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "draftmail",
	Short: "draftmail - email drafts API with keyword-based draft generation",
	Long: `draftmail stores email drafts (SQLite or PostgreSQL) and serves them over
an HTTP API, with an optional SMTP intake and an IMAP "Drafts" mailbox.

Drafts can be generated from a short prompt by a fixed template or by Gemini.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("erro ao carregar configuração: %w", err)
		}
		if verbose {
			cfg.Log.Level = "debug"
		}

		logger, err = logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("erro ao inicializar logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	draftCmd.Flags().StringVar(&draftRecipient, "recipient", "", "recipient name used in the greeting")
	draftCmd.Flags().StringVar(&draftBusiness, "business", "", "business context for sales drafts")

	rootCmd.AddCommand(serveCmd, migrateCmd, draftCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
