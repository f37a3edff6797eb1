package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"bookbase/internal/config"
	"bookbase/internal/db"
	"bookbase/internal/logger"
)

var (
	cfg *config.Config

	adminEmail    string
	adminPassword string
	adminName     string

	booksFile string
)

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the bookbase database",
	Long: `Seed the bookbase database with an administrator account or a book catalog.

Connection settings come from the same environment variables as the server
(DB_DRIVER, DATABASE_URL, DB_CONNECT_RETRIES, DB_RETRY_INTERVAL).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logger.Init(cfg.LogLevel)
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Create an administrator",
	Long: `Create an administrator account that can manage users, books and loans.

Examples:
  seed admin --email admin@example.com --password secret123 --name "Head Librarian"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gormDB, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		user, err := seedAdmin(cmd.Context(), gormDB, cfg, adminName, adminEmail, adminPassword)
		if err != nil {
			return err
		}
		log.Info().Uint("user_id", user.ID).Str("email", user.Email).Msg("Administrator created")
		return nil
	},
}

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Import books from a JSON file",
	Long: `Import books from a JSON array. Books are matched by ISBN: new ISBNs are
created and existing ones are updated.

Examples:
  seed books --file books.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(booksFile)
		if err != nil {
			return fmt.Errorf("open %s: %w", booksFile, err)
		}
		defer f.Close()

		books, err := loadBooks(f)
		if err != nil {
			return err
		}

		gormDB, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		created, updated, err := seedBooks(cmd.Context(), gormDB, books)
		if err != nil {
			return err
		}
		log.Info().
			Int("created", created).
			Int("updated", updated).
			Int("total", created+updated).
			Msg("Seed completed")
		return nil
	},
}

func init() {
	adminCmd.Flags().StringVar(&adminEmail, "email", "", "Administrator email (required)")
	adminCmd.Flags().StringVar(&adminPassword, "password", "", "Administrator password, at least 6 characters (required)")
	adminCmd.Flags().StringVar(&adminName, "name", "Administrator", "Display name")
	_ = adminCmd.MarkFlagRequired("email")
	_ = adminCmd.MarkFlagRequired("password")

	booksCmd.Flags().StringVarP(&booksFile, "file", "f", "", "JSON file with an array of books (required)")
	_ = booksCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(adminCmd, booksCmd)
}

// connect opens the database and makes sure the schema is up to date.
func connect(ctx context.Context) (*gorm.DB, error) {
	gormDB, err := db.Connect(ctx, cfg.DBDriver, cfg.DatabaseURL, cfg.DBConnectRetries, cfg.DBRetryInterval)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gormDB); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return gormDB, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
