package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/config"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/logging"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// DB is the database connection shared by subcommands, opened on first use
	DB *store.Store
	// cfg is the layered configuration, loaded before every command
	cfg = config.Default()

	cfgFile string
	dbURL   string
	verbose bool
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "spotter",
	Short:   "Find when reference faces appear in a video",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; real environment variables still apply
		_ = godotenv.Load()

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		if verbose {
			cfg.Verbose = true
		}
		if dbURL != "" {
			cfg.Database.URL = dbURL
		}

		logging.Init(cfg.Verbose)
		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
}

// closeStore closes the shared connection, if one was opened.
func closeStore() {
	if DB == nil {
		return
	}
	// Use Background here because the main context might be cancelled already (due to Ctrl+C)
	// and we still need to send the "Close" command to the DB.
	if err := DB.Close(context.Background()); err != nil {
		log := logging.WithComponent("store")
		log.Warn().Err(err).Msg("closing database")
	}
	DB = nil
}

// openStore connects on first use so commands that never touch the database
// work without one.
func openStore(ctx context.Context) (*store.Store, error) {
	if DB != nil {
		return DB, nil
	}

	url := cfg.Database.URL
	if url == "" {
		url = databaseURLFromEnv()
	}

	s, err := store.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = s
	return DB, nil
}

// databaseURLFromEnv builds the connection string from POSTGRES_* variables,
// falling back to a local default.
func databaseURLFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return "postgres://localhost:5432/spotter"
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute runs the root command and always closes the database afterwards:
// cobra skips post-run hooks when a command fails.
func execute(ctx context.Context) error {
	defer closeStore()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./spotter.yaml or ~/.spotter/spotter.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "PostgreSQL connection string (default: $SPOTTER_DATABASE_URL, POSTGRES_* or postgres://localhost:5432/spotter)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}
