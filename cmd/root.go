package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/pupilscan/internal/config"
	"github.com/andresmejia3/pupilscan/internal/logging"
	"github.com/andresmejia3/pupilscan/internal/store"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultDSN = "postgres://localhost:5432/pupilscan"

var (
	// DB is the global result store shared by subcommands
	DB store.Store
	// Cfg is the loaded configuration
	Cfg config.Config
	// Log receives pipeline diagnostics
	Log *logrus.Logger

	dbURL      string
	configPath string
	logLevel   string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "pupilscan",
	Short:   "Pupillary light reflex and gaze stability biomarkers from eye video",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal; the environment may already be populated
		_ = godotenv.Load()

		var err error
		Cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if logLevel != "" {
			Cfg.Log.Level = logLevel
		}
		Log, err = logging.New(logging.Options{Level: Cfg.Log.Level, Dir: Cfg.Log.Dir})
		if err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		if !needsStore(cmd) {
			return nil
		}
		dsn := resolveDSN(dbURL)
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.Open(cmd.Context(), dsn)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		Log.WithField("backend", fmt.Sprintf("%T", DB)).Debug("result store opened")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			DB.Close(context.Background())
		}
	},
}

// needsStore reports whether cmd talks to the result store.
func needsStore(cmd *cobra.Command) bool {
	switch cmd {
	case analyzeCmd:
		return !analyzeOpts.NoStore
	case resetCmd:
		return resetTables || !resetFiles
	}
	return true
}

// resolveDSN prefers the --db flag, then POSTGRES_* variables, then the local default.
func resolveDSN(flag string) string {
	if flag != "" {
		return flag
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return defaultDSN
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	if name == "" {
		name = "pupilscan"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "Result store: PostgreSQL connection string, or sqlite:<path> (default: "+defaultDSN+")")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "pupilscan.toml", "Path to TOML configuration (missing file uses defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
}
