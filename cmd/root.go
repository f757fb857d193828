package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/hush/internal/config"
	"github.com/andresmejia3/hush/internal/store"
	"github.com/spf13/cobra"
)

// Options holds shared flags for the watch and ocr commands.
// Zero values mean "use the settings file".
type Options struct {
	Language      string
	Target        string
	NumEngines    int
	Library       string
	DataPath      string
	Interval      string
	UnmuteDelay   string
	Window        string
	Input         string
	Format        string
	ImagePath     string
	Scale         int
	DebugDir      string
	DryRun        bool
	MuteOverworld bool
	Regions       []string
}

// dbAnnotation marks how a command uses the database: "required" or "optional".
const dbAnnotation = "db"

var (
	// DB is the global database connection shared by subcommands. Nil when not connected.
	DB *store.Store
	// Cfg is the settings file merged over the defaults.
	Cfg *config.Config
	// logger is the structured logger handed to the internal packages.
	logger = slog.Default()

	dbURL      string
	configPath string
	verbose    bool
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "hush",
	Short:   "Mute the game while a chosen name appears on screen",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1. Logging
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		// 2. Settings
		if configPath == "" {
			p, err := config.DefaultPath()
			if err != nil {
				return fmt.Errorf("cannot locate settings file: %w", err)
			}
			configPath = p
		}
		var err error
		Cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}

		// 3. Database, only for commands that use it
		mode := cmd.Annotations[dbAnnotation]
		explicit := resolveDBURL()
		if mode == "" || (mode == "optional" && !explicit) {
			return nil
		}
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
	},
}

// resolveDBURL fills dbURL from the environment when no flag was given and
// reports whether the user asked for a database at all.
func resolveDBURL() bool {
	if dbURL != "" {
		return true
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		dbURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
		return true
	}
	// Fallback to local default if no env vars are present
	dbURL = "postgres://localhost:5432/hush"
	return false
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the event log (default: postgres://localhost:5432/hush)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Settings file (default: <user config dir>/hush/settings.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every detection pass and engine failure")
}
