package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/trackpose/internal/cache"
	"github.com/andresmejia3/trackpose/internal/config"
	"github.com/andresmejia3/trackpose/internal/store"
	"github.com/andresmejia3/trackpose/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Commands declare which backing services they use through annotations.
const (
	annotStore = "store"
	annotCache = "cache"

	required = "required"
	optional = "optional"
)

// Options describes one clip run. The batch command builds one per manifest entry.
type Options struct {
	VideoPath  string `yaml:"video"`
	BoxesPath  string `yaml:"boxes"`
	TrackID    string `yaml:"track"`
	Method     string `yaml:"method"`
	OutputPath string `yaml:"output"`
	Format     string `yaml:"format"`
	Robust     bool   `yaml:"robust"`
	NoCache    bool   `yaml:"no_cache"`
}

var (
	// Cfg is the loaded configuration shared by subcommands
	Cfg *config.Config
	// DB is the global database connection; nil when a command runs without one
	DB *store.Store
	// Cache is the Redis result cache; nil when disabled
	Cache *cache.Cache

	configPath string
	dbURL      string
	redisAddr  string
	logMode    string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "trackpose",
	Short:   "Track-conditioned top-down pose estimation for video",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		Cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logMode != "" {
			Cfg.Log.Mode = logMode
		}
		if err := utils.InitLogger(Cfg.Log.Mode); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := openStore(cmd); err != nil {
			return err
		}
		openCache(cmd)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
		if Cache != nil {
			Cache.Close()
		}
		utils.Sync()
	},
}

// resolveDBURL picks the connection string: flag, then config, then POSTGRES_* environment.
// explicit is false when nothing was configured and the local default is returned.
func resolveDBURL() (url string, explicit bool) {
	if dbURL != "" {
		return dbURL, true
	}
	if Cfg != nil && Cfg.Database.URL != "" {
		return Cfg.Database.URL, true
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name), true
	}
	// Fallback to local default if no env vars are present
	return "postgres://localhost:5432/trackpose", false
}

func openStore(cmd *cobra.Command) error {
	mode := cmd.Annotations[annotStore]
	if mode == "" {
		return nil
	}
	url, explicit := resolveDBURL()
	if mode == optional && !explicit {
		return nil
	}

	var err error
	// Use the command's context (which will be cancellable) for the connection
	DB, err = store.New(cmd.Context(), url)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

// openCache connects to Redis when an address is configured. The cache is an optimization,
// so a failed connection only disables it.
func openCache(cmd *cobra.Command) {
	if cmd.Annotations[annotCache] == "" {
		return
	}
	addr := redisAddr
	if addr == "" {
		addr = Cfg.Redis.Addr
	}
	if addr == "" {
		return
	}

	c, err := cache.New(cmd.Context(), cache.Options{
		Addr:     addr,
		Password: Cfg.Redis.Password,
		DB:       Cfg.Redis.DB,
		TTL:      Cfg.Redis.TTL,
	})
	if err != nil {
		utils.Logger.Warn("redis unavailable, result cache disabled", zap.String("addr", addr), zap.Error(err))
		return
	}
	Cache = c
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
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./trackpose.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: postgres://localhost:5432/trackpose)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address for the result cache, e.g. localhost:6379")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "Log mode: debug or release")
}
