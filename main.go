// DB Sentinel: a PostgreSQL telemetry dashboard with an AI-assisted diagnostic.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helyotools/dbsentinel/internal/agent"
	"github.com/helyotools/dbsentinel/internal/auth"
	"github.com/helyotools/dbsentinel/internal/config"
	"github.com/helyotools/dbsentinel/internal/diagnostic"
	"github.com/helyotools/dbsentinel/internal/logutil"
	"github.com/helyotools/dbsentinel/internal/server"
	"github.com/helyotools/dbsentinel/internal/telemetry"
)

const asciiLogo = `
 ██████╗ ██████╗     ███████╗███████╗███╗   ██╗████████╗██╗███╗   ██╗███████╗██╗
 ██╔══██╗██╔══██╗    ██╔════╝██╔════╝████╗  ██║╚══██╔══╝██║████╗  ██║██╔════╝██║
 ██║  ██║██████╔╝    ███████╗█████╗  ██╔██╗ ██║   ██║   ██║██╔██╗ ██║█████╗  ██║
 ██║  ██║██╔══██╗    ╚════██║██╔══╝  ██║╚██╗██║   ██║   ██║██║╚██╗██║██╔══╝  ██║
 ██████╔╝██████╔╝    ███████║███████╗██║ ╚████║   ██║   ██║██║ ╚████║███████╗███████╗
 ╚═════╝ ╚═════╝     ╚══════╝╚══════╝╚═╝  ╚═══╝   ╚═╝   ╚═╝╚═╝  ╚═══╝╚══════╝╚══════╝
`

const version = "v0.1.0"

var configFile string

func printBanner(mode string) {
	fmt.Println(asciiLogo)
	fmt.Printf("  ► DB Sentinel %s  |  Mode: %s\n\n", version, mode)
}

// loadConfig reads the config file named by --config, or the default search
// path when the flag is empty.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	return config.Load()
}

// setup loads the config and builds the logger. The agent never serves HTTP,
// so only the server runs the full validation.
func setup(validate bool) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	log, err := logutil.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, log, nil
}

func main() {
	root := &cobra.Command{
		Use:   "dbsentinel",
		Short: "DB Sentinel: PostgreSQL telemetry dashboard",
		Long: `DB Sentinel polls a PostgreSQL telemetry history table and pg_stat_activity,
renders KPIs, charts and session tables behind a login, and asks Gemini for a
short diagnosis of the latest sample.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to a config file (default ./config.yaml)")

	// ── server subcommand ─────────────────────────────────────────────────────
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the dashboard web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("SERVER")

			cfg, log, err := setup(true)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			store := telemetry.Open(cfg, log)
			defer store.Close()

			authn, closeAuth, err := auth.FromConfig(cfg)
			if err != nil {
				return fmt.Errorf("initializing auth backend: %w", err)
			}
			defer closeAuth()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var gen diagnostic.Generator
			if cfg.GeminiKey != "" {
				g, err := diagnostic.NewGeminiGenerator(ctx, cfg.GeminiKey, cfg.GeminiModel, cfg.GeminiBaseURL)
				if err != nil {
					return fmt.Errorf("initializing gemini client: %w", err)
				}
				gen = g
			} else {
				log.Warn("gemini_api_key not set; diagnostics disabled")
			}
			diag := diagnostic.New(gen, diagnostic.Options{
				Project:  cfg.ProjectRef,
				Language: cfg.DiagnosticLanguage,
				Model:    cfg.GeminiModel,
			}, log)

			gin.SetMode(gin.ReleaseMode)
			srv := server.New(server.Deps{
				Source:        store,
				Diagnostician: diag,
				Authenticator: authn,
				Tokens:        auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL()),
				Logger:        log,
			})
			httpSrv, err := srv.HTTPServer(cfg.ListenAddr())
			if err != nil {
				return err
			}

			fmt.Printf("  ✓ Dashboard → http://%s\n", cfg.ListenAddr())
			fmt.Printf("  ✓ Telemetry → %s:%d/%s\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
			fmt.Printf("  ✓ Auth      → %s\n\n", cfg.AuthBackend)

			errCh := make(chan error, 1)
			go func() { errCh <- httpSrv.ListenAndServe() }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				fmt.Println("\n  → Shutting down gracefully…")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return httpSrv.Shutdown(shutdownCtx)
			}
		},
	}

	// ── agent subcommand ──────────────────────────────────────────────────────
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Sample the database and append rows to the telemetry history",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("AGENT")

			cfg, log, err := setup(false)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			// CLI flags override config values.
			if iv, _ := cmd.Flags().GetInt("interval"); iv > 0 {
				cfg.AgentInterval = iv
			}
			if ms, _ := cmd.Flags().GetInt("slow-query-ms"); ms > 0 {
				cfg.AgentSlowQueryMs = ms
			}

			fmt.Printf("  ✓ Target:          %s:%d/%s\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
			fmt.Printf("  ✓ Sample interval: %ds\n", cfg.AgentInterval)
			fmt.Printf("  ✓ Slow query:      >%dms\n\n", cfg.AgentSlowQueryMs)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return agent.Run(ctx, cfg, log)
		},
	}
	agentCmd.Flags().Int("interval", 0, "Seconds between samples (overrides config)")
	agentCmd.Flags().Int("slow-query-ms", 0, "Active queries older than this count as slow (overrides config)")

	// ── user subcommand ───────────────────────────────────────────────────────
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage dashboard users in the SQLite auth backend",
	}
	userAddCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user, or reset the password of an existing one with --reset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			reset, _ := cmd.Flags().GetBool("reset")
			if username == "" || password == "" {
				return errors.New("--username and --password are required")
			}

			store, err := auth.OpenUserStore(cfg.UsersDBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if reset {
				if err := store.SetPassword(cmd.Context(), username, password); err != nil {
					return err
				}
				fmt.Printf("  ✓ Password updated for %s\n", username)
				return nil
			}
			u, err := store.AddUser(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			fmt.Printf("  ✓ Created user %s (id %d) in %s\n", u.Username, u.ID, cfg.UsersDBPath)
			return nil
		},
	}
	userAddCmd.Flags().String("username", "", "Login name")
	userAddCmd.Flags().String("password", "", "Plain-text password; stored as a bcrypt hash")
	userAddCmd.Flags().Bool("reset", false, "Update the password of an existing user")
	userCmd.AddCommand(userAddCmd)

	// ── hash-password subcommand ──────────────────────────────────────────────
	hashCmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for admin_pass_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Println(h)
			return nil
		},
	}

	// ── version subcommand ────────────────────────────────────────────────────
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print DB Sentinel version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("DB Sentinel %s\n", version)
		},
	}

	root.AddCommand(serverCmd, agentCmd, userCmd, hashCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
