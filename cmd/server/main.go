package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirelobby-server/internal/app"
	"github.com/vovakirdan/wirelobby-server/internal/auth"
	"github.com/vovakirdan/wirelobby-server/internal/config"
	"github.com/vovakirdan/wirelobby-server/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "wirelobby",
		Short:         "Lobby coordination server for real-time websocket clients",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// .env is optional
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the lobby server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	})
	root.AddCommand(newTokenCmd(&configPath))
	return root
}

func serve(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLogger := log.New(config.Default().Log)
	cfg, resolved, err := config.Load(bootLogger, configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", resolved, err)
	}

	logger := log.New(cfg.Log)
	application, err := app.New(&cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("addr", cfg.Addr()).Str("config", resolved).Msg("starting wirelobby server")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		lobby   string
		admin   bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admission or admin token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(log.Nop(), *configPath)
			if err != nil {
				return err
			}

			jwtConfig := &auth.JWTConfig{
				Secret: []byte(cfg.Admission.Secret),
				Issuer: cfg.Admission.Issuer,
				TTL:    cfg.Admission.TTL,
			}
			role := auth.RolePlayer
			if admin {
				if cfg.AdminTokenSecret == "" {
					return errors.New("admin_token_secret is not configured")
				}
				jwtConfig.Secret = []byte(cfg.AdminTokenSecret)
				role = auth.RoleAdmin
			}

			token, err := auth.GenerateToken(jwtConfig, subject, lobby, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "player", "token subject")
	cmd.Flags().StringVar(&lobby, "lobby", "", "restrict the token to one lobby")
	cmd.Flags().BoolVar(&admin, "admin", false, "mint an admin API token")
	return cmd
}
