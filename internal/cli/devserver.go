package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/neekly/neekly/internal/common/logtrace"
	"github.com/neekly/neekly/internal/devserver"
)

// devServerCmd runs the development backend
var devServerCmd = &cobra.Command{
	Use:   "dev-server [flags]",
	Short: "Run a local development server",
	Long: `Run an in-memory neekly backend for local experimentation. It implements the
session endpoints (login, reissue, logout, register) and the schedule and report
endpoints. All data is lost when the server stops.

The server is configured with a TOML file:

  listen = "127.0.0.1:8081"
  jwt_secret = "change-me-at-least-16-chars"
  access_token_ttl = "15m"
  refresh_token_ttl = "168h"

  [[users]]
  email = "jane@example.com"
  password = "s3cret"
  user_name = "Jane"

Example:
  neekly dev-server --server-config devserver.toml
  neekly config --server http://127.0.0.1:8081`,
	Args: cobra.NoArgs,
	RunE: runDevServer,
}

func runDevServer(cmd *cobra.Command, args []string) error {
	// server logs are the point of this command
	if !verbose {
		logtrace.InitLogger(zerolog.InfoLevel)
	}

	path, _ := cmd.Flags().GetString("server-config")
	listen, _ := cmd.Flags().GetString("listen")

	cfg, err := devserver.LoadConfig(path)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	srv, err := devserver.New(cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !jsonOutput {
		fmt.Fprintf(cmd.OutOrStdout(), "Dev server listening on http://%s\n", cfg.Listen)
		if len(cfg.Users) == 0 {
			warnLabel.Fprintln(cmd.OutOrStdout(), `No users configured, create one with "neekly register"`)
		}
	}
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func init() {
	devServerCmd.Flags().String("server-config", "", "Path to the dev server TOML config")
	devServerCmd.Flags().String("listen", "", "Address to listen on, overrides the config file")
	rootCmd.AddCommand(devServerCmd)
}
