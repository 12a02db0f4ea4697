package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/hookwarden/internal/config"
	"github.com/ppiankov/hookwarden/internal/server"
)

var serveNoReload bool

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoReload, "no-reload", false, "Disable config hot-reload")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hook server",
	Long: "Runs hookwarden as an HTTP hook server with a gRPC health endpoint.\n" +
		"Agent runtimes post lifecycle events to /v1/hooks/*; operators drive\n" +
		"escape hatches through /v1/console. The config file is hot-reloaded.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}

	srv, err := server.New(server.Config{ConfigPath: path, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !serveNoReload && path != "" {
		reloader, err := server.NewReloader(srv, []string{path})
		if err != nil {
			logger.Warn("hot-reload disabled", "error", err)
		} else {
			go func() { _ = reloader.Run(ctx) }()
		}
	}

	fmt.Fprintf(os.Stderr, "hookwarden listening on http://%s (health: %s)\n", cfg.Server.HTTPAddr, cfg.Server.GRPCAddr)
	fmt.Fprintf(os.Stderr, "Level: %s\n", srv.Engine().Level())
	if path != "" {
		fmt.Fprintf(os.Stderr, "Config: %s\n", path)
	}
	fmt.Fprintln(os.Stderr)

	return srv.Serve(ctx)
}
