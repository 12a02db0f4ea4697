package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/hookwarden/internal/client"
)

var (
	statusAddr     string
	statusGRPCAddr string
	statusSession  string
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusAddr, "addr", "127.0.0.1:7420", "hookwarden server address")
	statusCmd.Flags().StringVar(&statusGRPCAddr, "grpc-addr", "", "Also query the gRPC health service at this address")
	statusCmd.Flags().StringVar(&statusSession, "session", "", "Session to report on (default: default)")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show level, session counters and active escapes as JSON",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := client.New(statusAddr).Status(ctx, statusSession)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	report := map[string]any{"status": st}
	if statusGRPCAddr != "" {
		health, err := client.CheckHealth(ctx, statusGRPCAddr)
		if err != nil {
			report["health"] = "unreachable: " + err.Error()
		} else {
			report["health"] = health.String()
		}
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
