package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/hookwarden/internal/audit"
)

var (
	auditLines   int
	auditJSON    bool
	auditEvent   string
	auditOutcome string
	auditSession string
	auditSince   time.Duration
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditQueryCmd)

	for _, c := range []*cobra.Command{auditTailCmd, auditQueryCmd} {
		c.Flags().IntVarP(&auditLines, "lines", "n", 10, "Number of recent entries to show")
		c.Flags().BoolVar(&auditJSON, "json", false, "Print entries as JSON")
		c.Flags().StringVar(&auditEvent, "event", "", "Filter by event type")
		c.Flags().StringVar(&auditOutcome, "outcome", "", "Filter by outcome: allowed, blocked, alerted, error")
		c.Flags().StringVar(&auditSession, "session", "", "Filter by session id")
		c.Flags().DurationVar(&auditSince, "since", 0, "Only entries newer than this (e.g. 1h)")
	}
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained audit file and the SQLite audit database.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of an audit file",
	Long:  "Walks the JSONL audit file and validates that every record's prev_hash\nmatches the SHA-256 of the previous record. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent entries from an audit file",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query <db>",
	Short: "Query the SQLite audit database",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditQuery,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	f, err := auditFilter()
	if err != nil {
		return err
	}
	entries, err := audit.ReadFile(args[0], f)
	if err != nil {
		return err
	}
	return printEntries(cmd, entries)
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	f, err := auditFilter()
	if err != nil {
		return err
	}
	if _, err := os.Stat(args[0]); err != nil {
		return fmt.Errorf("audit database: %w", err)
	}
	db, err := audit.OpenSQLite(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	entries, err := db.Query(ctx, f)
	if err != nil {
		return err
	}
	return printEntries(cmd, entries)
}

func auditFilter() (audit.Filter, error) {
	f := audit.Filter{
		Event:     audit.Event(auditEvent),
		SessionID: auditSession,
		Limit:     auditLines,
	}
	if auditOutcome != "" {
		o, ok := audit.ParseOutcome(auditOutcome)
		if !ok {
			return f, fmt.Errorf("unknown outcome %q", auditOutcome)
		}
		f.Outcome = o
	}
	if auditSince < 0 {
		return f, errors.New("--since must not be negative")
	}
	if auditSince > 0 {
		f.Since = time.Now().Add(-auditSince)
	}
	return f, nil
}

func printEntries(cmd *cobra.Command, entries []audit.Entry) error {
	if auditJSON {
		out, err := audit.FormatJSON(entries)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), audit.FormatTable(entries))
	return nil
}
