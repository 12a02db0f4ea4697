package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/hookwarden/internal/client"
)

var (
	consoleAddr    string
	consoleSession string
)

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().StringVar(&consoleAddr, "addr", "127.0.0.1:7420", "hookwarden server address")
	consoleCmd.Flags().StringVar(&consoleSession, "session", "default", "Session the commands apply to")
}

var consoleCmd = &cobra.Command{
	Use:   "console [command [args...]]",
	Short: "Run operator commands against a running server",
	Long: `Sends operator commands to a running hookwarden server.

With arguments, runs one command and exits:
  hookwarden console --session s1 allow-once tool
  hookwarden console pause 5m investigating
  hookwarden console trust global calendar_*

Without arguments, reads one command per line from stdin. Type "help" for
the command list.`,
	RunE: runConsole,
}

func runConsole(cmd *cobra.Command, args []string) error {
	c := client.New(consoleAddr)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) > 0 {
		ok, err := consoleExec(ctx, c, cmd.OutOrStdout(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("command failed")
		}
		return nil
	}
	return consoleLoop(ctx, c, cmd.InOrStdin(), cmd.OutOrStdout())
}

func consoleLoop(ctx context.Context, c *client.Client, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "hookwarden[%s]> ", consoleSession)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "quit", "exit":
			return nil
		}
		if _, err := consoleExec(ctx, c, out, line); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func consoleExec(ctx context.Context, c *client.Client, out io.Writer, line string) (bool, error) {
	res, err := c.Console(ctx, consoleSession, line)
	if err != nil {
		return false, err
	}
	fmt.Fprintln(out, res.Message)
	return res.Success, nil
}
