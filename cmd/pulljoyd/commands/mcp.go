package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roasbeef/pulljoy/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve read-only state tools over MCP stdio",
	Long: `Run an MCP server on stdin/stdout exposing the get_review_state and
list_review_states tools. Logs go to stderr.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Stdout carries the protocol.
	logMgr, err := setupLogging(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer logMgr.Close()

	states, closeStore, err := openStore(
		ctx, cfg, logMgr.SlogLogger(dbSubsystem),
	)
	if err != nil {
		return err
	}
	defer closeStore()

	return mcp.NewServer(states).Run(ctx, &sdkmcp.StdioTransport{})
}
