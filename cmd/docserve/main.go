package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/oxhq/docserve/mcp"
)

var (
	flagDebug     bool
	flagWebserver bool

	// usageErr distinguishes invalid invocations (exit 2) from runtime
	// failures (exit 1).
	usageErr bool
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docserve <project-root>",
		Short: "MCP documentation server for AsciiDoc and Markdown projects",
		Long: `docserve indexes a documentation project and serves it to MCP clients
over stdio: structure queries, full-text search, dependency reporting, and
section-scoped edits with atomic writes. An optional HTTP API exposes the
read-only surface to browsers.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				usageErr = true
				return err
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0])
		},
	}
	cmd.Flags().BoolVar(&flagDebug, "debug", false, "log requests and index activity to stderr")
	cmd.Flags().BoolVar(&flagWebserver, "webserver", false, "enable the HTTP API (same as ENABLE_WEBSERVER=true)")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		usageErr = true
		return err
	})
	return cmd
}

func run(projectRoot string) error {
	// A .env next to the working directory participates; absence is fine.
	_ = godotenv.Load()

	cfg := mcp.ConfigFromEnv()
	cfg.ProjectRoot = projectRoot
	if flagDebug {
		cfg.Debug = true
	}
	if flagWebserver {
		cfg.EnableWebserver = true
	}

	info, err := os.Stat(projectRoot)
	if err != nil {
		return fmt.Errorf("project root %s: %w", projectRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project root %s is not a directory", projectRoot)
	}

	server, err := mcp.NewStdioServer(cfg)
	if err != nil {
		return err
	}
	defer server.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case sig := <-sigCh:
		fmt.Fprintf(os.Stderr, "received %s, shutting down\n", sig)
		return nil
	case err := <-errCh:
		return err
	}
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if usageErr {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
