package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/prepbrain/prepdeck/internal/api"
	"github.com/prepbrain/prepdeck/internal/config"
	"github.com/prepbrain/prepdeck/internal/dashboard"
	"github.com/prepbrain/prepdeck/internal/sim"
	"github.com/prepbrain/prepdeck/internal/tui"
)

var dashCmd = &cobra.Command{
	Use:   "dash",
	Short: "Open the terminal dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDashboard(cmd.Context())
	},
}

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Serve an in-memory control plane for offline use",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimulator(cmd)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve console commands as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP(cmd.Context())
	},
}

func init() {
	simCmd.Flags().Int("port", 0, "listen port (overrides sim.port)")
	simCmd.Flags().String("token", "", "require this bearer token (defaults to server.api_token)")
	simCmd.Flags().Bool("empty", false, "start with no seed data and both services stopped")
	simCmd.Flags().Bool("managed", false, "pretend the bot is managed by container startup")
}

func runDashboard(parent context.Context) error {
	c, err := newConsole()
	if err != nil {
		return err
	}
	defer c.Close()

	// The dashboard owns the terminal, so logs go to a file.
	if err := os.MkdirAll(c.cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	logPath := filepath.Join(c.cfg.Storage.DataDir, "dash.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()
	setupLogging(c.cfg.Log.Level, logFile)

	interval, err := c.cfg.PollInterval()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dashboard.NewPoller(c.ctrl, interval).Run(ctx)
	}()
	slog.Info("dashboard started", "server", c.cfg.Server.URL, "poll_interval", interval)

	theme := tui.KitchenTheme()
	if noColor {
		theme = tui.PlainTheme()
	}
	runErr := tui.Run(ctx, c.ctrl, theme)

	cancel()
	wg.Wait()
	slog.Info("dashboard stopped")
	return runErr
}

func runSimulator(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level, os.Stderr)

	port := cfg.Sim.Port
	if cmd.Flags().Changed("port") {
		port = intFlag(cmd, "port")
	}
	token := cfg.Server.APIToken
	if cmd.Flags().Changed("token") {
		token = stringsFlag(cmd, "token")
	}

	var opts []sim.Option
	if boolFlag(cmd, "managed") {
		opts = append(opts, sim.ManagedExternally())
	}
	s := sim.New(opts...)
	if boolFlag(cmd, "empty") {
		s = sim.Empty(opts...)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewControlPlaneHandler(api.ServerDeps{Sim: s, Token: token}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		printStep("Simulated control plane listening on http://%s", addr)
		if token == "" {
			printWarning("No API token configured; the simulator accepts unauthenticated requests")
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(parent context.Context) error {
	c, err := newConsole()
	if err != nil {
		return err
	}
	defer c.Close()
	// stdout carries the protocol.
	setupLogging(c.cfg.Log.Level, os.Stderr)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Controller: c.ctrl,
		Journal:    c.journal,
		Version:    version,
	})
	slog.Info("MCP server started (stdio transport)", "server", c.cfg.Server.URL)
	err = server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
