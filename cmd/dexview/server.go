package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/dexview/internal/api"
	"github.com/kalambet/dexview/internal/config"
	"github.com/kalambet/dexview/internal/metrics"
	"github.com/kalambet/dexview/internal/pipeline"
	"github.com/kalambet/dexview/internal/pokeapi"
	"github.com/kalambet/dexview/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Fetch the catalog and serve it over HTTP (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(cmd.Context(), withMCP)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and catalog status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools on stdin/stdout")
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// newAcquirer wires the upstream client into an acquisition pipeline. rec
// may be nil.
func newAcquirer(cfg config.Config, rec pipeline.Recorder, logger *slog.Logger) *pipeline.Acquirer {
	client := pokeapi.New(cfg.Catalog.BaseURL,
		pokeapi.WithPageSize(cfg.Catalog.PageSize),
		pokeapi.WithRequestTimeout(cfg.Catalog.Timeout()),
		pokeapi.WithRateLimit(cfg.Catalog.RateLimit, cfg.Catalog.Burst),
	)
	opts := []pipeline.Option{
		pipeline.WithConcurrency(cfg.Catalog.Concurrency),
		pipeline.WithPolicy(cfg.Catalog.Policy()),
		pipeline.WithLogger(logger),
	}
	if rec != nil {
		opts = append(opts, pipeline.WithRecorder(rec))
	}
	return pipeline.NewAcquirer(client, opts...)
}

func runServer(parent context.Context, withMCP bool) error {
	fmt.Fprintf(os.Stderr, "dexview version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logger := newLogger(cfg.Log.Level, os.Stderr)
	slog.SetDefault(logger)

	addr := cfg.Server.Addr()
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + addr + "/health"); err == nil {
		resp.Body.Close()
		printWarning("dexview is already running on %s", addr)
		return fmt.Errorf("server already running on %s", addr)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	store := session.New(newAcquirer(cfg, m, logger), session.WithLogger(logger))
	defer store.Close()
	store.Start(ctx)

	handler := api.NewHandler(api.Deps{
		Store:         store,
		Metrics:       m.Handler(),
		ReloadContext: ctx,
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:         store,
			ReloadContext: ctx,
			Version:       version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "dexview listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

func showStatus(ctx context.Context, w io.Writer) error {
	client, err := newAPIClient()
	if err != nil {
		printError("config error: %v", err)
		return err
	}

	resp, err := client.get(ctx, "/catalog")
	if err != nil {
		printStatus(w, "Server", "stopped")
		printStatus(w, "Config file", "%s", config.Path())
		return nil
	}

	var snap session.Snapshot
	if err := decodeJSON(resp, &snap); err != nil {
		printStatus(w, "Server", "error (%v)", err)
		return nil
	}

	printStatus(w, "Server", "running at %s", client.baseURL)
	printStatus(w, "Session", "%s", snap.SessionID)
	printStatus(w, "Catalog", "%s", snap.Status)
	if snap.Error != "" {
		printStatus(w, "Error", "%s: %s", snap.Error, snap.Cause)
	}
	printStatus(w, "Items", "%d (%d visible)", snap.Total, len(snap.Items))
	printStatus(w, "Types", "%d", len(snap.Categories))
	printStatus(w, "Search", "%q", snap.Criteria.Search)
	printStatus(w, "Type filter", "%s", snap.Criteria.Category)
	if snap.Selected != nil {
		printStatus(w, "Selected", "%s %s", snap.Selected.Number(), snap.Selected.DisplayName())
	}
	printStatus(w, "Config file", "%s", config.Path())
	return nil
}
