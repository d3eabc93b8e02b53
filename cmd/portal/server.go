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
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/mietwerk/portal/internal/api"
	"github.com/mietwerk/portal/internal/backend"
	"github.com/mietwerk/portal/internal/cache"
	"github.com/mietwerk/portal/internal/config"
	"github.com/mietwerk/portal/internal/credentials"
	"github.com/mietwerk/portal/internal/geo"
	"github.com/mietwerk/portal/internal/geocode"
	"github.com/mietwerk/portal/internal/services"
	"github.com/mietwerk/portal/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the portal server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running portal server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show portal status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "portal.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "portal version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	log := slog.Default()

	// Refuse to double-start: probe the health endpoint first.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("portal is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("portal is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	creds, err := credentials.NewManager(cfg.Storage.DataDir, log)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	client := backend.NewClient(backend.Config{
		BaseURL:       cfg.Backend.BaseURL,
		Timeout:       cfg.Backend.Timeout(),
		UploadTimeout: cfg.Backend.UploadTimeout(),
		MockMode:      cfg.Backend.MockMode,
		Credentials:   creds,
		OnAuthRejected: func(path string) {
			creds.HandleUnauthorized(path)
		},
		Logger: log,
	})

	readCache := cache.New(cfg.Cache.Enabled)
	ttl := cfg.Cache.TTL()

	resolver := geocode.NewResolver(geocode.Config{
		BaseURL:      cfg.Geocode.BaseURL,
		UserAgent:    cfg.Geocode.UserAgent,
		CountryCodes: cfg.Geocode.CountryCodes,
	})

	campus := geo.Coordinate{Lat: cfg.Campus.Lat, Lon: cfg.Campus.Lon}
	if err := campus.Validate(); err != nil {
		return fmt.Errorf("campus coordinates: %w", err)
	}

	rooms := services.NewRooms(client, readCache, ttl, cfg.IsProduction(), log)
	bookings := services.NewBookings(client, readCache, ttl, log)
	issues := services.NewIssues(client, readCache, ttl, log)

	handler := api.NewHandler(api.Deps{
		Auth:      services.NewAuth(client, creds, log),
		Rooms:     rooms,
		Bookings:  bookings,
		Payments:  services.NewPayments(client, readCache, ttl, log),
		Issues:    issues,
		Documents: services.NewDocuments(client, readCache, ttl, log),
		Tenants:   services.NewTenants(client, resolver, store, campus, log),
		Creds:     creds,
		Client:    client,
		Cache:     readCache,
		Resolver:  resolver,
		Campus:    campus,
		Logger:    log,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over stdio, so assistants can drive the portal.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Rooms:    rooms,
		Bookings: bookings,
		Issues:   issues,
		Creds:    creds,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "portal listening on %s\n", addr)
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

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("portal is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop portal (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to portal (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	httpClient := &http.Client{Timeout: 2 * time.Second}

	resp, err := httpClient.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Housing service", "%s", cfg.Backend.BaseURL)
	printStatus("Environment", "%s", cfg.Environment)

	if running {
		client := &apiClient{baseURL: serverURL, httpClient: httpClient}

		var mock struct {
			Enabled bool `json:"enabled"`
		}
		if r, err := client.get(ctx, "/admin/mock"); err == nil {
			if decodeJSON(r, &mock) == nil {
				if mock.Enabled {
					printStatus("Mock mode", "enabled")
				} else {
					printStatus("Mock mode", "disabled")
				}
			}
		}

		var stats cache.Stats
		if r, err := client.get(ctx, "/admin/cache"); err == nil {
			if decodeJSON(r, &stats) == nil {
				printStatus("Cache", "%d keys, %d hits, %d misses", stats.Keys, stats.Hits, stats.Misses)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
