// Command tablezoo starts the game-session server.
//
// It supports two modes:
//  1. "server" (default) – runs the HTTP server exposing the REST API, the
//     WebSocket hub, and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server backed by an internal HTTP API
//
// Flags control host/port, the tuning-config directory, the sqlite database
// path (empty runs fully in memory), debug logging, and optional ngrok
// tunneling for development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/tablezoo/tablezoo/api"
	"github.com/tablezoo/tablezoo/game/config"
	"github.com/tablezoo/tablezoo/game/engine"
	"github.com/tablezoo/tablezoo/game/engines/fivedice"
	"github.com/tablezoo/tablezoo/game/service"
	"github.com/tablezoo/tablezoo/game/session"
	"github.com/tablezoo/tablezoo/game/store"
	"github.com/tablezoo/tablezoo/transport/mcp"
	"github.com/tablezoo/tablezoo/transport/websocket"
)

const (
	Version = "1.0.0"
	AppName = "tablezoo game-session server"
)

var (
	port         = flag.Int("port", 8080, "HTTP server port")
	host         = flag.String("host", "localhost", "HTTP server host")
	configDir    = flag.String("config-dir", getConfigDirDefault(), "Directory containing engine tuning files")
	dbPath       = flag.String("db", os.Getenv("TABLEZOO_DB"), "Sqlite database path (empty for in-memory store)")
	debug        = flag.Bool("debug", false, "Enable debug logging")
	version      = flag.Bool("version", false, "Show version information")
	ngrokEnabled = flag.Bool("ngrok", false, "Enable ngrok tunnel")
	ngrokAuth    = flag.String("ngrok-auth", "", "Ngrok auth token (or use NGROK_AUTHTOKEN env var)")
	ngrokDomain  = flag.String("ngrok-domain", "", "Custom ngrok domain (optional)")
)

func getConfigDirDefault() string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return dir
	}
	return "configs"
}

func main() {
	// Load .env file if present; it's optional.
	_ = godotenv.Load()

	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", AppName, Version)
		os.Exit(0)
	}

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	mode := "server"
	if args := flag.Args(); len(args) > 0 {
		mode = args[0]
	}
	logger.Info("starting",
		zap.String("app", AppName),
		zap.String("version", Version),
		zap.String("mode", mode))

	gameService, cleanup, err := initializeServices(logger)
	if err != nil {
		logger.Fatal("failed to initialize services", zap.Error(err))
	}
	defer cleanup()

	switch mode {
	case "stdio-mcp", "mcp-stdio", "mcp":
		runStdioMCP(gameService, logger)

	case "server", "http":
		runHTTPServer(gameService, logger)

	default:
		logger.Fatal("unknown mode, use 'server' (default) or 'stdio-mcp'", zap.String("mode", mode))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// initializeServices wires the store, engine registry, state machine, and
// game service.
func initializeServices(logger *zap.Logger) (service.GameService, func(), error) {
	configManager, err := config.NewManager(*configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("create config manager: %w", err)
	}

	var tuning fivedice.Config
	if err := configManager.Tuning(fivedice.GameType, &tuning); err != nil {
		return nil, nil, fmt.Errorf("load fivedice tuning: %w", err)
	}

	registry, err := engine.NewRegistry(fivedice.New(tuning))
	if err != nil {
		return nil, nil, fmt.Errorf("build engine registry: %w", err)
	}

	var (
		sessions session.Store
		users    session.UserStore
		cleanup  = func() {}
	)
	if *dbPath != "" {
		db, err := store.OpenSQLite(*dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		sessions, users = db, db
		cleanup = func() {
			if err := db.Close(); err != nil {
				logger.Warn("close store failed", zap.Error(err))
			}
		}
		logger.Info("using sqlite store", zap.String("path", *dbPath))
	} else {
		mem := store.NewMemory()
		sessions, users = mem, mem
		logger.Info("using in-memory store")
	}

	machine := session.NewMachine(sessions, users, registry, logger)
	return service.NewGameService(machine, registry, users, logger), cleanup, nil
}

// runHTTPServer starts the HTTP server with REST API, WebSocket hub, and an
// /mcp proxy endpoint. If ngrok is enabled it also provisions a tunnel.
func runHTTPServer(gameService service.GameService, logger *zap.Logger) {
	hub := websocket.NewHub(gameService, logger)
	go hub.Run()

	apiServer := api.NewServer(gameService, hub, logger)

	addr := fmt.Sprintf("%s:%d", *host, *port)
	mcpClient := mcp.NewClient(fmt.Sprintf("http://%s", addr))

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", mcpEndpoint(mcpClient))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("HTTP server listening",
			zap.String("addr", addr),
			zap.String("rest", fmt.Sprintf("http://%s/api", addr)),
			zap.String("websocket", fmt.Sprintf("ws://%s/ws?session=<id>", addr)),
			zap.String("mcp", fmt.Sprintf("http://%s/mcp", addr)))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	if ngrokShouldRun() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrokTunnel(ctx, mainRouter, logger)
		}()
	}

	sig := <-stop
	logger.Info("shutting down", zap.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	wg.Wait()
	logger.Info("server stopped")
}

// mcpEndpoint serves MCP-over-HTTP by handing raw messages to the MCP
// server.
func mcpEndpoint(mcpClient *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)
		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

func ngrokShouldRun() bool {
	if *ngrokEnabled {
		return true
	}
	env := os.Getenv("NGROK_ENABLED")
	return env == "true" || env == "1"
}

func runNgrokTunnel(ctx context.Context, handler http.Handler, logger *zap.Logger) {
	authToken := *ngrokAuth
	if authToken == "" {
		authToken = os.Getenv("NGROK_AUTHTOKEN")
	}
	if authToken == "" {
		logger.Warn("ngrok enabled but no auth token provided (use --ngrok-auth or NGROK_AUTHTOKEN)")
		return
	}

	domain := *ngrokDomain
	if domain == "" {
		domain = os.Getenv("NGROK_DOMAIN")
	}
	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		logger.Warn("failed to start ngrok tunnel", zap.Error(err))
		return
	}
	defer tun.Close()

	logger.Info("ngrok tunnel established", zap.String("url", tun.URL()))
	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed {
		logger.Warn("ngrok server error", zap.Error(err))
	}
}

// runStdioMCP runs an MCP stdio server backed by an internal HTTP API bound
// to a random loopback port.
func runStdioMCP(gameService service.GameService, logger *zap.Logger) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		logger.Fatal("failed to get available port", zap.Error(err))
	}
	internalAddr := listener.Addr().String()

	hub := websocket.NewHub(gameService, logger)
	go hub.Run()

	httpServer := &http.Server{Handler: api.NewServer(gameService, hub, logger)}
	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Warn("internal HTTP server error", zap.Error(err))
		}
	}()
	// Give the listener a beat before the first tool call can arrive.
	time.Sleep(100 * time.Millisecond)

	logger.Info("MCP stdio server ready", zap.String("internal_api", internalAddr))
	mcpClient := mcp.NewClient(fmt.Sprintf("http://%s", internalAddr))
	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		logger.Fatal("MCP stdio server error", zap.Error(err))
	}
}
