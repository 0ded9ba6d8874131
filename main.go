package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/oklog/ulid/v2"

	config "github.com/drummonds/pdf2image/config"
	engine "github.com/drummonds/pdf2image/engine"
	"github.com/drummonds/pdf2image/engine/pdfrenderer"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = Logger
	engine.Logger = Logger
}

func main() {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	renderer, err := pdfrenderer.NewRenderer(serverConfig.Renderer, serverConfig.MaxParallelFiles)
	if err != nil {
		Logger.Error("Unable to create PDF renderer", "renderer", serverConfig.Renderer, "error", err)
		os.Exit(1)
	}
	defer renderer.Close()

	service, err := engine.NewService(serverConfig, renderer)
	if err != nil {
		Logger.Error("Unable to create conversion service", "error", err)
		os.Exit(1)
	}

	e, serverHandler := newServer(serverConfig, service)
	if err := serverHandler.StartupChecks(); err != nil {
		os.Exit(1)
	}
	Logger.Info("Startup checks complete")

	if serverConfig.ListenAddrIP == "" {
		Logger.Info("No Ip Addr set, binding on ALL addresses")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() { serverErr <- startServer(e, &serverConfig) }()

	select {
	case err := <-serverErr:
		if err != nil {
			Logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		Logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			Logger.Error("Server shutdown failed", "error", err)
		}
	}
}

// newServer builds echo with middleware and the API routes
func newServer(serverConfig config.ServerConfig, service *engine.Service) (*echo.Echo, *engine.ServerHandler) {
	e := echo.New()
	e.HideBanner = true

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}
		if code == http.StatusNotFound {
			c.JSON(http.StatusNotFound, map[string]string{
				"error":   "Not Found",
				"message": "The requested API endpoint does not exist",
				"path":    c.Request().URL.Path,
			})
			return
		}
		e.DefaultHTTPErrorHandler(err, c)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return ulid.Make().String() },
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			Logger.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "requestID", v.RequestID, "error", v.Error)
			return nil
		},
	}))
	e.Use(middleware.BodyLimit(bodyLimit(serverConfig)))
	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))

	serverHandler := &engine.ServerHandler{Service: service, Echo: e, ServerConfig: serverConfig}
	serverHandler.RegisterRoutes()
	return e, serverHandler
}

// bodyLimit allows a full batch of maximum size uploads plus multipart overhead
func bodyLimit(serverConfig config.ServerConfig) string {
	megabytes := serverConfig.MaxFileSize >> 20
	if megabytes < 1 {
		megabytes = 1
	}
	files := int64(serverConfig.MaxParallelFiles)
	if files < 4 {
		files = 4
	}
	return fmt.Sprintf("%dM", megabytes*files+1)
}

// startServer listens on the configured port, moving to the next port if it is taken
func startServer(e *echo.Echo, serverConfig *config.ServerConfig) error {
	maxRetries := 5
	startPort := serverConfig.ListenAddrPort

	for attempt := 0; attempt < maxRetries; attempt++ {
		addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
		Logger.Info("Attempting to start server", "address", addr, "attempt", attempt+1)
		if attempt > 0 {
			Logger.Warn("Server starting on alternative port due to conflicts", "requested_port", startPort, "port", serverConfig.ListenAddrPort)
		}

		err := e.Start(addr)
		switch {
		case err == nil, errors.Is(err, http.ErrServerClosed):
			return nil
		case isAddressInUse(err):
			Logger.Warn("Port already in use, trying next port", "port", serverConfig.ListenAddrPort, "attempt", attempt+1, "max_attempts", maxRetries)
			portNum := 0
			fmt.Sscanf(serverConfig.ListenAddrPort, "%d", &portNum)
			serverConfig.ListenAddrPort = fmt.Sprintf("%d", portNum+1)
		default:
			return err
		}
	}
	return fmt.Errorf("no free port between %s and %s after %d attempts", startPort, serverConfig.ListenAddrPort, maxRetries)
}

// isAddressInUse checks if the error is due to address already in use
func isAddressInUse(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EADDRINUSE) || strings.Contains(err.Error(), "address already in use")
}
