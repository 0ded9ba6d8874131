package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP   string
	ListenAddrPort string

	// Base URLs used to resolve relative file references handed over by the plugin host
	FilesURL   string
	DifyAPIURL string

	FetchTimeout     time.Duration
	RequestTimeout   time.Duration
	MaxFileSize      int64
	MaxPagePixels    int64
	MaxParallelFiles int
	Renderer         string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string `json:"-"`
	S3UseSSL    bool
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvDuration accepts Go durations ("45s") or a plain number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// LoadServerConfig reads the configuration from the environment without touching the logger
func LoadServerConfig() ServerConfig {
	serverConfig := ServerConfig{}

	serverConfig.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfig.ListenAddrIP = getEnv("SERVER_ADDR", "")

	serverConfig.FilesURL = getEnv("FILES_URL", "")
	serverConfig.DifyAPIURL = getEnv("DIFY_API_URL", "")

	serverConfig.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 30*time.Second)
	serverConfig.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 5*time.Minute)
	serverConfig.MaxFileSize = getEnvInt64("MAX_FILE_SIZE", 100<<20)
	serverConfig.MaxPagePixels = getEnvInt64("MAX_PAGE_PIXELS", 100_000_000)
	serverConfig.MaxParallelFiles = getEnvInt("MAX_PARALLEL_FILES", 2)
	if serverConfig.MaxParallelFiles < 1 {
		serverConfig.MaxParallelFiles = 1
	}
	serverConfig.Renderer = getEnv("PDF_RENDERER", "fitz")

	serverConfig.S3Endpoint = getEnv("S3_ENDPOINT", "")
	serverConfig.S3AccessKey = getEnv("S3_ACCESS_KEY", "")
	serverConfig.S3SecretKey = getEnv("S3_SECRET_KEY", "")
	serverConfig.S3UseSSL = getEnvBool("S3_USE_SSL", true)

	return serverConfig
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	serverConfig := LoadServerConfig()

	fmt.Println("\n========================================")
	fmt.Println("   pdf2image - PDF page rasterizer")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
	if serverConfig.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}

	logger.Info("Conversion limits loaded",
		"renderer", serverConfig.Renderer,
		"fetchTimeout", serverConfig.FetchTimeout,
		"requestTimeout", serverConfig.RequestTimeout,
		"maxFileSize", serverConfig.MaxFileSize,
		"maxPagePixels", serverConfig.MaxPagePixels,
		"maxParallelFiles", serverConfig.MaxParallelFiles)

	return serverConfig, logger
}

// SetupCLI loads configuration for the command line tool, logging to stderr
func SetupCLI(verbose bool) (ServerConfig, *slog.Logger) {
	_ = godotenv.Load(".env")

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	Logger = logger

	return LoadServerConfig(), logger
}

// parseLevel maps LOG_LEVEL values onto slog levels
func parseLevel(logLevel string) slog.Level {
	switch logLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	handlerOptions := &slog.HandlerOptions{Level: parseLevel(getEnv("LOG_LEVEL", "info"))}

	logOutput := getEnv("LOG_OUTPUT", "stdout")
	var logWriter io.Writer = os.Stdout

	if logOutput == "file" {
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "pdf2image.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}
