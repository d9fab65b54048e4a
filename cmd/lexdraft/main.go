package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/lexdraft/lexdraft/internal/api"
	"github.com/lexdraft/lexdraft/internal/flow"
	"github.com/lexdraft/lexdraft/internal/genai"
	"github.com/lexdraft/lexdraft/internal/renderer"
	"github.com/lexdraft/lexdraft/internal/store"
	"github.com/lexdraft/lexdraft/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LexDraft state data
	DefaultStateDir = "/var/lib/lexdraft"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "lexdraft.db"
	// DefaultDocumentsDirName is the subdirectory for generated documents
	DefaultDocumentsDirName = "generated-documents"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	genaiOpts := buildGenAIOptions(flags)
	storeOpts := buildStoreOptions(flags)
	rendererOpts := buildRendererOptions(flags)
	flowOpts := buildFlowOptions(config)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping LexDraft with configured modules")
	slog.Debug("Module options counts", "genai", len(genaiOpts), "store", len(storeOpts), "renderer", len(rendererOpts), "flow", len(flowOpts), "api", len(apiOpts))
	if err := api.Run(genaiOpts, storeOpts, rendererOpts, flowOpts, apiOpts); err != nil {
		slog.Error("LexDraft failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("LexDraft exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL      string
	StateDir         string
	OpenAIKey        string
	OpenAIBaseURL    string
	Model            string
	APIAddr          string
	HistoryThreshold int
	HistoryKeep      int
	HistorySummary   int
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	openaiKey     *string
	openaiBaseURL *string
	model         *string
	apiAddr       *string
}

// initializeLogger sets up structured logging at the configured level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevelFromEnv()}))
	slog.SetDefault(logger)
}

// logLevelFromEnv maps LEXDRAFT_DEBUG to the log level, defaulting to debug
func logLevelFromEnv() slog.Level {
	if util.ParseBoolEnv("LEXDRAFT_DEBUG", true) {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StateDir:         os.Getenv("LEXDRAFT_STATE_DIR"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		Model:            os.Getenv("LEXDRAFT_MODEL"),
		APIAddr:          os.Getenv("API_ADDR"),
		HistoryThreshold: util.ParseIntEnv("LEXDRAFT_HISTORY_THRESHOLD", flow.DefaultHistoryThreshold),
		HistoryKeep:      util.ParseIntEnv("LEXDRAFT_HISTORY_KEEP", flow.DefaultKeepRecent),
		HistorySummary:   util.ParseIntEnv("LEXDRAFT_HISTORY_SUMMARY_CAP", flow.DefaultSummaryCap),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No LEXDRAFT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"LEXDRAFT_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_BASE_URL_SET", config.OpenAIBaseURL != "",
		"LEXDRAFT_MODEL", config.Model,
		"API_ADDR", config.APIAddr,
		"historyThreshold", config.HistoryThreshold,
		"historyKeep", config.HistoryKeep,
		"historySummaryCap", config.HistorySummary)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for LexDraft data (overrides $LEXDRAFT_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN for the template store (overrides $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiBaseURL: flag.String("openai-base-url", config.OpenAIBaseURL, "OpenAI-compatible API base URL (overrides $OPENAI_BASE_URL)"),
		model:         flag.String("model", config.Model, "completion model name (overrides $LEXDRAFT_MODEL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"model", *flags.model,
		"apiAddr", *flags.apiAddr)

	return flags
}

// ensureDirectoriesExist creates the state directory tree
func ensureDirectoriesExist(flags Flags) error {
	return os.MkdirAll(*flags.stateDir, 0755)
}

// buildGenAIOptions builds completion gateway options from flags
func buildGenAIOptions(flags Flags) []genai.Option {
	var opts []genai.Option
	if *flags.openaiKey != "" {
		opts = append(opts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiBaseURL != "" {
		opts = append(opts, genai.WithBaseURL(*flags.openaiBaseURL))
	}
	if *flags.model != "" {
		opts = append(opts, genai.WithModel(*flags.model))
	}
	return opts
}

// buildStoreOptions builds template store options from flags. Without a DSN
// the store falls back to SQLite in the state directory.
func buildStoreOptions(flags Flags) []store.Option {
	dsn := *flags.dbDSN
	if dsn == "" {
		dsn = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", dsn)
	}
	switch store.DetectDSNType(dsn) {
	case store.DSNTypePostgres:
		return []store.Option{store.WithPostgresDSN(dsn)}
	default:
		return []store.Option{store.WithSQLiteDSN(dsn)}
	}
}

// buildRendererOptions builds document renderer options from flags
func buildRendererOptions(flags Flags) []renderer.Option {
	dir := filepath.Join(*flags.stateDir, DefaultDocumentsDirName)
	return []renderer.Option{renderer.WithOutputDir(dir)}
}

// buildFlowOptions builds dialogue engine options from configuration
func buildFlowOptions(config Config) []flow.EngineOption {
	if config.HistoryThreshold == flow.DefaultHistoryThreshold &&
		config.HistoryKeep == flow.DefaultKeepRecent &&
		config.HistorySummary == flow.DefaultSummaryCap {
		return nil
	}
	return []flow.EngineOption{
		flow.WithHistoryBounds(config.HistoryThreshold, config.HistoryKeep, config.HistorySummary),
	}
}

// buildAPIOptions builds API server options from flags
func buildAPIOptions(flags Flags) []api.Option {
	var opts []api.Option
	if *flags.apiAddr != "" {
		opts = append(opts, api.WithAddr(*flags.apiAddr))
	}
	return opts
}
