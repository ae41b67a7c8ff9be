package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/chack/pkg/adapter"
	"github.com/m-mizutani/chack/pkg/backend"
	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/chack/pkg/repository"
	"github.com/m-mizutani/chack/pkg/tool"
	"github.com/m-mizutani/chack/pkg/tool/exec"
	"github.com/m-mizutani/chack/pkg/tool/mcp"
	"github.com/m-mizutani/chack/pkg/tool/websearch"
	"github.com/m-mizutani/chack/pkg/usecase/gateway"
	"github.com/m-mizutani/chack/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// config holds configuration values
type config struct {
	logLevel   string
	configPath string

	// Backend
	backendProvider string
	geminiProject   string
	geminiLocation  string
	geminiModel     string
	anthropicAPIKey string
	claudeModel     string

	// Memory store
	firestoreProject  string
	firestoreDatabase string
	memoryDir         string

	// Transcript archive
	archiveBucket string
	archiveDir    string

	// Usage audit
	bigqueryDataset string
	bigqueryTable   string

	pricingPath string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("CHACK_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to gateway config YAML",
			Sources:     cli.EnvVars("CHACK_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.StringFlag{
			Name:        "pricing",
			Usage:       "Path to model pricing YAML",
			Sources:     cli.EnvVars("CHACK_PRICING"),
			Destination: &cfg.pricingPath,
		},
	}
}

// backendFlags returns flags for backend-related configuration
func backendFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Agent backend provider (gemini or claude)",
			Value:       "gemini",
			Sources:     cli.EnvVars("CHACK_BACKEND"),
			Destination: &cfg.backendProvider,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model ID",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "claude-model",
			Usage:       "Claude model ID",
			Sources:     cli.EnvVars("CLAUDE_MODEL"),
			Destination: &cfg.claudeModel,
		},
	}
}

// storeFlags returns flags for the memory store and optional GCP sinks
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Google Cloud project ID for Firestore (empty uses local files)",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.firestoreProject,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.firestoreDatabase,
		},
		&cli.StringFlag{
			Name:        "memory-dir",
			Usage:       "Directory for local long-term memory files",
			Value:       "./memory",
			Sources:     cli.EnvVars("CHACK_MEMORY_DIR"),
			Destination: &cfg.memoryDir,
		},
		&cli.StringFlag{
			Name:        "archive-bucket",
			Usage:       "Cloud Storage bucket for transcript archives",
			Sources:     cli.EnvVars("CHACK_ARCHIVE_BUCKET"),
			Destination: &cfg.archiveBucket,
		},
		&cli.StringFlag{
			Name:        "archive-dir",
			Usage:       "Local directory for transcript archives",
			Sources:     cli.EnvVars("CHACK_ARCHIVE_DIR"),
			Destination: &cfg.archiveDir,
		},
		&cli.StringFlag{
			Name:        "bigquery-dataset",
			Usage:       "BigQuery dataset for usage audit records",
			Sources:     cli.EnvVars("CHACK_BIGQUERY_DATASET"),
			Destination: &cfg.bigqueryDataset,
		},
		&cli.StringFlag{
			Name:        "bigquery-table",
			Usage:       "BigQuery table for usage audit records",
			Value:       "turn_usage",
			Sources:     cli.EnvVars("CHACK_BIGQUERY_TABLE"),
			Destination: &cfg.bigqueryTable,
		},
	}
}

// setupLogger installs the default logger at the configured level.
func (cfg *config) setupLogger() {
	logging.SetDefault(logging.New(cfg.logLevel, os.Stderr))
}

// loadGatewayConfig reads the gateway config YAML. ${ENV_VAR} references in
// the file are expanded before parsing.
func (cfg *config) loadGatewayConfig() (gateway.Config, error) {
	var gc gateway.Config
	if cfg.configPath == "" {
		gc.Normalize()
		return gc, nil
	}

	data, err := os.ReadFile(cfg.configPath)
	if err != nil {
		return gc, goerr.Wrap(err, "failed to read config file", goerr.V("path", cfg.configPath))
	}

	expanded := os.Expand(string(data), os.Getenv)
	if err := yaml.Unmarshal([]byte(expanded), &gc); err != nil {
		return gc, goerr.Wrap(err, "failed to parse config file", goerr.V("path", cfg.configPath))
	}

	gc.Normalize()
	return gc, nil
}

// newBackend creates the configured agent backend
func (cfg *config) newBackend(ctx context.Context) (backend.Backend, error) {
	bc := backend.Config{Provider: cfg.backendProvider}

	switch cfg.backendProvider {
	case "", "gemini":
		if cfg.geminiProject == "" {
			return nil, goerr.New("gemini-project is required")
		}
		var opts []adapter.GeminiOption
		if cfg.geminiModel != "" {
			opts = append(opts, adapter.WithGenerativeModel(cfg.geminiModel))
		}
		gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
		if err != nil {
			return nil, err
		}
		bc.Gemini = gemini

	case "claude":
		if cfg.anthropicAPIKey == "" {
			return nil, goerr.New("anthropic-api-key is required")
		}
		var opts []adapter.ClaudeOption
		if cfg.claudeModel != "" {
			opts = append(opts, adapter.WithClaudeModel(cfg.claudeModel))
		}
		bc.Claude = adapter.NewClaude(cfg.anthropicAPIKey, opts...)
	}

	return backend.New(bc)
}

// newRepository creates the long-term memory store: Firestore when a project
// is configured, local files otherwise.
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.firestoreProject != "" {
		return repository.NewFirestore(ctx, cfg.firestoreProject, cfg.firestoreDatabase)
	}
	return repository.NewLocal(cfg.memoryDir)
}

// defaultTools returns the built-in toolset. The same instances carry the
// tool flags and join the registry, so flag destinations line up.
func defaultTools() []tool.Tool {
	return []tool.Tool{
		exec.New(),
		websearch.NewDuckDuckGo(),
		websearch.NewBrave(),
		mcp.NewProvider(),
	}
}

// newOrchestrator assembles the full gateway from the resolved configuration.
// Mutators adjust the loaded gateway config before wiring.
func (cfg *config) newOrchestrator(ctx context.Context, tools []tool.Tool, mutators ...func(*gateway.Config)) (*gateway.Orchestrator, error) {
	gc, err := cfg.loadGatewayConfig()
	if err != nil {
		return nil, err
	}
	for _, mutate := range mutators {
		mutate(&gc)
	}

	b, err := cfg.newBackend(ctx)
	if err != nil {
		return nil, err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}

	registry, err := tool.New(ctx, nil, tools...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build tool registry")
	}

	var opts []gateway.OrchestratorOption

	if cfg.pricingPath != "" {
		table, err := model.LoadPricing(cfg.pricingPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gateway.WithPricing(table))
	}

	if cfg.archiveBucket != "" {
		archive, err := adapter.NewStorage(ctx, cfg.archiveBucket)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gateway.WithArchive(archive))
	} else if cfg.archiveDir != "" {
		archive, err := adapter.NewLocalStorage(cfg.archiveDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gateway.WithArchive(archive))
	}

	if cfg.bigqueryDataset != "" {
		if cfg.firestoreProject == "" {
			return nil, goerr.New("firestore-project is required for the BigQuery sink")
		}
		sink, err := adapter.NewBigQuerySink(ctx, cfg.firestoreProject, cfg.bigqueryDataset, cfg.bigqueryTable)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gateway.WithUsageSink(sink))
	}

	return gateway.New(ctx, gc, b, repo, registry, opts...)
}
