// Command autopipe runs the auto-pipeline orchestration engine. It always
// serves the ambient health/introspection HTTP surface; when given -task and
// -working-dir it also drives one pipeline run directly, in-process, through
// the coding-CLI child agent via pkg/pipeline. Submission is a Go-native
// call, not an HTTP endpoint: there is no pipeline control surface.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/autopipe/engine/pkg/agentmgr"
	"github.com/autopipe/engine/pkg/api"
	"github.com/autopipe/engine/pkg/config"
	"github.com/autopipe/engine/pkg/events"
	"github.com/autopipe/engine/pkg/llm"
	"github.com/autopipe/engine/pkg/llm/anthropic"
	"github.com/autopipe/engine/pkg/llm/openai"
	"github.com/autopipe/engine/pkg/model"
	"github.com/autopipe/engine/pkg/orchestrator"
	"github.com/autopipe/engine/pkg/pipeline"
	"github.com/autopipe/engine/pkg/store"
	"github.com/autopipe/engine/pkg/tools"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	task := flag.String("task", "", "Task description to submit as a new pipeline run (Go-native call, not an HTTP request)")
	workingDir := flag.String("working-dir", "", "Working directory the coding agent operates in (required with -task)")
	iterationCeiling := flag.Int("iteration-ceiling", 0, "Override the default iteration ceiling for this run")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	gin.SetMode(getEnv("GIN_MODE", "release"))

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	storeCfg, err := store.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load store config: %v", err)
	}
	storeClient, err := store.NewClient(ctx, storeCfg)
	if err != nil {
		log.Fatalf("Failed to connect to store: %v", err)
	}
	defer storeClient.Close()
	log.Println("Connected to PostgreSQL store")

	llmClient, err := newLLMClient(cfg)
	if err != nil {
		log.Fatalf("Failed to build LLM client: %v", err)
	}
	log.Printf("Using LLM provider %q (model %s)", llmClient.Name(), llmClient.Model())

	toolRegistry := tools.NewRegistry()
	orchDriver := orchestrator.NewDriver(llmClient, toolRegistry)
	orchDriver.MaxTurns = cfg.Defaults.OrchestratorMaxTurns

	agents := agentmgr.New()
	connManager := events.NewConnectionManager(5 * time.Second)
	publisher := events.NewPublisher(connManager)

	pipelineDriver := pipeline.NewDriver(agents, storeClient, publisher, orchDriver, cfg.Defaults.CodingAgentBin)

	server := api.NewServer(cfg, storeClient, connManager)

	log.Printf("Starting autopipe engine")
	log.Printf("HTTP port: %s", httpPort)
	log.Printf("Config directory: %s", *configDir)
	log.Printf("Orchestrator max turns: %d, iteration ceiling: %d",
		cfg.Defaults.OrchestratorMaxTurns, cfg.Defaults.IterationCeiling)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(":" + httpPort); err != nil {
			errCh <- err
		}
	}()
	log.Printf("HTTP server listening on :%s", httpPort)
	log.Printf("Health check available at: http://localhost:%s/health", httpPort)

	if *task != "" {
		if *workingDir == "" {
			log.Fatalf("-working-dir is required when -task is given")
		}
		go runOneTask(context.Background(), pipelineDriver, server, cfg, *task, *workingDir, *iterationCeiling)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("HTTP server failed: %v", err)
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("error during shutdown", "error", err)
		}
	}
}

// runOneTask submits a single pipeline run directly against the driver,
// the Go-native entrypoint spec.md requires in place of an HTTP submission
// endpoint. The running pipeline is tracked on the ambient server so
// GET /api/v1/pipelines/:id can observe it before it's ever persisted.
func runOneTask(ctx context.Context, d *pipeline.Driver, server *api.Server, cfg *config.Config, task, workingDir string, ceiling int) {
	if ceiling <= 0 {
		ceiling = cfg.Defaults.IterationCeiling
	}
	p := model.NewPipeline(uuid.New().String(), task, workingDir, ceiling)
	slog.Info("submitting pipeline", "pipeline_id", p.ID, "working_dir", workingDir)

	server.TrackRunning(p)
	defer server.UntrackRunning(p.ID)

	if err := d.RunPipeline(ctx, p); err != nil {
		slog.Error("pipeline run ended with error", "pipeline_id", p.ID, "error", err)
		return
	}
	slog.Info("pipeline run finished", "pipeline_id", p.ID, "final_state", p.CurrentState)
}

// newLLMClient builds the vendor client named by cfg.Defaults.LLMProvider,
// reading its credential/model from the environment per spec.md §10.
func newLLMClient(cfg *config.Config) (llm.Client, error) {
	providerName := cfg.Defaults.LLMProvider
	provider, err := cfg.GetLLMProvider(providerName)
	if err != nil {
		return nil, err
	}

	switch provider.Type {
	case config.LLMProviderTypeAnthropic:
		return anthropic.NewFromEnv()
	case config.LLMProviderTypeOpenAI:
		return openai.NewFromEnv()
	default:
		return nil, llm.ErrNoCredentials
	}
}
