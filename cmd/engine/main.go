// Command engine is the Knowledge Extraction Engine's process entrypoint:
// it loads configuration, connects to Postgres, builds every LLM provider,
// cold-starts the Taste Engine, wires C5-C10 together, and serves a small
// Gin HTTP surface. Grounded on the teacher's cmd/tarsy/main.go wiring
// order: config -> database -> services -> router -> listen.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/msg43/knowledge-chipper-engine/pkg/batch"
	"github.com/msg43/knowledge-chipper-engine/pkg/config"
	"github.com/msg43/knowledge-chipper-engine/pkg/database"
	"github.com/msg43/knowledge-chipper-engine/pkg/engine"
	"github.com/msg43/knowledge-chipper-engine/pkg/events"
	"github.com/msg43/knowledge-chipper-engine/pkg/feedback"
	"github.com/msg43/knowledge-chipper-engine/pkg/llm"
	"github.com/msg43/knowledge-chipper-engine/pkg/models"
	"github.com/msg43/knowledge-chipper-engine/pkg/questions"
	"github.com/msg43/knowledge-chipper-engine/pkg/reaper"
	"github.com/msg43/knowledge-chipper-engine/pkg/schema"
	"github.com/msg43/knowledge-chipper-engine/pkg/store"
	"github.com/msg43/knowledge-chipper-engine/pkg/taste"
	"github.com/msg43/knowledge-chipper-engine/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	gin.SetMode(getEnv("GIN_MODE", "release"))

	log.Printf("starting %s", version.Full())

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("error closing database client: %v", err)
		}
	}()
	db := dbClient.DB()
	slog.Info("connected to postgres")

	httpClient := &http.Client{Timeout: 60 * time.Second}

	providers, err := buildProviders(cfg, httpClient)
	if err != nil {
		log.Fatalf("failed to build llm providers: %v", err)
	}

	registry, err := schema.NewRegistry()
	if err != nil {
		log.Fatalf("failed to build schema registry: %v", err)
	}

	tasteEngine, err := taste.NewEngine(ctx, db, httpClient, cfg.TasteEngine)
	if err != nil {
		log.Fatalf("failed to start taste engine: %v", err)
	}
	tasteFilterFunc := engine.NewTasteFilterFunc(tasteEngine.Filter)
	fewShotLookup := batch.FewShotLookup(tasteEngine.FewShot.Lookup)

	pipeline := batch.NewPipeline(cfg.Batch, providers, registry, fewShotLookup, tasteFilterFunc)

	jobStore := store.NewJobStore(db)
	runStore := store.NewRunStore(db)
	episodeStore := store.NewEpisodeStore(db)
	claimStore := store.NewClaimStore(db)
	questionStore := store.NewQuestionStore(db)
	pendingFeedback := store.NewPendingFeedbackStore(db)

	mapperProvider, ok := providers[cfg.Batch.BatchProvider]
	if !ok {
		log.Fatalf("batch_provider %q not found in llm_providers", cfg.Batch.BatchProvider)
	}
	questionMapper := questions.NewMapper(mapperProvider, registry, questionStore, cfg.QuestionMapper)

	eng := engine.New(jobStore, runStore, episodeStore, claimStore, pipeline, questionMapper)

	hub := events.NewHub()
	eng.SetPublisher(events.NewPublisher(hub))

	feedbackWorker := feedback.NewWorker(pendingFeedback, tasteEngine.Store, tasteEngine, cfg.FeedbackWorker)
	feedbackWorker.Start(ctx)
	defer feedbackWorker.Stop()

	reap, err := reaper.New(getEnv("REDIS_ADDR", "localhost:6379"), runStore, reaper.DefaultConfig())
	if err != nil {
		log.Fatalf("failed to start reaper: %v", err)
	}
	reap.Start(ctx)
	defer reap.Stop()

	router := gin.Default()
	registerRoutes(router, eng, cfg, hub)

	slog.Info("http server listening", "port", httpPort)
	if err := router.Run(":" + httpPort); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

// buildProviders constructs one llm.ChatBatchProvider per configured entry,
// the way the teacher's main.go builds one service per registry section.
func buildProviders(cfg *config.Config, httpClient *http.Client) (map[string]llm.ChatBatchProvider, error) {
	providers := make(map[string]llm.ChatBatchProvider, len(cfg.LLMProviders))
	for name, pcfg := range cfg.LLMProviders {
		provider, err := llm.Build(pcfg, httpClient)
		if err != nil {
			return nil, err
		}
		providers[name] = provider
	}
	return providers, nil
}

type runEpisodeRequest struct {
	Episode     models.Episode         `json:"episode"`
	Config      map[string]interface{} `json:"config"`
	AutoProcess bool                   `json:"auto_process"`
}

// registerRoutes wires the Engine's small REST surface: health, run trigger,
// and a run-progress long-poll endpoint backed by pkg/events.
func registerRoutes(router *gin.Engine, eng *engine.Engine, cfg *config.Config, hub *events.Hub) {
	router.GET("/health", func(c *gin.Context) {
		stats := cfg.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":         "healthy",
			"version":        version.Full(),
			"llm_providers":  stats.LLMProviders,
			"remine_enabled": stats.RemineEnabled,
		})
	})

	router.POST("/jobs", func(c *gin.Context) {
		var req runEpisodeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := eng.RunEpisode(c.Request.Context(), req.Episode, req.Config, req.AutoProcess)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	router.GET("/runs/:id/events", func(c *gin.Context) {
		runID := c.Param("id")
		ch, cancel := hub.Subscribe(events.RunChannel(runID))
		defer cancel()

		reqCtx := c.Request.Context()
		timeout := time.After(30 * time.Second)
		var received []events.Event
		for {
			select {
			case evt := <-ch:
				received = append(received, evt)
			case <-timeout:
				c.JSON(http.StatusOK, gin.H{"events": received})
				return
			case <-reqCtx.Done():
				return
			}
		}
	})
}
