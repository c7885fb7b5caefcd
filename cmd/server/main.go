package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"streetlight/internal/config"
	"streetlight/internal/database"
	"streetlight/internal/document"
	"streetlight/internal/handlers"
	"streetlight/internal/jobs"
	"streetlight/internal/logging"
	"streetlight/internal/retrieval"
	"streetlight/internal/services"
	"streetlight/internal/tools"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Streetlight Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s)", cfg.Port)

	// Rule tables: compiled-in defaults, optionally overlaid from a YAML file
	rules := config.NewRuleSet(nil)
	if cfg.RulesPath != "" {
		loaded, err := config.LoadRules(cfg.RulesPath)
		if err != nil {
			log.Printf("⚠️  Failed to load rules from %s, using defaults: %v", cfg.RulesPath, err)
		} else {
			rules.Replace(loaded)
			log.Printf("✅ Rules loaded from %s", cfg.RulesPath)
		}
		go watchRulesFile(cfg.RulesPath, rules)
	}

	// Directory and knowledge stores (MySQL or SQLite)
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// MongoDB holds conversations; without it chat routes are disabled
	var mongoDB *database.MongoDB
	if cfg.MongoURL != "" {
		log.Println("🔗 Connecting to MongoDB...")
		mongoDB, err = database.NewMongoDB(cfg.MongoURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to MongoDB: %v (chat disabled)", err)
			mongoDB = nil
		} else {
			defer mongoDB.Close(context.Background())
			if err := mongoDB.Initialize(context.Background()); err != nil {
				log.Printf("⚠️ Failed to initialize MongoDB indexes: %v", err)
			}
			log.Println("✅ MongoDB connected successfully")
		}
	} else {
		log.Println("⚠️ MONGODB_URL not set, chat disabled (ingestion and health still available)")
	}

	// Redis is optional; web search results fall back to in-process caching
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (shared caching disabled)", err)
			redisService = nil
		} else {
			defer redisService.Close()
		}
	}

	// Retrieval, adapters, tools
	engine := retrieval.NewEngine(db, rules)
	scraperService := services.NewScraperService()
	webSearchService := services.NewWebSearchService(cfg.SerperAPIKey, redisService)
	if !webSearchService.Configured() {
		log.Println("⚠️ SERPER_API_KEY not set, web search will report itself unavailable")
	}

	registry := tools.NewRegistry()
	registry.Register(tools.NewKnowledgeTool(engine))
	registry.Register(services.NewScraperTool(scraperService))
	registry.Register(services.NewSearchTool(webSearchService))
	log.Printf("🔧 Tool registry initialized with %d tools", registry.Count())

	documentService := document.NewService(db, rules, cfg.MaxUploadBytes)
	grounder := services.NewGroundingService(engine, webSearchService, rules)

	// Chat stack requires MongoDB
	var chatService *services.ChatService
	var retentionJob *jobs.RetentionJob
	if mongoDB != nil {
		store := services.NewMongoConversationStore(mongoDB)
		llm := services.NewLLMClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
		chatService = services.NewChatService(llm, store, registry, grounder, cfg.MaxHistoryMessages)
		log.Printf("💬 Chat service initialized (model: %s)", llm.Model())

		retentionJob, err = jobs.NewRetentionJob(store, cfg.RetentionDays)
		if err != nil {
			log.Printf("⚠️ Failed to create retention job: %v", err)
		} else if err := retentionJob.Start(); err != nil {
			log.Printf("⚠️ Failed to start retention job: %v", err)
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      "Streetlight v1.0",
		ReadTimeout:  300 * time.Second,
		WriteTimeout: 300 * time.Second, // streaming turns with tool calls can run long
		IdleTimeout:  300 * time.Second,
		BodyLimit:    cfg.MaxUploadBytes + 1024*1024, // ingestion payload plus envelope headroom
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
	}))

	prometheus := fiberprometheus.New("streetlight")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowedOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	// Handlers and routes
	healthHandler := handlers.NewHealthHandler(db, mongoDB)
	documentHandler := handlers.NewDocumentHandler(documentService)

	app.Get("/health", healthHandler.Handle)
	app.Post("/api/ingest", documentHandler.Ingest)
	app.Get("/api/documents/:id", documentHandler.Get)
	app.Delete("/api/documents/:id", documentHandler.Delete)

	if chatService != nil {
		chatHandler := handlers.NewChatHandler(chatService)
		wsHandler := handlers.NewWebSocketHandler(chatService)

		app.Post("/api/chat", chatHandler.Send)

		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				c.Locals("allowed", true)
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/chat", websocket.New(wsHandler.Handle, websocket.Config{
			Origins: cfg.AllowedOrigins,
		}))
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if retentionJob != nil {
			if err := retentionJob.Stop(); err != nil {
				log.Printf("⚠️ Error stopping retention job: %v", err)
			}
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// watchRulesFile hot-reloads the rule tables when the YAML file changes.
// Watches the containing directory, which survives editor rename-and-replace.
func watchRulesFile(path string, rules *config.RuleSet) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  Failed to create rules watcher: %v", err)
		return
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		log.Printf("⚠️  Failed to resolve rules path %s: %v", path, err)
		watcher.Close()
		return
	}

	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)
	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️  Failed to watch directory %s: %v", dir, err)
		watcher.Close()
		return
	}

	log.Printf("👁️  Watching %s for changes (hot-reload enabled)", path)

	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					loaded, err := config.LoadRules(path)
					if err != nil {
						log.Printf("❌ Failed to reload rules from %s: %v", path, err)
						return
					}
					rules.Replace(loaded)
					log.Printf("🔄 Rules reloaded from %s", path)
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  Rules watcher error: %v", err)
		}
	}
}
