package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"modelmux/internal/config"
	"modelmux/internal/database"
	"modelmux/internal/handlers"
	"modelmux/internal/jobs"
	"modelmux/internal/logging"
	"modelmux/internal/middleware"
	"modelmux/internal/services"
	"modelmux/pkg/auth"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting modelmux server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, default model: %s)", cfg.Port, cfg.DefaultModel)

	// SQLite keeps rules, assignments, and the cost ledger durable. Optional:
	// without it everything still works in memory.
	var db *database.DB
	if cfg.DatabasePath != "" {
		var err error
		db, err = database.New(cfg.DatabasePath)
		if err != nil {
			log.Printf("⚠️ Failed to open database: %v (durable storage disabled)", err)
			db = nil
		} else {
			defer db.Close()
			if err := db.Initialize(); err != nil {
				log.Fatalf("❌ Failed to initialize database schema: %v", err)
			}
		}
	}

	// MongoDB holds session notes and account budgets. Optional.
	var mongoDB *database.MongoDB
	if cfg.MongoURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		var err error
		mongoDB, err = database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Printf("⚠️ Failed to connect to MongoDB: %v (session persistence disabled)", err)
		} else {
			defer mongoDB.Close(context.Background())
			indexCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := mongoDB.EnsureIndexes(indexCtx); err != nil {
				log.Printf("⚠️ Failed to ensure MongoDB indexes: %v", err)
			}
			cancel()
		}
	}

	// Redis shares cost window counters across replicas. Optional.
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		var err error
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (window counters stay in-process)", err)
			redisService = nil
		} else {
			defer redisService.Close()
		}
	}

	// Async persistence writer shared by every service that writes durable state
	writer := services.NewPersistWriter(1024, 200)
	defer writer.Close()

	// Model registry, seeded from the built-in catalog with optional file overlay
	registry := buildRegistry(cfg)

	assignmentService := services.NewAssignmentService(registry, db, writer)
	routerService := services.NewRouterService(registry, assignmentService, db, writer, cfg.DefaultModel)

	// Load the rules file if configured, then watch it for changes
	if cfg.RulesPath != "" {
		if rulesFile, err := config.LoadRulesFile(cfg.RulesPath); err != nil {
			log.Printf("⚠️ Failed to load rules file %s: %v (keeping current rule set)", cfg.RulesPath, err)
		} else {
			routerService.ReplaceRules(rulesFile.Rules)
		}
		go watchRulesFile(cfg.RulesPath, routerService)
	}

	sessionService := services.NewSessionService(mongoDB, writer, cfg.NoteTTL, cfg.SweepInterval)
	sessionService.Start()
	defer sessionService.Stop()

	handoffService := services.NewHandoffService(sessionService)
	defer handoffService.Shutdown()

	budgetService := services.NewBudgetService(mongoDB)
	costService := services.NewCostService(registry, budgetService, redisService, db, writer, cfg.CostAlertOncePerWindow)

	services.InitMetrics(sessionService)

	// Daily cost rollup job
	rollupJob, err := jobs.NewRollupJob(costService, cfg.RollupCron)
	if err != nil {
		log.Printf("⚠️ Rollup job disabled: %v", err)
	} else if err := rollupJob.Start(); err != nil {
		log.Printf("⚠️ Failed to start rollup job: %v", err)
	} else {
		defer func() {
			if err := rollupJob.Stop(); err != nil {
				log.Printf("⚠️ Failed to stop rollup job: %v", err)
			}
		}()
	}

	// Token verifier (verify-only; tokens are issued by the identity provider)
	var verifier *auth.TokenVerifier
	if cfg.JWTSecret != "" {
		verifier, err = auth.NewTokenVerifier(cfg.JWTSecret)
		if err != nil {
			log.Fatalf("❌ Failed to initialize token verifier: %v", err)
		}
		log.Println("🔐 Token verification enabled")
	} else if os.Getenv("ENVIRONMENT") == "production" {
		log.Fatal("❌ JWT_SECRET is required in production")
	} else {
		log.Println("⚠️  JWT_SECRET not set, running with development auth bypass")
	}

	app := fiber.New(fiber.Config{
		AppName:      "modelmux v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    4 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("modelmux")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	rateLimitConfig := middleware.DefaultRateLimitConfig()
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))
	log.Printf("🛡️  [RATE-LIMIT] Global API rate limiter enabled (%d/min)", rateLimitConfig.GlobalAPIMax)

	// Handlers
	healthHandler := handlers.NewHealthHandler(db, mongoDB, redisService, sessionService)
	modelHandler := handlers.NewModelHandler(registry)
	routingHandler := handlers.NewRoutingHandler(routerService)
	assignmentHandler := handlers.NewAssignmentHandler(assignmentService)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	handoffHandler := handlers.NewHandoffHandler(handoffService)
	costHandler := handlers.NewCostHandler(costService, budgetService)

	// Routes
	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api", middleware.AuthMiddleware(verifier))
	writeLimited := middleware.WriteRateLimiter(rateLimitConfig)

	api.Get("/models", modelHandler.ListModels)
	api.Get("/models/:id", modelHandler.GetModel)

	api.Post("/route", routingHandler.Route)
	api.Get("/rules", routingHandler.ListRules)
	api.Post("/rules", writeLimited, routingHandler.AddRule)
	api.Put("/rules/:id", writeLimited, routingHandler.UpdateRule)
	api.Delete("/rules/:id", writeLimited, routingHandler.DeleteRule)

	api.Get("/assignments", assignmentHandler.ListAssignments)
	api.Get("/assignments/:taskType", assignmentHandler.GetAssignment)
	api.Put("/assignments/:taskType", writeLimited, assignmentHandler.SetAssignment)
	api.Delete("/assignments/:taskType", writeLimited, assignmentHandler.DeleteAssignment)

	api.Post("/sessions/:id/notes", sessionHandler.AppendNote)
	api.Get("/sessions/:id/notes", sessionHandler.GetNotes)
	api.Get("/sessions/:id/summary", sessionHandler.GetSummary)

	api.Post("/handoff", handoffHandler.Handoff)
	api.Get("/handoff/stats", handoffHandler.GetStats)
	api.Get("/handoff/history", handoffHandler.GetHistory)

	api.Post("/cost/calculate", costHandler.Calculate)
	api.Post("/cost/record", costHandler.Record)
	api.Get("/cost/totals", costHandler.GetTotals)
	api.Get("/accounts/:id/budget", costHandler.GetBudget)
	api.Put("/accounts/:id/budget", writeLimited, costHandler.SetBudget)

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		log.Printf("🛑 Received %v, shutting down...", sig)

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Fiber shutdown error: %v", err)
		}
	}()

	log.Printf("🌐 Server listening on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Server failed: %v", err)
	}

	log.Println("👋 Server stopped")
}

// buildRegistry loads the optional catalog file and creates the registry
func buildRegistry(cfg *config.Config) *services.RegistryService {
	if cfg.CatalogPath == "" {
		return services.NewRegistryService(nil, cfg.ConfiguredVendors)
	}

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		log.Printf("⚠️ Failed to load model catalog %s: %v (using built-in catalog)", cfg.CatalogPath, err)
		return services.NewRegistryService(nil, cfg.ConfiguredVendors)
	}

	return services.NewRegistryService(catalog, cfg.ConfiguredVendors)
}

// watchRulesFile hot-reloads the routing rule set when the rules file changes
func watchRulesFile(filePath string, router *services.RouterService) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		log.Printf("⚠️  Failed to get absolute path for %s: %v", filePath, err)
		return
	}

	// Watch the directory containing the file (more reliable than watching
	// the file directly: editors replace files on save)
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️  Failed to watch directory %s: %v", dir, err)
		return
	}

	log.Printf("👁️  Watching %s for changes (hot-reload enabled)", filePath)

	// Debounce rapid successive writes
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
					rulesFile, err := config.LoadRulesFile(filePath)
					if err != nil {
						log.Printf("❌ Failed to reload rules from %s: %v (keeping current rule set)", filePath, err)
						return
					}
					router.ReplaceRules(rulesFile.Rules)
					log.Printf("✅ Rules reloaded from %s", filePath)
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  File watcher error: %v", err)
		}
	}
}
