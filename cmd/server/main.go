package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"codearena/internal/arena"
	"codearena/internal/cache"
	"codearena/internal/config"
	"codearena/internal/judge"
	"codearena/internal/repository"
	"codearena/internal/service"
	"codearena/internal/store"
	"codearena/internal/transport/rest"
	"codearena/internal/transport/ws"
)

func main() {
	log.Println("started")
	ctx := context.Background()

	cfg := config.Load()

	// Load AI config and log model settings
	aiConfig := config.DefaultAIConfig()
	log.Printf("AI Config:")
	log.Printf("  Scenario:    %s", aiConfig.Models.Scenario)
	log.Printf("  Grade:       %s", aiConfig.Models.Grade)
	log.Printf("  Environment: %s", aiConfig.Models.Environment)
	if aiConfig.IsEnabled() {
		log.Println("  API Key:     configured ✓")
	} else {
		log.Println("  API Key:     NOT SET (using mock judge)")
	}

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	// Ping MongoDB
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDB)

	// Redis connection
	redisAddr := cfg.RedisAddr
	// Remove redis:// prefix if present
	if len(redisAddr) > 8 && redisAddr[:8] == "redis://" {
		redisAddr = redisAddr[8:]
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	defer rdb.Close()

	// Ping Redis
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// Session store: the shared Redis store for real deployments, the
	// in-memory store for the practice variant so simulated peers never
	// leak into shared state.
	var sessionStore store.Store
	if cfg.BotRace {
		sessionStore = store.NewMemoryStore()
		log.Println("Practice mode: in-memory session store with simulated peers")
	} else {
		sessionStore = store.NewRedisStore(rdb)
	}

	// Initialize repositories and caches
	resultRepo := repository.NewResultRepo(db)
	leaderboard := cache.NewLeaderboardCache(rdb)

	// Initialize judge and services
	aiJudge := judge.NewGeminiJudge(aiConfig)
	authSvc := service.NewAuthService(cfg)
	manager := arena.NewManager(sessionStore, aiJudge)
	raceSvc := service.NewRaceService(manager, resultRepo, leaderboard)
	assessmentSvc := service.NewAssessmentService(aiJudge, resultRepo)

	// WebSocket hub rides on store subscriptions via the manager
	wsHub := ws.NewHub(manager)
	log.Println("WebSocket hub started")

	// Create router with container
	container := &rest.Container{
		AuthService:       authSvc,
		AssessmentService: assessmentSvc,
		RaceService:       raceSvc,
		Manager:           manager,
		RaceDuration:      time.Duration(cfg.RaceLength) * time.Second,
		PracticeBots:      cfg.BotRace,
		WSHub:             wsHub,
	}

	router := rest.NewRouter(container)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.HTTPPort)
		log.Printf("Host auth: username=%s", cfg.HostUser)
		log.Println("Endpoints:")
		log.Println("  POST /v1/auth/login")
		log.Println("  POST /v1/sessions")
		log.Println("  POST /v1/sessions/{code}/join")
		log.Println("  POST /v1/sessions/{code}/start")
		log.Println("  PUT  /v1/sessions/{code}/progress")
		log.Println("  GET  /v1/sessions/{code}/leaderboard")
		log.Println("  POST /v1/assessments")
		log.Println("  WS   /v1/ws/sessions/{code}")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
