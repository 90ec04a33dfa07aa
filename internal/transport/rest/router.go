package rest

import (
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"codearena/internal/arena"
	"codearena/internal/service"
	"codearena/internal/transport/rest/handler"
	"codearena/internal/transport/rest/middleware"
	"codearena/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService       *service.AuthService
	AssessmentService *service.AssessmentService
	RaceService       *service.RaceService
	Manager           *arena.Manager
	RaceDuration      time.Duration
	PracticeBots      bool
	WSHub             *ws.Hub
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	arenaHandler := handler.NewArenaHandler(c.Manager, c.RaceService, c.AuthService, c.RaceDuration, c.PracticeBots)
	assessmentHandler := handler.NewAssessmentHandler(c.AssessmentService)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware)

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{code}/join", arenaHandler.Join).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{code}", arenaHandler.Get).Methods("GET", "OPTIONS")
	v1.HandleFunc("/sessions/{code}/leaderboard", arenaHandler.Leaderboard).Methods("GET", "OPTIONS")
	v1.HandleFunc("/sessions/{code}/rank/{userId}", arenaHandler.Rank).Methods("GET", "OPTIONS")

	// Assessment routes (the assessment id is the capability)
	v1.HandleFunc("/assessments", assessmentHandler.Begin).Methods("POST", "OPTIONS")
	v1.HandleFunc("/assessments/{id}/events", assessmentHandler.RecordEvent).Methods("POST", "OPTIONS")
	v1.HandleFunc("/assessments/{id}/rounds", assessmentHandler.GradeRound).Methods("POST", "OPTIONS")
	v1.HandleFunc("/assessments/{id}/submit", assessmentHandler.Submit).Methods("POST", "OPTIONS")
	v1.HandleFunc("/assessments/history/{userId}", assessmentHandler.History).Methods("GET", "OPTIONS")

	// WebSocket route (public with token in query param)
	v1.HandleFunc("/ws/sessions/{code}", wsHandler.SessionWS).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Host routes (require host auth)
	hostRoutes := v1.NewRoute().Subrouter()
	hostRoutes.Use(authMW.RequireHost)

	hostRoutes.HandleFunc("/sessions", arenaHandler.Create).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{code}/scenario", arenaHandler.SetScenario).Methods("PUT", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{code}/start", arenaHandler.Start).Methods("POST", "OPTIONS")

	// Participant routes (require participant auth)
	participantRoutes := v1.NewRoute().Subrouter()
	participantRoutes.Use(authMW.RequireParticipant)

	participantRoutes.HandleFunc("/sessions/{code}/progress", arenaHandler.UpdateProgress).Methods("PUT", "OPTIONS")
	participantRoutes.HandleFunc("/sessions/{code}/leave", arenaHandler.Leave).Methods("POST", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		allowedMethods := os.Getenv("CORS_ALLOWED_METHODS")
		if allowedMethods == "" {
			allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
		}

		allowedHeaders := os.Getenv("CORS_ALLOWED_HEADERS")
		if allowedHeaders == "" {
			allowedHeaders = "Content-Type, Authorization"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
