package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/closetmind/stylescan/internal/admin"
	"github.com/closetmind/stylescan/internal/analyzer"
	"github.com/closetmind/stylescan/internal/auth"
	"github.com/closetmind/stylescan/internal/cache"
	"github.com/closetmind/stylescan/internal/config"
	"github.com/closetmind/stylescan/internal/db"
	"github.com/closetmind/stylescan/internal/imaging"
	"github.com/closetmind/stylescan/internal/quota"
	"github.com/closetmind/stylescan/internal/ratelimit"
	"github.com/closetmind/stylescan/internal/server"
	"github.com/closetmind/stylescan/internal/vision"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Initialize database
	database, err := db.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer database.Close()

	// Initialize rate limiter. Redis keeps windows consistent across
	// replicas; the in-memory limiter is single-replica only and loses its
	// counters on restart.
	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		redisLimiter, err := ratelimit.NewRedisLimiter(cfg.RedisURL, ratelimit.DefaultConfig())
		if err != nil {
			log.Fatal("Failed to initialize rate limiter:", err)
		}
		defer redisLimiter.Close()
		limiter = redisLimiter
	} else {
		log.Println("REDIS_URL not set, using in-memory rate limiter (counters reset on restart)")
		limiter = ratelimit.NewMemoryLimiter(ratelimit.DefaultConfig())
	}

	// Assemble the analysis pipeline
	resultCache := cache.New(cache.DefaultCapacity, cache.DefaultTTL)
	quotaStore := quota.NewPostgresStore(database)
	provider := vision.NewClient(cfg.ProviderURL, cfg.ProviderAPIKey)
	invoker := analyzer.NewInvoker(imaging.NewSizer(), resultCache, quotaStore, limiter, provider)

	// Initialize router
	router := mux.NewRouter()

	// Auth middleware
	authMiddleware := auth.NewMiddleware(cfg.JWTSecret)

	// Public routes
	router.HandleFunc("/health", healthHandler).Methods("GET")
	router.HandleFunc("/auth/token", tokenHandler(database, cfg.JWTSecret)).Methods("POST")

	// Admin routes (you may want to add admin auth middleware here)
	adminHandler := admin.NewAdminHandler(database)
	adminHandler.RegisterRoutes(router)

	// Protected pipeline routes
	api := router.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware.Authenticate)
	server.NewHandler(database, invoker).RegisterRoutes(api)

	// Start server
	log.Printf("Server starting on port %s", cfg.ServerPort)
	log.Printf("Admin API available at /admin/*")
	log.Printf("Scan API available at /api/*")
	if err := http.ListenAndServe(":"+cfg.ServerPort, router); err != nil {
		log.Fatal("Server failed:", err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": "1.0.0",
	})
}

func tokenHandler(database *db.DB, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			APIKey string `json:"api_key"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		user, err := database.GetUserByAPIKey(r.Context(), req.APIKey)
		if err != nil {
			log.Printf("User lookup failed: %v", err)
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		token, err := auth.GenerateToken(user.ID, user.APIKey, jwtSecret)
		if err != nil {
			log.Printf("Token generation failed: %v", err)
			http.Error(w, "Failed to generate token", http.StatusInternalServerError)
			return
		}

		json.NewEncoder(w).Encode(map[string]string{
			"token": token,
		})
	}
}
