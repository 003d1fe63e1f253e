// cmd/api/main.go
// Main entry point for the matchmaking API
// This file bootstraps all components and starts the server

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Internal packages
	"github.com/imadgeboyega/kiekky-matchmaking/internal/auth"
	"github.com/imadgeboyega/kiekky-matchmaking/internal/common/database"
	"github.com/imadgeboyega/kiekky-matchmaking/internal/config"
	notifications "github.com/imadgeboyega/kiekky-matchmaking/internal/notification"
	"github.com/imadgeboyega/kiekky-matchmaking/internal/suggestion"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	log.Println("========================================")
	log.Println("🚀 Starting Kiekky Matchmaking API")
	log.Println("========================================")

	ctx := context.Background()

	// 1. Load environment variables
	log.Println("📁 Step 1: Loading .env file...")
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  Warning: No .env file found (%v), using environment variables", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// 2. Load and validate configuration
	log.Println("\n📋 Step 2: Loading configuration...")
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("❌ Configuration validation failed:", err)
	}
	log.Println("✅ Configuration is valid")

	// 3. Connect to PostgreSQL
	log.Println("\n🗄️  Step 3: Connecting to PostgreSQL...")
	db, err := database.NewPostgresDBFromURL(ctx, cfg.DatabaseURL, database.DefaultPool)
	if err != nil {
		log.Fatal("❌ Failed to connect to PostgreSQL:", err)
	}
	defer db.Close()
	log.Println("✅ Connected to PostgreSQL successfully")

	// 4. Connect to Redis (optional)
	log.Println("\n📮 Step 4: Connecting to Redis...")
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClientFromURL(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  %v, continuing without Redis (notification dedup is per process)", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Println("✅ Connected to Redis successfully")
		}
	} else {
		log.Println("⚠️  Redis URL not configured, skipping Redis connection")
	}

	// 5. Run database migrations
	log.Println("\n🔨 Step 5: Running database migrations...")
	if err := database.RunMigrations(ctx, db, "notifications", notifications.Migrations); err != nil {
		log.Fatal("❌ Migration error:", err)
	}
	if err := database.RunMigrations(ctx, db, "suggestions", suggestion.Migrations); err != nil {
		log.Fatal("❌ Migration error:", err)
	}
	log.Println("✅ Database migrations completed")

	// 6. Initialize notifications
	log.Println("\n🔔 Step 6: Initializing notifications...")
	hub := notifications.NewHub()
	go hub.Run()

	dispatcher, err := notifications.NewDispatcherFromConfig(ctx, cfg, db, redisClient, hub)
	if err != nil {
		log.Fatal("❌ Failed to initialize notifications:", err)
	}
	notificationsHandler := notifications.NewHandler(dispatcher, hub, cfg.AllowedOrigins)
	log.Println("✅ Notifications initialized successfully")

	// 7. Initialize the suggestion engine
	log.Println("\n💞 Step 7: Initializing suggestion engine...")
	suggestionRepo := suggestion.NewPostgresRepository(db)
	suggestionService := suggestion.NewService(suggestionRepo, dispatcher, suggestion.Options{
		DefaultDeadline: cfg.SuggestionDeadline(),
		UrgentWindow:    cfg.UrgentDeadlineWindow,
		NotifyTimeout:   cfg.NotifyTimeout,
	})
	suggestionHandler := suggestion.NewHandler(suggestionService)
	log.Printf("✅ Suggestion engine ready (response window %s)", cfg.SuggestionDeadline())

	authMiddleware := auth.NewMiddleware(cfg.JWTSecret)

	// 8. Setup routes
	log.Println("\n🛣️  Step 8: Setting up routes...")
	router := mux.NewRouter()

	router.HandleFunc("/health", healthCheck(db.PingContext)).Methods("GET")
	router.HandleFunc("/api", apiInfo).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	suggestion.RegisterRoutes(router, suggestionHandler, authMiddleware)
	log.Println("   ✅ Suggestion routes registered")

	notifications.RegisterRoutes(router, notificationsHandler, authMiddleware)
	log.Println("   ✅ Notification routes registered")

	router.Use(loggingMiddleware)
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	// 9. Create and start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Println("\n========================================")
		log.Printf("🚀 Server starting on http://localhost%s", srv.Addr)
		log.Printf("🌍 Environment: %s", cfg.Environment)
		log.Println("========================================")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("❌ Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n⚠️  Shutdown signal received...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("   - Closing websocket connections...")
	hub.Shutdown()

	log.Println("✅ Server exited gracefully")
}

var startTime = time.Now()

// healthCheck reports uptime and database reachability
func healthCheck(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "healthy", http.StatusOK
		dbStatus := "up"
		if err := ping(ctx); err != nil {
			log.Printf("⚠️  Health check: database ping failed: %v", err)
			status, code = "degraded", http.StatusServiceUnavailable
			dbStatus = "down"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    status,
			"database":  dbStatus,
			"timestamp": time.Now().Format(time.RFC3339),
			"uptime":    time.Since(startTime).String(),
		})
	}
}

// apiInfo returns API information
func apiInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{
		"name": "Kiekky Matchmaking API",
		"version": "1.0.0",
		"status": "running",
		"endpoints": {
			"health": "GET /health",
			"metrics": "GET /metrics",
			"suggestions": {
				"list": "GET /api/v1/suggestions",
				"urgent": "GET /api/v1/suggestions/urgent",
				"stats": "GET /api/v1/suggestions/stats",
				"get": "GET /api/v1/suggestions/{id}",
				"history": "GET /api/v1/suggestions/{id}/history",
				"respond": "POST /api/v1/suggestions/{id}/respond",
				"feedback": "POST /api/v1/suggestions/{id}/feedback",
				"waitlist": "GET /api/v1/suggestions/waitlist",
				"reorderWaitlist": "PUT /api/v1/suggestions/waitlist"
			},
			"matchmaker": {
				"create": "POST /api/v1/matchmaker/suggestions",
				"list": "GET /api/v1/matchmaker/suggestions",
				"setStatus": "POST /api/v1/matchmaker/suggestions/{id}/status",
				"setPriority": "PUT /api/v1/matchmaker/suggestions/{id}/priority"
			},
			"notifications": {
				"websocket": "GET /api/v1/notifications/ws",
				"list": "GET /api/v1/notifications",
				"markRead": "PUT /api/v1/notifications/{id}/read",
				"registerPushToken": "POST /api/v1/notifications/push-token",
				"unregisterPushToken": "DELETE /api/v1/notifications/push-token"
			}
		}
	}`))
}

// loggingMiddleware logs all requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		log.Printf("→ %s %s from %s", r.Method, r.RequestURI, r.RemoteAddr)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		log.Printf("← %s %s [%d] %v", r.Method, r.RequestURI, wrapped.statusCode, time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade through the wrapper
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// corsMiddleware handles CORS. An empty origin list allows any origin.
func corsMiddleware(allowedOrigins []string) mux.MiddlewareFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := "*"
			if len(allowed) > 0 {
				origin = r.Header.Get("Origin")
				if !allowed[origin] {
					origin = ""
				}
			}
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
