package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/portfolioxray/backend/src/config"
	"github.com/username/portfolioxray/backend/src/database"
	"github.com/username/portfolioxray/backend/src/handlers"
	"github.com/username/portfolioxray/backend/src/ingestion"
	"github.com/username/portfolioxray/backend/src/logger"
	"github.com/username/portfolioxray/backend/src/mappings"
	"github.com/username/portfolioxray/backend/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("PortfolioXray backend server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing result cache...")
	resultCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)
	logger.L.Info("Result cache initialized.")

	logger.L.Info("Initializing services and handlers...")
	schema := ingestion.DefaultSchema()
	extractor := ingestion.NewExtractor(schema, config.Cfg.CostBasisEstimateFactor)
	mappingStore := mappings.NewStore(database.DB, schema)

	ingestionService := services.NewIngestionService(
		schema, extractor, mappingStore, resultCache,
		config.Cfg.IngestWorkers, config.Cfg.ConfidenceThreshold,
	)
	analyticsService := services.NewAnalyticsService(resultCache)

	uploadHandler := handlers.NewUploadHandler(ingestionService)
	mappingHandler := handlers.NewMappingHandler(mappingStore)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)
	crudHandler := handlers.NewCrudHandler()

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("POST /api/upload", uploadHandler.HandleUpload)
	apiRouter.HandleFunc("GET /api/upload/latest", uploadHandler.HandleGetLatestBatch)

	apiRouter.HandleFunc("GET /api/mappings", mappingHandler.HandleGetMapping)
	apiRouter.HandleFunc("POST /api/mappings/resolve", mappingHandler.HandleResolveMapping)
	apiRouter.HandleFunc("PUT /api/mappings", mappingHandler.HandleSaveMapping)

	apiRouter.HandleFunc("GET /api/portfolio/analytics", analyticsHandler.HandleGetAnalytics)

	apiRouter.HandleFunc("POST /api/clients", crudHandler.HandleCreateClient)
	apiRouter.HandleFunc("GET /api/clients", crudHandler.HandleListClients)
	apiRouter.HandleFunc("POST /api/accounts", crudHandler.HandleCreateAccount)
	apiRouter.HandleFunc("GET /api/accounts", crudHandler.HandleListAccounts)
	apiRouter.HandleFunc("GET /api/batches", crudHandler.HandleListBatches)

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "PortfolioXray Backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
