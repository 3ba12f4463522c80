package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/clemgrim/veillee/internal/auth"
	"github.com/clemgrim/veillee/internal/config"
	"github.com/clemgrim/veillee/internal/handler"
	"github.com/clemgrim/veillee/internal/logger"
	"github.com/clemgrim/veillee/internal/middleware"
	"github.com/clemgrim/veillee/internal/repository/postgres"
	redisrepo "github.com/clemgrim/veillee/internal/repository/redis"
	"github.com/clemgrim/veillee/internal/service"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("databaseURL", cfg.DatabaseURL).Msg("Config loaded")

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Enable Redis keyspace notifications for timer expiry events.
	if err := redisClient.Underlying().ConfigSet(context.Background(), "notify-keyspace-events", "Ex").Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications (timer expiry may not work)")
	}

	// Repos
	userRepo := postgres.NewUserRepo(db)
	gameRepo := postgres.NewGameRepo(db)
	roundRepo := postgres.NewRoundRepo(db)
	duelRepo := postgres.NewDuelRepo(db)
	riverRepo := postgres.NewRiverRepo(db)
	auditRepo := postgres.NewAuditRepo(db)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	googleOAuth := auth.NewGoogleOAuth(
		os.Getenv("GOOGLE_CLIENT_ID"),
		os.Getenv("GOOGLE_CLIENT_SECRET"),
		os.Getenv("GOOGLE_REDIRECT_URL"),
	)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	gameSvc := service.NewGameService(gameRepo, userRepo, riverRepo, redisClient, wsHub)
	roundSvc := service.NewRoundService(gameRepo, roundRepo, duelRepo, riverRepo, auditRepo, redisClient, wsHub)
	subSvc := service.NewSubmissionService(gameRepo, duelRepo, redisClient, wsHub)
	autoCtrl := service.NewAutoController(roundSvc, redisClient)
	subSvc.SetEarlyResolver(autoCtrl)

	// Timer listener (resolve on countdown expiry)
	timerListener := service.NewTimerListener(redisClient.Underlying(), autoCtrl, gameRepo, redisClient)

	// Handlers
	authHandler := handler.NewAuthHandler(googleOAuth, jwtMgr, userRepo)
	userHandler := handler.NewUserHandler(userRepo)
	gameHandler := handler.NewGameHandler(gameSvc, roundSvc, subSvc, autoCtrl)
	subHandler := handler.NewSubmissionHandler(subSvc)
	roundHandler := handler.NewRoundHandler(gameSvc, roundSvc)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health and metrics
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	// Auth (public)
	mux.HandleFunc("GET /auth/google/login", authHandler.GoogleLogin)
	mux.HandleFunc("GET /auth/google/callback", authHandler.GoogleCallback)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)
	mux.HandleFunc("GET /auth/dev", authHandler.DevLogin)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /users/me", userHandler.GetMe)
	api.HandleFunc("PATCH /users/me", userHandler.UpdateMe)
	api.HandleFunc("GET /users/{id}", userHandler.GetUser)

	api.HandleFunc("POST /games", gameHandler.CreateGame)
	api.HandleFunc("GET /games", gameHandler.ListGames)
	api.HandleFunc("GET /games/{id}", gameHandler.GetGame)
	api.HandleFunc("POST /games/{id}/join", gameHandler.JoinGame)
	api.HandleFunc("POST /games/{id}/bots", gameHandler.AddBot)
	api.HandleFunc("DELETE /games/{id}/players/{seat}", gameHandler.KickPlayer)
	api.HandleFunc("POST /games/{id}/start", gameHandler.StartGame)
	api.HandleFunc("POST /games/{id}/step", gameHandler.AdvanceStep)
	api.HandleFunc("POST /games/{id}/stop", gameHandler.StopGame)
	api.HandleFunc("DELETE /games/{id}", gameHandler.DeleteGame)
	api.HandleFunc("PUT /games/{id}/auto", gameHandler.SetAutoMode)
	api.HandleFunc("POST /games/{id}/unlock", gameHandler.ForceUnlock)

	api.HandleFunc("POST /games/{id}/submissions/{category}", subHandler.Submit)
	api.HandleFunc("POST /games/{id}/ready", subHandler.Ready)
	api.HandleFunc("POST /games/{id}/unready", subHandler.Unready)

	api.HandleFunc("POST /games/{id}/resolve/bets", roundHandler.CloseBets)
	api.HandleFunc("POST /games/{id}/resolve/positions", roundHandler.PublishPositions)
	api.HandleFunc("POST /games/{id}/resolve/combat", roundHandler.ResolveCombat)
	api.HandleFunc("POST /games/{id}/resolve/shop", roundHandler.ResolveShop)
	api.HandleFunc("POST /games/{id}/resolve/river", roundHandler.ResolveRiver)
	api.HandleFunc("POST /games/{id}/duels/pair", roundHandler.PairDuels)
	api.HandleFunc("POST /games/{id}/duels/{duelId}/resolve", roundHandler.ResolveDuel)

	api.HandleFunc("GET /games/{id}/ranking", roundHandler.GetRanking)
	api.HandleFunc("GET /games/{id}/positions", roundHandler.GetPositions)
	api.HandleFunc("GET /games/{id}/purchases", roundHandler.GetPurchases)
	api.HandleFunc("GET /games/{id}/duels", roundHandler.GetDuels)
	api.HandleFunc("GET /games/{id}/river", roundHandler.GetRiverState)
	api.HandleFunc("GET /games/{id}/inventory/{seat}", roundHandler.GetInventory)
	api.HandleFunc("GET /games/{id}/audit", roundHandler.GetAuditLog)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Logger, middleware.CORS(cfg.AllowedOrigins), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start timer listener
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go timerListener.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
