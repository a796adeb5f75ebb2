package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"casino-originals/internal/catalog"
	"casino-originals/internal/config"
	"casino-originals/internal/crash"
	"casino-originals/internal/handlers"
	"casino-originals/internal/logger"
	"casino-originals/internal/metrics"
	"casino-originals/internal/middleware"
	"casino-originals/internal/recorder"
	"casino-originals/internal/services"
)

// house seeds behind crash rounds are revealed after this long
const houseSeedAge = 24 * time.Hour

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	games, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	rec, err := recorder.Open(ctx, cfg.DBType, cfg.DBConn)
	if err != nil {
		return err
	}
	defer rec.Close()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	zl.Info("stores ready", zap.String("store", cfg.Store), zap.String("db", cfg.DBType))

	house, err := services.NewHouseSeed(houseSeedAge)
	if err != nil {
		return err
	}

	crashEngine := crash.NewEngine(crash.Config{
		Wait:     cfg.CrashWait,
		Cooldown: cfg.CrashCooldown,
		Tick:     cfg.CrashTick,
		History:  crash.DefaultConfig().History,
	}, crash.FairPoints(house.Seed), crash.WithLogger(zl.Named("crash")))

	hub := handlers.NewWebSocketHub(zl.Named("ws"))

	gameEngine := services.NewGameEngine(services.Deps{
		Store:         store,
		Catalog:       games,
		Recorder:      rec,
		Crash:         crashEngine,
		House:         house,
		Broadcaster:   hub,
		Logger:        zl.Named("game"),
		MaxBet:        cfg.MaxBet,
		RateLimitBets: cfg.RateLimitBets,
	})
	seeds := services.NewSeedManager(store, store)
	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTTTL)

	var workers sync.WaitGroup
	engineCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()

	workers.Add(3)
	go func() {
		defer workers.Done()
		hub.Run(engineCtx)
	}()
	go func() {
		defer workers.Done()
		crashEngine.Run(engineCtx)
		// shutdown refunds are queued by now
		gameEngine.CloseSettlements()
	}()
	go func() {
		defer workers.Done()
		// not tied to engineCtx so the final refunds still reach the ledger
		gameEngine.RunSettlements(context.Background())
	}()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(logger.Recovery(zl), logger.Gin(zl), metrics.Middleware(), cors())

	router.GET("/health", func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "details": err.Error()})
			return
		}
		if err := rec.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "crash": crashEngine.Snapshot().Round.State})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	routes(router, routeDeps{
		cfg:      cfg,
		store:    store,
		jwt:      jwtService,
		game:     handlers.NewGameHandler(gameEngine, store, rec, games),
		user:     handlers.NewUserHandler(store, jwtService, rec, zl.Named("user")),
		fairness: handlers.NewFairnessHandler(seeds, house),
		ws:       handlers.NewWebSocketHandler(hub, store, gameEngine.CrashState),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		zl.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			stopEngine()
			workers.Wait()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown", zap.Error(err))
	}

	stopEngine()
	workers.Wait()
	zl.Info("shutdown complete")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (services.Store, error) {
	if cfg.Store == "memory" {
		return services.NewCacheStore(cfg.StartBalance), nil
	}
	rs, err := services.NewRedisService(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

type routeDeps struct {
	cfg      *config.Config
	store    services.Store
	jwt      *services.JWTService
	game     *handlers.GameHandler
	user     *handlers.UserHandler
	fairness *handlers.FairnessHandler
	ws       *handlers.WebSocketHandler
}

func routes(router *gin.Engine, d routeDeps) {
	router.POST("/auth/guest", d.user.GuestLogin)

	catalogRoutes := router.Group("/api/games")
	{
		catalogRoutes.GET("", d.game.ListGames)
		catalogRoutes.GET("/:id", d.game.GetGame)
		catalogRoutes.GET("/category/:category", d.game.GamesByCategory)
	}

	protected := router.Group("/api")
	protected.Use(
		middleware.AuthMiddleware(d.jwt),
		middleware.RateLimitMiddleware(d.store, "api", 20*d.cfg.RateLimitBets, time.Minute),
	)
	{
		protected.GET("/me", d.user.GetCurrentUser)
		protected.GET("/balance", d.game.GetBalance)
		protected.GET("/transactions", d.game.GetTransactions)
		protected.GET("/history", d.game.GetGameHistory)
		protected.GET("/active", d.game.GetActiveGames)
		protected.GET("/live/sessions", d.game.GetLiveSessions)

		protected.GET("/ws", d.ws.HandleWebSocket)

		protected.POST("/bet/place", d.game.PlaceBet)

		mines := protected.Group("/mines")
		{
			mines.POST("/start", d.game.StartMines)
			mines.POST("/reveal", d.game.RevealMine)
			mines.POST("/cashout", d.game.CashoutMines)
			mines.GET("/:id", d.game.GetMinesGame)
		}

		crashRoutes := protected.Group("/crash")
		{
			crashRoutes.GET("/state", d.game.GetCrashState)
			crashRoutes.POST("/bet", d.game.PlaceCrashBet)
			crashRoutes.POST("/cashout", d.game.CashoutCrash)
		}

		fairness := protected.Group("/fairness")
		{
			fairness.GET("", d.fairness.GetFairness)
			fairness.POST("/client-seed", d.fairness.SetClientSeed)
			fairness.POST("/rotate", d.fairness.RotateSeed)
			fairness.POST("/verify", d.fairness.Verify)
		}
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
