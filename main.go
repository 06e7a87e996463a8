package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/battlerecorder/api/rest"
	"github.com/kasuganosora/battlerecorder/api/sse"
	apows "github.com/kasuganosora/battlerecorder/api/ws"
	"github.com/kasuganosora/battlerecorder/broadcast"
	"github.com/kasuganosora/battlerecorder/cache"
	"github.com/kasuganosora/battlerecorder/config"
	dbadapter "github.com/kasuganosora/battlerecorder/db"
	"github.com/kasuganosora/battlerecorder/game/battle"
	"github.com/kasuganosora/battlerecorder/game/export"
	mw "github.com/kasuganosora/battlerecorder/middleware"
	"github.com/kasuganosora/battlerecorder/model"
	"github.com/kasuganosora/battlerecorder/plugin/hook"
	"github.com/kasuganosora/battlerecorder/record"
	"github.com/kasuganosora/battlerecorder/resource"
	"github.com/kasuganosora/battlerecorder/scheduler"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Stdout, os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		return
	}

	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		if len(os.Args) > 1 {
			log.Fatalf("config: %v", err)
		}
		cfg = config.Default()
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if err != nil {
		logger.Warn("config file not loaded; using defaults", zap.String("path", cfgPath), zap.Error(err))
	}
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	if cfg.Security.IngestSecret == "" {
		logger.Warn("security.ingest_secret is not set; ingest endpoints accept any client")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache / PubSub ----
	cacheConfig := cache.Config{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer c.Close()
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	defer pubsub.Close()
	logger.Info("Cache initialized")

	// ---- Hooks ----
	hooks := hook.NewCenter()
	broadcast.Suppress(hooks, cfg.Broadcast.Suppress)

	// ---- Battle records ----
	records := record.New(db, c, logger, record.Options{})
	records.Register(hooks)

	// ---- Engine ----
	modes := resource.LoadBattleModesOrEmpty(cfg.Telemetry.BattleModesPath, logger)
	recorder := export.NewRecorder(export.RecorderConfig{
		SummaryDir: cfg.Telemetry.SummaryDir,
		Version:    config.Version,
		Hooks:      hooks,
		Logger:     logger,
	})
	sink := broadcast.NewSink(broadcast.Config{
		PubSub:  pubsub,
		Channel: cfg.Broadcast.Channel,
		Hooks:   hooks,
		Logger:  logger,
	})
	engine := battle.NewEngine(battle.EngineConfig{
		Classifier: battle.NewClassifier(modes),
		Sink:       sink,
		Finalizer:  recorder,
		Logger:     logger,
	})

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	if cfg.Telemetry.AutoExport {
		auto := export.NewAutoExporter(recorder, cfg.Telemetry.ExportDir, cfg.Telemetry.ExportPrefix,
			cfg.Telemetry.DateFolders, logger)
		sched.AddTicker("auto_export", cfg.Telemetry.AutoExportInterval, func(ctx context.Context) error {
			_, err := auto.Run(ctx)
			return err
		})
	}

	// ---- Subscribers ----
	hub := apows.NewHub(sink, config.Version, logger)
	wsH := apows.NewHandler(hub, apows.NewEventRouter(engine, logger),
		cfg.Security.AllowedOrigins, cfg.Broadcast.SubscriberBuf, logger)
	sseH := sse.NewHandler(sink, config.Version, logger)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger, "/health"), mw.Recovery(logger))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ingestAuth := []gin.HandlerFunc{mw.IPWhitelist(cfg.Security.AllowedIPs), mw.IngestAuth(cfg.Security.IngestSecret)}

	battleH := apirest.NewBattleHandler(engine, recorder, apirest.ExportSettings{
		Dir:         cfg.Telemetry.ExportDir,
		Prefix:      cfg.Telemetry.ExportPrefix,
		DateFolders: cfg.Telemetry.DateFolders,
	}, logger)
	ingestH := apirest.NewIngestHandler(engine, logger)
	summaryH := apirest.NewSummaryHandler(records, logger)
	adminH := apirest.NewAdminHandler(engine, sink, sched, hub, sseH)

	api := r.Group("/api")
	api.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))
	{
		api.GET("/battle", battleH.View)
		api.GET("/battle/history", battleH.History)
		api.GET("/battle/export", battleH.Download)
		api.POST("/battle/export", battleH.Save)
		api.GET("/battle/prepared", battleH.Prepared)

		api.POST("/ingest", append(ingestAuth, ingestH.Ingest)...)

		api.GET("/summaries", summaryH.List)
		api.GET("/summaries/top", summaryH.Top)
		api.GET("/summaries/latest", summaryH.Latest)

		adminG := api.Group("/admin")
		adminG.Use(mw.AdminKey(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
	}

	// ---- WebSocket / SSE ----
	r.GET("/ws", wsH.ServeWS)
	r.GET("/ingest", append(ingestAuth, wsH.ServeIngest)...)
	r.GET("/sse", sseH.ServeSSE)

	// ---- Run ----
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		logger.Info("Server listening", zap.String("addr", srv.Addr), zap.String("version", config.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
	sched.Stop()
	records.Stop(context.Background())
	logger.Info("Server stopped")
}
