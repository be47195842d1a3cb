package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"image-discerner/internal/app"
	"image-discerner/internal/config"
	"image-discerner/internal/db"
	httpapi "image-discerner/internal/http"
	"image-discerner/internal/logger"
	"image-discerner/internal/repository"
	"image-discerner/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	classifier, extractor, err := app.NewProviders(cfg.Vision, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up vision providers")
	}
	engine, err := app.NewEngine(cfg.Fusion)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid fusion patterns")
	}

	var store service.Store
	if cfg.Database.Enabled() {
		gdb, err := db.Open(cfg.Database.DSN, cfg.Database.AutoMigrate, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		store = repository.NewAnalysisRepository(gdb)
	} else {
		log.Warn().Msg("database.dsn is empty, analyses will not be stored")
	}

	discernService := service.NewDiscernService(store, classifier, extractor, engine, cfg.Vision.Timeout, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), httpapi.RequestLogger(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.HTTP.AllowedOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))
	httpapi.NewHandler(discernService, cfg, log).Register(router, httpapi.AuthMiddleware(cfg.Auth.JWTSecret))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if store != nil && cfg.Retention.Days > 0 && cfg.Retention.Interval > 0 {
		go runRetention(ctx, discernService, cfg.Retention, log)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().
			Str("addr", cfg.HTTP.Addr).
			Str("classifier", classifier.Name()).
			Str("text_extractor", extractor.Name()).
			Msg("image discerner listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func runRetention(ctx context.Context, svc *service.DiscernService, cfg config.RetentionConfig, log zerolog.Logger) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := svc.CleanupOldAnalyses(ctx, cfg.Days); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("retention cleanup failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
