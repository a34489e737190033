package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"postergen/internal/http/handlers"
	httpapi "postergen/internal/http/httpapi"
	"postergen/internal/imagenorm"
	"postergen/internal/infra"
	"postergen/internal/infra/geoip"
	"postergen/internal/pipeline"
	"postergen/internal/providers/dify"
	"postergen/internal/session"
)

func main() {
	// Muat .env (opsional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := dify.NewClient(dify.Options{
		APIKey:        cfg.DifyAPIKey,
		BaseURL:       cfg.DifyBaseURL,
		User:          cfg.DifyUser,
		CategoryField: cfg.DifyCategoryField,
		ImageField:    cfg.DifyImageField,
		OutputField:   cfg.DifyOutputField,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build dify client")
	}
	normalizer := imagenorm.New(imagenorm.Options{
		MaxSide: cfg.ImageMaxSide,
		Quality: cfg.ImageJPEGQuality,
		Logger:  &logger,
	})

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	sessions := session.NewManager(session.Options{
		TTL:    cfg.SessionTTL,
		Logger: &logger,
		Factory: func() *pipeline.Pipeline {
			return pipeline.New(pipeline.Options{
				Normalizer:       normalizer,
				Uploader:         client,
				Runner:           client,
				NormalizeTimeout: cfg.NormalizeTimeout,
				UploadTimeout:    cfg.UploadTimeout,
				GenerateTimeout:  cfg.GenerateTimeout,
				Logger:           &logger,
			})
		},
	})
	defer sessions.Close()
	go sessions.RunSweeper(ctx, 0)

	app := handlers.NewApp(sessions, handlers.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         &logger,
	})
	router := httpapi.NewRouter(app, cfg, resolver.Lookup())
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Int("max_side", normalizer.MaxSide()).
			Dur("session_ttl", sessions.TTL()).
			Msg("API listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
