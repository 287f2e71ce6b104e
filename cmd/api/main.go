package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"web3-digest-bot/internal/adapters/api"
	"web3-digest-bot/internal/adapters/crawler"
	"web3-digest-bot/internal/adapters/repo"
	"web3-digest-bot/internal/infra/config"
	"web3-digest-bot/internal/infra/db"
	infrahttp "web3-digest-bot/internal/infra/http"
	"web3-digest-bot/internal/infra/log"
	"web3-digest-bot/internal/infra/metrics"
	"web3-digest-bot/internal/usecase/filter"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv).With().Str("service", "api").Logger()

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("часовой пояс не загружен")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("подключение к Postgres не удалось")
	}
	defer pool.Close()

	repository := repo.New(pool, loc)

	catalog, err := crawler.LoadCatalog(cfg.Fetch.SourcesPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Fetch.SourcesPath).Msg("каталог источников не загружен")
	}

	handler := api.NewHandler(logger, repository, filter.New(catalog.NoiseKeywords), loc, api.Limits{
		LookbackDays: cfg.Limits.LookbackDays,
		TodayItems:   cfg.Limits.TodayItems,
		RecentItems:  cfg.Limits.RecentItems,
	})

	server := infrahttp.NewServer(logger)
	handler.Routes(server.Router)

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("API остановлен")
}
