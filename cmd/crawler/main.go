package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"web3-digest-bot/internal/adapters/crawler"
	"web3-digest-bot/internal/adapters/repo"
	"web3-digest-bot/internal/domain"
	"web3-digest-bot/internal/infra/config"
	"web3-digest-bot/internal/infra/db"
	"web3-digest-bot/internal/infra/log"
	"web3-digest-bot/internal/infra/metrics"
	"web3-digest-bot/internal/usecase/fetch"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv).With().Str("service", "crawler").Logger()

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("часовой пояс не загружен")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister(prometheus.DefaultRegisterer)
	metrics.StartServer(ctx, logger, cfg.MetricsAddr)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("подключение к Postgres не удалось")
	}
	defer pool.Close()

	repository := repo.New(pool, loc)
	if err := repository.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("схема БД не создана")
	}

	catalog, err := crawler.LoadCatalog(cfg.Fetch.SourcesPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Fetch.SourcesPath).Msg("каталог источников не загружен")
	}
	fetcher := crawler.NewFetcher(
		time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second,
		cfg.Fetch.Retries,
		cfg.Fetch.UserAgent,
	)
	crawlers, err := catalog.Build(fetcher)
	if err != nil {
		logger.Fatal().Err(err).Msg("краулеры не собраны")
	}
	logger.Info().Int("sources", len(crawlers)).Msg("каталог источников загружен")

	svc := fetch.New(
		logger,
		repository,
		repository,
		crawlers,
		func(source domain.Source) domain.Crawler {
			return crawler.NewFeedCrawler(source, fetcher)
		},
		loc,
		time.Duration(cfg.Fetch.RequestIntervalMS)*time.Millisecond,
		time.Duration(cfg.Fetch.IntervalMinutes)*time.Minute,
	)

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("цикл опроса остановлен с ошибкой")
	}
	logger.Info().Msg("краулер остановлен")
}
