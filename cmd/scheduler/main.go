package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"web3-digest-bot/internal/adapters/crawler"
	"web3-digest-bot/internal/adapters/repo"
	"web3-digest-bot/internal/domain"
	"web3-digest-bot/internal/infra/cache"
	"web3-digest-bot/internal/infra/config"
	"web3-digest-bot/internal/infra/db"
	infrahttp "web3-digest-bot/internal/infra/http"
	"web3-digest-bot/internal/infra/log"
	"web3-digest-bot/internal/infra/metrics"
	"web3-digest-bot/internal/infra/queue"
	"web3-digest-bot/internal/usecase/digest"
	"web3-digest-bot/internal/usecase/filter"
	"web3-digest-bot/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv).With().Str("service", "scheduler").Logger()

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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	onceCache := cache.NewRedis(redisClient)

	jobQueue, closeQueue, err := buildQueue(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Queues.Backend).Msg("очередь задач не создана")
	}
	defer closeQueue()

	// Шумовые ключевые слова живут в каталоге источников.
	catalog, err := crawler.LoadCatalog(cfg.Fetch.SourcesPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Fetch.SourcesPath).Msg("каталог источников не загружен")
	}

	digestSvc := digest.New(
		logger,
		repository,
		repository,
		filter.New(catalog.NoiseKeywords),
		jobQueue,
		onceCache,
		loc,
		digest.Limits{TodayItems: cfg.Limits.TodayItems, MaxEntries: cfg.Limits.DigestMax},
	)

	schedSvc := schedule.New(logger, repository, loc, func(userID int64, firedAt string) {
		fireCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := digestSvc.BuildAndEnqueue(fireCtx, userID, firedAt, domain.DigestCauseScheduled)
		if err != nil && !errors.Is(err, digest.ErrAlreadyFired) {
			logger.Error().Err(err).Int64("user_id", userID).Msg("дайджест по расписанию не собран")
		}
	})
	if err := schedSvc.Bootstrap(ctx); err != nil {
		logger.Fatal().Err(err).Msg("планировщик не запущен")
	}
	defer schedSvc.Stop()

	server := infrahttp.NewServer(logger)
	server.Router.Post("/internal/schedule/refresh/{userID}", func(w http.ResponseWriter, r *http.Request) {
		userID, err := parseUserID(chi.URLParam(r, "userID"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := schedSvc.Refresh(r.Context(), userID); err != nil {
			logger.Error().Err(err).Int64("user_id", userID).Msg("триггеры не обновлены")
			http.Error(w, "триггеры не обновлены", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	server.Router.Post("/internal/digest/{userID}", func(w http.ResponseWriter, r *http.Request) {
		userID, err := parseUserID(chi.URLParam(r, "userID"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		firedAt := time.Now().In(loc).Format("15:04")
		if err := digestSvc.BuildAndEnqueue(r.Context(), userID, firedAt, domain.DigestCauseManual); err != nil {
			logger.Error().Err(err).Int64("user_id", userID).Msg("дайджест по запросу не собран")
			http.Error(w, "дайджест не собран", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("планировщик остановлен")
}

func buildQueue(cfg config.AppConfig, redisClient *redis.Client) (domain.DigestQueue, func(), error) {
	switch strings.ToLower(cfg.Queues.Backend) {
	case "rabbitmq", "rabbit", "amqp":
		q, err := queue.NewRabbitDigestQueue(cfg.AMQP.URL, cfg.Queues.Digest)
		if err != nil {
			return nil, nil, err
		}
		return q, func() { _ = q.Close() }, nil
	case "redis", "":
		return queue.NewRedisDigestQueue(redisClient, cfg.Queues.Digest), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("неизвестный бэкенд очереди %q", cfg.Queues.Backend)
	}
}

func parseUserID(raw string) (int64, error) {
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, errors.New("некорректный идентификатор пользователя")
	}
	return userID, nil
}
