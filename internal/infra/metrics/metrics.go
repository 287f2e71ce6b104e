package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	FetchPassSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetch_pass_seconds",
		Help:    "Длительность одного прохода по источникам",
		Buckets: prometheus.DefBuckets,
	})
	FetchPassTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fetch_pass_total",
		Help: "Количество проходов по источникам",
	})
	SourceFetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "source_fetch_errors_total",
		Help: "Ошибки опроса источников",
	}, []string{"source"})
	SourceItemsFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "source_items_fetched_total",
		Help: "Количество элементов, полученных от источников",
	}, []string{"source"})
	ItemsUpserted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "items_upserted_total",
		Help: "Количество элементов, записанных в партиции",
	})
	FilterDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "filter_dropped_total",
		Help: "Количество элементов, отброшенных фильтром",
	}, []string{"reason"})
	DigestJobsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "digest_jobs_enqueued_total",
		Help: "Количество задач на дайджест, поставленных в очередь",
	})
	ScheduleTriggersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "schedule_triggers_active",
		Help: "Текущее количество зарегистрированных триггеров",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FetchPassSeconds,
		FetchPassTotal,
		SourceFetchErrors,
		SourceItemsFetched,
		ItemsUpserted,
		FilterDropped,
		DigestJobsEnqueued,
		ScheduleTriggersActive,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
