package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"web3-digest-bot/internal/domain"
	"web3-digest-bot/internal/infra/metrics"
)

// FeedFactory строит краулер для пользовательской RSS-подписки.
type FeedFactory func(source domain.Source) domain.Crawler

// Service — оркестратор опроса: последовательный проход по каталогу
// источников и пользовательским подпискам с фиксированным темпом.
type Service struct {
	logger   zerolog.Logger
	store    domain.ItemStore
	profiles domain.ProfileRepo
	catalog  []domain.Crawler
	feeds    FeedFactory
	loc      *time.Location
	pace     time.Duration
	interval time.Duration
}

// New создаёт оркестратор.
func New(
	logger zerolog.Logger,
	store domain.ItemStore,
	profiles domain.ProfileRepo,
	catalog []domain.Crawler,
	feeds FeedFactory,
	loc *time.Location,
	pace, interval time.Duration,
) *Service {
	return &Service{
		logger:   logger.With().Str("component", "fetch").Logger(),
		store:    store,
		profiles: profiles,
		catalog:  catalog,
		feeds:    feeds,
		loc:      loc,
		pace:     pace,
		interval: interval,
	}
}

// Run запускает бесконечный цикл опроса. Ошибки прохода логируются,
// цикл продолжается до отмены контекста.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		pass, err := s.RunPass(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("проход по источникам не завершён")
		} else {
			s.logger.Info().
				Str("pass_id", pass.ID).
				Str("day", pass.Day.String()).
				Int("items", pass.TotalItems()).
				Int("failed_sources", len(pass.FailedIDs)).
				Msg("проход по источникам завершён")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunPass выполняет один проход: каталог плюс уникальные URL подписок.
// Сбой одного источника не прерывает проход.
func (s *Service) RunPass(ctx context.Context) (domain.FetchPass, error) {
	started := time.Now()
	pass := domain.FetchPass{
		ID:        uuid.NewString(),
		Day:       domain.DayOf(started, s.loc),
		StartedAt: started,
		Items:     make(map[string][]domain.Item),
	}

	crawlers := make([]domain.Crawler, 0, len(s.catalog))
	crawlers = append(crawlers, s.catalog...)
	feedCrawlers, err := s.subscriptionCrawlers(ctx)
	if err != nil {
		// Подписки недоступны: каталог всё равно опрашиваем.
		s.logger.Warn().Err(err).Msg("подписки пользователей недоступны")
	}
	crawlers = append(crawlers, feedCrawlers...)

	for i, cr := range crawlers {
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				return pass, err
			}
		}
		s.crawlOne(ctx, cr, &pass)
	}

	metrics.FetchPassTotal.Inc()
	metrics.FetchPassSeconds.Observe(time.Since(started).Seconds())
	return pass, nil
}

// subscriptionCrawlers строит краулеры для уникальных URL подписок.
func (s *Service) subscriptionCrawlers(ctx context.Context) ([]domain.Crawler, error) {
	subs, err := s.profiles.ListAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("список подписок: %w", err)
	}
	crawlers := make([]domain.Crawler, 0, len(subs))
	for _, sub := range subs {
		name := sub.Name
		if name == "" {
			name = sub.URL
		}
		crawlers = append(crawlers, s.feeds(domain.Source{
			ID:       sub.URL,
			Name:     name,
			URL:      sub.URL,
			Kind:     domain.SourceKindFeed,
			Category: domain.CategoryRSS,
			MaxItems: 20,
		}))
	}
	return crawlers, nil
}

func (s *Service) crawlOne(ctx context.Context, cr domain.Crawler, pass *domain.FetchPass) {
	source := cr.Source()
	stamp := time.Now().In(s.loc).Format("15:04")
	status := domain.SourceStatus{
		SourceID:  source.ID,
		Name:      source.Name,
		URL:       source.URL,
		LastFetch: stamp,
		Status:    domain.FetchStatusSuccess,
	}

	items, err := safeCrawl(ctx, cr, source.MaxItems)
	if err != nil {
		s.logger.Error().Err(err).Str("source", source.ID).Msg("источник не опрошен")
		metrics.SourceFetchErrors.WithLabelValues(source.ID).Inc()
		s.markFailed(ctx, pass, source, status)
		return
	}

	// Элементы сохраняются раньше статуса: успешный статус не должен
	// указывать на партицию без данных.
	if err := s.store.UpsertItems(ctx, pass.Day, source.Category, items); err != nil {
		s.logger.Error().Err(err).Str("source", source.ID).Msg("элементы источника не сохранены")
		s.markFailed(ctx, pass, source, status)
		return
	}

	status.ItemCount = len(items)
	if err := s.store.UpsertSourceStatus(ctx, pass.Day, source.Category, status); err != nil {
		s.logger.Error().Err(err).Str("source", source.ID).Msg("статус источника не сохранён")
	}

	metrics.SourceItemsFetched.WithLabelValues(source.ID).Add(float64(len(items)))
	pass.Items[source.ID] = items
}

func (s *Service) markFailed(ctx context.Context, pass *domain.FetchPass, source domain.Source, status domain.SourceStatus) {
	pass.FailedIDs = append(pass.FailedIDs, source.ID)
	status.Status = domain.FetchStatusFailed
	status.ItemCount = 0
	if err := s.store.UpsertSourceStatus(ctx, pass.Day, source.Category, status); err != nil {
		s.logger.Error().Err(err).Str("source", source.ID).Msg("статус источника не сохранён")
	}
}

// pause выдерживает темп между источниками с джиттером ±0.5 секунды.
func (s *Service) pause(ctx context.Context) error {
	if s.pace <= 0 {
		return nil
	}
	jitter := time.Duration((rand.Float64() - 0.5) * float64(time.Second))
	delay := s.pace + jitter
	if delay < 0 {
		delay = 0
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// safeCrawl не выпускает панику краулера за границу источника.
func safeCrawl(ctx context.Context, cr domain.Crawler, maxItems int) (items []domain.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = fmt.Errorf("паника краулера: %v", r)
		}
	}()
	return cr.Crawl(ctx, maxItems)
}
