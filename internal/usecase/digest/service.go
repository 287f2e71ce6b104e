package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"web3-digest-bot/internal/domain"
	"web3-digest-bot/internal/infra/metrics"
	"web3-digest-bot/internal/usecase/filter"
)

// ErrAlreadyFired возвращается, когда дайджест за этот слот уже собран.
var ErrAlreadyFired = errors.New("дайджест за этот слот уже собран")

// onceTTL подавляет повторные срабатывания одного триггера.
const onceTTL = 2 * time.Minute

// Limits задаёт пределы выборки и размера дайджеста.
type Limits struct {
	TodayItems int
	MaxEntries int
}

// Service собирает персональный дайджест и ставит задачу в очередь.
type Service struct {
	logger   zerolog.Logger
	store    domain.ItemStore
	profiles domain.ProfileRepo
	filter   *filter.Service
	queue    domain.DigestQueue
	cache    domain.Cache
	loc      *time.Location
	limits   Limits
}

// New создаёт сборщик дайджестов. Кеш опционален: без него защита
// от повторного срабатывания отключена.
func New(
	logger zerolog.Logger,
	store domain.ItemStore,
	profiles domain.ProfileRepo,
	flt *filter.Service,
	queue domain.DigestQueue,
	cache domain.Cache,
	loc *time.Location,
	limits Limits,
) *Service {
	if limits.TodayItems <= 0 {
		limits.TodayItems = 100
	}
	if limits.MaxEntries <= 0 {
		limits.MaxEntries = 10
	}
	return &Service{
		logger:   logger.With().Str("component", "digest").Logger(),
		store:    store,
		profiles: profiles,
		filter:   flt,
		queue:    queue,
		cache:    cache,
		loc:      loc,
		limits:   limits,
	}
}

// BuildAndEnqueue собирает дайджест пользователя за сегодня и ставит
// задачу в очередь. Пустой дайджест не ставится.
func (s *Service) BuildAndEnqueue(ctx context.Context, userID int64, firedAt string, cause domain.DigestJobCause) error {
	day := domain.DayOf(time.Now(), s.loc)

	if s.cache != nil && cause == domain.DigestCauseScheduled {
		key := fmt.Sprintf("digest:%d:%s:%s", userID, day.String(), firedAt)
		fired := false
		err := s.cache.Once(key, onceTTL, func() error {
			fired = true
			return s.build(ctx, userID, day, firedAt, cause)
		})
		if err != nil {
			return err
		}
		if !fired {
			return ErrAlreadyFired
		}
		return nil
	}
	return s.build(ctx, userID, day, firedAt, cause)
}

func (s *Service) build(ctx context.Context, userID int64, day domain.Day, firedAt string, cause domain.DigestJobCause) error {
	// Профиль читается в момент срабатывания, а не при регистрации триггера.
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("профиль: %w", err)
	}

	items, err := s.store.TodayItems(ctx, day, domain.CategoryNews, s.limits.TodayItems)
	if err != nil {
		return fmt.Errorf("элементы дня: %w", err)
	}

	subscribed, err := s.subscribedItems(ctx, userID, day)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("подписки пользователя недоступны")
	}
	items = append(items, subscribed...)

	scored, stats := s.filter.Apply(items, profile)
	if len(scored) == 0 {
		s.logger.Info().Int64("user_id", userID).Str("day", day.String()).Msg("дайджест пуст, задача не ставится")
		return nil
	}
	if len(scored) > s.limits.MaxEntries {
		scored = scored[:s.limits.MaxEntries]
	}

	entries := make([]domain.DigestEntry, 0, len(scored))
	for _, item := range scored {
		entries = append(entries, domain.DigestEntry{
			Title:     item.Title,
			URL:       item.URL,
			SourceID:  item.SourceID,
			EventType: item.EventType,
			Score:     item.Score,
		})
	}

	job := domain.DigestJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		FiredAt:     firedAt,
		Date:        day.String(),
		Cause:       cause,
		Entries:     entries,
		Stats:       stats,
		RequestedAt: time.Now(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("постановка задачи: %w", err)
	}
	metrics.DigestJobsEnqueued.Inc()
	s.logger.Info().
		Int64("user_id", userID).
		Str("job_id", job.ID).
		Int("entries", len(entries)).
		Msg("задача на дайджест поставлена")
	return nil
}

// subscribedItems возвращает сегодняшние элементы RSS-подписок пользователя.
// Подписки освобождены от шумового фильтра и сортируются впереди
// при равной оценке.
func (s *Service) subscribedItems(ctx context.Context, userID int64, day domain.Day) ([]domain.StoredItem, error) {
	subs, err := s.profiles.ListUserSources(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.URL)
	}
	items, err := s.store.ItemsBySources(ctx, day, domain.CategoryRSS, ids, s.limits.TodayItems)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Subscribed = true
		items[i].Rank = 0
	}
	return items, nil
}
