package schedule

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"web3-digest-bot/internal/domain"
	"web3-digest-bot/internal/infra/metrics"
)

const (
	minBriefCount  = 1
	maxBriefCount  = 6
	firstBriefHour = 9
	lastBriefHour  = 21
)

// BriefTimes выводит времена рассылки из профиля. Явно заданные
// валидные времена имеют приоритет; иначе времена распределяются
// равномерно между 9:00 и 21:00 по количеству рассылок.
func BriefTimes(profile domain.UserProfile) []string {
	count := profile.BriefCount
	if count < minBriefCount {
		count = minBriefCount
	}
	if count > maxBriefCount {
		count = maxBriefCount
	}

	valid := make([]string, 0, len(profile.BriefTimes))
	seen := make(map[string]struct{})
	for _, raw := range profile.BriefTimes {
		clock, ok := parseClock(raw)
		if !ok {
			continue
		}
		if _, dup := seen[clock]; dup {
			continue
		}
		seen[clock] = struct{}{}
		valid = append(valid, clock)
	}
	if len(valid) > 0 {
		sort.Strings(valid)
		// Явный список усекается только явно заданным количеством.
		if profile.BriefCount > 0 && len(valid) > count {
			valid = valid[:count]
		}
		return valid
	}

	if count == 1 {
		if clock, ok := parseClock(profile.DailyTime); ok {
			return []string{clock}
		}
		return []string{"09:00"}
	}

	span := float64(lastBriefHour - firstBriefHour)
	step := span / float64(count-1)
	times := make([]string, 0, count)
	for i := 0; i < count; i++ {
		hour := int(math.Round(float64(firstBriefHour) + float64(i)*step))
		times = append(times, fmt.Sprintf("%02d:00", hour))
	}
	return times
}

// parseClock разбирает время вида HH:MM и нормализует его.
func parseClock(raw string) (string, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return "", false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// TriggerFunc вызывается при срабатывании триггера рассылки.
type TriggerFunc func(userID int64, firedAt string)

// Service держит cron-триггеры рассылок по пользователям.
type Service struct {
	logger   zerolog.Logger
	profiles domain.ProfileRepo
	cron     *cron.Cron
	fire     TriggerFunc

	mu      sync.Mutex
	entries map[int64][]cron.EntryID
	times   map[int64][]string
}

// New создаёт планировщик в указанном часовом поясе.
func New(logger zerolog.Logger, profiles domain.ProfileRepo, loc *time.Location, fire TriggerFunc) *Service {
	return &Service{
		logger:   logger.With().Str("component", "schedule").Logger(),
		profiles: profiles,
		cron:     cron.New(cron.WithLocation(loc)),
		fire:     fire,
		entries:  make(map[int64][]cron.EntryID),
		times:    make(map[int64][]string),
	}
}

// Bootstrap регистрирует триггеры всех известных пользователей и
// запускает планировщик.
func (s *Service) Bootstrap(ctx context.Context) error {
	ids, err := s.profiles.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("список пользователей: %w", err)
	}
	for _, id := range ids {
		if err := s.Refresh(ctx, id); err != nil {
			s.logger.Error().Err(err).Int64("user_id", id).Msg("триггеры пользователя не зарегистрированы")
		}
	}
	s.cron.Start()
	s.logger.Info().Int("users", len(ids)).Msg("планировщик запущен")
	return nil
}

// Refresh перечитывает профиль пользователя и пересоздаёт его триггеры.
// Вызывается при изменении профиля внешним коллаборатором.
func (s *Service) Refresh(ctx context.Context, userID int64) error {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("профиль пользователя %d: %w", userID, err)
	}
	return s.SetTriggers(userID, BriefTimes(profile))
}

// SetTriggers заменяет триггеры пользователя на новые времена.
func (s *Service) SetTriggers(userID int64, times []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.entries[userID] {
		s.cron.Remove(id)
	}
	delete(s.entries, userID)
	delete(s.times, userID)

	ids := make([]cron.EntryID, 0, len(times))
	registered := make([]string, 0, len(times))
	for _, clock := range times {
		clock, ok := parseClock(clock)
		if !ok {
			continue
		}
		firedAt := clock
		spec := fmt.Sprintf("%s %s * * *", clock[3:], clock[:2])
		id, err := s.cron.AddFunc(spec, func() {
			s.fire(userID, firedAt)
		})
		if err != nil {
			return fmt.Errorf("регистрация триггера %q: %w", clock, err)
		}
		ids = append(ids, id)
		registered = append(registered, firedAt)
	}
	if len(ids) > 0 {
		s.entries[userID] = ids
		s.times[userID] = registered
	}
	s.updateGaugeLocked()
	s.logger.Info().Int64("user_id", userID).Strs("times", registered).Msg("триггеры обновлены")
	return nil
}

// ActiveTriggers возвращает времена зарегистрированных триггеров пользователя.
func (s *Service) ActiveTriggers(userID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	times := make([]string, len(s.times[userID]))
	copy(times, s.times[userID])
	return times
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Service) updateGaugeLocked() {
	total := 0
	for _, ids := range s.entries {
		total += len(ids)
	}
	metrics.ScheduleTriggersActive.Set(float64(total))
}
