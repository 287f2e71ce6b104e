package digest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"web3-digest-bot/internal/domain"
	"web3-digest-bot/internal/usecase/filter"
)

type stubStore struct {
	today    []domain.StoredItem
	bySource []domain.StoredItem
	err      error
}

func (s *stubStore) UpsertItems(context.Context, domain.Day, domain.Category, []domain.Item) error {
	return nil
}

func (s *stubStore) UpsertSourceStatus(context.Context, domain.Day, domain.Category, domain.SourceStatus) error {
	return nil
}

func (s *stubStore) TodayItems(context.Context, domain.Day, domain.Category, int) ([]domain.StoredItem, error) {
	return s.today, s.err
}

func (s *stubStore) RecentItems(context.Context, domain.Day, domain.Category, int, int) ([]domain.StoredItem, error) {
	return nil, nil
}

func (s *stubStore) ItemsBySources(context.Context, domain.Day, domain.Category, []string, int) ([]domain.StoredItem, error) {
	return s.bySource, nil
}

func (s *stubStore) SourceStatuses(context.Context, domain.Day, domain.Category) ([]domain.SourceStatus, error) {
	return nil, nil
}

type stubProfiles struct {
	profile domain.UserProfile
	sources []domain.UserSource
}

func (s *stubProfiles) GetProfile(context.Context, int64) (domain.UserProfile, error) {
	return s.profile, nil
}

func (s *stubProfiles) ListUserIDs(context.Context) ([]int64, error) { return nil, nil }

func (s *stubProfiles) ListUserSources(context.Context, int64) ([]domain.UserSource, error) {
	return s.sources, nil
}

func (s *stubProfiles) ListAllSources(context.Context) ([]domain.UserSource, error) {
	return nil, nil
}

type stubQueue struct {
	jobs []domain.DigestJob
	err  error
}

func (q *stubQueue) Enqueue(_ context.Context, job domain.DigestJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *stubQueue) Pop(context.Context) (domain.DigestJob, error) {
	return domain.DigestJob{}, errors.New("не используется")
}

type stubCache struct {
	keys map[string]struct{}
}

func (c *stubCache) Once(key string, _ time.Duration, fn func() error) error {
	if _, ok := c.keys[key]; ok {
		return nil
	}
	if c.keys == nil {
		c.keys = make(map[string]struct{})
	}
	c.keys[key] = struct{}{}
	return fn()
}

func (c *stubCache) Set(string, []byte, time.Duration) error { return nil }

func (c *stubCache) Get(string) ([]byte, error) { return nil, errors.New("нет значения") }

func storedItem(title, sourceID string, rank int) domain.StoredItem {
	return domain.StoredItem{Item: domain.Item{
		Title:    title,
		URL:      "https://" + sourceID + ".example/" + title,
		SourceID: sourceID,
		Rank:     rank,
	}}
}

func newDigestService(store *stubStore, profiles *stubProfiles, queue *stubQueue, cache domain.Cache, maxEntries int) *Service {
	return New(zerolog.Nop(), store, profiles, filter.New(nil), queue, cache, time.UTC, Limits{TodayItems: 100, MaxEntries: maxEntries})
}

func TestBuildAndEnqueueFiltersAndRanks(t *testing.T) {
	store := &stubStore{
		today: []domain.StoredItem{
			storedItem("Weekly digest", "news1", 1),
			storedItem("Protocol hacked for $10M", "news2", 2),
			storedItem("空投教程：免费领取白名单", "news3", 3),
		},
		bySource: []domain.StoredItem{
			storedItem("Запись из подписки", "https://blog.example/rss", 4),
		},
	}
	profiles := &stubProfiles{
		profile: domain.DefaultProfile(),
		sources: []domain.UserSource{{UserID: 1, URL: "https://blog.example/rss"}},
	}
	queue := &stubQueue{}
	svc := newDigestService(store, profiles, queue, nil, 10)

	if err := svc.BuildAndEnqueue(context.Background(), 1, "09:00", domain.DigestCauseManual); err != nil {
		t.Fatalf("дайджест не собран: %v", err)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("ожидалась одна задача, получено %d", len(queue.jobs))
	}

	job := queue.jobs[0]
	if job.UserID != 1 || job.FiredAt != "09:00" || job.Cause != domain.DigestCauseManual {
		t.Fatalf("метаданные задачи неверны: %+v", job)
	}
	if job.ID == "" || job.Date == "" {
		t.Fatalf("идентификатор или дата не заполнены: %+v", job)
	}
	// Шумовой элемент отброшен, подписка впереди всех.
	if len(job.Entries) != 3 {
		t.Fatalf("ожидалось 3 позиции, получено %d", len(job.Entries))
	}
	if job.Entries[0].Title != "Запись из подписки" || job.Entries[0].Score != 100 {
		t.Fatalf("подписка должна быть первой: %+v", job.Entries[0])
	}
	if job.Entries[1].Title != "Protocol hacked for $10M" || job.Entries[1].EventType != "security" {
		t.Fatalf("классификация потеряна: %+v", job.Entries[1])
	}
	if job.Stats.Total != 4 || job.Stats.Kept != 3 || job.Stats.DroppedNoise != 1 {
		t.Fatalf("статистика фильтра неверна: %+v", job.Stats)
	}
}

func TestBuildAndEnqueueCapsEntries(t *testing.T) {
	store := &stubStore{today: []domain.StoredItem{
		storedItem("Protocol hacked one", "n", 1),
		storedItem("Protocol hacked two", "n", 2),
		storedItem("Protocol hacked three", "n", 3),
	}}
	queue := &stubQueue{}
	svc := newDigestService(store, &stubProfiles{profile: domain.DefaultProfile()}, queue, nil, 2)

	if err := svc.BuildAndEnqueue(context.Background(), 1, "09:00", domain.DigestCauseManual); err != nil {
		t.Fatalf("дайджест не собран: %v", err)
	}
	if len(queue.jobs[0].Entries) != 2 {
		t.Fatalf("предел размера дайджеста не соблюдён: %d", len(queue.jobs[0].Entries))
	}
}

func TestBuildAndEnqueueSkipsEmptyDigest(t *testing.T) {
	profile := domain.DefaultProfile()
	profile.BlockKeywords = []string{"protocol"}
	store := &stubStore{today: []domain.StoredItem{
		storedItem("Protocol hacked", "n", 1),
	}}
	queue := &stubQueue{}
	svc := newDigestService(store, &stubProfiles{profile: profile}, queue, nil, 10)

	if err := svc.BuildAndEnqueue(context.Background(), 1, "09:00", domain.DigestCauseManual); err != nil {
		t.Fatalf("пустой дайджест не должен быть ошибкой: %v", err)
	}
	if len(queue.jobs) != 0 {
		t.Fatalf("пустой дайджест не ставится в очередь: %+v", queue.jobs)
	}
}

func TestBuildAndEnqueueSuppressesDuplicateTrigger(t *testing.T) {
	store := &stubStore{today: []domain.StoredItem{
		storedItem("Protocol hacked", "n", 1),
	}}
	queue := &stubQueue{}
	cache := &stubCache{}
	svc := newDigestService(store, &stubProfiles{profile: domain.DefaultProfile()}, queue, cache, 10)

	if err := svc.BuildAndEnqueue(context.Background(), 1, "09:00", domain.DigestCauseScheduled); err != nil {
		t.Fatalf("первое срабатывание должно пройти: %v", err)
	}
	err := svc.BuildAndEnqueue(context.Background(), 1, "09:00", domain.DigestCauseScheduled)
	if !errors.Is(err, ErrAlreadyFired) {
		t.Fatalf("повторное срабатывание должно подавляться: %v", err)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("ожидалась одна задача, получено %d", len(queue.jobs))
	}

	// Другое время того же дня — отдельный слот.
	if err := svc.BuildAndEnqueue(context.Background(), 1, "18:00", domain.DigestCauseScheduled); err != nil {
		t.Fatalf("другой слот не должен подавляться: %v", err)
	}
	if len(queue.jobs) != 2 {
		t.Fatalf("ожидалось две задачи, получено %d", len(queue.jobs))
	}
}

func TestBuildAndEnqueueQueueError(t *testing.T) {
	store := &stubStore{today: []domain.StoredItem{
		storedItem("Protocol hacked", "n", 1),
	}}
	queue := &stubQueue{err: errors.New("брокер недоступен")}
	svc := newDigestService(store, &stubProfiles{profile: domain.DefaultProfile()}, queue, nil, 10)

	if err := svc.BuildAndEnqueue(context.Background(), 1, "09:00", domain.DigestCauseManual); err == nil {
		t.Fatal("ошибка очереди должна подниматься наверх")
	}
}
