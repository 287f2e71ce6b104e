package fetch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"web3-digest-bot/internal/domain"
)

type stubCrawler struct {
	source domain.Source
	items  []domain.Item
	err    error
	panics bool
}

func (c *stubCrawler) Source() domain.Source { return c.source }

func (c *stubCrawler) Crawl(context.Context, int) ([]domain.Item, error) {
	if c.panics {
		panic("краулер сломан")
	}
	return c.items, c.err
}

type memStore struct {
	ops        []string
	items      map[string][]domain.Item
	categories map[string]domain.Category
	statuses   map[string]domain.SourceStatus
	failItems  map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		items:      make(map[string][]domain.Item),
		categories: make(map[string]domain.Category),
		statuses:   make(map[string]domain.SourceStatus),
		failItems:  make(map[string]error),
	}
}

func (s *memStore) UpsertItems(_ context.Context, _ domain.Day, category domain.Category, items []domain.Item) error {
	if len(items) == 0 {
		return nil
	}
	sourceID := items[0].SourceID
	if err := s.failItems[sourceID]; err != nil {
		return err
	}
	s.ops = append(s.ops, "items:"+sourceID)
	s.items[sourceID] = append(s.items[sourceID], items...)
	s.categories[sourceID] = category
	return nil
}

func (s *memStore) UpsertSourceStatus(_ context.Context, _ domain.Day, _ domain.Category, status domain.SourceStatus) error {
	s.ops = append(s.ops, fmt.Sprintf("status:%s:%s", status.SourceID, status.Status))
	s.statuses[status.SourceID] = status
	return nil
}

func (s *memStore) TodayItems(context.Context, domain.Day, domain.Category, int) ([]domain.StoredItem, error) {
	return nil, nil
}

func (s *memStore) RecentItems(context.Context, domain.Day, domain.Category, int, int) ([]domain.StoredItem, error) {
	return nil, nil
}

func (s *memStore) ItemsBySources(context.Context, domain.Day, domain.Category, []string, int) ([]domain.StoredItem, error) {
	return nil, nil
}

func (s *memStore) SourceStatuses(context.Context, domain.Day, domain.Category) ([]domain.SourceStatus, error) {
	return nil, nil
}

type stubProfiles struct {
	sources []domain.UserSource
	err     error
}

func (s *stubProfiles) GetProfile(context.Context, int64) (domain.UserProfile, error) {
	return domain.DefaultProfile(), nil
}

func (s *stubProfiles) ListUserIDs(context.Context) ([]int64, error) { return nil, nil }

func (s *stubProfiles) ListUserSources(context.Context, int64) ([]domain.UserSource, error) {
	return nil, nil
}

func (s *stubProfiles) ListAllSources(context.Context) ([]domain.UserSource, error) {
	return s.sources, s.err
}

func newsSource(id string) domain.Source {
	return domain.Source{ID: id, Name: id, URL: "https://" + id + ".example", Category: domain.CategoryNews, MaxItems: 10}
}

func item(sourceID, title string) domain.Item {
	return domain.Item{Title: title, URL: "https://" + sourceID + ".example/" + title, SourceID: sourceID, Rank: 1}
}

func newService(store *memStore, profiles *stubProfiles, catalog ...domain.Crawler) *Service {
	return New(zerolog.Nop(), store, profiles, catalog, func(source domain.Source) domain.Crawler {
		return &stubCrawler{source: source, items: []domain.Item{item(source.ID, "из подписки")}}
	}, time.UTC, 0, time.Hour)
}

func TestRunPassIsolatesFailures(t *testing.T) {
	store := newMemStore()
	svc := newService(store, &stubProfiles{},
		&stubCrawler{source: newsSource("ok"), items: []domain.Item{item("ok", "новость")}},
		&stubCrawler{source: newsSource("broken"), err: errors.New("сайт лежит")},
		&stubCrawler{source: newsSource("panicky"), panics: true},
		&stubCrawler{source: newsSource("ok2"), items: []domain.Item{item("ok2", "ещё новость")}},
	)

	pass, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("проход не должен падать из-за отдельных источников: %v", err)
	}
	if pass.ID == "" || pass.Day.IsZero() {
		t.Fatalf("метаданные прохода не заполнены: %+v", pass)
	}
	if len(pass.Items) != 2 || pass.TotalItems() != 2 {
		t.Fatalf("успешные источники потеряны: %+v", pass.Items)
	}
	if len(pass.FailedIDs) != 2 {
		t.Fatalf("ожидалось 2 сбойных источника, получено %v", pass.FailedIDs)
	}

	if store.statuses["ok"].Status != domain.FetchStatusSuccess || store.statuses["ok"].ItemCount != 1 {
		t.Fatalf("статус успешного источника неверен: %+v", store.statuses["ok"])
	}
	for _, id := range []string{"broken", "panicky"} {
		status := store.statuses[id]
		if status.Status != domain.FetchStatusFailed || status.ItemCount != 0 {
			t.Fatalf("статус сбойного источника %s неверен: %+v", id, status)
		}
	}
}

func TestRunPassWritesItemsBeforeStatus(t *testing.T) {
	store := newMemStore()
	svc := newService(store, &stubProfiles{},
		&stubCrawler{source: newsSource("ok"), items: []domain.Item{item("ok", "новость")}},
	)

	if _, err := svc.RunPass(context.Background()); err != nil {
		t.Fatalf("проход не выполнен: %v", err)
	}
	want := []string{"items:ok", "status:ok:success"}
	if len(store.ops) != 2 || store.ops[0] != want[0] || store.ops[1] != want[1] {
		t.Fatalf("порядок записи нарушен: %v", store.ops)
	}
}

func TestRunPassMarksSourceFailedOnPersistError(t *testing.T) {
	store := newMemStore()
	store.failItems["ok"] = errors.New("БД недоступна")
	svc := newService(store, &stubProfiles{},
		&stubCrawler{source: newsSource("ok"), items: []domain.Item{item("ok", "новость")}},
	)

	pass, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("проход не выполнен: %v", err)
	}
	if len(pass.FailedIDs) != 1 || pass.FailedIDs[0] != "ok" {
		t.Fatalf("источник с ошибкой записи должен считаться сбойным: %v", pass.FailedIDs)
	}
	if store.statuses["ok"].Status != domain.FetchStatusFailed {
		t.Fatalf("статус должен быть failed: %+v", store.statuses["ok"])
	}
}

func TestRunPassIncludesUserSubscriptions(t *testing.T) {
	store := newMemStore()
	profiles := &stubProfiles{sources: []domain.UserSource{
		{UserID: 1, URL: "https://blog.example/rss", Name: "Блог"},
	}}
	svc := newService(store, profiles,
		&stubCrawler{source: newsSource("ok"), items: []domain.Item{item("ok", "новость")}},
	)

	pass, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("проход не выполнен: %v", err)
	}
	if len(pass.Items) != 2 {
		t.Fatalf("подписка не опрошена: %+v", pass.Items)
	}
	// Подписки пишутся в раздел rss под идентификатором-URL.
	if store.categories["https://blog.example/rss"] != domain.CategoryRSS {
		t.Fatalf("категория подписки неверна: %v", store.categories)
	}
}

func TestRunPassSurvivesProfilesError(t *testing.T) {
	store := newMemStore()
	profiles := &stubProfiles{err: errors.New("профили недоступны")}
	svc := newService(store, profiles,
		&stubCrawler{source: newsSource("ok"), items: []domain.Item{item("ok", "новость")}},
	)

	pass, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("недоступность подписок не должна срывать проход: %v", err)
	}
	if len(pass.Items) != 1 {
		t.Fatalf("каталог должен быть опрошен: %+v", pass.Items)
	}
}
