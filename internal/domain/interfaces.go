package domain

import (
	"context"
	"time"
)

// Crawler выгружает нормализованные элементы одного источника.
// Любой внутренний сбой возвращается ошибкой уровня источника,
// паника за эту границу не выходит.
type Crawler interface {
	Source() Source
	Crawl(ctx context.Context, maxItems int) ([]Item, error)
}

// ItemStore управляет дневными партициями элементов и метаданными источников.
type ItemStore interface {
	// UpsertItems идемпотентно сохраняет элементы в партицию дня:
	// повторная встреча пары (источник, URL) увеличивает счётчик показов.
	UpsertItems(ctx context.Context, day Day, category Category, items []Item) error
	// UpsertSourceStatus фиксирует результат последнего опроса источника.
	UpsertSourceStatus(ctx context.Context, day Day, category Category, status SourceStatus) error
	// TodayItems возвращает элементы одной партиции.
	TodayItems(ctx context.Context, day Day, category Category, limit int) ([]StoredItem, error)
	// RecentItems объединяет последние days партиций до указанного дня включительно,
	// схлопывая повторы (источник, URL) до самой свежей встречи, новые первыми.
	RecentItems(ctx context.Context, until Day, category Category, days, limit int) ([]StoredItem, error)
	// ItemsBySources возвращает элементы партиции только для перечисленных источников.
	ItemsBySources(ctx context.Context, day Day, category Category, sourceIDs []string, limit int) ([]StoredItem, error)
	// SourceStatuses возвращает метаданные источников партиции.
	SourceStatuses(ctx context.Context, day Day, category Category) ([]SourceStatus, error)
}

// ProfileRepo — читающая сторона пользовательских профилей.
// Запись профилей принадлежит внешнему коллаборатору.
type ProfileRepo interface {
	GetProfile(ctx context.Context, userID int64) (UserProfile, error)
	ListUserIDs(ctx context.Context) ([]int64, error)
	ListUserSources(ctx context.Context, userID int64) ([]UserSource, error)
	// ListAllSources возвращает подписки всех пользователей для общего прохода.
	ListAllSources(ctx context.Context) ([]UserSource, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
