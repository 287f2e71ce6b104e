package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"web3-digest-bot/internal/domain"
	"web3-digest-bot/internal/infra/metrics"
)

const queryTimeout = 5 * time.Second

// Repository — доступ к дневным партициям элементов, статусам источников
// и пользовательским профилям в Postgres.
type Repository struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

var (
	_ domain.ItemStore   = (*Repository)(nil)
	_ domain.ProfileRepo = (*Repository)(nil)
)

// New создаёт репозиторий. Часовой пояс используется для штампов
// первой и последней встречи элемента.
func New(pool *pgxpool.Pool, loc *time.Location) *Repository {
	return &Repository{pool: pool, loc: loc}
}

// EnsureSchema создаёт таблицы, если их ещё нет.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS feed_items (
			id           BIGSERIAL PRIMARY KEY,
			day          DATE NOT NULL,
			category     TEXT NOT NULL,
			source_id    TEXT NOT NULL,
			url          TEXT NOT NULL,
			title        TEXT NOT NULL,
			published_at TEXT NOT NULL DEFAULT '',
			summary      TEXT NOT NULL DEFAULT '',
			author       TEXT NOT NULL DEFAULT '',
			rank         INT NOT NULL DEFAULT 0,
			first_seen   TEXT NOT NULL,
			last_seen    TEXT NOT NULL,
			seen_count   INT NOT NULL DEFAULT 1,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (day, category, source_id, url)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feed_items_day_category
			ON feed_items (day, category)`,
		`CREATE TABLE IF NOT EXISTS feed_sources (
			day        DATE NOT NULL,
			category   TEXT NOT NULL,
			source_id  TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			url        TEXT NOT NULL DEFAULT '',
			last_fetch TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT '',
			item_count INT NOT NULL DEFAULT 0,
			PRIMARY KEY (day, category, source_id)
		)`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
			user_id    BIGINT PRIMARY KEY,
			profile    JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS user_sources (
			user_id    BIGINT NOT NULL,
			url        TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, url)
		)`,
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("создание схемы: %w", err)
		}
	}
	return nil
}

// UpsertItems идемпотентно записывает элементы в партицию дня.
// Повторная встреча пары (источник, URL) обновляет last_seen и счётчик.
func (r *Repository) UpsertItems(ctx context.Context, day domain.Day, category domain.Category, items []domain.Item) error {
	if len(items) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	stamp := time.Now().In(r.loc).Format("15:04")
	start := time.Now()
	var err error
	for _, item := range items {
		_, err = r.pool.Exec(ctx, `
			INSERT INTO feed_items (day, category, source_id, url, title, published_at, summary, author, rank, first_seen, last_seen)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
			ON CONFLICT (day, category, source_id, url) DO UPDATE SET
				last_seen  = EXCLUDED.last_seen,
				seen_count = feed_items.seen_count + 1,
				rank       = EXCLUDED.rank`,
			day.Time(), category, item.SourceID, item.URL, item.Title,
			item.PublishedAt, item.Summary, item.Author, item.Rank, stamp,
		)
		if err != nil {
			break
		}
		metrics.ItemsUpserted.Inc()
	}
	metrics.ObserveNetworkRequest("postgres", "upsert", "feed_items", start, err)
	if err != nil {
		return fmt.Errorf("запись элементов: %w", err)
	}
	return nil
}

// UpsertSourceStatus фиксирует результат последнего опроса источника.
func (r *Repository) UpsertSourceStatus(ctx context.Context, day domain.Day, category domain.Category, status domain.SourceStatus) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	start := time.Now()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO feed_sources (day, category, source_id, name, url, last_fetch, status, item_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (day, category, source_id) DO UPDATE SET
			name       = EXCLUDED.name,
			url        = EXCLUDED.url,
			last_fetch = EXCLUDED.last_fetch,
			status     = EXCLUDED.status,
			item_count = EXCLUDED.item_count`,
		day.Time(), category, status.SourceID, status.Name, status.URL,
		status.LastFetch, status.Status, status.ItemCount,
	)
	metrics.ObserveNetworkRequest("postgres", "upsert", "feed_sources", start, err)
	if err != nil {
		return fmt.Errorf("запись статуса источника: %w", err)
	}
	return nil
}

const storedItemColumns = `title, url, published_at, summary, author, source_id, rank, first_seen, last_seen, seen_count, created_at`

// TodayItems возвращает элементы одной партиции.
func (r *Repository) TodayItems(ctx context.Context, day domain.Day, category domain.Category, limit int) ([]domain.StoredItem, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := r.pool.Query(ctx, `
		SELECT `+storedItemColumns+`
		FROM feed_items
		WHERE day = $1 AND category = $2
		ORDER BY rank ASC, created_at DESC
		LIMIT $3`,
		day.Time(), category, limit,
	)
	metrics.ObserveNetworkRequest("postgres", "select", "feed_items", start, err)
	if err != nil {
		return nil, fmt.Errorf("чтение партиции: %w", err)
	}
	return scanStoredItems(rows)
}

// RecentItems объединяет последние days партиций до указанного дня,
// схлопывая повторы (источник, URL) до самой свежей встречи.
func (r *Repository) RecentItems(ctx context.Context, until domain.Day, category domain.Category, days, limit int) ([]domain.StoredItem, error) {
	if days < 1 {
		days = 1
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	since := until.AddDays(-(days - 1))
	start := time.Now()
	rows, err := r.pool.Query(ctx, `
		SELECT `+storedItemColumns+`
		FROM (
			SELECT DISTINCT ON (source_id, url) `+storedItemColumns+`, day
			FROM feed_items
			WHERE day >= $1 AND day <= $2 AND category = $3
			ORDER BY source_id, url, day DESC
		) latest
		ORDER BY day DESC, created_at DESC
		LIMIT $4`,
		since.Time(), until.Time(), category, limit,
	)
	metrics.ObserveNetworkRequest("postgres", "select", "feed_items", start, err)
	if err != nil {
		return nil, fmt.Errorf("чтение последних партиций: %w", err)
	}
	return scanStoredItems(rows)
}

// ItemsBySources возвращает элементы партиции только для перечисленных источников.
func (r *Repository) ItemsBySources(ctx context.Context, day domain.Day, category domain.Category, sourceIDs []string, limit int) ([]domain.StoredItem, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := r.pool.Query(ctx, `
		SELECT `+storedItemColumns+`
		FROM feed_items
		WHERE day = $1 AND category = $2 AND source_id = ANY($3)
		ORDER BY rank ASC, created_at DESC
		LIMIT $4`,
		day.Time(), category, sourceIDs, limit,
	)
	metrics.ObserveNetworkRequest("postgres", "select", "feed_items", start, err)
	if err != nil {
		return nil, fmt.Errorf("чтение элементов по источникам: %w", err)
	}
	return scanStoredItems(rows)
}

// SourceStatuses возвращает метаданные источников партиции.
func (r *Repository) SourceStatuses(ctx context.Context, day domain.Day, category domain.Category) ([]domain.SourceStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := r.pool.Query(ctx, `
		SELECT source_id, name, url, last_fetch, status, item_count
		FROM feed_sources
		WHERE day = $1 AND category = $2
		ORDER BY source_id`,
		day.Time(), category,
	)
	metrics.ObserveNetworkRequest("postgres", "select", "feed_sources", start, err)
	if err != nil {
		return nil, fmt.Errorf("чтение статусов источников: %w", err)
	}
	defer rows.Close()

	var statuses []domain.SourceStatus
	for rows.Next() {
		var s domain.SourceStatus
		if err := rows.Scan(&s.SourceID, &s.Name, &s.URL, &s.LastFetch, &s.Status, &s.ItemCount); err != nil {
			return nil, fmt.Errorf("чтение строки статуса: %w", err)
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

// GetProfile возвращает профиль пользователя. Отсутствующая запись —
// профиль по умолчанию, а не ошибка.
func (r *Repository) GetProfile(ctx context.Context, userID int64) (domain.UserProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT profile FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultProfile(), nil
	}
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("чтение профиля: %w", err)
	}
	profile, err := domain.ProfileFromJSON(raw)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("разбор профиля: %w", err)
	}
	return profile, nil
}

// ListUserIDs возвращает всех пользователей с сохранённым профилем.
func (r *Repository) ListUserIDs(ctx context.Context) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_profiles ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("чтение пользователей: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListUserSources возвращает RSS-подписки одного пользователя.
func (r *Repository) ListUserSources(ctx context.Context, userID int64) ([]domain.UserSource, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT user_id, url, name, created_at
		FROM user_sources
		WHERE user_id = $1
		ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("чтение подписок: %w", err)
	}
	return scanUserSources(rows)
}

// ListAllSources возвращает по одной записи на каждый уникальный URL подписки.
func (r *Repository) ListAllSources(ctx context.Context) ([]domain.UserSource, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (url) user_id, url, name, created_at
		FROM user_sources
		ORDER BY url, created_at`)
	if err != nil {
		return nil, fmt.Errorf("чтение всех подписок: %w", err)
	}
	return scanUserSources(rows)
}

func scanStoredItems(rows pgx.Rows) ([]domain.StoredItem, error) {
	defer rows.Close()

	var items []domain.StoredItem
	for rows.Next() {
		var it domain.StoredItem
		if err := rows.Scan(
			&it.Title, &it.URL, &it.PublishedAt, &it.Summary, &it.Author,
			&it.SourceID, &it.Rank, &it.FirstSeen, &it.LastSeen, &it.SeenCount, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("чтение строки элемента: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanUserSources(rows pgx.Rows) ([]domain.UserSource, error) {
	defer rows.Close()

	var sources []domain.UserSource
	for rows.Next() {
		var s domain.UserSource
		if err := rows.Scan(&s.UserID, &s.URL, &s.Name, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("чтение строки подписки: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}
