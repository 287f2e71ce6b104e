package domain

import "time"

// Category разделяет хранилище на логические разделы.
type Category string

const (
	// CategoryNews — общие новостные источники (Web3-медиа).
	CategoryNews Category = "news"
	// CategoryRSS — пользовательские RSS-подписки.
	CategoryRSS Category = "rss"
)

// SourceKind определяет вариант краулера для источника.
type SourceKind string

const (
	// SourceKindFeed — стандартная синдикационная лента (RSS/Atom).
	SourceKindFeed SourceKind = "feed"
	// SourceKindChainCatcher — скрейпер сайта ChainCatcher.
	SourceKindChainCatcher SourceKind = "chaincatcher"
	// SourceKindMeNews — скрейпер сайта ME News (MetaEra).
	SourceKindMeNews SourceKind = "menews"
)

// Source описывает настроенный источник новостей.
type Source struct {
	ID         string
	Name       string
	URL        string
	Kind       SourceKind
	Category   Category
	MaxItems   int
	Enabled    bool
	MaxAgeDays int
}

// Item — нормализованный элемент новости после краулера.
// Элементы без заголовка или URL отбрасываются до сохранения.
type Item struct {
	Title       string
	URL         string
	PublishedAt string
	Summary     string
	Author      string
	SourceID    string
	Rank        int
}

// StoredItem — элемент из дневной партиции хранилища.
type StoredItem struct {
	Item
	FirstSeen  string
	LastSeen   string
	SeenCount  int
	CreatedAt  time.Time
	Subscribed bool
}

// ScoredItem — элемент после классификации и скоринга.
type ScoredItem struct {
	StoredItem
	EventType string
	Score     int
}

// Статусы последнего опроса источника.
const (
	FetchStatusSuccess = "success"
	FetchStatusFailed  = "failed"
)

// SourceStatus хранит метаданные последнего опроса источника в партиции.
type SourceStatus struct {
	SourceID  string
	Name      string
	URL       string
	LastFetch string
	Status    string
	ItemCount int
}

// FetchPass — результат одного прохода по всем включённым источникам.
type FetchPass struct {
	ID        string
	Day       Day
	StartedAt time.Time
	Items     map[string][]Item
	FailedIDs []string
}

// TotalItems возвращает суммарное число элементов прохода.
func (p FetchPass) TotalItems() int {
	total := 0
	for _, items := range p.Items {
		total += len(items)
	}
	return total
}

// UserSource — RSS-подписка пользователя, управляется внешним ботом.
type UserSource struct {
	UserID    int64
	URL       string
	Name      string
	CreatedAt time.Time
}

// FilterStats сообщает причины отбрасывания элементов фильтром.
type FilterStats struct {
	Total        int
	Kept         int
	Dropped      int
	DroppedNoise int
	DroppedBlock int
}
