package crawler

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"web3-digest-bot/internal/domain"
)

// Catalog — декларативный реестр источников и общие шумовые ключевые слова.
type Catalog struct {
	NoiseKeywords []string       `yaml:"noise_keywords"`
	Sources       []SourceConfig `yaml:"sources"`
}

// SourceConfig — описание одного источника в каталоге.
type SourceConfig struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	Kind       string `yaml:"kind"`
	Category   string `yaml:"category"`
	MaxItems   int    `yaml:"max_items"`
	Enabled    *bool  `yaml:"enabled"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// LoadCatalog читает каталог источников из YAML-файла.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение каталога: %w", err)
	}
	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("разбор каталога: %w", err)
	}
	return &catalog, nil
}

// Build собирает краулеры для всех включённых источников каталога.
// Неизвестный kind — ошибка конфигурации, процесс не должен стартовать.
func (c *Catalog) Build(fetcher *Fetcher) ([]domain.Crawler, error) {
	crawlers := make([]domain.Crawler, 0, len(c.Sources))
	for _, cfg := range c.Sources {
		if cfg.Enabled != nil && !*cfg.Enabled {
			continue
		}
		source, err := cfg.toSource()
		if err != nil {
			return nil, err
		}
		crawler, err := newCrawler(source, fetcher)
		if err != nil {
			return nil, err
		}
		crawlers = append(crawlers, crawler)
	}
	return crawlers, nil
}

func (cfg SourceConfig) toSource() (domain.Source, error) {
	if cfg.ID == "" || cfg.URL == "" {
		return domain.Source{}, fmt.Errorf("источник %q: id и url обязательны", cfg.Name)
	}
	category := domain.CategoryNews
	if cfg.Category != "" {
		category = domain.Category(cfg.Category)
		if category != domain.CategoryNews && category != domain.CategoryRSS {
			return domain.Source{}, fmt.Errorf("источник %q: неизвестная категория %q", cfg.ID, cfg.Category)
		}
	}
	name := cfg.Name
	if name == "" {
		name = cfg.ID
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	return domain.Source{
		ID:         cfg.ID,
		Name:       name,
		URL:        cfg.URL,
		Kind:       domain.SourceKind(cfg.Kind),
		Category:   category,
		MaxItems:   maxItems,
		MaxAgeDays: cfg.MaxAgeDays,
	}, nil
}

func newCrawler(source domain.Source, fetcher *Fetcher) (domain.Crawler, error) {
	switch source.Kind {
	case domain.SourceKindFeed:
		return NewFeedCrawler(source, fetcher), nil
	case domain.SourceKindChainCatcher:
		return NewChainCatcherCrawler(source, fetcher), nil
	case domain.SourceKindMeNews:
		return NewMeNewsCrawler(source, fetcher), nil
	default:
		return nil, fmt.Errorf("источник %q: неизвестный тип краулера %q", source.ID, source.Kind)
	}
}
