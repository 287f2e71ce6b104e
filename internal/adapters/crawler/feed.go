package crawler

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"web3-digest-bot/internal/domain"
)

// FeedCrawler — вариант A: стандартная синдикационная лента (RSS/Atom).
type FeedCrawler struct {
	source  domain.Source
	fetcher *Fetcher
	parser  *gofeed.Parser
}

var _ domain.Crawler = (*FeedCrawler)(nil)

// NewFeedCrawler создаёт краулер ленты.
func NewFeedCrawler(source domain.Source, fetcher *Fetcher) *FeedCrawler {
	return &FeedCrawler{source: source, fetcher: fetcher, parser: gofeed.NewParser()}
}

// Source возвращает дескриптор источника.
func (c *FeedCrawler) Source() domain.Source {
	return c.source
}

// Crawl загружает ленту и приводит записи к нормализованному виду.
func (c *FeedCrawler) Crawl(ctx context.Context, maxItems int) ([]domain.Item, error) {
	body, err := c.fetcher.FetchPage(ctx, c.source.URL)
	if err != nil {
		return nil, fmt.Errorf("загрузка ленты: %w", err)
	}

	feed, err := c.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("разбор ленты: %w", err)
	}

	now := time.Now()
	items := make([]domain.Item, 0, len(feed.Items))
	seen := make(map[string]struct{})
	for _, entry := range feed.Items {
		title := TruncateTitle(CleanText(entry.Title))
		link := entry.Link
		// Без URL элемент не дедуплицируется, без заголовка бесполезен.
		if title == "" || link == "" {
			continue
		}

		published := ""
		switch {
		case entry.PublishedParsed != nil:
			published = entry.PublishedParsed.Format("2006-01-02T15:04:05")
		case entry.UpdatedParsed != nil:
			published = entry.UpdatedParsed.Format("2006-01-02T15:04:05")
		case entry.Published != "":
			published = ParseTimeString(entry.Published, now)
		}

		summary := entry.Description
		if summary == "" {
			summary = entry.Content
		}
		author := ""
		if entry.Author != nil {
			author = CleanText(entry.Author.Name)
		}

		fp := Fingerprint(link, title)
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}

		items = append(items, domain.Item{
			Title:       title,
			URL:         link,
			PublishedAt: published,
			Summary:     TruncateSummary(CleanText(summary)),
			Author:      author,
			SourceID:    c.source.ID,
			Rank:        len(items) + 1,
		})
		if maxItems > 0 && len(items) >= maxItems {
			break
		}
	}
	return items, nil
}
