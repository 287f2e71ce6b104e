package crawler

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"web3-digest-bot/internal/domain"
)

const defaultMaxItems = 50

// parsedItem — сырой элемент одной стратегии до нормализации в domain.Item.
type parsedItem struct {
	title       string
	url         string
	publishedAt string
	summary     string
	author      string
	guid        string
}

// strategy — одна попытка получить элементы источника. Пустой результат
// без ошибки означает «нет результата», и управление переходит к следующей
// стратегии; ошибка фиксируется, но цепочка тоже продолжается.
type strategy struct {
	name string
	run  func(ctx context.Context, maxItems int) ([]parsedItem, error)
}

// SiteCrawler — вариант B: скрейпер конкретного сайта с упорядоченной
// цепочкой стратегий (JSON API, затем HTML-эвристики).
type SiteCrawler struct {
	source        domain.Source
	fetcher       *Fetcher
	strategies    []strategy
	topUp         *strategy
	defaultAuthor string
}

var _ domain.Crawler = (*SiteCrawler)(nil)

// Source возвращает дескриптор источника.
func (c *SiteCrawler) Source() domain.Source {
	return c.source
}

// Crawl перебирает стратегии до первого непустого результата,
// затем добирает недостающие элементы дополнительной стратегией.
func (c *SiteCrawler) Crawl(ctx context.Context, maxItems int) ([]domain.Item, error) {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}

	var parsed []parsedItem
	var lastErr error
	for _, s := range c.strategies {
		got, err := s.run(ctx, maxItems)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", s.name, err)
			continue
		}
		if len(got) > 0 {
			parsed = got
			break
		}
	}

	if c.topUp != nil && len(parsed) < maxItems {
		extra, err := c.topUp.run(ctx, maxItems-len(parsed))
		if err == nil {
			parsed = append(parsed, extra...)
		}
	}

	if len(parsed) == 0 && lastErr != nil {
		return nil, lastErr
	}

	items := make([]domain.Item, 0, len(parsed))
	seen := make(map[string]struct{})
	for _, p := range parsed {
		if p.title == "" || p.url == "" {
			continue
		}
		guid := p.guid
		if guid == "" {
			guid = Fingerprint(p.url, p.title)
		}
		if _, ok := seen[guid]; ok {
			continue
		}
		seen[guid] = struct{}{}

		author := p.author
		if author == "" {
			author = c.defaultAuthor
		}
		items = append(items, domain.Item{
			Title:       p.title,
			URL:         p.url,
			PublishedAt: p.publishedAt,
			Summary:     p.summary,
			Author:      author,
			SourceID:    c.source.ID,
			Rank:        len(items) + 1,
		})
		if len(items) >= maxItems {
			break
		}
	}
	return items, nil
}

// --- ME News (MetaEra) ---

// NewMeNewsCrawler собирает цепочку стратегий для ME News: основной API,
// резервный API старого домена, затем HTML-страницы; недостающие элементы
// добираются из ленты快讯 (flash).
func NewMeNewsCrawler(source domain.Source, fetcher *Fetcher) *SiteCrawler {
	base := strings.TrimRight(source.URL, "/")
	legacyBase := "https://metaera.media"

	c := &SiteCrawler{
		source:        source,
		fetcher:       fetcher,
		defaultAuthor: source.Name,
	}
	c.strategies = []strategy{
		c.apiStrategy("api_primary", []string{
			base + "/api/news/list",
			base + "/api/v1/news/list",
			base + "/api/v1/article/list",
			base + "/api/news",
		}, base, "news"),
		c.apiStrategy("api_legacy", []string{
			"https://api.metaera.media/api/news/list",
			"https://api.metaera.media/api/flash/list",
			legacyBase + "/api/news/list",
		}, base, "news"),
		c.htmlStrategy("html", []string{
			base + "/news",
			base + "/",
			legacyBase + "/news",
		}, base),
	}
	flash := c.apiStrategy("api_flash", []string{
		base + "/api/flash/list",
		base + "/api/v1/flash/list",
		base + "/api/flash",
	}, base, "flash")
	c.topUp = &flash
	return c
}

// apiStrategy пробует список эндпоинтов и берёт первый, чей конверт
// содержит непустой список записей.
func (c *SiteCrawler) apiStrategy(name string, apiURLs []string, base, itemType string) strategy {
	return strategy{
		name: name,
		run: func(ctx context.Context, maxItems int) ([]parsedItem, error) {
			size := strconv.Itoa(maxItems)
			params := url.Values{
				"page":     {"1"},
				"pageSize": {size},
				"size":     {size},
				"limit":    {size},
			}
			var lastErr error
			for _, apiURL := range apiURLs {
				data, err := c.fetcher.FetchJSON(ctx, apiURL, params)
				if err != nil {
					lastErr = err
					continue
				}
				if !HasValidEnvelope(data) {
					continue
				}
				records := ExtractList(data)
				if len(records) == 0 {
					continue
				}
				items := make([]parsedItem, 0, len(records))
				now := time.Now()
				for _, record := range records {
					if item, ok := parseRecord(record, base, itemType, now); ok {
						items = append(items, item)
					}
					if len(items) >= maxItems {
						break
					}
				}
				if len(items) > 0 {
					return items, nil
				}
			}
			return nil, lastErr
		},
	}
}

// Поля времени, встречающиеся в ответах API, в порядке предпочтения.
var recordTimeFields = []string{
	"publishTime", "publish_time", "publishedAt", "published_at",
	"createTime", "create_time", "createdAt", "created_at",
	"updateTime", "update_time", "updatedAt", "updated_at",
	"time", "date", "datetime",
}

func parseRecord(record map[string]any, base, itemType string, now time.Time) (parsedItem, bool) {
	title := recordString(record, "title", "name", "headline", "content")
	title = TruncateTitle(CleanText(title))
	if title == "" {
		return parsedItem{}, false
	}

	link := recordURL(record, base, itemType)

	published := ""
	for _, field := range recordTimeFields {
		value, ok := record[field]
		if !ok {
			continue
		}
		if iso := NormalizeTimestamp(value, now); iso != "" {
			published = iso
			break
		}
	}

	summary := recordString(record, "summary", "description", "desc", "content", "abstract", "body")
	summary = TruncateSummary(CleanText(summary))

	return parsedItem{
		title:       title,
		url:         link,
		publishedAt: published,
		summary:     summary,
		author:      recordAuthor(record),
		guid:        Fingerprint(link, title),
	}, true
}

func recordString(record map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := record[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func recordURL(record map[string]any, base, itemType string) string {
	link := recordString(record, "url", "link", "href")
	if link != "" {
		if strings.HasPrefix(link, "http") {
			return link
		}
		if strings.HasPrefix(link, "/") {
			return base + link
		}
	}

	for _, key := range []string{"id", "articleId", "newsId"} {
		value, ok := record[key]
		if !ok {
			continue
		}
		var id string
		switch v := value.(type) {
		case string:
			id = v
		case float64:
			id = strconv.FormatInt(int64(v), 10)
		}
		if id == "" {
			continue
		}
		if itemType == "flash" {
			return fmt.Sprintf("%s/flash/%s", base, id)
		}
		return fmt.Sprintf("%s/news/%s", base, id)
	}
	return ""
}

func recordAuthor(record map[string]any) string {
	for _, key := range []string{"author", "source", "writer"} {
		switch v := record[key].(type) {
		case string:
			if v != "" {
				return CleanText(v)
			}
		case map[string]any:
			if name := recordString(v, "name", "nickname"); name != "" {
				return CleanText(name)
			}
		case []any:
			if len(v) == 0 {
				continue
			}
			if nested, ok := v[0].(map[string]any); ok {
				if name := recordString(nested, "name"); name != "" {
					return CleanText(name)
				}
				continue
			}
			return CleanText(fmt.Sprint(v[0]))
		}
	}
	return ""
}

// Лестница селекторов для поиска контейнеров новостей на странице.
var listSelectors = []string{
	".news-item",
	".article-item",
	`[class*="news-list"] > *`,
	`[class*="article-list"] > *`,
	"article",
	".card",
	`[class*="item"]`,
}

// htmlStrategy разбирает страницы по CSS-эвристикам. Считаем список
// валидным, только если селектор нашёл больше трёх контейнеров.
func (c *SiteCrawler) htmlStrategy(name string, pages []string, base string) strategy {
	return strategy{
		name: name,
		run: func(ctx context.Context, maxItems int) ([]parsedItem, error) {
			var lastErr error
			for _, pageURL := range pages {
				body, err := c.fetcher.FetchPage(ctx, pageURL)
				if err != nil {
					lastErr = err
					continue
				}
				html := string(body)
				if strings.Contains(html, "doesn't work properly without JavaScript") {
					continue
				}
				doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
				if err != nil {
					lastErr = err
					continue
				}
				items := parseGenericList(doc, base, maxItems)
				if len(items) > 0 {
					return items, nil
				}
			}
			return nil, lastErr
		},
	}
}

func parseGenericList(doc *goquery.Document, base string, maxItems int) []parsedItem {
	var containers *goquery.Selection
	for _, selector := range listSelectors {
		found := doc.Find(selector)
		if found.Length() > 3 {
			containers = found
			break
		}
	}
	if containers == nil {
		return nil
	}

	now := time.Now()
	var items []parsedItem
	containers.EachWithBreak(func(_ int, container *goquery.Selection) bool {
		title := CleanText(container.Find(`h1, h2, h3, h4, .title, [class*="title"], a[href]`).First().Text())
		if len([]rune(title)) < 5 {
			return true
		}

		link := ""
		if anchor := container.Find("a[href]").First(); anchor.Length() > 0 {
			link = buildURL(base, anchor.AttrOr("href", ""))
		}

		published := ""
		if timeElem := container.Find(`[class*="time"], [class*="date"], time, [datetime]`).First(); timeElem.Length() > 0 {
			raw := timeElem.AttrOr("datetime", "")
			if raw == "" {
				raw = CleanText(timeElem.Text())
			}
			published = ParseTimeString(raw, now)
		}

		summary := ""
		if summaryElem := container.Find(".summary, .desc, .description, .content, p").First(); summaryElem.Length() > 0 {
			summary = TruncateSummary(CleanText(summaryElem.Text()))
		}

		items = append(items, parsedItem{
			title:       TruncateTitle(title),
			url:         link,
			publishedAt: published,
			summary:     summary,
		})
		return len(items) < maxItems
	})
	return items
}

// --- ChainCatcher ---

// Навигационные заголовки, которые нельзя принимать за новости.
var chainCatcherNavTitles = map[string]struct{}{
	"区块链快讯": {},
	"最新快讯":  {},
	"精选事件":  {},
	"快讯":    {},
}

var chainCatcherTimeRes = []*regexp.Regexp{
	regexp.MustCompile(`\d{2}-\d{2}\s+\d{2}:\d{2}`),
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`\d{2}:\d{2}`),
}

// NewChainCatcherCrawler собирает скрейпер ChainCatcher: API закрыт,
// поэтому единственная стратегия — разбор HTML страницы快讯.
func NewChainCatcherCrawler(source domain.Source, fetcher *Fetcher) *SiteCrawler {
	base := strings.TrimRight(source.URL, "/")
	c := &SiteCrawler{
		source:        source,
		fetcher:       fetcher,
		defaultAuthor: "ChainCatcher",
	}
	c.strategies = []strategy{{
		name: "html_news",
		run: func(ctx context.Context, maxItems int) ([]parsedItem, error) {
			body, err := c.fetcher.FetchPage(ctx, base+"/news")
			if err != nil {
				return nil, err
			}
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
			if err != nil {
				return nil, fmt.Errorf("разбор HTML: %w", err)
			}
			items := parseChainCatcherHeadings(doc, base, maxItems)
			if len(items) < maxItems {
				items = append(items, parseChainCatcherContainers(doc, base, maxItems-len(items), items)...)
			}
			return items, nil
		},
	}}
	return c
}

// parseChainCatcherHeadings достаёт快讯 из h3-заголовков страницы.
func parseChainCatcherHeadings(doc *goquery.Document, base string, maxItems int) []parsedItem {
	now := time.Now()
	seen := make(map[string]struct{})
	var items []parsedItem

	doc.Find("h3").EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		title := cleanChainCatcherTitle(heading.Text())
		if title == "" {
			return true
		}

		parent := heading.ParentsFiltered("div, article, li, a").First()

		link := ""
		if parent.Length() > 0 {
			if anchor := parent.Find("a[href]").First(); anchor.Length() > 0 {
				link = buildURL(base, anchor.AttrOr("href", ""))
			}
		}
		if link == "" {
			if anchor := heading.ParentsFiltered("a").First(); anchor.Length() > 0 {
				link = buildURL(base, anchor.AttrOr("href", ""))
			}
		}

		published := ""
		summary := ""
		if parent.Length() > 0 {
			parentText := parent.Text()
			for _, re := range chainCatcherTimeRes {
				match := re.FindString(parentText)
				if match == "" {
					continue
				}
				if published = ParseTimeString(match, now); published != "" {
					break
				}
			}
			parent.Find("p, div, span").EachWithBreak(func(_ int, elem *goquery.Selection) bool {
				text := CleanText(elem.Text())
				if len([]rune(text)) > 20 && text != title {
					if strings.Contains(text, "ChainCatcher") || len([]rune(text)) > 50 {
						summary = TruncateSummary(text)
						return false
					}
				}
				return true
			})
		}

		guid := Fingerprint(firstNonEmpty(link, title), title)
		if _, ok := seen[guid]; ok {
			return true
		}
		seen[guid] = struct{}{}

		items = append(items, parsedItem{
			title:       TruncateTitle(title),
			url:         link,
			publishedAt: published,
			summary:     summary,
			guid:        guid,
		})
		return len(items) < maxItems
	})
	return items
}

// parseChainCatcherContainers — добор по контейнерным селекторам,
// когда заголовков h3 не хватило.
func parseChainCatcherContainers(doc *goquery.Document, base string, maxItems int, existing []parsedItem) []parsedItem {
	if maxItems <= 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(existing))
	for _, item := range existing {
		seen[item.guid] = struct{}{}
	}

	var items []parsedItem
	doc.Find(`[class*="news"], [class*="flash"], [class*="item"]`).EachWithBreak(func(_ int, container *goquery.Selection) bool {
		title := cleanChainCatcherTitle(container.Find("h3, h4, .title, a").First().Text())
		if title == "" {
			return true
		}

		link := ""
		if anchor := container.Find("a[href]").First(); anchor.Length() > 0 {
			link = buildURL(base, anchor.AttrOr("href", ""))
		}

		guid := Fingerprint(firstNonEmpty(link, title), title)
		if _, ok := seen[guid]; ok {
			return true
		}
		seen[guid] = struct{}{}

		items = append(items, parsedItem{
			title: TruncateTitle(title),
			url:   link,
			guid:  guid,
		})
		return len(items) < maxItems
	})
	return items
}

func cleanChainCatcherTitle(raw string) string {
	title := CleanText(raw)
	title = strings.TrimSpace(strings.ReplaceAll(title, "微信扫码", ""))
	if len([]rune(title)) < 5 {
		return ""
	}
	if _, nav := chainCatcherNavTitles[title]; nav {
		return ""
	}
	return title
}

func buildURL(base, href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http") {
		return href
	}
	if strings.HasPrefix(href, "/") {
		return base + href
	}
	return base + "/" + href
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
