package filter

import (
	"regexp"
	"sort"
	"strings"

	"web3-digest-bot/internal/domain"
	"web3-digest-bot/internal/infra/metrics"
)

// eventPattern — класс события и его распознаватель.
// Порядок имеет значение: выигрывает первый совпавший класс.
type eventPattern struct {
	eventType string
	re        *regexp.Regexp
}

var eventPatterns = []eventPattern{
	{"security", regexp.MustCompile(`(?i)(被盗|攻击|漏洞|黑客|钓鱼|盗取|安全事件|exploit|hack(ed|er)?|vulnerabilit|phishing|stolen|breach|rug\s?pull)`)},
	{"funding", regexp.MustCompile(`(?i)(融资|投资|领投|参投|估值|轮融|funding|fundrais|raise[sd]?\s|investment|series\s[abc]\b|seed\sround|valuation)`)},
	{"protocol", regexp.MustCompile(`(?i)(主网|测试网|上线|升级|部署|集成|协议发布|mainnet|testnet|launch(es|ed)?|upgrade|deploy|integrat|release[sd]?\s)`)},
	{"regulation", regexp.MustCompile(`(?i)(监管|合规|法案|诉讼|罚款|禁令|牌照|regulat|compliance|lawsuit|\bSEC\b|\bCFTC\b|\bMiCA\b|license|\bban(ned)?\b|\bfine[sd]?\b)`)},
}

// Фиксированные классы шума: промо-раздачи, инструкции, реклама.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(空投|airdrop|giveaway|免费领取|白名单)`),
	regexp.MustCompile(`(教程|如何|怎么|指南|攻略)`),
	regexp.MustCompile(`(?i)(带货|推广|广告|赞助|sponsored)`),
}

// EventTypeOther — класс для событий вне известных категорий.
const EventTypeOther = "other"

const (
	forcedScore   = 100
	baselineScore = 1
)

// Service применяет пользовательскую политику фильтрации к элементам дня.
type Service struct {
	noiseKeywords []string
}

// New создаёт фильтр с шумовыми ключевыми словами из каталога источников.
func New(noiseKeywords []string) *Service {
	lowered := make([]string, 0, len(noiseKeywords))
	for _, kw := range noiseKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &Service{noiseKeywords: lowered}
}

// Classify возвращает класс события по заголовку; для прочих — other.
func Classify(title string) string {
	for _, p := range eventPatterns {
		if p.re.MatchString(title) {
			return p.eventType
		}
	}
	return EventTypeOther
}

// Apply пропускает элементы через политику профиля и возвращает
// отсортированный список с оценками. Порядок проверок фиксирован:
// шум (кроме подписок), блок-слова, классификация, оценка.
// Все проверки смотрят только на заголовок элемента.
func (s *Service) Apply(items []domain.StoredItem, profile domain.UserProfile) ([]domain.ScoredItem, domain.FilterStats) {
	stats := domain.FilterStats{Total: len(items)}
	scored := make([]domain.ScoredItem, 0, len(items))

	for _, item := range items {
		title := item.Title
		lowerTitle := strings.ToLower(title)

		if !item.Subscribed && profile.EnableNoiseFilter && s.isNoise(title, lowerTitle) {
			stats.Dropped++
			stats.DroppedNoise++
			metrics.FilterDropped.WithLabelValues("noise").Inc()
			continue
		}
		if matchesKeywords(lowerTitle, profile.BlockKeywords) {
			stats.Dropped++
			stats.DroppedBlock++
			metrics.FilterDropped.WithLabelValues("block").Inc()
			continue
		}

		eventType := Classify(title)
		score := baselineScore
		if item.Subscribed || matchesKeywords(lowerTitle, profile.AllowKeywords) {
			score = forcedScore
		} else if idx := indexOf(profile.Priority, eventType); idx >= 0 && idx < 4 {
			score = (4 - idx) * 10
		}

		scored = append(scored, domain.ScoredItem{
			StoredItem: item,
			EventType:  eventType,
			Score:      score,
		})
	}

	stats.Kept = len(scored)
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return sortRank(scored[i]) < sortRank(scored[j])
	})
	return scored, stats
}

// sortRank возвращает позицию источника для сортировки.
// Элементы без позиции уходят в конец, подписки с нулевой позицией — в начало.
func sortRank(item domain.ScoredItem) int {
	if item.Rank > 0 || item.Subscribed {
		return item.Rank
	}
	return 999
}

func (s *Service) isNoise(title, lowerTitle string) bool {
	for _, re := range noisePatterns {
		if re.MatchString(title) {
			return true
		}
	}
	for _, kw := range s.noiseKeywords {
		if strings.Contains(lowerTitle, kw) {
			return true
		}
	}
	return false
}

func matchesKeywords(lowerText string, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lowerText, kw) {
			return true
		}
	}
	return false
}

func indexOf(values []string, target string) int {
	for i, v := range values {
		if v == target {
			return i
		}
	}
	return -1
}

// SignalSummary — сводка по классифицированным элементам дня.
type SignalSummary struct {
	ByType       map[string]int
	HighPriority []domain.ScoredItem
	Platforms    []string
}

// Summarize агрегирует сигналы: счётчики по классам, высокоприоритетные
// элементы и перечень задействованных источников.
func Summarize(items []domain.ScoredItem) SignalSummary {
	summary := SignalSummary{ByType: make(map[string]int)}
	seen := make(map[string]struct{})
	for _, item := range items {
		summary.ByType[item.EventType]++
		if item.Score >= 30 {
			summary.HighPriority = append(summary.HighPriority, item)
		}
		if _, ok := seen[item.SourceID]; !ok {
			seen[item.SourceID] = struct{}{}
			summary.Platforms = append(summary.Platforms, item.SourceID)
		}
	}
	sort.Strings(summary.Platforms)
	return summary
}
