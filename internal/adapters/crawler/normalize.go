package crawler

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	maxTitleLen   = 200
	maxSummaryLen = 500
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// CleanText декодирует HTML-сущности и схлопывает пробелы.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = html.UnescapeString(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// TruncateTitle ограничивает заголовок до 200 символов.
func TruncateTitle(title string) string {
	return truncateRunes(title, maxTitleLen)
}

// TruncateSummary ограничивает аннотацию до 500 символов.
func TruncateSummary(summary string) string {
	return truncateRunes(summary, maxSummaryLen)
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-3]) + "..."
}

// Fingerprint возвращает md5-отпечаток элемента для дедупликации
// внутри одного прохода: (URL либо заголовок, заголовок).
func Fingerprint(url, title string) string {
	key := url
	if key == "" {
		key = title
	}
	sum := md5.Sum([]byte(key + ":" + title))
	return hex.EncodeToString(sum[:])
}

// Порог, отделяющий миллисекундные unix-метки от секундных.
const unixMillisThreshold = 1e12

var clockOnlyRe = regexp.MustCompile(`^\d{2}:\d{2}$`)

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"01-02 15:04",
	"01/02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}

// NormalizeTimestamp приводит значение времени из ответа API к ISO-8601.
// Неразборчивые значения дают пустую строку, а не ошибку.
func NormalizeTimestamp(value any, now time.Time) string {
	switch v := value.(type) {
	case nil:
		return ""
	case float64:
		return unixToISO(v)
	case int64:
		return unixToISO(float64(v))
	case int:
		return unixToISO(float64(v))
	case string:
		return ParseTimeString(v, now)
	default:
		return ""
	}
}

func unixToISO(ts float64) string {
	if ts <= 0 {
		return ""
	}
	if ts > unixMillisThreshold {
		ts = ts / 1000
	}
	return time.Unix(int64(ts), 0).Format("2006-01-02T15:04:05")
}

// ParseTimeString пробует ISO-8601 и список распространённых форматов.
func ParseTimeString(value string, now time.Time) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	// Числовая строка трактуется как unix-метка.
	if ts, err := strconv.ParseFloat(value, 64); err == nil {
		return unixToISO(ts)
	}

	if strings.Contains(value, "T") {
		candidate := strings.Replace(value, "Z", "+00:00", 1)
		for _, layout := range []string{"2006-01-02T15:04:05-07:00", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, candidate); err == nil {
				return t.Format("2006-01-02T15:04:05")
			}
		}
	}

	if clockOnlyRe.MatchString(value) {
		candidate := fmt.Sprintf("%s %s", now.Format("2006-01-02"), value)
		if t, err := time.Parse("2006-01-02 15:04", candidate); err == nil {
			return t.Format("2006-01-02T15:04:05")
		}
		return ""
	}

	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		// Форматы без года дополняются текущим годом.
		if t.Year() == 0 {
			t = t.AddDate(now.Year(), 0, 0)
		}
		return t.Format("2006-01-02T15:04:05")
	}
	return ""
}
