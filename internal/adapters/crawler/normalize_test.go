package crawler

import (
	"strings"
	"testing"
	"time"
)

func TestCleanText(t *testing.T) {
	got := CleanText("  Vitalik&nbsp;announces \n\t upgrade  ")
	if got != "Vitalik announces upgrade" {
		t.Fatalf("текст не очищен: %q", got)
	}
	if CleanText("") != "" {
		t.Fatal("пустая строка должна остаться пустой")
	}
}

func TestTruncateTitle(t *testing.T) {
	short := "короткий заголовок"
	if TruncateTitle(short) != short {
		t.Fatal("короткий заголовок не должен меняться")
	}

	long := strings.Repeat("х", 250)
	got := TruncateTitle(long)
	if runes := []rune(got); len(runes) != 200 {
		t.Fatalf("ожидалось 200 символов, получено %d", len(runes))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("обрезанный заголовок должен заканчиваться многоточием: %q", got)
	}
}

func TestFingerprint(t *testing.T) {
	withURL := Fingerprint("https://a.example/1", "Заголовок")
	withoutURL := Fingerprint("", "Заголовок")
	if withURL == withoutURL {
		t.Fatal("отпечатки с URL и без не должны совпадать")
	}
	if withoutURL != Fingerprint("", "Заголовок") {
		t.Fatal("отпечаток должен быть детерминированным")
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		value any
		want  string
	}{
		{"unix секунды", float64(1736237400), time.Unix(1736237400, 0).Format("2006-01-02T15:04:05")},
		{"unix миллисекунды", float64(1736237400000), time.Unix(1736237400, 0).Format("2006-01-02T15:04:05")},
		{"числовая строка", "1736237400", time.Unix(1736237400, 0).Format("2006-01-02T15:04:05")},
		{"ISO с зоной", "2025-01-07T08:30:00Z", "2025-01-07T08:30:00"},
		{"дата с временем", "2025-01-07 08:30:00", "2025-01-07T08:30:00"},
		{"только дата", "2025-01-07", "2025-01-07T00:00:00"},
		{"без года", "01-07 16:50", "2025-01-07T16:50:00"},
		{"только время", "16:50", "2025-06-01T16:50:00"},
		{"мусор", "позавчера", ""},
		{"nil", nil, ""},
		{"ноль", float64(0), ""},
	}
	for _, tc := range cases {
		if got := NormalizeTimestamp(tc.value, now); got != tc.want {
			t.Fatalf("%s: ожидалось %q, получено %q", tc.name, tc.want, got)
		}
	}
}
