package filter

import (
	"reflect"
	"testing"

	"web3-digest-bot/internal/domain"
)

func storedItem(title string, rank int, subscribed bool) domain.StoredItem {
	return domain.StoredItem{
		Item: domain.Item{
			Title:    title,
			URL:      "https://site.example/" + title,
			SourceID: "src",
			Rank:     rank,
		},
		Subscribed: subscribed,
	}
}

func TestApplyBlockWinsOverAllow(t *testing.T) {
	profile := domain.DefaultProfile()
	profile.BlockKeywords = []string{"meme"}
	profile.AllowKeywords = []string{"airdrop"}
	// Шумовой фильтр выключен: airdrop иначе отсеялся бы раньше блока.
	profile.EnableNoiseFilter = false

	svc := New(nil)
	scored, stats := svc.Apply([]domain.StoredItem{
		storedItem("New meme token airdrop", 1, false),
	}, profile)

	if len(scored) != 0 {
		t.Fatalf("блок-слово должно победить allow-слово: %+v", scored)
	}
	if stats.DroppedBlock != 1 || stats.Dropped != 1 {
		t.Fatalf("статистика блокировок неверна: %+v", stats)
	}
}

func TestApplyNoiseFilter(t *testing.T) {
	profile := domain.DefaultProfile()
	svc := New([]string{"行情分析"})

	items := []domain.StoredItem{
		storedItem("空投教程：如何免费领取白名单", 1, false),
		storedItem("每日行情分析：大盘走势", 2, false),
		storedItem("Protocol hacked for $10M", 3, false),
	}
	scored, stats := svc.Apply(items, profile)

	if len(scored) != 1 || scored[0].Title != "Protocol hacked for $10M" {
		t.Fatalf("шум не отфильтрован: %+v", scored)
	}
	if stats.DroppedNoise != 2 {
		t.Fatalf("статистика шума неверна: %+v", stats)
	}

	// С выключенным шумовым фильтром всё проходит.
	profile.EnableNoiseFilter = false
	scored, _ = svc.Apply(items, profile)
	if len(scored) != 3 {
		t.Fatalf("с выключенным фильтром ожидалось 3 элемента: %d", len(scored))
	}
}

func TestApplyMatchesTitleOnly(t *testing.T) {
	profile := domain.DefaultProfile()
	profile.BlockKeywords = []string{"casino"}
	svc := New(nil)

	item := storedItem("Protocol upgrade shipped", 1, false)
	item.Summary = "sponsored by casino partners"

	scored, stats := svc.Apply([]domain.StoredItem{item}, profile)
	// Шум и блок-слова смотрят только на заголовок, не на аннотацию.
	if len(scored) != 1 || stats.Dropped != 0 {
		t.Fatalf("аннотация не должна влиять на фильтрацию: %+v", stats)
	}
}

func TestClassifyFallsBackToOther(t *testing.T) {
	if got := Classify("Weekly community digest"); got != EventTypeOther {
		t.Fatalf("для нейтрального заголовка ожидался класс other, получен %q", got)
	}
	if got := Classify("Protocol hacked for $10M"); got != "security" {
		t.Fatalf("классификация сломана: %q", got)
	}
}

func TestApplySubscribedBypassesNoise(t *testing.T) {
	profile := domain.DefaultProfile()
	svc := New(nil)

	scored, _ := svc.Apply([]domain.StoredItem{
		storedItem("Airdrop giveaway for subscribers", 0, true),
	}, profile)

	if len(scored) != 1 {
		t.Fatal("подписка должна обходить шумовой фильтр")
	}
	if scored[0].Score != 100 {
		t.Fatalf("подписка должна получать максимальную оценку: %d", scored[0].Score)
	}
}

func TestApplyScoresByPriority(t *testing.T) {
	profile := domain.DefaultProfile()
	svc := New(nil)

	scored, _ := svc.Apply([]domain.StoredItem{
		storedItem("Weekly community digest", 1, false),
		storedItem("Regulators fined the exchange", 2, false),
		storedItem("Mainnet launch announced", 3, false),
		storedItem("Startup raises Series A", 4, false),
		storedItem("Protocol hacked for $10M", 5, false),
	}, profile)

	if len(scored) != 5 {
		t.Fatalf("ожидалось 5 элементов, получено %d", len(scored))
	}

	wantScores := []int{40, 30, 20, 10, 1}
	wantTypes := []string{"security", "funding", "protocol", "regulation", "other"}
	for i, item := range scored {
		if item.Score != wantScores[i] {
			t.Fatalf("позиция %d: ожидалась оценка %d, получена %d (%q)", i, wantScores[i], item.Score, item.Title)
		}
		if item.EventType != wantTypes[i] {
			t.Fatalf("позиция %d: ожидался класс %q, получен %q", i, wantTypes[i], item.EventType)
		}
	}
}

func TestApplyAllowKeywordForcesScore(t *testing.T) {
	profile := domain.DefaultProfile()
	profile.AllowKeywords = []string{"restaking"}
	svc := New(nil)

	scored, _ := svc.Apply([]domain.StoredItem{
		storedItem("Deep dive into restaking economics", 1, false),
	}, profile)

	if len(scored) != 1 || scored[0].Score != 100 {
		t.Fatalf("allow-слово должно давать оценку 100: %+v", scored)
	}
}

func TestApplySortsByScoreThenRank(t *testing.T) {
	profile := domain.DefaultProfile()
	svc := New(nil)

	items := []domain.StoredItem{
		storedItem("Weekly digest without rank", 0, false),
		storedItem("Protocol hacked deep in the page", 7, false),
		storedItem("Another weekly digest", 2, false),
		storedItem("Exchange hacked at the top", 1, false),
	}
	scored, _ := svc.Apply(items, profile)

	wantOrder := []string{
		"Exchange hacked at the top",
		"Protocol hacked deep in the page",
		"Another weekly digest",
		"Weekly digest without rank",
	}
	for i, want := range wantOrder {
		if scored[i].Title != want {
			t.Fatalf("позиция %d: ожидался %q, получен %q", i, want, scored[i].Title)
		}
	}

	// Повторный прогон даёт тот же порядок.
	again, _ := svc.Apply(items, profile)
	for i := range scored {
		if scored[i].Title != again[i].Title {
			t.Fatalf("сортировка недетерминирована на позиции %d", i)
		}
	}
}

func TestSummarize(t *testing.T) {
	items := []domain.ScoredItem{
		{StoredItem: domain.StoredItem{Item: domain.Item{Title: "b1", SourceID: "b"}}, EventType: "security", Score: 40},
		{StoredItem: domain.StoredItem{Item: domain.Item{Title: "a1", SourceID: "a"}}, EventType: "security", Score: 40},
		{StoredItem: domain.StoredItem{Item: domain.Item{Title: "a2", SourceID: "a"}}, EventType: "funding", Score: 30},
		{StoredItem: domain.StoredItem{Item: domain.Item{Title: "c1", SourceID: "c"}}, EventType: "other", Score: 1},
	}

	summary := Summarize(items)
	if summary.ByType["security"] != 2 || summary.ByType["funding"] != 1 {
		t.Fatalf("счётчики классов неверны: %v", summary.ByType)
	}
	// Неклассифицированные элементы тоже попадают в сводку.
	if summary.ByType["other"] != 1 {
		t.Fatalf("класс other потерян: %v", summary.ByType)
	}
	if len(summary.HighPriority) != 3 || summary.HighPriority[0].Title != "b1" {
		t.Fatalf("высокоприоритетные элементы неверны: %+v", summary.HighPriority)
	}
	if !reflect.DeepEqual(summary.Platforms, []string{"a", "b", "c"}) {
		t.Fatalf("перечень источников неверен: %v", summary.Platforms)
	}
}
