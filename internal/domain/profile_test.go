package domain

import (
	"reflect"
	"testing"
)

func TestProfileFromJSONOverlaysDefaults(t *testing.T) {
	raw := []byte(`{"block_keywords":["meme"],"brief_count":3}`)

	profile, err := ProfileFromJSON(raw)
	if err != nil {
		t.Fatalf("валидный профиль не разобран: %v", err)
	}
	if !reflect.DeepEqual(profile.BlockKeywords, []string{"meme"}) {
		t.Fatalf("блок-слова потеряны: %v", profile.BlockKeywords)
	}
	if profile.BriefCount != 3 {
		t.Fatalf("brief_count не применился: %d", profile.BriefCount)
	}
	// Незаполненные поля сохраняют значения по умолчанию.
	if profile.DailyTime != "09:00" {
		t.Fatalf("время по умолчанию потеряно: %s", profile.DailyTime)
	}
	if len(profile.Priority) != 4 {
		t.Fatalf("приоритеты по умолчанию потеряны: %v", profile.Priority)
	}
}

func TestProfileFromJSONEmptyAndBroken(t *testing.T) {
	profile, err := ProfileFromJSON(nil)
	if err != nil {
		t.Fatalf("пустой профиль должен давать значения по умолчанию: %v", err)
	}
	if !reflect.DeepEqual(profile, DefaultProfile()) {
		t.Fatalf("пустой профиль отличается от дефолтного: %+v", profile)
	}

	if _, err := ProfileFromJSON([]byte(`{broken`)); err == nil {
		t.Fatal("ожидалась ошибка для битого JSON")
	}
}
