package domain

import "encoding/json"

// UserProfile — предпочтения пользователя, читаются этим ядром,
// изменяются только внешним диалоговым коллаборатором.
type UserProfile struct {
	Priority          []string `json:"priority"`
	BlockKeywords     []string `json:"block_keywords"`
	AllowKeywords     []string `json:"allow_keywords"`
	EnableNoiseFilter bool     `json:"enable_noise_filter"`
	DailyTime         string   `json:"daily_time"`
	BriefTimes        []string `json:"brief_times"`
	BriefCount        int      `json:"brief_count"`
}

// DefaultProfile возвращает профиль по умолчанию для новых пользователей.
// Нулевое количество рассылок означает «не задано явно»: тогда явный
// список времён не усекается.
func DefaultProfile() UserProfile {
	return UserProfile{
		Priority:          []string{"security", "funding", "protocol", "regulation"},
		BlockKeywords:     []string{},
		AllowKeywords:     []string{},
		EnableNoiseFilter: true,
		DailyTime:         "09:00",
		BriefTimes:        []string{"09:00"},
	}
}

// ProfileFromJSON разбирает сохранённый профиль поверх значений по умолчанию,
// чтобы частично заполненные записи не теряли дефолтные настройки.
func ProfileFromJSON(raw []byte) (UserProfile, error) {
	profile := DefaultProfile()
	if len(raw) == 0 {
		return profile, nil
	}
	if err := json.Unmarshal(raw, &profile); err != nil {
		return DefaultProfile(), err
	}
	return profile, nil
}
