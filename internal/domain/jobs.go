package domain

import (
	"context"
	"time"
)

// DigestJobCause описывает источник запроса на дайджест.
type DigestJobCause string

const (
	// DigestCauseManual — пользователь запросил дайджест вручную.
	DigestCauseManual DigestJobCause = "manual"
	// DigestCauseScheduled — дайджест запланирован по расписанию.
	DigestCauseScheduled DigestJobCause = "scheduled"
)

// DigestEntry — одна позиция отфильтрованного дайджеста.
type DigestEntry struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	SourceID  string `json:"source_id"`
	EventType string `json:"event_type"`
	Score     int    `json:"score"`
}

// DigestJob содержит задачу на рендеринг и отправку дайджеста.
// Рендеринг и доставка выполняются внешним коллаборатором.
type DigestJob struct {
	ID      string         `json:"job_id,omitempty"`
	UserID  int64          `json:"user_id"`
	FiredAt string         `json:"fired_at"`
	Date    string         `json:"date"`
	Cause   DigestJobCause `json:"cause"`
	Entries []DigestEntry  `json:"entries"`
	Stats   FilterStats    `json:"stats"`

	RequestedAt time.Time `json:"requested_at"`
}

// DigestQueue описывает очередь задач на дайджесты.
type DigestQueue interface {
	Enqueue(ctx context.Context, job DigestJob) error
	Pop(ctx context.Context) (DigestJob, error)
}
