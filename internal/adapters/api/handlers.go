package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"web3-digest-bot/internal/domain"
	"web3-digest-bot/internal/usecase/filter"
)

// Limits задаёт пределы выдачи читающего API.
type Limits struct {
	LookbackDays int
	TodayItems   int
	RecentItems  int
}

// Handler — читающий HTTP API поверх дневных партиций.
type Handler struct {
	logger zerolog.Logger
	store  domain.ItemStore
	filter *filter.Service
	loc    *time.Location
	limits Limits
}

// NewHandler создаёт обработчики API.
func NewHandler(logger zerolog.Logger, store domain.ItemStore, flt *filter.Service, loc *time.Location, limits Limits) *Handler {
	return &Handler{
		logger: logger.With().Str("component", "api").Logger(),
		store:  store,
		filter: flt,
		loc:    loc,
		limits: limits,
	}
}

// Routes регистрирует маршруты API.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/v1/news/today", h.today)
	r.Get("/api/v1/news/recent", h.recent)
	r.Get("/api/v1/news/signals", h.signals)
	r.Get("/api/v1/sources/status", h.sourceStatuses)
}

type itemDTO struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Author      string `json:"author,omitempty"`
	SourceID    string `json:"source_id"`
	Rank        int    `json:"rank"`
	FirstSeen   string `json:"first_seen"`
	LastSeen    string `json:"last_seen"`
	SeenCount   int    `json:"seen_count"`
}

type statusDTO struct {
	SourceID  string `json:"source_id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	LastFetch string `json:"last_fetch"`
	Status    string `json:"status"`
	ItemCount int    `json:"item_count"`
}

func (h *Handler) today(w http.ResponseWriter, r *http.Request) {
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	day, ok := h.day(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", h.limits.TodayItems, h.limits.TodayItems)

	items, err := h.store.TodayItems(r.Context(), day, category, limit)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"day":      day.String(),
		"category": category,
		"items":    toItemDTOs(items),
	})
}

func (h *Handler) recent(w http.ResponseWriter, r *http.Request) {
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	day, ok := h.day(w, r)
	if !ok {
		return
	}
	days := queryInt(r, "days", h.limits.LookbackDays, h.limits.LookbackDays)
	limit := queryInt(r, "limit", h.limits.RecentItems, h.limits.RecentItems)

	items, err := h.store.RecentItems(r.Context(), day, category, days, limit)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"until":    day.String(),
		"days":     days,
		"category": category,
		"items":    toItemDTOs(items),
	})
}

// signals классифицирует элементы дня с профилем по умолчанию и
// возвращает сводку по классам событий.
func (h *Handler) signals(w http.ResponseWriter, r *http.Request) {
	day, ok := h.day(w, r)
	if !ok {
		return
	}

	items, err := h.store.TodayItems(r.Context(), day, domain.CategoryNews, h.limits.TodayItems)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	scored, stats := h.filter.Apply(items, domain.DefaultProfile())
	summary := filter.Summarize(scored)

	highPriority := make([]map[string]any, 0, len(summary.HighPriority))
	for _, item := range summary.HighPriority {
		highPriority = append(highPriority, map[string]any{
			"title":      item.Title,
			"url":        item.URL,
			"source_id":  item.SourceID,
			"event_type": item.EventType,
			"score":      item.Score,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"day":           day.String(),
		"by_type":       summary.ByType,
		"high_priority": highPriority,
		"platforms":     summary.Platforms,
		"stats": map[string]any{
			"total":         stats.Total,
			"kept":          stats.Kept,
			"dropped":       stats.Dropped,
			"dropped_noise": stats.DroppedNoise,
			"dropped_block": stats.DroppedBlock,
		},
	})
}

func (h *Handler) sourceStatuses(w http.ResponseWriter, r *http.Request) {
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	day, ok := h.day(w, r)
	if !ok {
		return
	}

	statuses, err := h.store.SourceStatuses(r.Context(), day, category)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	dtos := make([]statusDTO, 0, len(statuses))
	for _, s := range statuses {
		dtos = append(dtos, statusDTO{
			SourceID:  s.SourceID,
			Name:      s.Name,
			URL:       s.URL,
			LastFetch: s.LastFetch,
			Status:    s.Status,
			ItemCount: s.ItemCount,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"day":      day.String(),
		"category": category,
		"sources":  dtos,
	})
}

// category читает раздел из запроса, по умолчанию news.
func (h *Handler) category(w http.ResponseWriter, r *http.Request) (domain.Category, bool) {
	raw := r.URL.Query().Get("category")
	if raw == "" {
		return domain.CategoryNews, true
	}
	category := domain.Category(raw)
	if category != domain.CategoryNews && category != domain.CategoryRSS {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "неизвестная категория"})
		return "", false
	}
	return category, true
}

// day читает ключ партиции из запроса, по умолчанию сегодня.
func (h *Handler) day(w http.ResponseWriter, r *http.Request) (domain.Day, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return domain.DayOf(time.Now(), h.loc), true
	}
	day, err := domain.ParseDay(raw, h.loc)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "дата должна иметь вид 2006-01-02"})
		return domain.Day{}, false
	}
	return day, true
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("запрос не обработан")
	respondJSON(w, http.StatusInternalServerError, map[string]any{"error": "внутренняя ошибка"})
}

func toItemDTOs(items []domain.StoredItem) []itemDTO {
	dtos := make([]itemDTO, 0, len(items))
	for _, it := range items {
		dtos = append(dtos, itemDTO{
			Title:       it.Title,
			URL:         it.URL,
			PublishedAt: it.PublishedAt,
			Summary:     it.Summary,
			Author:      it.Author,
			SourceID:    it.SourceID,
			Rank:        it.Rank,
			FirstSeen:   it.FirstSeen,
			LastSeen:    it.LastSeen,
			SeenCount:   it.SeenCount,
		})
	}
	return dtos
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// queryInt читает положительный целый параметр с верхней границей.
func queryInt(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return def
	}
	if max > 0 && value > max {
		return max
	}
	return value
}
