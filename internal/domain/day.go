package domain

import "time"

const dayLayout = "2006-01-02"

// Day — типизированный ключ дневной партиции хранилища.
// Значение всегда усечено до календарного дня в часовом поясе создания.
type Day struct {
	t time.Time
}

// DayOf возвращает ключ партиции для момента времени в указанном поясе.
func DayOf(t time.Time, loc *time.Location) Day {
	local := t.In(loc)
	return Day{t: time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)}
}

// ParseDay разбирает ключ партиции из строки вида 2006-01-02.
func ParseDay(value string, loc *time.Location) (Day, error) {
	t, err := time.ParseInLocation(dayLayout, value, loc)
	if err != nil {
		return Day{}, err
	}
	return Day{t: t}, nil
}

// String возвращает каноническое представление партиции.
func (d Day) String() string {
	return d.t.Format(dayLayout)
}

// Time возвращает полночь дня партиции.
func (d Day) Time() time.Time {
	return d.t
}

// AddDays сдвигает ключ на n календарных дней.
func (d Day) AddDays(n int) Day {
	return Day{t: d.t.AddDate(0, 0, n)}
}

// IsZero сообщает, что ключ не инициализирован.
func (d Day) IsZero() bool {
	return d.t.IsZero()
}
