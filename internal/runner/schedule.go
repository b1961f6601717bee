// Package runner: оркестрация скана — расписание, пайплайн и фоновый
// воркер. Скан прогревает ценовой кэш по вселенной, гоняет стратегии,
// агрегирует сигналы, накладывает макро- и отчётные множители, сайзит
// позиции и раскладывает результат по хранилищам и уведомлениям.
package runner

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"equity_bot/internal/modules/config"
)

var weekdayNames = map[string]time.Weekday{
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
	"sun": time.Sunday, "sunday": time.Sunday,
}

// NextRun — ближайший момент строго после after, попадающий на
// scan_time в timezone и на один из weekdays. Пустой список дней
// означает ежедневный запуск.
func NextRun(after time.Time, cfg config.ScheduleConfig) (time.Time, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone))
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "load timezone %q", cfg.Timezone)
	}

	hour, minute, sec, err := parseClock(cfg.ScanTime)
	if err != nil {
		return time.Time{}, err
	}

	days, err := parseWeekdays(cfg.Weekdays)
	if err != nil {
		return time.Time{}, err
	}

	local := after.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, sec, 0, loc)
	for i := 0; i < 8; i++ {
		if candidate.After(after) && (len(days) == 0 || days[candidate.Weekday()]) {
			return candidate, nil
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return time.Time{}, errors.New("no scheduled weekday within a week")
}

// parseClock принимает "HH:MM" и "HH:MM:SS".
func parseClock(value string) (hour, minute, sec int, err error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, perr := time.Parse(layout, value); perr == nil {
			return t.Hour(), t.Minute(), t.Second(), nil
		}
	}
	return 0, 0, 0, errors.Errorf("invalid scan time %q, expected HH:MM or HH:MM:SS", value)
}

func parseWeekdays(names []string) (map[time.Weekday]bool, error) {
	if len(names) == 0 {
		return nil, nil
	}
	days := make(map[time.Weekday]bool, len(names))
	for _, name := range names {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, errors.Errorf("unknown weekday %q", name)
		}
		days[day] = true
	}
	return days, nil
}
