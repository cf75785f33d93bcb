package poller

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений (секунды опциональны, @every и
// @hourly поддерживаются).
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule вычисляет время следующего tick.
//
// prev — запланированное время предыдущего tick.
type Schedule interface {
	Next(prev time.Time) time.Time
}

// FixedRate — tick каждые period от запланированного времени
// предыдущего, а не от его окончания.
func FixedRate(period time.Duration) Schedule {
	return fixedRate(period)
}

type fixedRate time.Duration

func (r fixedRate) Next(prev time.Time) time.Time {
	return prev.Add(time.Duration(r))
}

func (r fixedRate) String() string {
	return "every " + time.Duration(r).String()
}

// cronSchedule — расписание по cron-выражению.
type cronSchedule struct {
	expr     string
	schedule cron.Schedule
}

func (c cronSchedule) Next(prev time.Time) time.Time {
	// cron считает от текущего момента: пропущенные срабатывания не копятся.
	from := time.Now()
	if prev.After(from) {
		from = prev
	}
	return c.schedule.Next(from)
}

func (c cronSchedule) String() string {
	return c.expr
}

// ParseCron разбирает cron-выражение в Schedule.
func ParseCron(expr string) (Schedule, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return cronSchedule{expr: expr, schedule: schedule}, nil
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// nextAfter возвращает следующее время tick; если tick затянулся и
// время уже прошло, следующий tick срабатывает сразу, но только один.
func nextAfter(s Schedule, prev, now time.Time) time.Time {
	next := s.Next(prev)
	if next.Before(now) {
		return now
	}
	return next
}
