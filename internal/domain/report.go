package domain

import "time"

// Buckets — разрешённые контексты event, разложенные по Result.
type Buckets struct {
	Success      []TaskContext `json:"success"`
	Retryable    []TaskContext `json:"retryable"`
	NonRetryable []TaskContext `json:"non_retryable"`
}

// Add кладёт контекст в корзину по его Result.
// Контекст без Result считается retryable.
func (b *Buckets) Add(tc TaskContext) {
	switch tc.Result() {
	case ResultSuccess:
		b.Success = append(b.Success, tc)
	case ResultNonRetryable:
		b.NonRetryable = append(b.NonRetryable, tc)
	default:
		b.Retryable = append(b.Retryable, tc)
	}
}

// Get возвращает корзину для Result.
func (b Buckets) Get(r Result) []TaskContext {
	switch r {
	case ResultSuccess:
		return b.Success
	case ResultRetryable:
		return b.Retryable
	case ResultNonRetryable:
		return b.NonRetryable
	default:
		return nil
	}
}

// Counts возвращает размеры корзин.
func (b Buckets) Counts() map[Result]int {
	return map[Result]int{
		ResultSuccess:      len(b.Success),
		ResultRetryable:    len(b.Retryable),
		ResultNonRetryable: len(b.NonRetryable),
	}
}

// Total возвращает общее число контекстов.
func (b Buckets) Total() int {
	return len(b.Success) + len(b.Retryable) + len(b.NonRetryable)
}

// Report — итог обработки одного event.
//
// Report передаётся status sink'у. Verdict и размеры корзин —
// единственный внешний сигнал об ошибках.
type Report struct {
	// EventID — идентификатор event.
	EventID string `json:"event_id"`

	// Verdict — агрегированный итог.
	Verdict Verdict `json:"verdict"`

	// Buckets — контексты по Result.
	Buckets Buckets `json:"buckets"`

	// Submitted — сколько sub-tasks было отправлено.
	Submitted int `json:"submitted"`

	// TimedOut — сколько sub-tasks не завершилось к дедлайну join.
	TimedOut int `json:"timed_out,omitempty"`

	// Cause — почему event не дошёл до sub-tasks (ошибка раскрытия).
	Cause string `json:"cause,omitempty"`

	// StartedAt — начало обработки event.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — завершение агрегации.
	FinishedAt time.Time `json:"finished_at"`
}

// Counts возвращает размеры корзин.
func (r Report) Counts() map[Result]int {
	return r.Buckets.Counts()
}

// Duration возвращает продолжительность обработки.
func (r Report) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
