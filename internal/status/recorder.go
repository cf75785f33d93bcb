package status

import (
	"context"
	"errors"
	"sync"

	"github.com/shaiso/Poller/internal/domain"
)

const defaultRecorderSize = 1000

// ErrNotFound — отчёт event не найден.
var ErrNotFound = errors.New("report not found")

// Summary — сводка по вердиктам с момента старта.
type Summary struct {
	Events   int                    `json:"events"`
	Verdicts map[domain.Verdict]int `json:"verdicts"`
	Results  map[domain.Result]int  `json:"results"`
}

// Recorder хранит последние отчёты в памяти.
//
// Хранится не более size отчётов: самый старый вытесняется. Сводка
// считается по всем отчётам.
type Recorder struct {
	mu      sync.RWMutex
	size    int
	order   []string
	reports map[string]domain.Report
	summary Summary
}

// NewRecorder создаёт Recorder на size отчётов (default: 1000).
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = defaultRecorderSize
	}
	return &Recorder{
		size:    size,
		reports: make(map[string]domain.Report, size),
		summary: Summary{
			Verdicts: make(map[domain.Verdict]int),
			Results:  make(map[domain.Result]int),
		},
	}
}

// Report запоминает отчёт.
func (r *Recorder) Report(ctx context.Context, report domain.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reports[report.EventID]; !ok {
		r.order = append(r.order, report.EventID)
	}
	r.reports[report.EventID] = report

	for len(r.order) > r.size {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.reports, oldest)
	}

	r.summary.Events++
	r.summary.Verdicts[report.Verdict]++
	for result, n := range report.Counts() {
		r.summary.Results[result] += n
	}
	return nil
}

// Get возвращает последний отчёт event.
func (r *Recorder) Get(ctx context.Context, eventID string) (domain.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report, ok := r.reports[eventID]
	if !ok {
		return domain.Report{}, ErrNotFound
	}
	return report, nil
}

// Recent возвращает до n последних отчётов, новые первыми.
func (r *Recorder) Recent(n int) []domain.Report {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > len(r.order) {
		n = len(r.order)
	}
	out := make([]domain.Report, 0, n)
	for i := len(r.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.reports[r.order[i]])
	}
	return out
}

// Summary возвращает копию сводки.
func (r *Recorder) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Summary{
		Events:   r.summary.Events,
		Verdicts: make(map[domain.Verdict]int, len(r.summary.Verdicts)),
		Results:  make(map[domain.Result]int, len(r.summary.Results)),
	}
	for k, v := range r.summary.Verdicts {
		s.Verdicts[k] = v
	}
	for k, v := range r.summary.Results {
		s.Results[k] = v
	}
	return s
}
