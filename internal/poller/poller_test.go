package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Poller/internal/aggregator"
	"github.com/shaiso/Poller/internal/batcher"
	"github.com/shaiso/Poller/internal/domain"
	"github.com/shaiso/Poller/internal/executor"
	"github.com/shaiso/Poller/internal/gate"
	"github.com/shaiso/Poller/internal/safe"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixedCapacity int

func (c fixedCapacity) Available() int { return int(c) }

type fakeBatcher struct {
	calls     atomic.Int64
	capacity  atomic.Int64
	batch     batcher.Batch
	err       error
	panicWith any
}

func (b *fakeBatcher) NextBatch(ctx context.Context, capacity int) (batcher.Batch, error) {
	n := b.calls.Add(1)
	b.capacity.Store(int64(capacity))
	if b.panicWith != nil {
		panic(b.panicWith)
	}
	if b.err != nil && n%2 == 1 {
		return batcher.Batch{}, b.err
	}
	return b.batch, nil
}

type fakeAggregator struct {
	mu        sync.Mutex
	scheduled []string
	rejected  []string
}

func (a *fakeAggregator) Reject(ctx context.Context, eventID string, cause error) domain.Report {
	a.mu.Lock()
	a.rejected = append(a.rejected, eventID)
	a.mu.Unlock()
	return domain.Report{EventID: eventID, Verdict: aggregator.RejectVerdict(cause)}
}

func (a *fakeAggregator) Schedule(ctx context.Context, eventID string, tasks []domain.SubTask) *executor.Future[domain.Report] {
	a.mu.Lock()
	a.scheduled = append(a.scheduled, eventID)
	a.mu.Unlock()
	return executor.Completed(domain.Report{EventID: eventID}, nil)
}

func (a *fakeAggregator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.scheduled)
}

func twoEventBatch() batcher.Batch {
	ev1, _ := domain.NewEvent("event0", "asset1")
	ev2, _ := domain.NewEvent("event1", "asset1")
	return batcher.Batch{
		Groups: map[string][]domain.SubTask{
			"event0": {domain.NewRuleTask(&ev1, "asset1", "rule0", nil), domain.NewRuleTask(&ev1, "asset1", "rule1", nil)},
			"event1": {domain.NewRuleTask(&ev2, "asset1", "rule0", nil)},
		},
		Events: map[string]*domain.Event{"event0": &ev1, "event1": &ev2},
		Order:  []string{"event0", "event1"},
		Failed: map[string]error{"bad": errors.New("no rules")},
	}
}

func TestTick_SchedulesEveryGroup(t *testing.T) {
	b := &fakeBatcher{batch: twoEventBatch()}
	agg := &fakeAggregator{}
	p := New(Config{Runner: fixedCapacity(20), Batcher: b, Aggregator: agg, Logger: discard})

	summary := p.Tick(context.Background())

	if summary.Err != nil {
		t.Fatalf("unexpected error: %v", summary.Err)
	}
	if summary.ID == "" {
		t.Error("tick must have an ID")
	}
	if b.capacity.Load() != 20 || summary.Capacity != 20 {
		t.Errorf("capacity = %d, want 20", summary.Capacity)
	}
	if summary.Events != 2 || summary.SubTasks != 3 || summary.Failed != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if agg.scheduled[0] != "event0" || agg.scheduled[1] != "event1" {
		t.Errorf("events scheduled out of order: %v", agg.scheduled)
	}
	if len(agg.rejected) != 1 || agg.rejected[0] != "bad" {
		t.Errorf("expected the failed event to be rejected, got %v", agg.rejected)
	}
}

func TestTick_ErrorsAreContained(t *testing.T) {
	t.Run("source error", func(t *testing.T) {
		b := &fakeBatcher{err: errors.New("journal down")}
		agg := &fakeAggregator{}
		p := New(Config{Runner: fixedCapacity(10), Batcher: b, Aggregator: agg, Logger: discard})

		summary := p.Tick(context.Background())
		if summary.Err == nil {
			t.Fatal("expected error in summary")
		}
		if agg.count() != 0 {
			t.Error("nothing must be scheduled on source error")
		}
	})

	t.Run("batcher panic", func(t *testing.T) {
		b := &fakeBatcher{panicWith: "bug"}
		p := New(Config{Runner: fixedCapacity(10), Batcher: b, Aggregator: &fakeAggregator{}, Logger: discard})

		summary := p.Tick(context.Background())
		if !safe.IsPanic(summary.Err) {
			t.Errorf("expected PanicError, got %v", summary.Err)
		}
	})
}

type tickCounter struct {
	mu        sync.Mutex
	summaries []TickSummary
}

func (c *tickCounter) Ticked(s TickSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summaries = append(c.summaries, s)
}

func (c *tickCounter) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.summaries)
}

func TestPoller_ScheduleSurvivesFailures(t *testing.T) {
	b := &fakeBatcher{batch: twoEventBatch(), err: errors.New("flaky source")}
	agg := &fakeAggregator{}
	obs := &tickCounter{}
	p := New(Config{
		Runner:       fixedCapacity(20),
		Batcher:      b,
		Aggregator:   agg,
		InitialDelay: time.Millisecond,
		Period:       5 * time.Millisecond,
		Observer:     obs,
		Logger:       discard,
	})

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for obs.len() < 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	p.Stop()

	if !p.IsStopped() {
		t.Error("expected poller to be stopped")
	}
	if obs.len() < 4 {
		t.Fatalf("expected at least 4 ticks, got %d", obs.len())
	}

	failed := 0
	for _, s := range obs.summaries {
		if s.Err != nil {
			failed++
		}
	}
	if failed == 0 || agg.count() == 0 {
		t.Errorf("expected both failed and successful ticks (failed=%d scheduled=%d)", failed, agg.count())
	}

	// Tick'ов после Stop нет
	n := b.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if b.calls.Load() != n {
		t.Error("poller ticked after Stop")
	}
}

func TestNextAfter(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rate := FixedRate(5 * time.Second)

	// on time: next = previous start + period
	if got := nextAfter(rate, base, base.Add(2*time.Second)); !got.Equal(base.Add(5 * time.Second)) {
		t.Errorf("next = %v, want %v", got, base.Add(5*time.Second))
	}

	// overrun: fire immediately, once
	now := base.Add(17 * time.Second)
	if got := nextAfter(rate, base, now); !got.Equal(now) {
		t.Errorf("next = %v, want %v", got, now)
	}
}

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"*/10 * * * * *", false},
		{"@every 2s", false},
		{"@hourly", false},
		{"not a cron", true},
		{"61 * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := ParseCron(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
			if (ValidateCronExpr(tt.expr) != nil) != tt.wantErr {
				t.Errorf("ValidateCronExpr(%q) disagrees with ParseCron", tt.expr)
			}
			if err == nil {
				if next := s.Next(time.Now()); !next.After(time.Now()) {
					t.Errorf("Next() = %v, want a future time", next)
				}
			}
		})
	}
}

func TestTick_EndToEnd(t *testing.T) {
	runner := executor.New(gate.New(20), executor.WithLogger(discard))

	var mu sync.Mutex
	var reports []domain.Report
	agg := aggregator.New(runner, aggregator.Config{
		Logger: discard,
		Sink: aggregator.SinkFunc(func(ctx context.Context, r domain.Report) error {
			mu.Lock()
			defer mu.Unlock()
			reports = append(reports, r)
			return nil
		}),
	})

	var fetched atomic.Int64
	b := batcher.New(batcher.Config{
		Logger: discard,
		Source: batcher.SourceFunc(func(ctx context.Context, max int) ([]domain.Event, error) {
			fetched.Add(int64(max))
			out := make([]domain.Event, 0, max)
			for i := 0; i < max; i++ {
				ev, _ := domain.NewEvent(fmt.Sprintf("event%d", i), "asset1", "asset2", "asset3")
				out = append(out, ev)
			}
			return out, nil
		}),
		Expander: batcher.ExpanderFunc(func(ctx context.Context, ev *domain.Event) ([]domain.SubTask, error) {
			var tasks []domain.SubTask
			for _, asset := range ev.AssetIDs {
				tasks = append(tasks, domain.NewRuleTask(ev, asset, "rule0",
					domain.ActionFunc(func(ctx context.Context, tc domain.TaskContext) error { return nil })))
			}
			return tasks, nil
		}),
	})

	p := New(Config{Runner: runner, Batcher: b, Aggregator: agg, Logger: discard})
	summary := p.Tick(context.Background())

	if summary.Events != 2 || summary.SubTasks != 6 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if fetched.Load() != 2 {
		t.Errorf("fetched %d events, want 2", fetched.Load())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(reports)
		mu.Unlock()
		if n == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	runner.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	for _, r := range reports {
		if r.Verdict != domain.VerdictAllSuccess || r.Buckets.Total() != 3 {
			t.Errorf("unexpected report %s: %s/%d", r.EventID, r.Verdict, r.Buckets.Total())
		}
	}
	if s := runner.Stats(); s.Active != 0 || s.Queued != 0 || s.Available != 20 {
		t.Errorf("runner not drained: %+v", s)
	}
}

type reportLog struct {
	mu      sync.Mutex
	reports map[string][]domain.Report
}

func newReportLog() *reportLog {
	return &reportLog{reports: map[string][]domain.Report{}}
}

func (l *reportLog) Report(ctx context.Context, r domain.Report) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports[r.EventID] = append(l.reports[r.EventID], r)
	return nil
}

func (l *reportLog) get(id string) []domain.Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reports[id]
}

func (l *reportLog) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, rs := range l.reports {
		n += len(rs)
	}
	return n
}

// waitDrained ждёт завершения всей работы runner'а.
func waitDrained(t *testing.T, runner *executor.Runner, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		runner.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("runner did not drain in %s: %+v", timeout, runner.Stats())
	}
}

func TestTick_ReportsRejectedEvents(t *testing.T) {
	runner := executor.New(gate.New(100), executor.WithLogger(discard))
	sink := newReportLog()
	agg := aggregator.New(runner, aggregator.Config{Sink: sink, Logger: discard})

	ok, _ := domain.NewEvent("ok", "asset1")
	broken, _ := domain.NewEvent("broken", "asset1")
	unknown, _ := domain.NewEvent("unknown", "asset9")
	events := []domain.Event{ok, {ID: "empty"}, broken, unknown, ok}

	b := batcher.New(batcher.Config{
		Logger: discard,
		Source: batcher.SourceFunc(func(ctx context.Context, max int) ([]domain.Event, error) {
			return events, nil
		}),
		Expander: batcher.ExpanderFunc(func(ctx context.Context, ev *domain.Event) ([]domain.SubTask, error) {
			switch ev.ID {
			case "broken":
				return nil, errors.New("rule cache unavailable")
			case "unknown":
				return nil, domain.NonRetryablef("no rules for %s", ev.AssetIDs[0])
			}
			return []domain.SubTask{domain.NewRuleTask(ev, ev.AssetIDs[0], "rule0",
				domain.ActionFunc(func(ctx context.Context, tc domain.TaskContext) error { return nil }))}, nil
		}),
	})

	p := New(Config{Runner: runner, Batcher: b, Aggregator: agg, Logger: discard})
	summary := p.Tick(context.Background())
	waitDrained(t, runner, 2*time.Second)

	if summary.Events != 1 || summary.Failed != 4 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	tests := []struct {
		id      string
		verdict domain.Verdict
		cause   bool
	}{
		{"ok", domain.VerdictAllSuccess, false},
		{"empty", domain.VerdictAllNonRetryable, true},
		{"broken", domain.VerdictAllRetryable, true},
		{"unknown", domain.VerdictAllNonRetryable, true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			reports := sink.get(tt.id)
			if len(reports) != 1 {
				t.Fatalf("expected exactly one report, got %d", len(reports))
			}
			r := reports[0]
			if r.Verdict != tt.verdict {
				t.Errorf("verdict = %s, want %s", r.Verdict, tt.verdict)
			}
			if (r.Cause != "") != tt.cause {
				t.Errorf("cause = %q", r.Cause)
			}
			if tt.cause && (r.Buckets.Total() != 0 || r.Submitted != 0) {
				t.Errorf("rejected event must have empty buckets: %+v", r)
			}
		})
	}
}

func TestTick_AggregatorsNeverStarveSubTasks(t *testing.T) {
	tests := []struct {
		name     string
		permits  int
		fraction float64
		adaptive bool
	}{
		{"whole capacity requested", 4, 1, false},
		{"half capacity", 4, 0.5, false},
		{"odd permits", 5, 0.5, false},
		{"two permits", 2, 1, false},
		{"single permit", 1, 1, false},
		{"adaptive single sub-task", 4, 0.5, true},
		{"adaptive many permits", 64, 0.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := executor.New(gate.New(tt.permits), executor.WithLogger(discard))
			sink := newReportLog()
			agg := aggregator.New(runner, aggregator.Config{Sink: sink, Logger: discard})

			var seq atomic.Int64
			b := batcher.New(batcher.Config{
				BatchFraction: tt.fraction,
				Adaptive:      tt.adaptive,
				Logger:        discard,
				Source: batcher.SourceFunc(func(ctx context.Context, max int) ([]domain.Event, error) {
					out := make([]domain.Event, 0, max)
					for i := 0; i < max; i++ {
						ev, _ := domain.NewEvent(fmt.Sprintf("event%d", seq.Add(1)), "asset1")
						out = append(out, ev)
					}
					return out, nil
				}),
				Expander: batcher.ExpanderFunc(func(ctx context.Context, ev *domain.Event) ([]domain.SubTask, error) {
					return []domain.SubTask{domain.NewRuleTask(ev, "asset1", "rule0",
						domain.ActionFunc(func(ctx context.Context, tc domain.TaskContext) error {
							time.Sleep(time.Millisecond)
							return nil
						}))}, nil
				}),
			})

			p := New(Config{Runner: runner, Batcher: b, Aggregator: agg, Logger: discard})

			// tick'и подряд, не дожидаясь отправленной работы
			scheduled := 0
			for i := 0; i < 30; i++ {
				scheduled += p.Tick(context.Background()).Events
			}

			waitDrained(t, runner, 5*time.Second)

			if got := sink.total(); got != scheduled {
				t.Errorf("reported %d of %d events", got, scheduled)
			}
			if s := runner.Stats(); s.Active != 0 || s.Queued != 0 || s.Available != tt.permits {
				t.Errorf("runner not drained: %+v", s)
			}
		})
	}
}
