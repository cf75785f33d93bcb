package batcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/shaiso/Poller/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSource генерирует events с тремя assets.
type fakeSource struct {
	calls     int
	requested []int
	err       error
	events    []domain.Event
}

func (s *fakeSource) Fetch(ctx context.Context, max int) ([]domain.Event, error) {
	s.calls++
	s.requested = append(s.requested, max)
	if s.err != nil {
		return nil, s.err
	}
	if s.events != nil {
		return s.events, nil
	}
	out := make([]domain.Event, 0, max)
	for i := 0; i < max; i++ {
		ev, _ := domain.NewEvent(fmt.Sprintf("event%d", i), "asset1", "asset2", "asset3")
		out = append(out, ev)
	}
	return out, nil
}

var ok = domain.ActionFunc(func(ctx context.Context, tc domain.TaskContext) error { return nil })

// threeRules раскрывает каждый asset в rule0..rule2.
var threeRules = ExpanderFunc(func(ctx context.Context, ev *domain.Event) ([]domain.SubTask, error) {
	var tasks []domain.SubTask
	for _, asset := range ev.AssetIDs {
		for r := 0; r < 3; r++ {
			tasks = append(tasks, domain.NewRuleTask(ev, asset, fmt.Sprintf("rule%d", r), ok))
		}
	}
	return tasks, nil
})

func newBatcher(src Source, exp Expander, policy CompletionPolicy) *Batcher {
	return New(Config{
		Source:     src,
		Expander:   exp,
		Completion: policy,
		Logger:     discard,
	})
}

func TestEventsFor(t *testing.T) {
	tests := []struct {
		name     string
		fraction float64
		capacity int
		want     int
	}{
		{"capacity 20", 0.1, 20, 2},
		{"capacity 0", 0.1, 0, 0},
		{"negative capacity", 0.1, -5, 0},
		{"below one event", 0.1, 9, 0},
		{"default max", 0.1, 10000, 1000},
		{"quarter", 0.25, 10, 2},
		{"float rounding", 0.29, 100, 29},
		{"invalid fraction uses default", 0, 50, 5},
		{"half", 0.5, 10, 5},
		{"fraction above half is clamped", 1, 10, 5},
		{"single permit", 0.5, 1, 0},
		{"two permits", 0.5, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(Config{BatchFraction: tt.fraction, Logger: discard})
			if got := b.EventsFor(tt.capacity); got != tt.want {
				t.Errorf("EventsFor(%d) = %d, want %d", tt.capacity, got, tt.want)
			}
		})
	}
}

func TestNextBatch_ZeroCapacitySkipsSource(t *testing.T) {
	src := &fakeSource{}
	b := newBatcher(src, threeRules, Never())

	batch, err := b.NextBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("NextBatch: %v", err)
	}
	if batch.Len() != 0 {
		t.Errorf("expected empty batch, got %d events", batch.Len())
	}
	if src.calls != 0 {
		t.Errorf("source must not be called, got %d calls", src.calls)
	}
}

func TestNextBatch_GroupsByEvent(t *testing.T) {
	src := &fakeSource{}
	b := newBatcher(src, threeRules, Always())

	batch, err := b.NextBatch(context.Background(), 20)
	if err != nil {
		t.Fatalf("NextBatch: %v", err)
	}

	if len(src.requested) != 1 || src.requested[0] != 2 {
		t.Fatalf("expected one fetch of 2 events, got %v", src.requested)
	}
	if batch.Len() != 2 {
		t.Fatalf("expected 2 groups, got %d", batch.Len())
	}
	if batch.SubTasks() != 20 {
		t.Errorf("expected 20 sub-tasks, got %d", batch.SubTasks())
	}

	group := batch.Groups["event0"]
	if len(group) != 10 {
		t.Fatalf("expected 9 rules + completion, got %d", len(group))
	}

	// asset order, then rule order, completion last
	want := []struct{ asset, rule string }{
		{"asset1", "rule0"}, {"asset1", "rule1"}, {"asset1", "rule2"},
		{"asset2", "rule0"}, {"asset2", "rule1"}, {"asset2", "rule2"},
		{"asset3", "rule0"}, {"asset3", "rule1"}, {"asset3", "rule2"},
	}
	for i, w := range want {
		tc := group[i].Context()
		if tc.Kind() != domain.ContextKindRule || tc.AssetID() != w.asset || tc.RuleID() != w.rule {
			t.Errorf("task %d = %s, want %s/%s", i, tc, w.asset, w.rule)
		}
		if tc.Event() != batch.Events["event0"] {
			t.Errorf("task %d does not reference the batch event", i)
		}
	}
	if last := group[9].Context(); last.Kind() != domain.ContextKindCompletion {
		t.Errorf("expected completion task last, got %s", last)
	}

	for _, id := range batch.Order {
		for _, task := range batch.Groups[id] {
			if task.Context().EventID() != id {
				t.Errorf("task %s grouped under %s", task.Context(), id)
			}
		}
	}
}

func TestNextBatch_CompletionTaskRuns(t *testing.T) {
	b := newBatcher(&fakeSource{}, threeRules, Always())

	batch, err := b.NextBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("NextBatch: %v", err)
	}
	group := batch.Groups["event0"]
	tc, err := group[len(group)-1].Run(context.Background())
	if err != nil {
		t.Fatalf("completion Run: %v", err)
	}
	if tc.Result() != domain.ResultSuccess {
		t.Errorf("expected SUCCESS, got %s", tc.Result())
	}
}

func TestNextBatch_SourceError(t *testing.T) {
	sentinel := errors.New("journal unavailable")
	b := newBatcher(&fakeSource{err: sentinel}, threeRules, Never())

	batch, err := b.NextBatch(context.Background(), 100)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected source error, got %v", err)
	}
	if batch.Len() != 0 {
		t.Errorf("expected empty batch on error")
	}
}

func TestNextBatch_ExpansionFailureIsPerEvent(t *testing.T) {
	exp := ExpanderFunc(func(ctx context.Context, ev *domain.Event) ([]domain.SubTask, error) {
		switch ev.ID {
		case "event1":
			return nil, errors.New("rule cache miss")
		case "event2":
			panic("expander bug")
		}
		return threeRules(ctx, ev)
	})
	b := newBatcher(&fakeSource{}, exp, Never())

	batch, err := b.NextBatch(context.Background(), 40)
	if err != nil {
		t.Fatalf("NextBatch: %v", err)
	}

	if batch.Len() != 2 {
		t.Errorf("expected 2 expanded events, got %d", batch.Len())
	}
	if len(batch.Failed) != 2 {
		t.Errorf("expected 2 failed events, got %d", len(batch.Failed))
	}
	for _, id := range []string{"event1", "event2"} {
		if _, ok := batch.Groups[id]; ok {
			t.Errorf("%s must not be in groups", id)
		}
		if batch.Failed[id] == nil {
			t.Errorf("%s must be reported as failed", id)
		}
	}
}

func TestNextBatch_InvalidAndDuplicateEvents(t *testing.T) {
	good, _ := domain.NewEvent("a", "asset1")
	src := &fakeSource{events: []domain.Event{
		good,
		{ID: "b"},
		good,
	}}
	b := newBatcher(src, threeRules, Never())

	batch, err := b.NextBatch(context.Background(), 30)
	if err != nil {
		t.Fatalf("NextBatch: %v", err)
	}
	if batch.Len() != 1 {
		t.Errorf("expected 1 group, got %d", batch.Len())
	}
	if !errors.Is(batch.Failed["b"], domain.ErrInvalidEvent) {
		t.Errorf("expected invalid event error for b, got %v", batch.Failed["b"])
	}
	if !errors.Is(batch.Failed["a"], domain.ErrInvalidEvent) {
		t.Errorf("expected duplicate error for a, got %v", batch.Failed["a"])
	}
}

func TestAdaptiveFanout(t *testing.T) {
	b := New(Config{
		Source:        &fakeSource{},
		Expander:      threeRules,
		Completion:    Never(),
		BatchFraction: 0.5,
		Adaptive:      true,
		Logger:        discard,
	})

	// seeded so the first batch matches the fixed fraction
	if f := b.Fanout(); f != 1 {
		t.Fatalf("initial fanout = %f, want 1", f)
	}
	if got := b.EventsFor(100); got != 50 {
		t.Fatalf("EventsFor(100) = %d, want 50", got)
	}

	// Observed fan-out is 9, estimate moves towards it
	for i := 0; i < 50; i++ {
		if _, err := b.NextBatch(context.Background(), 100); err != nil {
			t.Fatalf("NextBatch: %v", err)
		}
	}

	if f := b.Fanout(); f < 8.9 || f > 9.0 {
		t.Errorf("fanout = %f, want about 9", f)
	}
	// 9 sub-tasks + 1 aggregator permit per event
	if got := b.EventsFor(100); got != 10 {
		t.Errorf("EventsFor(100) = %d, want 10", got)
	}
}

func TestAdaptiveFanout_SingleTaskEventsLeaveRoomForSubTasks(t *testing.T) {
	oneRule := ExpanderFunc(func(ctx context.Context, ev *domain.Event) ([]domain.SubTask, error) {
		return []domain.SubTask{domain.NewRuleTask(ev, ev.AssetIDs[0], "rule0", ok)}, nil
	})
	b := New(Config{
		Source:        &fakeSource{},
		Expander:      oneRule,
		Completion:    Never(),
		BatchFraction: 0.1,
		Adaptive:      true,
		Logger:        discard,
	})

	for i := 0; i < 100; i++ {
		if _, err := b.NextBatch(context.Background(), 100); err != nil {
			t.Fatalf("NextBatch: %v", err)
		}
	}
	if f := b.Fanout(); f < 1 || f > 1.01 {
		t.Fatalf("fanout = %f, want about 1", f)
	}

	for capacity := 0; capacity <= 200; capacity++ {
		n := b.EventsFor(capacity)
		// each event needs its aggregator permit plus at least one for a sub-task
		if 2*n > capacity {
			t.Fatalf("EventsFor(%d) = %d leaves no permits for sub-tasks", capacity, n)
		}
	}
	if got := b.EventsFor(100); got != 50 {
		t.Errorf("EventsFor(100) = %d, want 50", got)
	}
}

func TestProbability(t *testing.T) {
	p := Probability(0.5, rand.New(rand.NewSource(1)))
	included := 0
	for i := 0; i < 1000; i++ {
		if p.Include(nil) {
			included++
		}
	}
	if included < 400 || included > 600 {
		t.Errorf("included %d of 1000, want about 500", included)
	}

	if Probability(0, nil).Include(nil) {
		t.Error("p=0 must never include")
	}
	if !Probability(1, nil).Include(nil) {
		t.Error("p=1 must always include")
	}
}
