package rules

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shaiso/Poller/internal/domain"
)

// Параметры симуляции по умолчанию.
const (
	DefaultNonRetryableRate = 0.02
	DefaultRetryableRate    = 0.03
	DefaultMinLatency       = 300 * time.Millisecond
	DefaultMaxLatency       = 600 * time.Millisecond
)

// SimAction — симуляция удалённого вызова.
//
// Ждёт случайную задержку в [MinLatency, MaxLatency], затем с
// вероятностью NonRetryableRate возвращает non-retryable ошибку, с
// вероятностью RetryableRate — retryable.
type SimAction struct {
	NonRetryableRate float64
	RetryableRate    float64
	MinLatency       time.Duration
	MaxLatency       time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimAction создаёт SimAction с параметрами по умолчанию.
// rnd может быть nil.
func NewSimAction(rnd *rand.Rand) *SimAction {
	return &SimAction{
		NonRetryableRate: DefaultNonRetryableRate,
		RetryableRate:    DefaultRetryableRate,
		MinLatency:       DefaultMinLatency,
		MaxLatency:       DefaultMaxLatency,
		rnd:              rnd,
	}
}

// NewSimCompletionAction — завершающая задача: только задержка, без ошибок.
func NewSimCompletionAction(rnd *rand.Rand) *SimAction {
	a := NewSimAction(rnd)
	a.NonRetryableRate = 0
	a.RetryableRate = 0
	return a
}

// Execute симулирует вызов.
func (a *SimAction) Execute(ctx context.Context, tc domain.TaskContext) error {
	latency, roll := a.draw()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.Retryable(ctx.Err())
		case <-timer.C:
		}
	}

	switch {
	case roll < a.NonRetryableRate:
		return domain.NonRetryable(fmt.Errorf("%w: %s", ErrSimulatedFailure, tc))
	case roll < a.NonRetryableRate+a.RetryableRate:
		return domain.Retryable(fmt.Errorf("%w: %s", ErrSimulatedFailure, tc))
	}
	return nil
}

// draw возвращает задержку и число для выбора исхода.
func (a *SimAction) draw() (time.Duration, float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rnd == nil {
		a.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	latency := a.MinLatency
	if spread := a.MaxLatency - a.MinLatency; spread > 0 {
		latency += time.Duration(a.rnd.Int63n(int64(spread) + 1))
	}
	return latency, a.rnd.Float64()
}
