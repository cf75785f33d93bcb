package batcher

import (
	"math/rand"
	"sync"

	"github.com/shaiso/Poller/internal/domain"
)

// CompletionPolicy решает, является ли event «завершающим» и нужна ли
// ему задача completion.
type CompletionPolicy interface {
	Include(ev *domain.Event) bool
}

// CompletionFunc — адаптер функции к CompletionPolicy.
type CompletionFunc func(ev *domain.Event) bool

// Include вызывает f.
func (f CompletionFunc) Include(ev *domain.Event) bool {
	return f(ev)
}

// Always добавляет completion каждому event.
func Always() CompletionPolicy {
	return CompletionFunc(func(*domain.Event) bool { return true })
}

// Never не добавляет completion.
func Never() CompletionPolicy {
	return CompletionFunc(func(*domain.Event) bool { return false })
}

// Probability добавляет completion с вероятностью p.
// rnd может быть nil — тогда используется собственный генератор.
func Probability(p float64, rnd *rand.Rand) CompletionPolicy {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	return &probability{p: p, rnd: rnd}
}

type probability struct {
	p float64

	// rand.Rand не потокобезопасен.
	mu  sync.Mutex
	rnd *rand.Rand
}

func (p *probability) Include(*domain.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Float64() < p.p
}
