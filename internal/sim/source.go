package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Poller/internal/domain"
)

const defaultAssets = 3

// Source генерирует events с assets asset1..assetN.
//
// Limit > 0 ограничивает общее число events; после исчерпания Fetch
// возвращает пустой результат.
type Source struct {
	assets []string
	limit  int

	mu       sync.Mutex
	produced int
}

// NewSource создаёт генератор events с assets assets на event.
func NewSource(assets, limit int) *Source {
	if assets <= 0 {
		assets = defaultAssets
	}
	ids := make([]string, assets)
	for i := range ids {
		ids[i] = fmt.Sprintf("asset%d", i+1)
	}
	return &Source{assets: ids, limit: limit}
}

// Fetch возвращает до max новых events.
func (s *Source) Fetch(ctx context.Context, max int) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	n := max
	if s.limit > 0 {
		n = min(n, s.limit-s.produced)
	}
	if n <= 0 {
		s.mu.Unlock()
		return nil, nil
	}
	s.produced += n
	s.mu.Unlock()

	events := make([]domain.Event, 0, n)
	for range n {
		ev, err := domain.NewEvent(uuid.New().String(), s.assets...)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Produced возвращает число выданных events.
func (s *Source) Produced() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.produced
}
