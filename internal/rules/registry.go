package rules

import (
	"sync"

	"github.com/shaiso/Poller/internal/domain"
)

// Registry — действия по ID правила.
//
// Правило без зарегистрированного действия выполняется действием по
// умолчанию.
type Registry struct {
	mu       sync.RWMutex
	actions  map[string]domain.Action
	fallback domain.Action
}

// NewRegistry создаёт реестр с действием по умолчанию.
func NewRegistry(fallback domain.Action) *Registry {
	return &Registry{
		actions:  make(map[string]domain.Action),
		fallback: fallback,
	}
}

// Register добавляет действие для правила.
func (r *Registry) Register(ruleID string, action domain.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[ruleID] = action
}

// Get возвращает действие правила. nil, если нет ни правила, ни
// действия по умолчанию: такая задача завершится non-retryable.
func (r *Registry) Get(ruleID string) domain.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if action, ok := r.actions[ruleID]; ok {
		return action
	}
	return r.fallback
}
