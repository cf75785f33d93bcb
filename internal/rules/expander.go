package rules

import (
	"context"
	"fmt"

	"github.com/shaiso/Poller/internal/domain"
)

// Expander строит RuleTask для каждой пары (asset, rule).
type Expander struct {
	cache    *Cache
	registry *Registry
}

// NewExpander создаёт Expander.
func NewExpander(cache *Cache, registry *Registry) *Expander {
	if cache == nil {
		cache = NewCache()
	}
	if registry == nil {
		registry = NewRegistry(nil)
	}
	return &Expander{cache: cache, registry: registry}
}

// Expand раскрывает event: assets в порядке event, правила в порядке кэша.
func (e *Expander) Expand(ctx context.Context, ev *domain.Event) ([]domain.SubTask, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil event", domain.ErrInvalidEvent)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tasks []domain.SubTask
	for _, asset := range ev.AssetIDs {
		for _, rule := range e.cache.Rules(asset) {
			tasks = append(tasks, domain.NewRuleTask(ev, asset, rule, e.registry.Get(rule)))
		}
	}
	return tasks, nil
}
