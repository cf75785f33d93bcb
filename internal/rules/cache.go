package rules

import (
	"fmt"
	"sync"
)

// DefaultRules — правила, применяемые к asset без явной настройки.
var DefaultRules = []string{"rule0", "rule1", "rule2"}

// Cache — набор правил по asset.
//
// Cache безопасен для конкурентного использования: правила можно
// обновлять, пока poller раскрывает events.
type Cache struct {
	mu       sync.RWMutex
	byAsset  map[string][]string
	defaults []string
}

// NewCache создаёт Cache. Без defaults используется DefaultRules.
func NewCache(defaults ...string) *Cache {
	if len(defaults) == 0 {
		defaults = DefaultRules
	}
	return &Cache{
		byAsset:  make(map[string][]string),
		defaults: append([]string(nil), defaults...),
	}
}

// Set задаёт правила asset. Пустой список отключает проверки asset.
func (c *Cache) Set(assetID string, ruleIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byAsset[assetID] = append([]string{}, ruleIDs...)
}

// Load заменяет все явные настройки.
func (c *Cache) Load(byAsset map[string][]string) error {
	next := make(map[string][]string, len(byAsset))
	for asset, ids := range byAsset {
		if asset == "" {
			return fmt.Errorf("load rules: empty asset id")
		}
		for _, id := range ids {
			if id == "" {
				return fmt.Errorf("load rules: empty rule id for asset %s", asset)
			}
		}
		next[asset] = append([]string{}, ids...)
	}

	c.mu.Lock()
	c.byAsset = next
	c.mu.Unlock()
	return nil
}

// Rules возвращает копию правил asset.
func (c *Cache) Rules(assetID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids, ok := c.byAsset[assetID]
	if !ok {
		ids = c.defaults
	}
	return append([]string(nil), ids...)
}
