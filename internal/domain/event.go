package domain

import (
	"fmt"
	"strings"
)

// Event — единица работы из upstream-журнала.
//
// Event создаётся источником событий (или Batcher'ом) и не изменяется
// после создания. Каждый sub-task ссылается на event только на чтение,
// связь sub-task → event — по Event.ID.
type Event struct {
	// ID — идентификатор события, уникален в пределах одного poll-цикла.
	ID string `json:"id"`

	// AssetIDs — упорядоченный непустой список связанных assets.
	AssetIDs []string `json:"asset_ids"`
}

// NewEvent создаёт Event с проверкой инвариантов.
//
// Список assets копируется, чтобы вызывающий код не мог изменить event.
func NewEvent(id string, assetIDs ...string) (Event, error) {
	if strings.TrimSpace(id) == "" {
		return Event{}, fmt.Errorf("%w: empty id", ErrInvalidEvent)
	}
	if len(assetIDs) == 0 {
		return Event{}, fmt.Errorf("%w: event %s has no assets", ErrInvalidEvent, id)
	}
	for i, a := range assetIDs {
		if a == "" {
			return Event{}, fmt.Errorf("%w: event %s has empty asset at position %d", ErrInvalidEvent, id, i)
		}
	}

	assets := make([]string, len(assetIDs))
	copy(assets, assetIDs)

	return Event{ID: id, AssetIDs: assets}, nil
}

// Validate проверяет, что event удовлетворяет инвариантам NewEvent.
// Используется для events, пришедших из внешних источников (БД, MQ).
func (e Event) Validate() error {
	_, err := NewEvent(e.ID, e.AssetIDs...)
	return err
}
