package api

import (
	"errors"
	"time"

	"github.com/shaiso/Poller/internal/domain"
	"github.com/shaiso/Poller/internal/executor"
	"github.com/shaiso/Poller/internal/repo"
	"github.com/shaiso/Poller/internal/status"
)

// --- Event DTOs ---

// CreateEventRequest — запрос на постановку event в очередь.
type CreateEventRequest struct {
	ID       string   `json:"id"`
	AssetIDs []string `json:"asset_ids"`
}

// Validate проверяет запрос.
func (r *CreateEventRequest) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	if len(r.AssetIDs) == 0 {
		return errors.New("asset_ids must not be empty")
	}
	return nil
}

// EventResponse — итог обработки event.
type EventResponse struct {
	EventID      string         `json:"event_id"`
	Verdict      domain.Verdict `json:"verdict"`
	Submitted    int            `json:"submitted"`
	Success      int            `json:"success"`
	Retryable    int            `json:"retryable"`
	NonRetryable int            `json:"non_retryable"`
	TimedOut     int            `json:"timed_out"`
	Cause        string         `json:"cause,omitempty"`
	Failures     []FailureInfo  `json:"failures,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	Source       string         `json:"source"`
}

// FailureInfo — неуспешный sub-task.
type FailureInfo struct {
	Result  domain.Result `json:"result"`
	AssetID string        `json:"asset_id,omitempty"`
	RuleID  string        `json:"rule_id,omitempty"`
	Cause   string        `json:"cause,omitempty"`
}

// Источники EventResponse.
const (
	SourceMemory = "memory"
	SourceStore  = "store"
)

// EventFromReport конвертирует domain.Report в EventResponse.
func EventFromReport(r domain.Report) EventResponse {
	resp := EventResponse{
		EventID:      r.EventID,
		Verdict:      r.Verdict,
		Submitted:    r.Submitted,
		Success:      len(r.Buckets.Success),
		Retryable:    len(r.Buckets.Retryable),
		NonRetryable: len(r.Buckets.NonRetryable),
		TimedOut:     r.TimedOut,
		Cause:        r.Cause,
		Source:       SourceMemory,
	}
	if !r.StartedAt.IsZero() {
		resp.StartedAt = &r.StartedAt
	}
	if !r.FinishedAt.IsZero() {
		resp.FinishedAt = &r.FinishedAt
	}

	for _, bucket := range [][]domain.TaskContext{r.Buckets.Retryable, r.Buckets.NonRetryable} {
		for _, tc := range bucket {
			resp.Failures = append(resp.Failures, FailureInfo{
				Result:  tc.Result(),
				AssetID: tc.AssetID(),
				RuleID:  tc.RuleID(),
				Cause:   tc.Cause(),
			})
		}
	}
	return resp
}

// EventFromRecord конвертирует repo.StatusRecord в EventResponse.
func EventFromRecord(r *repo.StatusRecord) EventResponse {
	return EventResponse{
		EventID:      r.EventID,
		Verdict:      r.Verdict,
		Submitted:    r.Submitted,
		Success:      r.Success,
		Retryable:    r.Retryable,
		NonRetryable: r.NonRetryable,
		TimedOut:     r.TimedOut,
		Cause:        r.Cause,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Source:       SourceStore,
	}
}

// --- Stats DTOs ---

// StatsResponse — состояние runner'а и сводка по отчётам.
type StatsResponse struct {
	Runner  *executor.Stats `json:"runner,omitempty"`
	Summary status.Summary  `json:"summary"`
}
