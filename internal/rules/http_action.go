package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/Poller/internal/domain"
	"github.com/shaiso/Poller/internal/telemetry"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPAction — проверка правила через удалённый сервис.
//
// POST на URL с контекстом задачи в JSON:
//
//	{"kind":"RULE","event_id":"...","asset_id":"...","rule_id":"..."}
//
// Ответ 2xx — успех. Сетевые ошибки, 408, 429 и 5xx — retryable,
// остальные 4xx — non-retryable.
type HTTPAction struct {
	// URL — адрес сервиса (обязательно).
	URL string

	// Headers — дополнительные заголовки запроса.
	Headers map[string]string

	// Timeout — таймаут одного запроса (default: 30s).
	Timeout time.Duration

	// Client (default: http.DefaultClient).
	Client *http.Client
}

// Execute выполняет HTTP-запрос.
func (a *HTTPAction) Execute(ctx context.Context, tc domain.TaskContext) error {
	if a.URL == "" {
		return domain.NonRetryable(ErrNoEvaluatorURL)
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(tc)
	if err != nil {
		return domain.NonRetryable(fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return domain.NonRetryable(fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err))
	}
	req.Header.Set("Content-Type", "application/json")
	for key, val := range a.Headers {
		req.Header.Set(key, val)
	}

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}

	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return domain.Retryable(fmt.Errorf("%w: %v", ErrHTTPRequest, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil && !errors.Is(err, io.EOF) {
		return domain.Retryable(fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err))
	}

	telemetry.FromContext(ctx).Debug("rule evaluated",
		"event_id", tc.EventID(),
		"asset_id", tc.AssetID(),
		"rule_id", tc.RuleID(),
		"status_code", resp.StatusCode,
		"duration", time.Since(started),
	)

	return classifyStatus(resp.StatusCode, respBody)
}

// classifyStatus отображает HTTP-код на класс ошибки.
func classifyStatus(statusCode int, body []byte) error {
	if statusCode < 400 {
		return nil
	}

	err := fmt.Errorf("%w: HTTP %d: %s", ErrHTTPRequest, statusCode, truncate(string(body), 200))
	if isRetryableStatus(statusCode) {
		return domain.Retryable(err)
	}
	return domain.NonRetryable(err)
}

// isRetryableStatus — коды, при которых повтор может помочь.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return statusCode >= 500
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
