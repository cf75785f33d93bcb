package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// EventResponse — итог обработки event из API.
type EventResponse struct {
	EventID      string        `json:"event_id"`
	Verdict      string        `json:"verdict"`
	Submitted    int           `json:"submitted"`
	Success      int           `json:"success"`
	Retryable    int           `json:"retryable"`
	NonRetryable int           `json:"non_retryable"`
	TimedOut     int           `json:"timed_out"`
	Cause        string        `json:"cause,omitempty"`
	Failures     []FailureInfo `json:"failures,omitempty"`
	StartedAt    string        `json:"started_at,omitempty"`
	FinishedAt   string        `json:"finished_at,omitempty"`
	Source       string        `json:"source"`
}

// FailureInfo — неуспешный sub-task.
type FailureInfo struct {
	Result  string `json:"result"`
	AssetID string `json:"asset_id,omitempty"`
	RuleID  string `json:"rule_id,omitempty"`
	Cause   string `json:"cause,omitempty"`
}

// RunnerStats — состояние runner'а.
type RunnerStats struct {
	Queued    int64 `json:"queued"`
	Active    int64 `json:"active"`
	Available int   `json:"available"`
	Max       int   `json:"max"`
}

// SummaryResponse — сводка по отчётам.
type SummaryResponse struct {
	Events   int            `json:"events"`
	Verdicts map[string]int `json:"verdicts"`
	Results  map[string]int `json:"results"`
}

// StatsResponse — ответ /api/v1/stats.
type StatsResponse struct {
	Runner  *RunnerStats    `json:"runner,omitempty"`
	Summary SummaryResponse `json:"summary"`
}

// --- Request types ---

// CreateEventRequest — постановка event в очередь.
type CreateEventRequest struct {
	ID       string   `json:"id"`
	AssetIDs []string `json:"asset_ids"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для API poller'а.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Events ---

// ListEvents возвращает последние отчёты.
func (c *Client) ListEvents(limit int) ([]EventResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var events []EventResponse
	err := c.list("/api/v1/events", params, &events)
	return events, err
}

// GetEvent возвращает итог обработки event.
func (c *Client) GetEvent(id string) (*EventResponse, error) {
	var event EventResponse
	err := c.get("/api/v1/events/"+url.PathEscape(id), &event)
	return &event, err
}

// EnqueueEvent ставит event в очередь.
func (c *Client) EnqueueEvent(req CreateEventRequest) error {
	return c.post("/api/v1/events", req, nil)
}

// --- Stats ---

// Stats возвращает состояние runner'а и сводку.
func (c *Client) Stats() (*StatsResponse, error) {
	var stats StatsResponse
	err := c.get("/api/v1/stats", &stats)
	return &stats, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}
	return apiErr
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound проверяет, что API ответил 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
