package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides typed access to the item service API for load generation and tooling.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status    int
	Message   string
	ErrorType string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	if e.ErrorType != "" {
		return fmt.Sprintf("api request failed (%d, %s): %s", e.Status, e.ErrorType, e.Message)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, errType := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg, ErrorType: errType}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) (string, string) {
	if body == nil {
		return "", ""
	}
	var payload struct {
		Message   string `json:"message"`
		ErrorType string `json:"errorType"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "", ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data)), ""
	}
	return strings.TrimSpace(payload.Message), payload.ErrorType
}

// Item mirrors the stored item record.
type Item struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	BlobKey   string    `json:"blobKey,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ItemWithContent is an item merged with its content document.
type ItemWithContent struct {
	Item
	Content json.RawMessage `json:"content"`
}

// ListItemsResponse is returned by GET /items.
type ListItemsResponse struct {
	Items []Item `json:"items"`
	Count int    `json:"count"`
}

// ListItems returns every stored item.
func (c *Client) ListItems(ctx context.Context) (ListItemsResponse, error) {
	var resp ListItemsResponse
	if err := c.do(ctx, http.MethodGet, "/items", nil, &resp); err != nil {
		return ListItemsResponse{}, err
	}
	return resp, nil
}

// GetItem fetches an item and its content.
func (c *Client) GetItem(ctx context.Context, id string) (ItemWithContent, error) {
	path := fmt.Sprintf("/items/%s", url.PathEscape(id))
	var item ItemWithContent
	if err := c.do(ctx, http.MethodGet, path, nil, &item); err != nil {
		return ItemWithContent{}, err
	}
	return item, nil
}

// PutItemInput is the POST /items body. ID and Content are optional.
type PutItemInput struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Content string `json:"content,omitempty"`
}

// PutItemResponse acknowledges a stored item.
type PutItemResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	BlobKey string `json:"blobKey"`
	Success bool   `json:"success"`
}

// PutItem stores an item.
func (c *Client) PutItem(ctx context.Context, input PutItemInput) (PutItemResponse, error) {
	var resp PutItemResponse
	if err := c.do(ctx, http.MethodPost, "/items", input, &resp); err != nil {
		return PutItemResponse{}, err
	}
	return resp, nil
}

// AlarmState reflects one alarm as reported by GET /alarms.
type AlarmState struct {
	Name         string    `json:"name"`
	Endpoint     string    `json:"endpoint"`
	Kind         string    `json:"kind"`
	Window       []bool    `json:"window"`
	Breaching    int       `json:"breaching"`
	Alarming     bool      `json:"alarming"`
	LastValue    float64   `json:"lastValue"`
	LastHasData  bool      `json:"lastHasData"`
	LastPeriod   time.Time `json:"lastPeriod"`
	TransitionAt time.Time `json:"transitionAt,omitempty"`
	Threshold    float64   `json:"threshold"`
}

// Alarms returns the current alarm states.
func (c *Client) Alarms(ctx context.Context) ([]AlarmState, error) {
	var states []AlarmState
	if err := c.do(ctx, http.MethodGet, "/alarms", nil, &states); err != nil {
		return nil, err
	}
	return states, nil
}
