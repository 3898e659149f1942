package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	app_errors "ragchat/client/internal/errors"
	"ragchat/client/internal/model"
)

// Backend defines the contracts of the remote chat service the client talks to.
// Every failure is classified into the app_errors taxonomy before it is returned.
type Backend interface {
	Login(ctx context.Context, externalCredential string) (*LoginResponse, error)
	FetchStatus(ctx context.Context, auth http.Header) (*StatusResponse, error)
	Health(ctx context.Context, endpoint string) (*HealthResponse, error)
	Chat(ctx context.Context, auth http.Header, req *ChatRequest) (*ChatResponse, error)
	ListConversations(ctx context.Context, auth http.Header) ([]model.ConversationSummary, error)
	GetConversation(ctx context.Context, auth http.Header, conversationID string) ([]model.Message, error)
	DeleteConversation(ctx context.Context, auth http.Header, conversationID string) error
}

// Client is the HTTP implementation of Backend. Time bounds come from the
// caller's context, not from the http.Client.
type Client struct {
	client *http.Client

	mu      sync.RWMutex
	baseURL string
}

func NewClient(baseURL string) *Client {
	return &Client{
		client:  &http.Client{},
		baseURL: NormalizeBaseURL(baseURL),
	}
}

// SetBaseURL points every subsequent request at a new service.
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	c.baseURL = NormalizeBaseURL(baseURL)
	c.mu.Unlock()
}

func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func (c *Client) url(path string) string {
	return c.BaseURL() + path
}

// NormalizeBaseURL accepts either the service root or its chat endpoint.
func NormalizeBaseURL(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	return strings.TrimSuffix(endpoint, "/chat")
}

// HealthURL derives the health endpoint from a service root or chat endpoint.
func HealthURL(endpoint string) string {
	return NormalizeBaseURL(endpoint) + "/health"
}

func (c *Client) Login(ctx context.Context, externalCredential string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, c.url("/auth/google"), nil, &LoginRequest{Token: externalCredential}, &resp); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("login failed: %w: response carried no access token", app_errors.ErrService)
	}
	return &resp, nil
}

func (c *Client) FetchStatus(ctx context.Context, auth http.Header) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, c.url("/auth/me"), auth, nil, &resp); err != nil {
		return nil, fmt.Errorf("could not fetch user status: %w", err)
	}
	return &resp, nil
}

// Health probes endpoint rather than the client's base so the connection
// monitor can test an endpoint before anything else switches to it.
func (c *Client) Health(ctx context.Context, endpoint string) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, HealthURL(endpoint), nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != statusHealthy {
		return &resp, &app_errors.UnhealthyError{Status: resp.Status, Message: resp.Message}
	}
	return &resp, nil
}

func (c *Client) Chat(ctx context.Context, auth http.Header, req *ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, c.url("/chat"), auth, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListConversations(ctx context.Context, auth http.Header) ([]model.ConversationSummary, error) {
	var resp historyResponse
	if err := c.do(ctx, http.MethodGet, c.url("/history"), auth, nil, &resp); err != nil {
		return nil, fmt.Errorf("could not list conversations: %w", err)
	}
	summaries := make([]model.ConversationSummary, 0, len(resp.Conversations))
	for _, conv := range resp.Conversations {
		summaries = append(summaries, conv.toModel())
	}
	return summaries, nil
}

func (c *Client) GetConversation(ctx context.Context, auth http.Header, conversationID string) ([]model.Message, error) {
	var resp messagesResponse
	endpoint := c.url("/conversation/" + url.PathEscape(conversationID))
	if err := c.do(ctx, http.MethodGet, endpoint, auth, nil, &resp); err != nil {
		return nil, fmt.Errorf("could not fetch conversation %s: %w", conversationID, err)
	}
	messages := make([]model.Message, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		messages = append(messages, msg.toModel())
	}
	return messages, nil
}

func (c *Client) DeleteConversation(ctx context.Context, auth http.Header, conversationID string) error {
	endpoint := c.url("/conversation/" + url.PathEscape(conversationID))
	if err := c.do(ctx, http.MethodDelete, endpoint, auth, nil, nil); err != nil {
		return fmt.Errorf("could not delete conversation %s: %w", conversationID, err)
	}
	return nil
}

// do sends one JSON request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, endpoint string, auth http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("could not marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%w: could not create http request: %w", app_errors.ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for key, values := range auth {
		httpReq.Header[key] = append([]string(nil), values...)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return classifyTransport(ctx, err)
		}
		return fmt.Errorf("%w: could not decode response: %w", app_errors.ErrService, err)
	}
	return nil
}

func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", app_errors.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", app_errors.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", app_errors.ErrTransport, err)
}

// errorBody matches both `{"detail": "text"}` and
// `{"detail": {"message": "...", "upgrade_required": true}}`.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type errorDetail struct {
	Message         string `json:"message"`
	UpgradeRequired bool   `json:"upgrade_required"`
}

func classifyStatus(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail, upgrade := parseDetail(raw)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", app_errors.ErrUnauthorized, orDefault(detail, "credential rejected"))
	case resp.StatusCode == http.StatusForbidden && upgrade:
		return fmt.Errorf("%w: %s", app_errors.ErrQuotaExhausted, orDefault(detail, "upgrade required"))
	default:
		return &app_errors.ServiceError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Detail:     detail,
		}
	}
}

func parseDetail(raw []byte) (string, bool) {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return strings.TrimSpace(string(raw)), false
	}
	var text string
	if err := json.Unmarshal(body.Detail, &text); err == nil {
		return text, false
	}
	var detail errorDetail
	if err := json.Unmarshal(body.Detail, &detail); err == nil {
		return detail.Message, detail.UpgradeRequired
	}
	return string(body.Detail), false
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
