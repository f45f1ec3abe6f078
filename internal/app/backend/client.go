package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"chatrelay/internal/pkg/logx"
)

const (
	// CurrentUserPath is the identity endpoint, relative to the backend base URL.
	CurrentUserPath = "/api/users/me"

	// MessagesPath is the message collection endpoint, relative to the backend base URL.
	MessagesPath = "/api/messages"

	// maxResponseBytes caps how much of a backend response body is read.
	maxResponseBytes = 1 << 20
)

// ClientConfig holds what the HTTP client needs to reach the backend.
type ClientConfig struct {
	// BaseURL is the backend root, e.g. http://localhost:1337.
	BaseURL string

	// APIToken is the service-level bearer credential used to store messages.
	// When empty, messages are stored with the sender's own token.
	APIToken string

	// HTTPClient is the client used for every call; http.DefaultClient when nil.
	HTTPClient *http.Client
}

// Client implements IdentityService and MessageStore over the backend's REST API.
// Deadlines come from the caller's context.
type Client struct {
	baseURL  string
	apiToken string
	http     *http.Client
	logger   zerolog.Logger
}

// NewClient constructs a Client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiToken: cfg.APIToken,
		http:     httpClient,
		logger:   logx.Component("backend"),
	}
}

// currentUserResponse mirrors the fields of the backend's "me" document the relay uses.
type currentUserResponse struct {
	DocumentID string          `json:"documentId"`
	ID         json.RawMessage `json:"id"`
	Username   string          `json:"username"`
}

// CurrentUser implements IdentityService.
func (c *Client) CurrentUser(ctx context.Context, token string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+CurrentUserPath, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("identity lookup: %w", err)
	}

	var me currentUserResponse
	if err := json.Unmarshal(body, &me); err != nil {
		return Identity{}, fmt.Errorf("identity lookup: %w: %v", ErrMalformedResponse, err)
	}

	id := me.DocumentID
	if id == "" {
		id = rawID(me.ID)
	}

	if id == "" || strings.TrimSpace(me.Username) == "" {
		return Identity{}, fmt.Errorf("identity lookup: %w: missing user id or username", ErrMalformedResponse)
	}

	return Identity{ID: id, Username: me.Username}, nil
}

// saveMessageRequest is the body expected by the message collection endpoint.
type saveMessageRequest struct {
	Data saveMessageData `json:"data"`
}

type saveMessageData struct {
	Content  string `json:"content"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
}

// SaveMessage implements MessageStore.
func (c *Client) SaveMessage(ctx context.Context, msg Message, senderToken string) error {
	payload, err := json.Marshal(saveMessageRequest{Data: saveMessageData{
		Content:  msg.Content,
		Sender:   msg.SenderID,
		Receiver: msg.ReceiverID,
	}})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+MessagesPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build store request: %w", err)
	}

	credential := c.apiToken
	if credential == "" {
		credential = senderToken
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if _, err := c.do(req); err != nil {
		return fmt.Errorf("store message: %w", err)
	}

	c.logger.Debug().
		Str("sender_id", msg.SenderID).
		Str("receiver_id", msg.ReceiverID).
		Msg("Message stored in backend.")

	return nil
}

// do executes req and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	return body, nil
}

// rawID renders a JSON id that may be a number or a string.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	return ""
}
