package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/chatbridge/chatbridge/internal/config"
)

// apiVersion is the provider API version header required on every call.
const apiVersion = "2021-07-28"

// SendResponse is what the provider returns after accepting an inbound
// message into a conversation.
type SendResponse struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	ContactID      string `json:"contactId"`
	DateAdded      string `json:"dateAdded"`
}

// Contact is the provider's contact record, reduced to the fields we use.
type Contact struct {
	ID          string `json:"id"`
	LocationID  string `json:"locationId"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	ContactName string `json:"contactName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

// DisplayName picks the best available name for a contact.
func (c Contact) DisplayName() string {
	if c.ContactName != "" {
		return c.ContactName
	}
	if c.FirstName != "" || c.LastName != "" {
		name := c.FirstName
		if c.LastName != "" {
			if name != "" {
				name += " "
			}
			name += c.LastName
		}
		return name
	}
	if c.Email != "" {
		return c.Email
	}
	if c.Phone != "" {
		return c.Phone
	}
	return "Unknown Contact"
}

// ProviderMessage is one message in a provider conversation listing.
type ProviderMessage struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	MessageType string `json:"messageType"`
	Direction   string `json:"direction"`
	Body        string `json:"body"`
	Status      string `json:"status"`
	DateAdded   string `json:"dateAdded"`
}

// UpsertContactParams is the minimal contact shape we push to the provider.
type UpsertContactParams struct {
	LocationID string `json:"locationId"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// Client calls the CRM provider's messaging and contact endpoints. The caller
// supplies the access token per call; the client holds no credential state.
type Client struct {
	baseURL    string
	providerID string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(log *slog.Logger, cfg config.CRMConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    cfg.APIBaseURL,
		providerID: cfg.ConversationProviderID,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("service", "crm_api")),
	}
}

// providerPath builds a path under the registered conversation provider.
// Message endpoints are scoped to the provider registration, not global.
func (c *Client) providerPath(suffix string) (string, error) {
	if c.providerID == "" {
		return "", fmt.Errorf("conversation provider id is not configured")
	}
	return "/conversations/providers/" + url.PathEscape(c.providerID) + suffix, nil
}

// SendInbound posts a message into a provider conversation.
func (c *Client) SendInbound(ctx context.Context, accessToken string, payload any) (SendResponse, error) {
	path, err := c.providerPath("/inbound")
	if err != nil {
		return SendResponse{}, err
	}
	var out SendResponse
	if err := c.do(ctx, accessToken, http.MethodPost, path, payload, &out); err != nil {
		return SendResponse{}, err
	}
	return out, nil
}

// UpdateMessageStatus reports delivery status for a message we originated.
func (c *Client) UpdateMessageStatus(ctx context.Context, accessToken, messageID, status string) error {
	path, err := c.providerPath("/messages/" + url.PathEscape(messageID) + "/status")
	if err != nil {
		return err
	}
	body := map[string]string{"status": status}
	return c.do(ctx, accessToken, http.MethodPut, path, body, nil)
}

// GetContact fetches a contact by id.
func (c *Client) GetContact(ctx context.Context, accessToken, contactID string) (Contact, error) {
	var out struct {
		Contact Contact `json:"contact"`
	}
	err := c.do(ctx, accessToken, http.MethodGet, "/contacts/"+url.PathEscape(contactID), nil, &out)
	if err != nil {
		return Contact{}, err
	}
	return out.Contact, nil
}

// UpsertContact creates or updates a contact in the provider.
func (c *Client) UpsertContact(ctx context.Context, accessToken string, params UpsertContactParams) (Contact, error) {
	var out struct {
		Contact Contact `json:"contact"`
	}
	err := c.do(ctx, accessToken, http.MethodPost, "/contacts/upsert", params, &out)
	if err != nil {
		return Contact{}, err
	}
	return out.Contact, nil
}

// ConversationMessages lists messages in a provider conversation, newest
// first, up to limit.
func (c *Client) ConversationMessages(ctx context.Context, accessToken, conversationID string, limit int) ([]ProviderMessage, error) {
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Messages struct {
			Messages []ProviderMessage `json:"messages"`
		} `json:"messages"`
	}
	if err := c.do(ctx, accessToken, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages.Messages, nil
}

func (c *Client) do(ctx context.Context, accessToken, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Version", apiVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{Op: method + " " + path, Status: resp.StatusCode, Body: string(raw)}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}
