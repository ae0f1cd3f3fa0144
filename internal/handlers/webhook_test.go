package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbridge/chatbridge/internal/accounts"
	"github.com/chatbridge/chatbridge/internal/conversations"
)

type memoryRouterStore struct {
	conversations map[string]conversations.Conversation
	messages      map[string]conversations.Message
	seq           int
	insertErr     error
}

func newMemoryRouterStore() *memoryRouterStore {
	return &memoryRouterStore{
		conversations: make(map[string]conversations.Conversation),
		messages:      make(map[string]conversations.Message),
	}
}

func (m *memoryRouterStore) GetByExternalConversationID(_ context.Context, accountID, externalID string) (conversations.Conversation, error) {
	for _, c := range m.conversations {
		if c.AccountID == accountID && c.ExternalConversationID == externalID {
			return c, nil
		}
	}
	return conversations.Conversation{}, conversations.ErrNotFound
}

func (m *memoryRouterStore) LatestActiveByContact(_ context.Context, accountID, contactID string) (conversations.Conversation, error) {
	for _, c := range m.conversations {
		if c.AccountID == accountID && c.ExternalContactID == contactID && c.Status == conversations.StatusActive {
			return c, nil
		}
	}
	return conversations.Conversation{}, conversations.ErrNotFound
}

func (m *memoryRouterStore) CreateOrFetchActive(ctx context.Context, conv conversations.Conversation) (conversations.Conversation, error) {
	if existing, err := m.LatestActiveByContact(ctx, conv.AccountID, conv.ExternalContactID); err == nil {
		return existing, nil
	}
	m.seq++
	conv.ID = fmt.Sprintf("conv-%d", m.seq)
	conv.Status = conversations.StatusActive
	m.conversations[conv.ID] = conv
	return conv, nil
}

func (m *memoryRouterStore) Touch(_ context.Context, _, _, _ string) error {
	return nil
}

func (m *memoryRouterStore) InsertMessage(_ context.Context, msg conversations.Message) (conversations.Message, bool, error) {
	if m.insertErr != nil {
		return conversations.Message{}, false, m.insertErr
	}
	key := msg.AccountID + "|" + msg.ExternalMessageID
	if msg.ExternalMessageID != "" {
		if existing, ok := m.messages[key]; ok {
			return existing, false, nil
		}
	}
	m.seq++
	msg.ID = fmt.Sprintf("msg-%d", m.seq)
	m.messages[key] = msg
	return msg, true, nil
}

type staticResolver struct{}

func (staticResolver) GetByLocationID(_ context.Context, locationID string) (accounts.Account, error) {
	if locationID != "loc-1" {
		return accounts.Account{}, accounts.ErrNotFound
	}
	return accounts.Account{ID: "7c9a2f5e-0b0f-4a0a-9d7d-4f1a2b3c4d5e"}, nil
}

func postWebhook(t *testing.T, handler *WebhookHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/crm/message", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.InboundMessage(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestInboundMessageAccepted(t *testing.T) {
	store := newMemoryRouterStore()
	handler := NewWebhookHandler(slog.Default(),
		conversations.NewRouter(slog.Default(), store, staticResolver{}))

	rec := postWebhook(t, handler,
		`{"type":"SMS","contactId":"c1","locationId":"loc-1","messageId":"m1","message":"hi"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "conversation_id")
	require.Len(t, store.messages, 1)
}

func TestInboundMessageRedelivery(t *testing.T) {
	store := newMemoryRouterStore()
	handler := NewWebhookHandler(slog.Default(),
		conversations.NewRouter(slog.Default(), store, staticResolver{}))

	body := `{"type":"SMS","contactId":"c1","locationId":"loc-1","messageId":"m1","message":"hi"}`
	first := postWebhook(t, handler, body)
	second := postWebhook(t, handler, body)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), `"duplicate":true`)
	assert.Len(t, store.messages, 1)
}

func TestInboundMessageUnknownLocation(t *testing.T) {
	handler := NewWebhookHandler(slog.Default(),
		conversations.NewRouter(slog.Default(), newMemoryRouterStore(), staticResolver{}))

	rec := postWebhook(t, handler,
		`{"type":"SMS","contactId":"c1","locationId":"loc-unknown","messageId":"m1","message":"hi"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInboundMessagePersistenceFailure(t *testing.T) {
	store := newMemoryRouterStore()
	store.insertErr = fmt.Errorf("connection refused")
	handler := NewWebhookHandler(slog.Default(),
		conversations.NewRouter(slog.Default(), store, staticResolver{}))

	rec := postWebhook(t, handler,
		`{"type":"SMS","contactId":"c1","locationId":"loc-1","messageId":"m1","message":"hi"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused", "store errors stay out of responses")
}

func TestInboundMessageMissingFields(t *testing.T) {
	handler := NewWebhookHandler(slog.Default(),
		conversations.NewRouter(slog.Default(), newMemoryRouterStore(), staticResolver{}))

	rec := postWebhook(t, handler, `{"type":"SMS","locationId":"loc-1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
