package conversations

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbridge/chatbridge/internal/accounts"
)

const (
	testAccountID  = "7c9a2f5e-0b0f-4a0a-9d7d-4f1a2b3c4d5e"
	testLocationID = "loc-1"
)

type fakeRouterStore struct {
	conversations []Conversation
	messages      []Message
	nextID        int
}

func (f *fakeRouterStore) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeRouterStore) GetByExternalConversationID(_ context.Context, accountID, externalID string) (Conversation, error) {
	for _, c := range f.conversations {
		if c.AccountID == accountID && c.ExternalConversationID == externalID && externalID != "" {
			return c, nil
		}
	}
	return Conversation{}, ErrNotFound
}

func (f *fakeRouterStore) LatestActiveByContact(_ context.Context, accountID, contactID string) (Conversation, error) {
	for i := len(f.conversations) - 1; i >= 0; i-- {
		c := f.conversations[i]
		if c.AccountID == accountID && c.ExternalContactID == contactID && c.Status == StatusActive {
			return c, nil
		}
	}
	return Conversation{}, ErrNotFound
}

func (f *fakeRouterStore) CreateOrFetchActive(ctx context.Context, conv Conversation) (Conversation, error) {
	if existing, err := f.LatestActiveByContact(ctx, conv.AccountID, conv.ExternalContactID); err == nil {
		return existing, nil
	}
	conv.ID = f.newID("conv")
	conv.Status = StatusActive
	f.conversations = append(f.conversations, conv)
	return conv, nil
}

func (f *fakeRouterStore) Touch(_ context.Context, conversationID, channel, externalConversationID string) error {
	for i, c := range f.conversations {
		if c.ID == conversationID {
			f.conversations[i].Channel = channel
			if externalConversationID != "" {
				f.conversations[i].ExternalConversationID = externalConversationID
			}
		}
	}
	return nil
}

func (f *fakeRouterStore) InsertMessage(_ context.Context, msg Message) (Message, bool, error) {
	if msg.ExternalMessageID != "" {
		for _, m := range f.messages {
			if m.AccountID == msg.AccountID && m.ExternalMessageID == msg.ExternalMessageID {
				return m, false, nil
			}
		}
	}
	msg.ID = f.newID("msg")
	f.messages = append(f.messages, msg)
	return msg, true, nil
}

type fakeResolver struct {
	byLocation map[string]accounts.Account
}

func (f *fakeResolver) GetByLocationID(_ context.Context, locationID string) (accounts.Account, error) {
	acc, ok := f.byLocation[locationID]
	if !ok {
		return accounts.Account{}, accounts.ErrNotFound
	}
	return acc, nil
}

func newTestRouter() (*Router, *fakeRouterStore) {
	store := &fakeRouterStore{}
	resolver := &fakeResolver{byLocation: map[string]accounts.Account{
		testLocationID: {ID: testAccountID, Username: "owner"},
	}}
	return NewRouter(slog.Default(), store, resolver), store
}

func smsEvent(messageID, contactID, text string) WebhookEvent {
	return WebhookEvent{
		Type:       "SMS",
		ContactID:  contactID,
		LocationID: testLocationID,
		MessageID:  messageID,
		Message:    text,
		Phone:      "+15550001111",
	}
}

func TestIngestCreatesConversationAndMessage(t *testing.T) {
	router, store := newTestRouter()

	res, err := router.Ingest(context.Background(), smsEvent("ext-m1", "contact-1", "hello"))
	require.NoError(t, err)

	assert.False(t, res.Duplicate)
	require.Len(t, store.conversations, 1)
	require.Len(t, store.messages, 1)

	conv := store.conversations[0]
	assert.Equal(t, testAccountID, conv.AccountID)
	assert.Equal(t, "contact-1", conv.ExternalContactID)
	assert.Equal(t, "+15550001111", conv.ContactName)

	msg := store.messages[0]
	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "sms", msg.Channel)
	assert.NotEmpty(t, msg.Metadata)
}

func TestIngestSameContactReusesConversation(t *testing.T) {
	router, store := newTestRouter()

	first, err := router.Ingest(context.Background(), smsEvent("ext-m1", "contact-1", "one"))
	require.NoError(t, err)
	second, err := router.Ingest(context.Background(), smsEvent("ext-m2", "contact-1", "two"))
	require.NoError(t, err)

	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Len(t, store.conversations, 1)
	assert.Len(t, store.messages, 2)
}

func TestIngestMatchesByExternalConversationID(t *testing.T) {
	router, store := newTestRouter()

	ev := smsEvent("ext-m1", "contact-1", "one")
	ev.ConversationID = "prov-conv-1"
	first, err := router.Ingest(context.Background(), ev)
	require.NoError(t, err)

	// Different contact id, same provider conversation.
	ev2 := smsEvent("ext-m2", "contact-1-merged", "two")
	ev2.ConversationID = "prov-conv-1"
	second, err := router.Ingest(context.Background(), ev2)
	require.NoError(t, err)

	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Len(t, store.conversations, 1)
}

func TestIngestRedeliveryIsIdempotent(t *testing.T) {
	router, store := newTestRouter()

	ev := smsEvent("ext-m1", "contact-1", "hello")
	first, err := router.Ingest(context.Background(), ev)
	require.NoError(t, err)

	redelivered, err := router.Ingest(context.Background(), ev)
	require.NoError(t, err)

	assert.True(t, redelivered.Duplicate)
	assert.Equal(t, first.MessageID, redelivered.MessageID)
	assert.Equal(t, first.ConversationID, redelivered.ConversationID)
	assert.Len(t, store.messages, 1)
}

func TestIngestUnknownLocationWritesNothing(t *testing.T) {
	router, store := newTestRouter()

	ev := smsEvent("ext-m1", "contact-1", "hello")
	ev.LocationID = "unknown-loc"
	_, err := router.Ingest(context.Background(), ev)

	require.ErrorIs(t, err, ErrUnknownAccount)
	assert.Empty(t, store.conversations)
	assert.Empty(t, store.messages)
}

func TestIngestRejectsIncompleteEvent(t *testing.T) {
	router, store := newTestRouter()

	tests := []struct {
		name  string
		event WebhookEvent
	}{
		{"missing type", WebhookEvent{ContactID: "c", LocationID: testLocationID, MessageID: "m"}},
		{"missing contact", WebhookEvent{Type: "SMS", LocationID: testLocationID, MessageID: "m"}},
		{"missing location", WebhookEvent{Type: "SMS", ContactID: "c", MessageID: "m"}},
		{"missing message id", WebhookEvent{Type: "SMS", ContactID: "c", LocationID: testLocationID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := router.Ingest(context.Background(), tt.event)
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}
	assert.Empty(t, store.messages)
}

func TestIngestEmailEventUsesHTML(t *testing.T) {
	router, store := newTestRouter()

	ev := WebhookEvent{
		Type:       "Email",
		ContactID:  "contact-2",
		LocationID: testLocationID,
		MessageID:  "ext-e1",
		HTML:       "<p>inquiry</p>",
		Body:       "plain",
		Subject:    "Question",
		EmailFrom:  &EmailParty{Email: "ada@example.com", Name: "Ada"},
	}
	_, err := router.Ingest(context.Background(), ev)
	require.NoError(t, err)

	require.Len(t, store.messages, 1)
	assert.Equal(t, "<p>inquiry</p>", store.messages[0].Content)

	conv := store.conversations[0]
	assert.Equal(t, "Ada", conv.ContactName)
	assert.Equal(t, "ada@example.com", conv.ContactEmail)
}

func TestIngestBumpsConversationChannel(t *testing.T) {
	router, store := newTestRouter()

	_, err := router.Ingest(context.Background(), smsEvent("ext-m1", "contact-1", "one"))
	require.NoError(t, err)

	ev := WebhookEvent{
		Type:       "WhatsApp",
		ContactID:  "contact-1",
		LocationID: testLocationID,
		MessageID:  "ext-m2",
		Message:    "two",
	}
	_, err = router.Ingest(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, "whatsapp", store.conversations[0].Channel)
}
