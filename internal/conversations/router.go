package conversations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/chatbridge/chatbridge/internal/accounts"
)

// RouterStore is the slice of Store the router needs.
type RouterStore interface {
	GetByExternalConversationID(ctx context.Context, accountID, externalID string) (Conversation, error)
	LatestActiveByContact(ctx context.Context, accountID, contactID string) (Conversation, error)
	CreateOrFetchActive(ctx context.Context, conv Conversation) (Conversation, error)
	Touch(ctx context.Context, conversationID, channel, externalConversationID string) error
	InsertMessage(ctx context.Context, msg Message) (Message, bool, error)
}

// AccountResolver maps a provider location to the owning account.
type AccountResolver interface {
	GetByLocationID(ctx context.Context, locationID string) (accounts.Account, error)
}

// IngestResult reports where an inbound event landed. Duplicate is true when
// a redelivered event matched an already-stored message; in that case the
// ids refer to the original rows and nothing was written.
type IngestResult struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Duplicate      bool   `json:"duplicate"`
}

// Router ingests inbound provider events: it resolves the tenant, finds or
// creates the conversation, and stores the message exactly once.
type Router struct {
	store    RouterStore
	resolver AccountResolver
	validate *validator.Validate
	logger   *slog.Logger
}

func NewRouter(log *slog.Logger, store RouterStore, resolver AccountResolver) *Router {
	return &Router{
		store:    store,
		resolver: resolver,
		validate: validator.New(),
		logger:   log.With(slog.String("service", "conversation_router")),
	}
}

// Ingest routes one inbound event. Validation and tenant resolution happen
// before any write; a rejected event leaves the database untouched.
func (r *Router) Ingest(ctx context.Context, ev WebhookEvent) (IngestResult, error) {
	if err := r.validate.Struct(ev); err != nil {
		return IngestResult{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	account, err := r.resolver.GetByLocationID(ctx, ev.LocationID)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return IngestResult{}, fmt.Errorf("%w: %s", ErrUnknownAccount, ev.LocationID)
		}
		return IngestResult{}, fmt.Errorf("resolve account: %w", err)
	}

	conv, err := r.matchConversation(ctx, account.ID, ev)
	if err != nil {
		return IngestResult{}, err
	}

	metadata, err := json.Marshal(ev)
	if err != nil {
		return IngestResult{}, fmt.Errorf("encode event metadata: %w", err)
	}

	channel := string(ev.Channel())
	msg, inserted, err := r.store.InsertMessage(ctx, Message{
		ConversationID:    conv.ID,
		AccountID:         account.ID,
		Role:              RoleUser,
		Content:           ExtractContent(ev),
		ExternalMessageID: ev.MessageID,
		Channel:           channel,
		Metadata:          metadata,
	})
	if err != nil {
		return IngestResult{}, err
	}
	if !inserted {
		r.logger.Info("duplicate event ignored",
			slog.String("account_id", account.ID),
			slog.String("external_message_id", ev.MessageID))
		return IngestResult{
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			Duplicate:      true,
		}, nil
	}

	if err := r.store.Touch(ctx, conv.ID, channel, ev.ConversationID); err != nil {
		r.logger.Error("bump conversation failed",
			slog.String("conversation_id", conv.ID),
			slog.Any("error", err))
	}

	r.logger.Info("event routed",
		slog.String("account_id", account.ID),
		slog.String("conversation_id", conv.ID),
		slog.String("channel", channel))
	return IngestResult{ConversationID: conv.ID, MessageID: msg.ID}, nil
}

// matchConversation applies the routing precedence: the provider's
// conversation id first, then the contact's latest active conversation,
// then a fresh conversation for the contact.
func (r *Router) matchConversation(ctx context.Context, accountID string, ev WebhookEvent) (Conversation, error) {
	if ev.ConversationID != "" {
		conv, err := r.store.GetByExternalConversationID(ctx, accountID, ev.ConversationID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Conversation{}, fmt.Errorf("match by external conversation id: %w", err)
		}
	}

	conv, err := r.store.LatestActiveByContact(ctx, accountID, ev.ContactID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Conversation{}, fmt.Errorf("match by contact: %w", err)
	}

	created, err := r.store.CreateOrFetchActive(ctx, Conversation{
		AccountID:              accountID,
		ExternalContactID:      ev.ContactID,
		ExternalConversationID: ev.ConversationID,
		ContactName:            ev.ContactName(),
		ContactPhone:           ev.Phone,
		ContactEmail:           ev.ContactEmail(),
		Channel:                string(ev.Channel()),
	})
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return created, nil
}
