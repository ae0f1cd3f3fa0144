package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/chatbridge/chatbridge/internal/accounts"
	"github.com/chatbridge/chatbridge/internal/conversations"
	"github.com/chatbridge/chatbridge/internal/credentials"
	"github.com/chatbridge/chatbridge/internal/crm"
)

// TokenProvider hands out currently-valid CRM access tokens.
type TokenProvider interface {
	ValidAccessToken(ctx context.Context, accountID string, provider credentials.ProviderID, locationID string) (string, error)
}

// MessageSender is the slice of the CRM client outbound dispatch needs.
type MessageSender interface {
	SendInbound(ctx context.Context, accessToken string, payload any) (crm.SendResponse, error)
}

// ConversationStore loads and updates local conversation state.
type ConversationStore interface {
	GetByID(ctx context.Context, accountID, conversationID string) (conversations.Conversation, error)
	InsertMessage(ctx context.Context, msg conversations.Message) (conversations.Message, bool, error)
	Touch(ctx context.Context, conversationID, channel, externalConversationID string) error
}

// AccountLoader resolves the sending account.
type AccountLoader interface {
	Get(ctx context.Context, id string) (accounts.Account, error)
}

// SendRequest is an outbound message. Channel is optional; the
// conversation's current channel is used when empty.
type SendRequest struct {
	Content     string   `json:"content" validate:"required"`
	Channel     string   `json:"channel,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// SendResult reports a dispatched message.
type SendResult struct {
	MessageID         string `json:"message_id"`
	ProviderMessageID string `json:"provider_message_id"`
	ConversationID    string `json:"conversation_id"`
	Channel           string `json:"channel"`
	Content           string `json:"content"`
}

// Dispatcher sends outbound messages through the CRM provider and records
// them locally.
type Dispatcher struct {
	tokens                 TokenProvider
	sender                 MessageSender
	store                  ConversationStore
	accounts               AccountLoader
	conversationProviderID string
	validate               *validator.Validate
	logger                 *slog.Logger
}

func NewDispatcher(log *slog.Logger, tokens TokenProvider, sender MessageSender, store ConversationStore, accounts AccountLoader, conversationProviderID string) *Dispatcher {
	return &Dispatcher{
		tokens:                 tokens,
		sender:                 sender,
		store:                  store,
		accounts:               accounts,
		conversationProviderID: conversationProviderID,
		validate:               validator.New(),
		logger:                 log.With(slog.String("service", "dispatch")),
	}
}

// Send formats the content for the target channel, pushes it to the
// provider, and records the assistant message locally. The provider send is
// authoritative: a local persistence failure after a successful send is
// logged but does not fail the request.
func (d *Dispatcher) Send(ctx context.Context, accountID, conversationID string, req SendRequest) (SendResult, error) {
	if err := d.validate.Struct(req); err != nil {
		return SendResult{}, fmt.Errorf("invalid send request: %w", err)
	}

	conv, err := d.store.GetByID(ctx, accountID, conversationID)
	if err != nil {
		return SendResult{}, err
	}

	channel := resolveChannel(req.Channel, conv.Channel)

	account, err := d.accounts.Get(ctx, accountID)
	if err != nil {
		return SendResult{}, fmt.Errorf("load account: %w", err)
	}

	token, err := d.tokens.ValidAccessToken(ctx, accountID, credentials.ProviderCRM, account.CRMLocationID)
	if err != nil {
		return SendResult{}, err
	}

	content := crm.FormatForChannel(req.Content, channel)
	payload, err := crm.BuildProviderPayload(crm.ChannelMessage{
		Channel:        channel,
		ContactID:      conv.ExternalContactID,
		Content:        content,
		Subject:        req.Subject,
		Attachments:    req.Attachments,
		ConversationID: conv.ExternalConversationID,
	}, d.conversationProviderID)
	if err != nil {
		return SendResult{}, err
	}

	resp, err := d.sender.SendInbound(ctx, token, payload)
	if err != nil {
		return SendResult{}, fmt.Errorf("provider send: %w", err)
	}

	result := SendResult{
		ProviderMessageID: resp.MessageID,
		ConversationID:    conv.ID,
		Channel:           string(channel),
		Content:           content,
	}

	msg, _, err := d.store.InsertMessage(ctx, conversations.Message{
		ConversationID:    conv.ID,
		AccountID:         accountID,
		Role:              conversations.RoleAssistant,
		Content:           content,
		ExternalMessageID: resp.MessageID,
		Channel:           string(channel),
	})
	if err != nil {
		d.logger.Error("record outbound message failed",
			slog.String("conversation_id", conv.ID),
			slog.String("provider_message_id", resp.MessageID),
			slog.Any("error", err))
		return result, nil
	}
	result.MessageID = msg.ID

	if err := d.store.Touch(ctx, conv.ID, string(channel), resp.ConversationID); err != nil {
		d.logger.Error("bump conversation failed",
			slog.String("conversation_id", conv.ID),
			slog.Any("error", err))
	}

	d.logger.Info("message dispatched",
		slog.String("conversation_id", conv.ID),
		slog.String("channel", string(channel)),
		slog.Int("length", len(content)))
	return result, nil
}

func resolveChannel(requested, current string) crm.ChannelType {
	if requested != "" {
		return crm.ParseChannel(requested)
	}
	if current != "" {
		return crm.ParseChannel(current)
	}
	return crm.ChannelSMS
}
