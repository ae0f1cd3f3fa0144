package conversations

import (
	"errors"
	"time"

	"github.com/chatbridge/chatbridge/internal/crm"
)

var (
	// ErrNotFound means no conversation or message matches the query.
	ErrNotFound = errors.New("conversation not found")
	// ErrUnknownAccount means no account is bound to the event's location;
	// such events are rejected without writing anything.
	ErrUnknownAccount = errors.New("no account for location")
	// ErrInvalidEvent means the event failed shape validation. It is the
	// caller's fault, unlike a persistence failure.
	ErrInvalidEvent = errors.New("invalid event")
)

// Conversation statuses.
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultContactName is used when an inbound event carries no identity.
const DefaultContactName = "Unknown Contact"

// Conversation is a message thread with one contact. At most one active
// conversation exists per contact per account.
type Conversation struct {
	ID                     string    `json:"id"`
	AccountID              string    `json:"account_id"`
	ExternalContactID      string    `json:"external_contact_id"`
	ExternalConversationID string    `json:"external_conversation_id,omitempty"`
	ContactName            string    `json:"contact_name"`
	ContactPhone           string    `json:"contact_phone,omitempty"`
	ContactEmail           string    `json:"contact_email,omitempty"`
	Channel                string    `json:"channel"`
	Status                 string    `json:"status"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Message is one message in a conversation. ExternalMessageID dedupes
// webhook redeliveries; locally originated messages may leave it empty.
type Message struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	AccountID         string    `json:"account_id"`
	Role              string    `json:"role"`
	Content           string    `json:"content"`
	ExternalMessageID string    `json:"external_message_id,omitempty"`
	Channel           string    `json:"channel"`
	Metadata          []byte    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

// EmailParty is a named email address on an inbound event.
type EmailParty struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// WebhookEvent is an inbound provider message notification. The four
// required fields gate ingestion; everything else is channel-dependent.
type WebhookEvent struct {
	Type                   string       `json:"type" validate:"required"`
	ContactID              string       `json:"contactId" validate:"required"`
	LocationID             string       `json:"locationId" validate:"required"`
	MessageID              string       `json:"messageId" validate:"required"`
	UserID                 string       `json:"userId,omitempty"`
	ConversationID         string       `json:"conversationId,omitempty"`
	ConversationProviderID string       `json:"conversationProviderId,omitempty"`
	ContentType            string       `json:"contentType,omitempty"`
	Phone                  string       `json:"phone,omitempty"`
	Message                string       `json:"message,omitempty"`
	Body                   string       `json:"body,omitempty"`
	HTML                   string       `json:"html,omitempty"`
	Subject                string       `json:"subject,omitempty"`
	EmailTo                []string     `json:"emailTo,omitempty"`
	EmailFrom              *EmailParty  `json:"emailFrom,omitempty"`
	Attachments            []string     `json:"attachments,omitempty"`
}

// Channel normalizes the event's message type to a channel.
func (e WebhookEvent) Channel() crm.ChannelType {
	return crm.ParseChannel(e.Type)
}

// ExtractContent picks the message text using the channel's field
// precedence. SMS-shaped channels carry text in message, email in html,
// business-messaging channels in body.
func ExtractContent(ev WebhookEvent) string {
	switch ev.Channel() {
	case crm.ChannelSMS, crm.ChannelWhatsApp:
		return firstNonEmpty(ev.Message, ev.Body)
	case crm.ChannelEmail:
		return firstNonEmpty(ev.HTML, ev.Body)
	case crm.ChannelGMB, crm.ChannelFacebook, crm.ChannelInstagram:
		return firstNonEmpty(ev.Body, ev.Message)
	default:
		return firstNonEmpty(ev.Message, ev.Body, ev.HTML)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ContactName derives a display name for a previously unseen contact.
func (e WebhookEvent) ContactName() string {
	if e.EmailFrom != nil && e.EmailFrom.Name != "" {
		return e.EmailFrom.Name
	}
	if e.Phone != "" {
		return e.Phone
	}
	if e.EmailFrom != nil && e.EmailFrom.Email != "" {
		return e.EmailFrom.Email
	}
	return DefaultContactName
}

// ContactEmail picks the email address to seed a new conversation with: the
// first address in the event's recipient list, falling back to the sender.
func (e WebhookEvent) ContactEmail() string {
	if len(e.EmailTo) > 0 && e.EmailTo[0] != "" {
		return e.EmailTo[0]
	}
	if e.EmailFrom != nil {
		return e.EmailFrom.Email
	}
	return ""
}
