package crm

import (
	"fmt"
	"strings"
)

// ChannelType names a CRM messaging channel.
type ChannelType string

const (
	ChannelSMS       ChannelType = "sms"
	ChannelEmail     ChannelType = "email"
	ChannelWhatsApp  ChannelType = "whatsapp"
	ChannelGMB       ChannelType = "gmb"
	ChannelFacebook  ChannelType = "fb"
	ChannelInstagram ChannelType = "instagram"
	ChannelCustom    ChannelType = "custom"
)

// DefaultEmailSubject is used when an email send carries no subject.
const DefaultEmailSubject = "Message from AI Agent"

// defaultMessageLimit applies to channels without a specific cap.
const defaultMessageLimit = 2000

var channelLimits = map[ChannelType]int{
	ChannelSMS:       1600,
	ChannelWhatsApp:  4096,
	ChannelGMB:       4000,
	ChannelFacebook:  2000,
	ChannelInstagram: 1000,
	ChannelEmail:     100000,
}

var attachmentChannels = map[ChannelType]bool{
	ChannelEmail:     true,
	ChannelWhatsApp:  true,
	ChannelFacebook:  true,
	ChannelInstagram: true,
}

var channelNames = map[ChannelType]string{
	ChannelSMS:       "SMS",
	ChannelEmail:     "Email",
	ChannelWhatsApp:  "WhatsApp",
	ChannelGMB:       "Google Business Messages",
	ChannelFacebook:  "Facebook Messenger",
	ChannelInstagram: "Instagram",
	ChannelCustom:    "Custom",
}

// ParseChannel normalizes a channel string case-insensitively. Unknown values
// map to ChannelCustom rather than failing; the provider decides what to do
// with custom payloads.
func ParseChannel(s string) ChannelType {
	switch ChannelType(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelSMS:
		return ChannelSMS
	case ChannelEmail:
		return ChannelEmail
	case ChannelWhatsApp:
		return ChannelWhatsApp
	case ChannelGMB:
		return ChannelGMB
	case ChannelFacebook:
		return ChannelFacebook
	case ChannelInstagram:
		return ChannelInstagram
	default:
		return ChannelCustom
	}
}

// MessageLimit returns the channel's maximum message length in characters.
func MessageLimit(ch ChannelType) int {
	if limit, ok := channelLimits[ch]; ok {
		return limit
	}
	return defaultMessageLimit
}

// SupportsAttachments reports whether the channel accepts file attachments.
func SupportsAttachments(ch ChannelType) bool {
	return attachmentChannels[ch]
}

// DisplayName returns a human-readable channel name.
func DisplayName(ch ChannelType) string {
	if name, ok := channelNames[ch]; ok {
		return name
	}
	return string(ch)
}

// FormatForChannel truncates content to the channel's limit, reserving room
// for a trailing ellipsis so the cut is visible to the recipient.
func FormatForChannel(content string, ch ChannelType) string {
	limit := MessageLimit(ch)
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit-3]) + "..."
}

// MessageKind distinguishes the three provider payload shapes.
type MessageKind string

const (
	KindSMS    MessageKind = "SMS"
	KindEmail  MessageKind = "Email"
	KindCustom MessageKind = "Custom"
)

// MessageKindFor maps a channel to its provider payload kind. Only SMS and
// Email are first-class provider types; WhatsApp, GMB, Facebook, and
// Instagram ride the custom-integration shape with the conversation
// provider id.
func MessageKindFor(ch ChannelType) MessageKind {
	switch ch {
	case ChannelEmail:
		return KindEmail
	case ChannelSMS:
		return KindSMS
	default:
		return KindCustom
	}
}

// ChannelMessage is a channel-agnostic outbound message before provider
// payload assembly.
type ChannelMessage struct {
	Channel        ChannelType
	ContactID      string
	Content        string
	Subject        string
	Attachments    []string
	ConversationID string
}

// SMSPayload is the provider body for native SMS sends.
type SMSPayload struct {
	Type      MessageKind `json:"type"`
	ContactID string      `json:"contactId"`
	Message   string      `json:"message"`
}

// EmailPayload is the provider body for email sends.
type EmailPayload struct {
	Type        MessageKind `json:"type"`
	ContactID   string      `json:"contactId"`
	Subject     string      `json:"subject"`
	HTML        string      `json:"html"`
	Attachments []string    `json:"attachments,omitempty"`
}

// CustomPayload is the provider body for conversation-provider sends, used
// by every channel the provider does not model natively. It requires the
// conversation provider id to be set on the request.
type CustomPayload struct {
	Type                   MessageKind `json:"type"`
	ContactID              string      `json:"contactId"`
	Message                string      `json:"message"`
	Attachments            []string    `json:"attachments,omitempty"`
	ConversationID         string      `json:"conversationId,omitempty"`
	ConversationProviderID string      `json:"conversationProviderId"`
}

// BuildProviderPayload assembles the provider request body for a message.
// Attachments are dropped silently on channels that do not support them.
// The payload kinds are a closed set; each send is exactly one of SMS,
// Email, or Custom.
func BuildProviderPayload(msg ChannelMessage, conversationProviderID string) (any, error) {
	if msg.ContactID == "" {
		return nil, fmt.Errorf("build payload: contact id is required")
	}

	var attachments []string
	if SupportsAttachments(msg.Channel) {
		attachments = msg.Attachments
	}

	switch MessageKindFor(msg.Channel) {
	case KindEmail:
		subject := msg.Subject
		if subject == "" {
			subject = DefaultEmailSubject
		}
		return EmailPayload{
			Type:        KindEmail,
			ContactID:   msg.ContactID,
			Subject:     subject,
			HTML:        msg.Content,
			Attachments: attachments,
		}, nil
	case KindCustom:
		if conversationProviderID == "" {
			return nil, fmt.Errorf("build payload: channel %q requires a conversation provider id", msg.Channel)
		}
		return CustomPayload{
			Type:                   KindCustom,
			ContactID:              msg.ContactID,
			Message:                msg.Content,
			Attachments:            attachments,
			ConversationID:         msg.ConversationID,
			ConversationProviderID: conversationProviderID,
		}, nil
	default:
		return SMSPayload{
			Type:      KindSMS,
			ContactID: msg.ContactID,
			Message:   msg.Content,
		}, nil
	}
}
