package conversations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatbridge/chatbridge/internal/db"
)

// Store persists conversations and messages.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "conversation_store")),
	}
}

const conversationColumns = `id, account_id, external_contact_id, external_conversation_id,
	contact_name, contact_phone, contact_email, channel, status, created_at, updated_at`

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	var externalConvID, phone, email pgtype.Text
	err := row.Scan(&c.ID, &c.AccountID, &c.ExternalContactID, &externalConvID,
		&c.ContactName, &phone, &email, &c.Channel, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	c.ExternalConversationID = db.TextToString(externalConvID)
	c.ContactPhone = db.TextToString(phone)
	c.ContactEmail = db.TextToString(email)
	return c, nil
}

const messageColumns = `id, conversation_id, account_id, role, content,
	external_message_id, channel, metadata, created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.AccountID, &m.Role, &m.Content,
		&m.ExternalMessageID, &m.Channel, &m.Metadata, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

// GetByExternalConversationID finds a conversation by the provider's id.
func (s *Store) GetByExternalConversationID(ctx context.Context, accountID, externalID string) (Conversation, error) {
	pgAccountID, err := db.ParseUUID(accountID)
	if err != nil {
		return Conversation{}, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE account_id = $1 AND external_conversation_id = $2
		ORDER BY updated_at DESC
		LIMIT 1`,
		pgAccountID, externalID)
	return scanConversation(row)
}

// LatestActiveByContact finds the contact's most recent active conversation.
func (s *Store) LatestActiveByContact(ctx context.Context, accountID, contactID string) (Conversation, error) {
	pgAccountID, err := db.ParseUUID(accountID)
	if err != nil {
		return Conversation{}, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE account_id = $1 AND external_contact_id = $2 AND status = 'active'
		ORDER BY updated_at DESC
		LIMIT 1`,
		pgAccountID, contactID)
	return scanConversation(row)
}

// CreateOrFetchActive creates the contact's active conversation, or fetches
// the existing one when a concurrent event got there first. The partial
// unique index on (account, contact, active) makes the race harmless.
func (s *Store) CreateOrFetchActive(ctx context.Context, conv Conversation) (Conversation, error) {
	pgAccountID, err := db.ParseUUID(conv.AccountID)
	if err != nil {
		return Conversation{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (
			account_id, external_contact_id, external_conversation_id,
			contact_name, contact_phone, contact_email, channel, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 'active')
		ON CONFLICT (account_id, external_contact_id) WHERE status = 'active'
		DO NOTHING
		RETURNING `+conversationColumns,
		pgAccountID, conv.ExternalContactID, db.ToPgText(conv.ExternalConversationID),
		conv.ContactName, db.ToPgText(conv.ContactPhone), db.ToPgText(conv.ContactEmail),
		conv.Channel)
	created, err := scanConversation(row)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	// Conflict: another insert won. Fetch the surviving row.
	return s.LatestActiveByContact(ctx, conv.AccountID, conv.ExternalContactID)
}

// Touch bumps the conversation's activity timestamp and records the latest
// channel and provider conversation id.
func (s *Store) Touch(ctx context.Context, conversationID, channel, externalConversationID string) error {
	pgID, err := db.ParseUUID(conversationID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE conversations
		SET updated_at = now(),
			channel = $2,
			external_conversation_id = COALESCE(NULLIF($3, ''), external_conversation_id)
		WHERE id = $1`,
		pgID, channel, externalConversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// InsertMessage stores a message, deduplicating on the provider message id.
// It reports inserted=false when the row already existed.
func (s *Store) InsertMessage(ctx context.Context, msg Message) (Message, bool, error) {
	pgConvID, err := db.ParseUUID(msg.ConversationID)
	if err != nil {
		return Message{}, false, err
	}
	pgAccountID, err := db.ParseUUID(msg.AccountID)
	if err != nil {
		return Message{}, false, err
	}
	metadata := msg.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (
			conversation_id, account_id, role, content, external_message_id, channel, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id, external_message_id) WHERE external_message_id <> ''
		DO NOTHING
		RETURNING `+messageColumns,
		pgConvID, pgAccountID, msg.Role, msg.Content, msg.ExternalMessageID, msg.Channel, metadata)
	inserted, err := scanMessage(row)
	if err == nil {
		return inserted, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Message{}, false, fmt.Errorf("insert message: %w", err)
	}
	existing, err := s.getMessageByExternalID(ctx, msg.AccountID, msg.ExternalMessageID)
	if err != nil {
		return Message{}, false, fmt.Errorf("fetch deduplicated message: %w", err)
	}
	return existing, false, nil
}

func (s *Store) getMessageByExternalID(ctx context.Context, accountID, externalID string) (Message, error) {
	pgAccountID, err := db.ParseUUID(accountID)
	if err != nil {
		return Message{}, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE account_id = $1 AND external_message_id = $2`,
		pgAccountID, externalID)
	return scanMessage(row)
}

// GetByID returns one conversation scoped to the account.
func (s *Store) GetByID(ctx context.Context, accountID, conversationID string) (Conversation, error) {
	pgAccountID, err := db.ParseUUID(accountID)
	if err != nil {
		return Conversation{}, err
	}
	pgID, err := db.ParseUUID(conversationID)
	if err != nil {
		return Conversation{}, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE id = $1 AND account_id = $2`,
		pgID, pgAccountID)
	return scanConversation(row)
}

// ListByAccount returns the account's conversations, most recently active
// first.
func (s *Store) ListByAccount(ctx context.Context, accountID string, limit int) ([]Conversation, error) {
	pgAccountID, err := db.ParseUUID(accountID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE account_id = $1
		ORDER BY updated_at DESC
		LIMIT $2`,
		pgAccountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// ListMessages returns a conversation's messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, accountID, conversationID string, limit int) ([]Message, error) {
	pgAccountID, err := db.ParseUUID(accountID)
	if err != nil {
		return nil, err
	}
	pgConvID, err := db.ParseUUID(conversationID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND account_id = $2
		ORDER BY created_at ASC
		LIMIT $3`,
		pgConvID, pgAccountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Close marks a conversation closed, releasing the contact's active slot.
func (s *Store) Close(ctx context.Context, accountID, conversationID string) error {
	pgAccountID, err := db.ParseUUID(accountID)
	if err != nil {
		return err
	}
	pgID, err := db.ParseUUID(conversationID)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET status = 'closed', updated_at = now()
		WHERE id = $1 AND account_id = $2 AND status = 'active'`,
		pgID, pgAccountID)
	if err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
