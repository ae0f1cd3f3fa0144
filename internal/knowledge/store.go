package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatbridge/chatbridge/internal/db"
)

// Store persists imported document snapshots.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "knowledge_store")),
	}
}

const documentColumns = `id, account_id, title, content, document_type, external_doc_id,
	external_doc_url, last_synced_at, created_at, updated_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.AccountID, &d.Title, &d.Content, &d.DocumentType,
		&d.ExternalDocID, &d.ExternalDocURL, &d.LastSyncedAt, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return d, nil
}

// Upsert inserts a snapshot or refreshes the existing one keyed by
// (account, external document id).
func (s *Store) Upsert(ctx context.Context, doc Document) (Document, error) {
	pgAccountID, err := db.ParseUUID(doc.AccountID)
	if err != nil {
		return Document{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO knowledge_documents (
			account_id, title, content, document_type, external_doc_id, external_doc_url, last_synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (account_id, external_doc_id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			external_doc_url = EXCLUDED.external_doc_url,
			last_synced_at = now(),
			updated_at = now()
		RETURNING `+documentColumns,
		pgAccountID, doc.Title, doc.Content, doc.DocumentType, doc.ExternalDocID, doc.ExternalDocURL)
	stored, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("upsert knowledge document: %w", err)
	}
	return stored, nil
}

// List returns the account's imported documents, most recently synced first.
func (s *Store) List(ctx context.Context, accountID string) ([]Document, error) {
	pgAccountID, err := db.ParseUUID(accountID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+documentColumns+`
		FROM knowledge_documents
		WHERE account_id = $1
		ORDER BY last_synced_at DESC`,
		pgAccountID)
	if err != nil {
		return nil, fmt.Errorf("list knowledge documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Get returns one document scoped to the account.
func (s *Store) Get(ctx context.Context, accountID, id string) (Document, error) {
	pgAccountID, err := db.ParseUUID(accountID)
	if err != nil {
		return Document{}, err
	}
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Document{}, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+documentColumns+`
		FROM knowledge_documents
		WHERE id = $1 AND account_id = $2`,
		pgID, pgAccountID)
	return scanDocument(row)
}

// Delete removes a document scoped to the account.
func (s *Store) Delete(ctx context.Context, accountID, id string) error {
	pgAccountID, err := db.ParseUUID(accountID)
	if err != nil {
		return err
	}
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM knowledge_documents
		WHERE id = $1 AND account_id = $2`,
		pgID, pgAccountID)
	if err != nil {
		return fmt.Errorf("delete knowledge document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
