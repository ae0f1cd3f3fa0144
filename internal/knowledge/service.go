package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chatbridge/chatbridge/internal/credentials"
	"github.com/chatbridge/chatbridge/internal/docs"
)

// TokenProvider hands out currently-valid docs access tokens.
type TokenProvider interface {
	ValidAccessToken(ctx context.Context, accountID string, provider credentials.ProviderID, locationID string) (string, error)
}

// DocumentReader is the slice of the docs client the importer needs.
type DocumentReader interface {
	ListDocuments(ctx context.Context, accessToken string, pageSize int, pageToken string) (docs.DocumentList, error)
	GetDocument(ctx context.Context, accessToken, documentID string) (docs.Document, error)
}

// DocumentStore persists imported snapshots.
type DocumentStore interface {
	Upsert(ctx context.Context, doc Document) (Document, error)
	List(ctx context.Context, accountID string) ([]Document, error)
	Get(ctx context.Context, accountID, id string) (Document, error)
	Delete(ctx context.Context, accountID, id string) error
}

// Service imports provider documents into the account's knowledge base.
type Service struct {
	tokens TokenProvider
	reader DocumentReader
	store  DocumentStore
	logger *slog.Logger
}

func NewService(log *slog.Logger, tokens TokenProvider, reader DocumentReader, store DocumentStore) *Service {
	return &Service{
		tokens: tokens,
		reader: reader,
		store:  store,
		logger: log.With(slog.String("service", "knowledge")),
	}
}

// Available lists the account's provider documents for import selection.
func (s *Service) Available(ctx context.Context, accountID string, pageSize int, pageToken string) (docs.DocumentList, error) {
	token, err := s.tokens.ValidAccessToken(ctx, accountID, credentials.ProviderDocs, "")
	if err != nil {
		return docs.DocumentList{}, err
	}
	return s.reader.ListDocuments(ctx, token, pageSize, pageToken)
}

// Import fetches a provider document, extracts its text and stores the
// snapshot. Importing an already-imported document refreshes it.
func (s *Service) Import(ctx context.Context, accountID, documentID, webViewLink string) (Document, error) {
	token, err := s.tokens.ValidAccessToken(ctx, accountID, credentials.ProviderDocs, "")
	if err != nil {
		return Document{}, err
	}

	doc, err := s.reader.GetDocument(ctx, token, documentID)
	if err != nil {
		return Document{}, fmt.Errorf("fetch document: %w", err)
	}

	title := doc.Title
	if title == "" {
		title = "Untitled Document"
	}

	stored, err := s.store.Upsert(ctx, Document{
		AccountID:      accountID,
		Title:          title,
		Content:        docs.ExtractText(doc),
		DocumentType:   DocumentTypeImported,
		ExternalDocID:  doc.DocumentID,
		ExternalDocURL: webViewLink,
	})
	if err != nil {
		return Document{}, err
	}

	s.logger.Info("document imported",
		slog.String("account_id", accountID),
		slog.String("external_doc_id", stored.ExternalDocID),
		slog.Int("content_length", len(stored.Content)))
	return stored, nil
}

// Imported lists the account's stored snapshots.
func (s *Service) Imported(ctx context.Context, accountID string) ([]Document, error) {
	return s.store.List(ctx, accountID)
}

// Remove deletes a stored snapshot.
func (s *Service) Remove(ctx context.Context, accountID, id string) error {
	return s.store.Delete(ctx, accountID, id)
}
