package knowledge

import (
	"errors"
	"time"
)

// ErrNotFound means the requested knowledge document is not on file.
var ErrNotFound = errors.New("knowledge document not found")

// DocumentTypeImported marks documents pulled from the docs provider.
const DocumentTypeImported = "imported_doc"

// Document is an imported provider document snapshot. Re-importing the same
// provider document replaces the snapshot in place.
type Document struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	DocumentType   string    `json:"document_type"`
	ExternalDocID  string    `json:"external_doc_id"`
	ExternalDocURL string    `json:"external_doc_url,omitempty"`
	LastSyncedAt   time.Time `json:"last_synced_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
