package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbridge/chatbridge/internal/credentials"
	"github.com/chatbridge/chatbridge/internal/docs"
)

const testAccountID = "7c9a2f5e-0b0f-4a0a-9d7d-4f1a2b3c4d5e"

type fakeTokens struct {
	token string
	err   error
}

func (f *fakeTokens) ValidAccessToken(_ context.Context, _ string, provider credentials.ProviderID, _ string) (string, error) {
	if provider != credentials.ProviderDocs {
		return "", fmt.Errorf("unexpected provider %s", provider)
	}
	return f.token, f.err
}

type fakeReader struct {
	docs map[string]docs.Document
	list docs.DocumentList
}

func (f *fakeReader) ListDocuments(_ context.Context, _ string, _ int, _ string) (docs.DocumentList, error) {
	return f.list, nil
}

func (f *fakeReader) GetDocument(_ context.Context, _ string, documentID string) (docs.Document, error) {
	doc, ok := f.docs[documentID]
	if !ok {
		return docs.Document{}, fmt.Errorf("document %s not found", documentID)
	}
	return doc, nil
}

type fakeDocStore struct {
	byExternal map[string]Document
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{byExternal: make(map[string]Document)}
}

func (f *fakeDocStore) Upsert(_ context.Context, doc Document) (Document, error) {
	existing, ok := f.byExternal[doc.ExternalDocID]
	if ok {
		doc.ID = existing.ID
	} else {
		doc.ID = fmt.Sprintf("doc-%d", len(f.byExternal)+1)
	}
	f.byExternal[doc.ExternalDocID] = doc
	return doc, nil
}

func (f *fakeDocStore) List(_ context.Context, _ string) ([]Document, error) {
	var out []Document
	for _, d := range f.byExternal {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDocStore) Get(_ context.Context, _, id string) (Document, error) {
	for _, d := range f.byExternal {
		if d.ID == id {
			return d, nil
		}
	}
	return Document{}, ErrNotFound
}

func (f *fakeDocStore) Delete(_ context.Context, _, id string) error {
	for key, d := range f.byExternal {
		if d.ID == id {
			delete(f.byExternal, key)
			return nil
		}
	}
	return ErrNotFound
}

func providerDoc(id, title, text string) docs.Document {
	return docs.Document{
		DocumentID: id,
		Title:      title,
		Body: docs.Body{Content: []docs.StructuralElement{{
			Paragraph: &docs.Paragraph{Elements: []docs.ParagraphElement{{
				TextRun: &docs.TextRun{Content: text},
			}}},
		}}},
	}
}

func TestImportStoresExtractedText(t *testing.T) {
	store := newFakeDocStore()
	svc := NewService(slog.Default(), &fakeTokens{token: "t1"},
		&fakeReader{docs: map[string]docs.Document{
			"ext-1": providerDoc("ext-1", "Onboarding", "Welcome aboard\n"),
		}}, store)

	doc, err := svc.Import(context.Background(), testAccountID, "ext-1", "https://docs.example.com/ext-1")
	require.NoError(t, err)

	assert.Equal(t, "Onboarding", doc.Title)
	assert.Equal(t, "Welcome aboard", doc.Content)
	assert.Equal(t, DocumentTypeImported, doc.DocumentType)
	assert.Equal(t, "https://docs.example.com/ext-1", doc.ExternalDocURL)
}

func TestImportRefreshesExistingSnapshot(t *testing.T) {
	store := newFakeDocStore()
	reader := &fakeReader{docs: map[string]docs.Document{
		"ext-1": providerDoc("ext-1", "Notes", "v1\n"),
	}}
	svc := NewService(slog.Default(), &fakeTokens{token: "t1"}, reader, store)

	first, err := svc.Import(context.Background(), testAccountID, "ext-1", "")
	require.NoError(t, err)

	reader.docs["ext-1"] = providerDoc("ext-1", "Notes", "v2\n")
	second, err := svc.Import(context.Background(), testAccountID, "ext-1", "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "reimport must replace, not duplicate")
	assert.Equal(t, "v2", second.Content)

	all, err := svc.Imported(context.Background(), testAccountID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestImportUntitledDocument(t *testing.T) {
	svc := NewService(slog.Default(), &fakeTokens{token: "t1"},
		&fakeReader{docs: map[string]docs.Document{
			"ext-2": providerDoc("ext-2", "", "body\n"),
		}}, newFakeDocStore())

	doc, err := svc.Import(context.Background(), testAccountID, "ext-2", "")
	require.NoError(t, err)
	assert.Equal(t, "Untitled Document", doc.Title)
}

func TestImportNotConnected(t *testing.T) {
	svc := NewService(slog.Default(), &fakeTokens{err: credentials.ErrNotConnected},
		&fakeReader{}, newFakeDocStore())

	_, err := svc.Import(context.Background(), testAccountID, "ext-1", "")
	assert.ErrorIs(t, err, credentials.ErrNotConnected)
}

func TestAvailableUsesDocsToken(t *testing.T) {
	svc := NewService(slog.Default(), &fakeTokens{token: "t1"},
		&fakeReader{list: docs.DocumentList{Files: []docs.DocumentRef{{ID: "ext-1", Name: "Notes"}}}},
		newFakeDocStore())

	list, err := svc.Available(context.Background(), testAccountID, 10, "")
	require.NoError(t, err)
	require.Len(t, list.Files, 1)
	assert.Equal(t, "ext-1", list.Files[0].ID)
}
