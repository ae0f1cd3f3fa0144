package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/chatbridge/chatbridge/internal/config"
)

const documentMimeType = "application/vnd.google-apps.document"

// DocumentRef is a document listing entry.
type DocumentRef struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	ModifiedTime string `json:"modifiedTime"`
	WebViewLink  string `json:"webViewLink"`
}

// DocumentList is one page of the drive listing.
type DocumentList struct {
	Files         []DocumentRef `json:"files"`
	NextPageToken string        `json:"nextPageToken"`
}

// Client reads documents from the provider. Like the CRM client it holds no
// credential state; access tokens arrive per call.
type Client struct {
	driveBase  string
	docsBase   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(log *slog.Logger, cfg config.DocsConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		driveBase:  cfg.DriveAPIBase,
		docsBase:   cfg.DocsAPIBase,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("service", "docs_api")),
	}
}

// ListDocuments returns a page of the user's documents, newest first.
func (c *Client) ListDocuments(ctx context.Context, accessToken string, pageSize int, pageToken string) (DocumentList, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	params := url.Values{
		"q":        {fmt.Sprintf("mimeType = '%s' and trashed = false", documentMimeType)},
		"fields":   {"nextPageToken, files(id, name, mimeType, modifiedTime, webViewLink)"},
		"pageSize": {strconv.Itoa(pageSize)},
		"orderBy":  {"modifiedTime desc"},
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var list DocumentList
	if err := c.get(ctx, accessToken, c.driveBase+"/files?"+params.Encode(), &list); err != nil {
		return DocumentList{}, err
	}
	return list, nil
}

// GetDocument fetches a document's full structured body.
func (c *Client) GetDocument(ctx context.Context, accessToken, documentID string) (Document, error) {
	var doc Document
	if err := c.get(ctx, accessToken, c.docsBase+"/documents/"+url.PathEscape(documentID), &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (c *Client) get(ctx context.Context, accessToken, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("docs request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("docs provider returned %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode docs response: %w", err)
	}
	return nil
}
