package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/mietwerk/portal/internal/backend"
	"github.com/mietwerk/portal/internal/cache"
)

const maxDocumentSize = 20 << 20 // 20MB

// Document is one stored tenant document (contract, proof of enrollment).
type Document struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
	PageCount  int    `json:"page_count,omitempty"`
	UploadedAt string `json:"uploaded_at,omitempty"`
}

// Documents wraps the tenant document endpoints. Uploads are JSON bodies
// with base64 content and run under the longer upload budget; PDFs are
// inspected locally before any bytes leave the portal.
type Documents struct {
	client *backend.Client
	cache  *cache.Cache
	ttl    time.Duration
	log    *slog.Logger
}

func NewDocuments(client *backend.Client, c *cache.Cache, ttl time.Duration, log *slog.Logger) *Documents {
	if log == nil {
		log = slog.Default()
	}
	return &Documents{client: client, cache: c, ttl: ttl, log: log}
}

// List returns the tenant's stored documents.
func (d *Documents) List(ctx context.Context) ([]Document, error) {
	key := cache.Key("documents", nil)
	payload, err := d.cache.GetOrFetch(ctx, key, d.ttl, func(ctx context.Context) (json.RawMessage, error) {
		env := d.client.Get(ctx, "/tenant/documents", nil)
		if !env.Succeeded {
			return nil, fromEnvelope(env)
		}
		return env.Payload, nil
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Documents []Document `json:"documents"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, &Error{Kind: backend.KindServiceUnavailable, Message: "document list could not be parsed"}
	}
	return resp.Documents, nil
}

// Upload stores a document with the housing service. PDF files are opened
// locally first; an unreadable PDF is rejected before upload, and the page
// count rides along in the request.
func (d *Documents) Upload(ctx context.Context, name, kind string, data []byte) (Document, error) {
	if len(data) == 0 {
		return Document{}, &Error{Kind: backend.KindValidationError, Message: "document is empty"}
	}
	if len(data) > maxDocumentSize {
		return Document{}, &Error{Kind: backend.KindValidationError, Message: "document exceeds the 20MB limit"}
	}

	pages := 0
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		n, err := pdfPageCount(data)
		if err != nil {
			d.log.Warn("rejecting unreadable PDF", "name", name, "error", err)
			return Document{}, &Error{Kind: backend.KindValidationError, Message: "the PDF file could not be read; it may be corrupt or password-protected"}
		}
		pages = n
	}

	env := d.client.Call(ctx, backend.Request{
		Method: http.MethodPost,
		Path:   "/tenant/documents",
		Upload: true,
		Body: map[string]any{
			"name":       name,
			"kind":       kind,
			"page_count": pages,
			"content":    base64.StdEncoding.EncodeToString(data),
		},
	})
	if !env.Succeeded {
		return Document{}, fromEnvelope(env)
	}
	d.cache.InvalidateResource("documents")

	var resp struct {
		Document Document `json:"document"`
	}
	if err := env.Decode(&resp); err != nil {
		return Document{}, &Error{Kind: backend.KindServiceUnavailable, Message: "upload response could not be parsed"}
	}
	if resp.Document.PageCount == 0 {
		resp.Document.PageCount = pages
	}
	d.log.Info("document uploaded", "document_id", resp.Document.ID, "name", name, "pages", pages)
	return resp.Document, nil
}

// pdfPageCount opens the PDF in memory and returns its page count.
func pdfPageCount(data []byte) (int, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}
