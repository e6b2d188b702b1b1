package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/docvault/docvault/internal/document"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound = errors.New("not found")
)

// Slugify derives a URL slug from a title: lowercase alphanumerics with
// single dashes between runs of anything else. Every implementation applies
// it when a document arrives without a slug, so lookups by slug behave the
// same against Mongo and the in-memory store.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ListQuery scopes document listings. An empty Statuses slice means any
// non-trash status. ReadableBy restricts results to documents the given user
// owns or that are public (the host's "readable" permission semantics).
type ListQuery struct {
	Statuses   []document.Status
	OwnerID    string
	ReadableBy string
	Limit      int
	Offset     int
}

// Repository provides persistence for documents, revisions and attachments.
// Revision snapshotting on content-pointer change is the caller's concern
// (see the document service); the repository only stores records.
type Repository interface {
	CreateDocument(ctx context.Context, d *document.Document) (string, error)
	GetDocument(ctx context.Context, id string) (*document.Document, error)
	GetDocumentBySlug(ctx context.Context, slug string) (*document.Document, error)
	UpdateDocument(ctx context.Context, d *document.Document) error
	TrashDocument(ctx context.Context, id string) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, q ListQuery) ([]*document.Document, error)

	CreateAttachment(ctx context.Context, a *document.Attachment) (string, error)
	GetAttachment(ctx context.Context, id string) (*document.Attachment, error)
	// AttachmentsByDocument returns attachments newest first.
	AttachmentsByDocument(ctx context.Context, documentID string) ([]*document.Attachment, error)

	CreateRevision(ctx context.Context, r *document.Revision) (string, error)
	GetRevision(ctx context.Context, id string) (*document.Revision, error)
	// RevisionsByDocument returns revisions in ascending creation order when
	// ascending is true, descending otherwise. Autosaves are included; callers
	// filter.
	RevisionsByDocument(ctx context.Context, documentID string, ascending bool) ([]*document.Revision, error)
	DeleteRevision(ctx context.Context, id string) error
}

func newID() string { return primitive.NewObjectID().Hex() }
