package revision

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/docvault/docvault/internal/document"
	"github.com/docvault/docvault/internal/document/repository"
	"github.com/docvault/docvault/pkg/logger"
	"github.com/docvault/docvault/pkg/metrics"
)

// Resolver maps a document plus an optional revision ordinal to the
// attachment that should be served.
type Resolver struct {
	repo  repository.Repository
	cache Store
	index *Index
}

func NewResolver(repo repository.Repository, cache Store, index *Index) *Resolver {
	return &Resolver{repo: repo, cache: cache, index: index}
}

// Revisions returns the document's revision history newest first, autosaves
// excluded. Element 0 is synthesized from the live document itself: its date
// corrected to the last-modified time and its excerpt entity-decoded. Cached
// per document until the index invalidates it.
func (r *Resolver) Revisions(ctx context.Context, documentID string) ([]*document.Revision, error) {
	var revs []*document.Revision
	hit, err := r.cache.Get(ctx, revisionsKeyPrefix+documentID, &revs)
	if err != nil {
		return nil, fmt.Errorf("revisions cache get: %w", err)
	}
	if hit {
		return revs, nil
	}

	doc, err := r.repo.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	history, err := r.repo.RevisionsByDocument(ctx, documentID, false)
	if err != nil {
		return nil, err
	}

	revs = []*document.Revision{{
		ID:           doc.ID,
		DocumentID:   doc.ID,
		AttachmentID: doc.Content,
		Excerpt:      html.UnescapeString(doc.Excerpt),
		AuthorID:     doc.OwnerID,
		CreatedAt:    doc.UpdatedAt,
	}}
	for _, rev := range history {
		if rev.Autosave {
			continue
		}
		revs = append(revs, rev)
	}

	if err := r.cache.Set(ctx, revisionsKeyPrefix+documentID, revs); err != nil {
		return nil, fmt.Errorf("revisions cache set: %w", err)
	}
	return revs, nil
}

// RevisionQuery returns the history for listing and feeds; callers without
// revision-read access see only the live document.
func (r *Resolver) RevisionQuery(ctx context.Context, documentID string, canReadRevisions bool) ([]*document.Revision, error) {
	revs, err := r.Revisions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !canReadRevisions && len(revs) > 1 {
		revs = revs[:1]
	}
	return revs, nil
}

// Latest returns the synthesized head revision. If the live document's
// content pointer does not reference a valid attachment (legacy or anomalous
// data) the most recently attached file is substituted; the substitution is
// logged and counted so the integrity issue stays visible.
func (r *Resolver) Latest(ctx context.Context, documentID string) (*document.Revision, error) {
	revs, err := r.Revisions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	head := *revs[0]

	if !r.validAttachment(ctx, head.AttachmentID, documentID) {
		attachments, err := r.repo.AttachmentsByDocument(ctx, documentID)
		if err != nil {
			return nil, err
		}
		if len(attachments) == 0 {
			return nil, ErrNoAttachment
		}
		logger.Warnf("document %s: content pointer %q invalid, substituting newest attachment %s",
			documentID, head.AttachmentID, attachments[0].ID)
		metrics.ContentPointerRepairs.Inc()
		head.AttachmentID = attachments[0].ID
	}
	return &head, nil
}

// Resolve returns the attachment to serve for the given ordinal; ordinal 0
// (or negative) means the latest revision.
func (r *Resolver) Resolve(ctx context.Context, documentID string, ordinal int) (*document.Attachment, error) {
	var attachmentID string
	if ordinal <= 0 {
		latest, err := r.Latest(ctx, documentID)
		if err != nil {
			return nil, err
		}
		attachmentID = latest.AttachmentID
	} else {
		revID, err := r.index.RevisionID(ctx, ordinal, documentID)
		if err != nil {
			return nil, err
		}
		rev, err := r.repo.GetRevision(ctx, revID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		attachmentID = rev.AttachmentID
	}

	att, err := r.repo.GetAttachment(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return att, nil
}

func (r *Resolver) validAttachment(ctx context.Context, attachmentID, documentID string) bool {
	if attachmentID == "" {
		return false
	}
	att, err := r.repo.GetAttachment(ctx, attachmentID)
	if err != nil {
		return false
	}
	return att.DocumentID == documentID
}
