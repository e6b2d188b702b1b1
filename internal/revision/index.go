package revision

import (
	"context"
	"errors"
	"fmt"

	"github.com/docvault/docvault/internal/document/repository"
	"github.com/docvault/docvault/pkg/metrics"
)

var (
	// ErrNotFound covers unknown documents, unknown revisions and ordinals
	// out of range.
	ErrNotFound = errors.New("revision not found")
	// ErrNoAttachment means the document has no file attached at all.
	ErrNoAttachment = errors.New("no document file attached")
)

const (
	indexKeyPrefix     = "revidx:"
	revisionsKeyPrefix = "revs:"
)

// Index maintains the cached 1-indexed ordering of a document's real (non
// autosave) revisions. Ordinals ascend by creation time: ordinal 1 is the
// oldest revision, ordinal N the newest.
type Index struct {
	repo  repository.Repository
	cache Store
}

func NewIndex(repo repository.Repository, cache Store) *Index {
	return &Index{repo: repo, cache: cache}
}

// Ordered returns the document's revision IDs in ascending creation order,
// autosaves excluded. The result is cached per document until Invalidate.
// A document with no real revisions yields an empty (and uncached) slice.
func (ix *Index) Ordered(ctx context.Context, documentID string) ([]string, error) {
	var ids []string
	hit, err := ix.cache.Get(ctx, indexKeyPrefix+documentID, &ids)
	if err != nil {
		return nil, fmt.Errorf("revision index cache get: %w", err)
	}
	if hit {
		metrics.RevisionIndexLookups.WithLabelValues("hit").Inc()
		return ids, nil
	}
	metrics.RevisionIndexLookups.WithLabelValues("miss").Inc()

	revs, err := ix.repo.RevisionsByDocument(ctx, documentID, true)
	if err != nil {
		return nil, err
	}
	ids = []string{}
	for _, r := range revs {
		if r.Autosave {
			continue
		}
		ids = append(ids, r.ID)
	}
	if len(ids) > 0 {
		if err := ix.cache.Set(ctx, indexKeyPrefix+documentID, ids); err != nil {
			return nil, fmt.Errorf("revision index cache set: %w", err)
		}
	}
	return ids, nil
}

// RevisionNumber returns the 1-indexed ordinal of a revision within its
// document's sequence. Autosaves and unknown revisions yield ErrNotFound.
func (ix *Index) RevisionNumber(ctx context.Context, revisionID string) (int, error) {
	rev, err := ix.repo.GetRevision(ctx, revisionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	ids, err := ix.Ordered(ctx, rev.DocumentID)
	if err != nil {
		return 0, err
	}
	// linear scan; revision counts per document are small
	for i, id := range ids {
		if id == revisionID {
			return i + 1, nil
		}
	}
	return 0, ErrNotFound
}

// RevisionID returns the revision at the given 1-indexed ordinal.
func (ix *Index) RevisionID(ctx context.Context, ordinal int, documentID string) (string, error) {
	if ordinal < 1 {
		return "", ErrNotFound
	}
	ids, err := ix.Ordered(ctx, documentID)
	if err != nil {
		return "", err
	}
	if ordinal > len(ids) {
		return "", ErrNotFound
	}
	return ids[ordinal-1], nil
}

// Invalidate clears the cached ordering and the resolver's cached revision
// list for a document. Every revision-mutating operation must call this
// before returning.
func (ix *Index) Invalidate(ctx context.Context, documentID string) error {
	return ix.cache.Delete(ctx, indexKeyPrefix+documentID, revisionsKeyPrefix+documentID)
}
