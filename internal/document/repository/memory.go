package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/docvault/docvault/internal/document"
)

// MemoryRepo is an in-memory Repository used for unit tests and local runs
// without Mongo.
type MemoryRepo struct {
	mu          sync.RWMutex
	documents   map[string]*document.Document
	revisions   map[string]*document.Revision
	attachments map[string]*document.Attachment
	clock       int64 // monotonic tiebreaker for identical timestamps
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		documents:   make(map[string]*document.Document),
		revisions:   make(map[string]*document.Revision),
		attachments: make(map[string]*document.Attachment),
	}
}

func (m *MemoryRepo) CreateDocument(ctx context.Context, d *document.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = newID()
	}
	if d.Slug == "" {
		d.Slug = Slugify(d.Title)
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	cp := *d
	m.documents[d.ID] = &cp
	return d.ID, nil
}

func (m *MemoryRepo) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryRepo) GetDocumentBySlug(ctx context.Context, slug string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.documents {
		if d.Slug == slug {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) UpdateDocument(ctx context.Context, d *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[d.ID]; !ok {
		return ErrNotFound
	}
	d.UpdatedAt = time.Now().UTC()
	cp := *d
	m.documents[d.ID] = &cp
	return nil
}

func (m *MemoryRepo) TrashDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	d.Status = document.StatusTrash
	d.TrashedAt = &now
	d.UpdatedAt = now
	return nil
}

func (m *MemoryRepo) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[id]; !ok {
		return ErrNotFound
	}
	delete(m.documents, id)
	for rid, r := range m.revisions {
		if r.DocumentID == id {
			delete(m.revisions, rid)
		}
	}
	for aid, a := range m.attachments {
		if a.DocumentID == id {
			delete(m.attachments, aid)
		}
	}
	return nil
}

func (m *MemoryRepo) ListDocuments(ctx context.Context, q ListQuery) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*document.Document{}
	for _, d := range m.documents {
		if !matchesQuery(d, q) {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []*document.Document{}, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matchesQuery(d *document.Document, q ListQuery) bool {
	if len(q.Statuses) == 0 {
		if d.Status == document.StatusTrash {
			return false
		}
	} else {
		found := false
		for _, s := range q.Statuses {
			if d.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.OwnerID != "" && d.OwnerID != q.OwnerID {
		return false
	}
	if q.ReadableBy != "" && d.OwnerID != q.ReadableBy && d.Status != document.StatusPublic {
		return false
	}
	return true
}

func (m *MemoryRepo) CreateAttachment(ctx context.Context, a *document.Attachment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = newID()
	}
	a.CreatedAt = m.tick()
	cp := *a
	m.attachments[a.ID] = &cp
	return a.ID, nil
}

func (m *MemoryRepo) GetAttachment(ctx context.Context, id string) (*document.Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attachments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryRepo) AttachmentsByDocument(ctx context.Context, documentID string) ([]*document.Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*document.Attachment{}
	for _, a := range m.attachments {
		if a.DocumentID == documentID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepo) CreateRevision(ctx context.Context, r *document.Revision) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.tick()
	}
	cp := *r
	m.revisions[r.ID] = &cp
	return r.ID, nil
}

func (m *MemoryRepo) GetRevision(ctx context.Context, id string) (*document.Revision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.revisions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepo) RevisionsByDocument(ctx context.Context, documentID string, ascending bool) ([]*document.Revision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*document.Revision{}
	for _, r := range m.revisions {
		if r.DocumentID == documentID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryRepo) DeleteRevision(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.revisions[id]; !ok {
		return ErrNotFound
	}
	delete(m.revisions, id)
	return nil
}

// tick returns a strictly increasing timestamp so creation order is total
// even within one wall-clock nanosecond.
func (m *MemoryRepo) tick() time.Time {
	m.clock++
	return time.Now().UTC().Add(time.Duration(m.clock) * time.Nanosecond)
}

