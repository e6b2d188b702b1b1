package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/docvault/docvault/internal/document"
	"github.com/docvault/docvault/internal/document/repository"
	"github.com/docvault/docvault/internal/revision"
	"github.com/docvault/docvault/internal/storage"
)

var (
	ErrNotFound = errors.New("not found")
)

// Service owns document lifecycle and upload handling. Every upload advances
// the document's content pointer and snapshots a revision; every
// revision-mutating operation invalidates the revision index before
// returning.
type Service struct {
	repo  repository.Repository
	blobs storage.BlobStore
	index *revision.Index
}

func NewService(repo repository.Repository, blobs storage.BlobStore, index *revision.Index) *Service {
	return &Service{repo: repo, blobs: blobs, index: index}
}

// CreateRequest carries new-document metadata.
type CreateRequest struct {
	Title         string
	Slug          string
	Status        document.Status
	Excerpt       string
	Password      string
	WorkflowState string
}

func (s *Service) Create(ctx context.Context, req CreateRequest, ownerID string) (*document.Document, error) {
	status := req.Status
	if status == "" {
		status = document.StatusDraft
	}
	d := &document.Document{
		Title:         req.Title,
		Slug:          req.Slug,
		Status:        status,
		OwnerID:       ownerID,
		Excerpt:       req.Excerpt,
		Password:      req.Password,
		WorkflowState: req.WorkflowState,
	}
	if _, err := s.repo.CreateDocument(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, id string) (*document.Document, error) {
	d, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*document.Document, error) {
	d, err := s.repo.GetDocumentBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, q repository.ListQuery) ([]*document.Document, error) {
	return s.repo.ListDocuments(ctx, q)
}

// UpdateMeta changes document metadata without touching the content pointer.
// The synthesized head revision mirrors the live excerpt and update time, so
// the cached history is dropped here too.
func (s *Service) UpdateMeta(ctx context.Context, d *document.Document) error {
	if err := s.repo.UpdateDocument(ctx, d); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return s.index.Invalidate(ctx, d.ID)
}

// UploadRequest describes a new file for a document. Thumbnail uploads (host
// media, not document content) bypass snapshotting and must say so
// explicitly.
type UploadRequest struct {
	FileName  string
	MimeType  string
	Size      int64
	Excerpt   string
	AuthorID  string
	Autosave  bool
	Thumbnail bool
}

// Upload stores the file, advances the content pointer and snapshots a
// revision. Stored object names are hashed so physical locations cannot be
// guessed from document titles.
func (s *Service) Upload(ctx context.Context, documentID string, body io.Reader, req UploadRequest) (*document.Attachment, error) {
	doc, err := s.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(path.Ext(req.FileName))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	key := storedKey(req.FileName, req.Thumbnail)
	loc, err := s.blobs.Put(ctx, key, body, req.Size, mimeType)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	att := &document.Attachment{
		DocumentID: documentID,
		FileName:   req.FileName,
		MimeType:   mimeType,
		Path:       loc,
		Size:       req.Size,
	}
	if _, err := s.repo.CreateAttachment(ctx, att); err != nil {
		return nil, err
	}

	if req.Thumbnail {
		// host media upload, not document content: no pointer change, no revision
		return att, nil
	}

	doc.Content = att.ID
	doc.Excerpt = req.Excerpt
	if err := s.repo.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}

	rev := &document.Revision{
		DocumentID:   documentID,
		AttachmentID: att.ID,
		Excerpt:      req.Excerpt,
		AuthorID:     req.AuthorID,
		Autosave:     req.Autosave,
	}
	if _, err := s.repo.CreateRevision(ctx, rev); err != nil {
		return nil, err
	}

	if err := s.index.Invalidate(ctx, documentID); err != nil {
		return nil, fmt.Errorf("invalidate revision index: %w", err)
	}
	return att, nil
}

// Trash soft-deletes; Delete removes for good.
func (s *Service) Trash(ctx context.Context, id string) error {
	if err := s.repo.TrashDocument(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return s.index.Invalidate(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteDocument(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return s.index.Invalidate(ctx, id)
}

// DeleteRevision removes one historical snapshot and renumbers the rest by
// invalidating the cached index.
func (s *Service) DeleteRevision(ctx context.Context, revisionID string) error {
	rev, err := s.repo.GetRevision(ctx, revisionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := s.repo.DeleteRevision(ctx, revisionID); err != nil {
		return err
	}
	return s.index.Invalidate(ctx, rev.DocumentID)
}

// Attachments returns the document's uploads newest first.
func (s *Service) Attachments(ctx context.Context, documentID string) ([]*document.Attachment, error) {
	return s.repo.AttachmentsByDocument(ctx, documentID)
}

// storedKey hashes the original name with the upload time, keeping the
// extension. Thumbnails keep their original name under a separate prefix.
func storedKey(filename string, thumbnail bool) string {
	now := time.Now().UTC()
	if thumbnail {
		return fmt.Sprintf("thumbs/%04d/%02d/%s", now.Year(), int(now.Month()), path.Base(filename))
	}
	ext := strings.ToLower(path.Ext(filename))
	sum := md5.Sum([]byte(filename + now.Format(time.RFC3339Nano)))
	return fmt.Sprintf("%04d/%02d/%s%s", now.Year(), int(now.Month()), hex.EncodeToString(sum[:]), ext)
}
