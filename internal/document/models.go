package document

import "time"

// Status is the publication status of a document.
type Status string

const (
	StatusPublic  Status = "public"
	StatusPrivate Status = "private"
	StatusPending Status = "pending"
	StatusDraft   Status = "draft"
	StatusTrash   Status = "trash"
)

// Default workflow states seeded at startup.
var DefaultWorkflowStates = map[string]string{
	"in-progress":   "Document is in the process of being written",
	"initial-draft": "Document is being edited and refined",
	"under-review":  "Document is pending final review",
	"final":         "Document is in its final form",
}

// Document is a versioned content item. Content holds the identifier of the
// most recent attachment (the "current content pointer"); it is never a raw
// file path. Excerpt carries the changelog note for the latest upload.
type Document struct {
	ID            string     `json:"id" bson:"_id,omitempty"`
	Slug          string     `json:"slug" bson:"slug"`
	Title         string     `json:"title" bson:"title"`
	OwnerID       string     `json:"ownerId" bson:"ownerId"`
	Status        Status     `json:"status" bson:"status"`
	Content       string     `json:"content,omitempty" bson:"content,omitempty"`
	Excerpt       string     `json:"excerpt,omitempty" bson:"excerpt,omitempty"`
	Password      string     `json:"-" bson:"password,omitempty"`
	WorkflowState string     `json:"workflowState,omitempty" bson:"workflowState,omitempty"`
	CreatedAt     time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt" bson:"updatedAt"`
	TrashedAt     *time.Time `json:"-" bson:"trashedAt,omitempty"`
}

// Revision is an immutable snapshot of a document's content pointer, taken
// whenever the pointer changes. Autosave snapshots carry the explicit flag and
// never participate in revision numbering.
type Revision struct {
	ID           string    `json:"id" bson:"_id,omitempty"`
	DocumentID   string    `json:"documentId" bson:"documentId"`
	AttachmentID string    `json:"attachmentId" bson:"attachmentId"`
	Excerpt      string    `json:"excerpt,omitempty" bson:"excerpt,omitempty"`
	AuthorID     string    `json:"authorId" bson:"authorId"`
	Autosave     bool      `json:"autosave,omitempty" bson:"autosave,omitempty"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// Attachment is an uploaded binary object belonging to a document. Path is the
// physical location as recorded at upload time; serving substitutes the
// current base directory when storage has moved since.
type Attachment struct {
	ID         string    `json:"id" bson:"_id,omitempty"`
	DocumentID string    `json:"documentId" bson:"documentId"`
	FileName   string    `json:"fileName" bson:"fileName"`
	MimeType   string    `json:"mimeType" bson:"mimeType"`
	Path       string    `json:"-" bson:"path"`
	Size       int64     `json:"size" bson:"size"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
}

// Trashed reports whether the document has been soft-deleted.
func (d *Document) Trashed() bool { return d.Status == StatusTrash }
