package access

import (
	"github.com/docvault/docvault/internal/document"
	"github.com/docvault/docvault/internal/document/repository"
	"github.com/docvault/docvault/internal/models"
)

// Capabilities checked by this package. Document-specific capabilities are
// deliberately distinct from the host's generic read grant.
const (
	CapRead                 = "read"
	CapReadDocuments        = "read_documents"
	CapReadRevisions        = "read_document_revisions"
	CapReadPrivateDocuments = "read_private_documents"
	CapEditDocuments        = "edit_documents"
	CapEditOthersDocuments  = "edit_others_documents"
	CapOverrideLock         = "override_document_lock"
)

const RoleAdministrator = "administrator"

// roleCaps grants document capabilities per role. Administrators bypass
// capability checks entirely.
var roleCaps = map[string]map[string]bool{
	"editor": {
		CapRead: true, CapReadDocuments: true, CapReadRevisions: true,
		CapReadPrivateDocuments: true, CapEditDocuments: true,
		CapEditOthersDocuments: true, CapOverrideLock: true,
	},
	"author": {
		CapRead: true, CapReadDocuments: true, CapReadRevisions: true,
		CapEditDocuments: true,
	},
	"contributor": {
		CapRead: true, CapReadDocuments: true, CapReadRevisions: true,
	},
	"subscriber": {
		CapRead: true, CapReadDocuments: true,
	},
}

// Decision is the outcome of an authorization check at the serving boundary.
type Decision int

const (
	Allow Decision = iota
	// DenyNotFound hides the document's existence: render the standard
	// not-found response.
	DenyNotFound
	// DenyForbidden is an explicit 403 with a user-facing message.
	DenyForbidden
)

// Authorizer is the capability strategy for a deployment, selected once from
// configuration: strict requires the document-specific read capability,
// lenient lets generic read access reach published documents.
type Authorizer interface {
	// Can checks a capability, optionally against a specific document.
	Can(u *models.User, capability string, doc *document.Document) bool
	// AuthorizeServe decides whether a file request may be served.
	// Ordinal 0 means "latest", >0 a specific revision.
	AuthorizeServe(u *models.User, doc *document.Document, ordinal int) Decision
	// FilterList rewrites a status-scoped listing query to the host's
	// "readable" semantics unless the caller is an administrator.
	FilterList(u *models.User, q *repository.ListQuery)
	// FilterResults post-filters listing rows the caller may not read
	// individually.
	FilterResults(u *models.User, docs []*document.Document) []*document.Document
}

// New returns the authorizer for the configured regime.
// documentReadUsesRead true selects lenient mode (the default).
func New(documentReadUsesRead bool) Authorizer {
	return &authorizer{strict: !documentReadUsesRead}
}

type authorizer struct {
	strict bool
}

func (a *authorizer) caps(u *models.User) map[string]bool {
	out := map[string]bool{}
	if u == nil {
		// unauthenticated callers carry only the generic read grant
		out[CapRead] = true
	} else {
		for _, role := range u.Roles {
			for c, ok := range roleCaps[role] {
				if ok {
					out[c] = true
				}
			}
		}
	}
	if a.strict {
		// strict mode strips the generic read grant for document objects,
		// forcing checks through the document-specific path
		delete(out, CapRead)
	}
	return out
}

func (a *authorizer) Can(u *models.User, capability string, doc *document.Document) bool {
	if u.HasRole(RoleAdministrator) {
		return true
	}
	caps := a.caps(u)
	switch capability {
	case "read_document":
		return a.canReadDocument(u, caps, doc)
	case "edit_document":
		if !caps[CapEditDocuments] {
			return false
		}
		if doc != nil && u != nil && doc.OwnerID != u.Sub {
			return caps[CapEditOthersDocuments]
		}
		return u != nil
	default:
		return caps[capability]
	}
}

// canReadDocument applies the per-document read check. In strict mode the
// generic read check is rewritten to read_documents.
func (a *authorizer) canReadDocument(u *models.User, caps map[string]bool, doc *document.Document) bool {
	if doc == nil || doc.Trashed() {
		return false
	}
	required := CapRead
	if a.strict {
		required = CapReadDocuments
	}
	if doc.Status == document.StatusPublic {
		return caps[required]
	}
	// non-public: the owner may always read their own document
	if u != nil && doc.OwnerID == u.Sub {
		return true
	}
	return caps[CapReadPrivateDocuments] && caps[required]
}

func (a *authorizer) AuthorizeServe(u *models.User, doc *document.Document, ordinal int) Decision {
	if u.HasRole(RoleAdministrator) {
		return Allow
	}
	// unauthenticated strict-mode denials pretend the document does not exist
	hidden := u == nil && a.strict

	// published document, no specific revision: generic read suffices in
	// lenient mode even without a session
	if ordinal <= 0 && doc.Status == document.StatusPublic && u == nil && !a.strict {
		return Allow
	}

	caps := a.caps(u)
	if ordinal > 0 && !caps[CapReadRevisions] {
		return deny(hidden)
	}
	if !a.canReadDocument(u, caps, doc) {
		return deny(hidden)
	}
	return Allow
}

func deny(hidden bool) Decision {
	if hidden {
		return DenyNotFound
	}
	return DenyForbidden
}

func (a *authorizer) FilterList(u *models.User, q *repository.ListQuery) {
	if u.HasRole(RoleAdministrator) {
		return
	}
	// status-scoped queries bypass per-document checks; force readable
	// semantics for everyone else
	if len(q.Statuses) > 0 && q.ReadableBy == "" {
		if u != nil {
			q.ReadableBy = u.Sub
		} else {
			q.ReadableBy = "-"
		}
	}
}

func (a *authorizer) FilterResults(u *models.User, docs []*document.Document) []*document.Document {
	if !a.strict || u.HasRole(RoleAdministrator) {
		return docs
	}
	if a.caps(u)[CapReadDocuments] {
		return docs
	}
	// list views never leak documents the caller cannot individually read
	return []*document.Document{}
}
