package handlers

import (
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/docvault/docvault/internal/access"
	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/internal/delivery"
	"github.com/docvault/docvault/internal/document"
	"github.com/docvault/docvault/internal/document/repository"
	"github.com/docvault/docvault/internal/document/service"
	"github.com/docvault/docvault/internal/lock"
	"github.com/docvault/docvault/internal/models"
	"github.com/docvault/docvault/internal/revision"
	"github.com/docvault/docvault/internal/routing"
	"github.com/docvault/docvault/internal/users"
	"github.com/docvault/docvault/pkg/logger"
	"github.com/docvault/docvault/pkg/middleware"
)

// DocumentHandler is the management API: create, upload, list, revisions,
// locks. File download lives on the public serve routes, not here.
type DocumentHandler struct {
	cfg       *config.Config
	docs      *service.Service
	resolver  *revision.Resolver
	index     *revision.Index
	auth      access.Authorizer
	locks     *lock.Service
	usersSvc  *users.Service
	permalink *routing.Permalinker
}

func NewDocumentHandler(cfg *config.Config, docs *service.Service, resolver *revision.Resolver, index *revision.Index, auth access.Authorizer, locks *lock.Service, usersSvc *users.Service, permalink *routing.Permalinker) *DocumentHandler {
	return &DocumentHandler{
		cfg:       cfg,
		docs:      docs,
		resolver:  resolver,
		index:     index,
		auth:      auth,
		locks:     locks,
		usersSvc:  usersSvc,
		permalink: permalink,
	}
}

// Register mounts the API under rg. Reads take optional auth so published
// documents stay reachable without a session; writes require a verified
// token.
func (h *DocumentHandler) Register(rg *gin.RouterGroup, ver middleware.Verifier) {
	opt := middleware.OptionalAuthMiddleware(ver)
	req := middleware.AuthMiddleware(ver)

	d := rg.Group("/documents")
	d.GET("", opt, h.List)
	d.POST("", req, h.Create)
	d.GET("/:id", opt, h.Get)
	d.PATCH("/:id", req, h.Update)
	d.DELETE("/:id", req, h.Delete)
	d.POST("/:id/file", req, h.Upload)
	d.GET("/:id/revisions", opt, h.Revisions)
	d.DELETE("/:id/revisions/:rid", req, h.DeleteRevision)
	d.GET("/:id/lock", req, h.GetLock)
	d.POST("/:id/lock", req, h.AcquireLock)
	d.DELETE("/:id/lock", req, h.ReleaseLock)
	d.POST("/:id/lock/override", req, h.OverrideLock)

	rg.POST("/feed-key", req, h.RegenerateFeedKey)
	rg.GET("/workflow-states", h.WorkflowStates)
}

// WorkflowStates lists the named editorial states documents may carry.
func (h *DocumentHandler) WorkflowStates(c *gin.Context) {
	c.JSON(http.StatusOK, document.DefaultWorkflowStates)
}

type createDocumentRequest struct {
	Title         string `json:"title" binding:"required"`
	Slug          string `json:"slug"`
	Status        string `json:"status"`
	Excerpt       string `json:"excerpt"`
	Password      string `json:"password"`
	WorkflowState string `json:"workflowState"`
}

func (h *DocumentHandler) Create(c *gin.Context) {
	u := currentUser(c, h.usersSvc)
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	if !h.auth.Can(u, access.CapEditDocuments, nil) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to create documents"})
		return
	}
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.WorkflowState != "" {
		if _, ok := document.DefaultWorkflowStates[req.WorkflowState]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown workflow state"})
			return
		}
	}
	doc, err := h.docs.Create(c.Request.Context(), service.CreateRequest{
		Title:         req.Title,
		Slug:          req.Slug,
		Status:        document.Status(req.Status),
		Excerpt:       req.Excerpt,
		Password:      req.Password,
		WorkflowState: req.WorkflowState,
	}, u.Sub)
	if err != nil {
		logger.Errorf("create document: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, h.view(doc, 0))
}

func (h *DocumentHandler) List(c *gin.Context) {
	u := currentUser(c, h.usersSvc)

	q := repository.ListQuery{}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			q.Statuses = append(q.Statuses, document.Status(strings.TrimSpace(s)))
		}
	}
	q.OwnerID = c.Query("owner")
	if n, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil {
		q.Limit = n
	}
	if n, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		q.Offset = n
	}

	h.auth.FilterList(u, &q)
	docs, err := h.docs.List(c.Request.Context(), q)
	if err != nil {
		logger.Errorf("list documents: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	docs = h.auth.FilterResults(u, docs)

	out := make([]gin.H, 0, len(docs))
	for _, d := range docs {
		out = append(out, h.view(d, 0))
	}
	c.JSON(http.StatusOK, out)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	u := currentUser(c, h.usersSvc)
	doc, ok := h.loadReadable(c, u)
	if !ok {
		return
	}
	view := h.view(doc, 0)
	revs := h.revisionViews(c, u, doc)
	view["revisions"] = revs
	if atts, err := h.docs.Attachments(c.Request.Context(), doc.ID); err == nil && len(atts) > 0 {
		view["fileType"] = delivery.FileType(atts[0].FileName)
		ext := delivery.Extension(atts[0].FileName)
		if url := h.permalink.LatestRevisionURL(doc, ext, len(revs)-1); url != "" {
			view["latestRevisionUrl"] = url
		}
	}
	if l, err := h.locks.Get(c.Request.Context(), doc.ID); err == nil && l != nil {
		view["lock"] = l
	}
	c.JSON(http.StatusOK, view)
}

type updateDocumentRequest struct {
	Title         *string `json:"title"`
	Slug          *string `json:"slug"`
	Status        *string `json:"status"`
	Excerpt       *string `json:"excerpt"`
	Password      *string `json:"password"`
	WorkflowState *string `json:"workflowState"`
}

func (h *DocumentHandler) Update(c *gin.Context) {
	u := currentUser(c, h.usersSvc)
	doc, ok := h.loadEditable(c, u)
	if !ok {
		return
	}
	var req updateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Title != nil {
		doc.Title = *req.Title
	}
	if req.Slug != nil {
		doc.Slug = *req.Slug
	}
	if req.Status != nil {
		doc.Status = document.Status(*req.Status)
	}
	if req.Excerpt != nil {
		doc.Excerpt = *req.Excerpt
	}
	if req.Password != nil {
		doc.Password = *req.Password
	}
	if req.WorkflowState != nil {
		if _, ok := document.DefaultWorkflowStates[*req.WorkflowState]; !ok && *req.WorkflowState != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown workflow state"})
			return
		}
		doc.WorkflowState = *req.WorkflowState
	}
	if err := h.docs.UpdateMeta(c.Request.Context(), doc); err != nil {
		logger.Errorf("update document %s: %v", doc.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, h.view(doc, 0))
}

// Upload accepts a multipart form: `file` plus optional `excerpt`, `autosave`
// and `thumbnail` fields. Each content upload advances the document and
// snapshots a revision.
func (h *DocumentHandler) Upload(c *gin.Context) {
	u := currentUser(c, h.usersSvc)
	doc, ok := h.loadEditable(c, u)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload"})
		return
	}
	defer f.Close()

	att, err := h.docs.Upload(c.Request.Context(), doc.ID, f, service.UploadRequest{
		FileName:  path.Base(fh.Filename),
		MimeType:  fh.Header.Get("Content-Type"),
		Size:      fh.Size,
		Excerpt:   c.PostForm("excerpt"),
		AuthorID:  u.Sub,
		Autosave:  c.PostForm("autosave") == "true",
		Thumbnail: c.PostForm("thumbnail") == "true",
	})
	if err != nil {
		logger.Errorf("upload to document %s: %v", doc.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"attachment": att,
		"permalink":  h.permalink.Permalink(doc, path.Ext(att.FileName), 0),
	})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	u := currentUser(c, h.usersSvc)
	doc, ok := h.loadEditable(c, u)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var err error
	if c.Query("force") == "true" {
		err = h.docs.Delete(ctx, doc.ID)
	} else {
		err = h.docs.Trash(ctx, doc.ID)
	}
	if err != nil {
		logger.Errorf("delete document %s: %v", doc.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DocumentHandler) Revisions(c *gin.Context) {
	u := currentUser(c, h.usersSvc)
	doc, ok := h.loadReadable(c, u)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.revisionViews(c, u, doc))
}

func (h *DocumentHandler) DeleteRevision(c *gin.Context) {
	u := currentUser(c, h.usersSvc)
	doc, ok := h.loadEditable(c, u)
	if !ok {
		return
	}
	rid := c.Param("rid")
	if err := h.docs.DeleteRevision(c.Request.Context(), rid); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "revision not found"})
			return
		}
		logger.Errorf("delete revision %s of %s: %v", rid, doc.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DocumentHandler) GetLock(c *gin.Context) {
	u := currentUser(c, h.usersSvc)
	doc, ok := h.loadReadable(c, u)
	if !ok {
		return
	}
	l, err := h.locks.Get(c.Request.Context(), doc.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lock lookup failed"})
		return
	}
	if l == nil {
		c.JSON(http.StatusOK, gin.H{"locked": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"locked": true, "lock": l})
}

func (h *DocumentHandler) AcquireLock(c *gin.Context) {
	u := currentUser(c, h.usersSvc)
	doc, ok := h.loadEditable(c, u)
	if !ok {
		return
	}
	l, err := h.locks.Acquire(c.Request.Context(), u, doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lock failed"})
		return
	}
	if l.HolderSub != u.Sub {
		c.JSON(http.StatusLocked, gin.H{"error": "document is locked", "lock": l})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lock": l})
}

func (h *DocumentHandler) ReleaseLock(c *gin.Context) {
	u := currentUser(c, h.usersSvc)
	doc, ok := h.loadEditable(c, u)
	if !ok {
		return
	}
	if err := h.locks.Release(c.Request.Context(), u, doc.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "release failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DocumentHandler) OverrideLock(c *gin.Context) {
	u := currentUser(c, h.usersSvc)
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	doc, err := h.docs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	l, err := h.locks.Override(c.Request.Context(), u, doc)
	if err != nil {
		switch {
		case errors.Is(err, lock.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to override lock"})
		case errors.Is(err, lock.ErrNoLock):
			c.JSON(http.StatusConflict, gin.H{"error": "document is not locked"})
		default:
			logger.Errorf("override lock on %s: %v", doc.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "override failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"lock": l})
}

// RegenerateFeedKey mints a fresh feed key for the caller, invalidating the
// previous one.
func (h *DocumentHandler) RegenerateFeedKey(c *gin.Context) {
	u := currentUser(c, h.usersSvc)
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	key, err := h.usersSvc.RegenerateFeedKey(c.Request.Context(), u.Sub)
	if err != nil {
		logger.Errorf("regenerate feed key for %s: %v", u.Sub, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "regenerate failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedKey": key})
}

// loadReadable fetches :id and applies the read check; it writes the error
// response itself and reports success via ok.
func (h *DocumentHandler) loadReadable(c *gin.Context, u *models.User) (*document.Document, bool) {
	doc, err := h.docs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return nil, false
	}
	if !h.auth.Can(u, "read_document", doc) {
		if u == nil {
			// hide the document from the unauthenticated
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		} else {
			c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to read this document"})
		}
		return nil, false
	}
	return doc, true
}

// loadEditable is loadReadable plus the edit check and the lock gate: a
// document locked by someone else rejects writes with 423.
func (h *DocumentHandler) loadEditable(c *gin.Context, u *models.User) (*document.Document, bool) {
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil, false
	}
	doc, err := h.docs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return nil, false
	}
	if !h.auth.Can(u, "edit_document", doc) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to edit this document"})
		return nil, false
	}
	if l, err := h.locks.Get(c.Request.Context(), doc.ID); err == nil && l != nil && l.HolderSub != u.Sub {
		c.JSON(http.StatusLocked, gin.H{"error": "document is locked", "lock": l})
		return nil, false
	}
	return doc, true
}

func (h *DocumentHandler) view(d *document.Document, ordinal int) gin.H {
	v := gin.H{
		"id":        d.ID,
		"slug":      d.Slug,
		"title":     d.Title,
		"ownerId":   d.OwnerID,
		"status":    d.Status,
		"excerpt":   d.Excerpt,
		"createdAt": d.CreatedAt,
		"updatedAt": d.UpdatedAt,
		"permalink": h.permalink.Permalink(d, "", ordinal),
	}
	if d.WorkflowState != "" {
		v["workflowState"] = d.WorkflowState
	}
	if h.cfg.Feed.Enabled {
		v["feedUrl"] = h.permalink.FeedLink(d)
	}
	return v
}

// revisionViews renders the history with ordinals, trimmed for callers
// without revision access.
func (h *DocumentHandler) revisionViews(c *gin.Context, u *models.User, doc *document.Document) []gin.H {
	canRead := h.auth.Can(u, access.CapReadRevisions, doc)
	revs, err := h.resolver.RevisionQuery(c.Request.Context(), doc.ID, canRead)
	if err != nil {
		logger.Warnf("revisions for %s: %v", doc.ID, err)
		return []gin.H{}
	}
	out := make([]gin.H, 0, len(revs))
	for i, r := range revs {
		// head is ordinal 0; stored history is newest first while the
		// index numbers revisions 1..N oldest first
		ordinal := 0
		if i > 0 {
			ordinal = len(revs) - i
		}
		out = append(out, gin.H{
			"id":           r.ID,
			"attachmentId": r.AttachmentID,
			"excerpt":      r.Excerpt,
			"authorId":     r.AuthorID,
			"createdAt":    r.CreatedAt,
			"ordinal":      ordinal,
			"permalink":    h.permalink.Permalink(doc, "", ordinal),
		})
	}
	return out
}
