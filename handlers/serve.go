package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/docvault/docvault/internal/access"
	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/internal/delivery"
	"github.com/docvault/docvault/internal/document"
	"github.com/docvault/docvault/internal/document/repository"
	"github.com/docvault/docvault/internal/document/service"
	"github.com/docvault/docvault/internal/feed"
	"github.com/docvault/docvault/internal/models"
	"github.com/docvault/docvault/internal/revision"
	"github.com/docvault/docvault/internal/routing"
	"github.com/docvault/docvault/internal/users"
	"github.com/docvault/docvault/pkg/logger"
	"github.com/docvault/docvault/pkg/middleware"
)

const archivePageSize = 10

// ServeHandler owns the public document URLs: pretty permalinks under the
// archive base, the query fallback on /, revision feeds and the archive
// listing.
type ServeHandler struct {
	cfg       *config.Config
	docs      *service.Service
	resolver  *revision.Resolver
	engine    *delivery.Engine
	rules     *routing.Rules
	permalink *routing.Permalinker
	auth      access.Authorizer
	feedAuth  *feed.Auth
	usersSvc  *users.Service
}

func NewServeHandler(cfg *config.Config, docs *service.Service, resolver *revision.Resolver, engine *delivery.Engine, rules *routing.Rules, permalink *routing.Permalinker, auth access.Authorizer, feedAuth *feed.Auth, usersSvc *users.Service) *ServeHandler {
	return &ServeHandler{
		cfg:       cfg,
		docs:      docs,
		resolver:  resolver,
		engine:    engine,
		rules:     rules,
		permalink: permalink,
		auth:      auth,
		feedAuth:  feedAuth,
		usersSvc:  usersSvc,
	}
}

func (h *ServeHandler) Register(r *gin.Engine, ver middleware.Verifier) {
	opt := middleware.OptionalAuthMiddleware(ver)
	r.GET("/"+h.rules.Slug()+"/*rest", opt, h.ServePath)
	r.GET("/", opt, h.ServeQuery)
}

// ServePath handles everything under the archive base via the rule table.
// File-like paths are canonicalized without a trailing slash so the
// extension stays meaningful to clients.
func (h *ServeHandler) ServePath(c *gin.Context) {
	u := currentUser(c, h.usersSvc)

	full := h.rules.Slug() + c.Param("rest")
	if strings.HasSuffix(full, "/") && routing.KeepUnslashed(full) {
		target := strings.TrimSuffix(c.Request.URL.Path, "/")
		if q := c.Request.URL.RawQuery; q != "" {
			target += "?" + q
		}
		c.Redirect(http.StatusMovedPermanently, target)
		return
	}

	m, ok := h.rules.Match(full)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if m.Archive {
		h.archive(c, u, m.Page)
		return
	}

	doc, err := h.docs.GetBySlug(c.Request.Context(), m.DocumentSlug)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if m.Feed {
		h.serveFeed(c, u, doc)
		return
	}
	h.serveFile(c, u, doc, m.Revision)
}

// ServeQuery is the ugly-permalink fallback: /?p=ID[&revision=N][&feed=rss2].
// Draft and pending documents only resolve through this form.
func (h *ServeHandler) ServeQuery(c *gin.Context) {
	id := c.Query("p")
	if id == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	u := currentUser(c, h.usersSvc)
	doc, err := h.docs.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if c.Query("feed") == "rss2" {
		h.serveFeed(c, u, doc)
		return
	}
	ordinal := 0
	if raw := c.Query("revision"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		ordinal = n
	}
	h.serveFile(c, u, doc, ordinal)
}

func (h *ServeHandler) serveFile(c *gin.Context, u *models.User, doc *document.Document, ordinal int) {
	result, err := h.engine.Serve(c.Request.Context(), c.Writer, c.Request, u, doc, ordinal)
	if err != nil {
		logger.Errorf("serving document %s: %v", doc.ID, err)
	}
	switch result {
	case delivery.ResultServed, delivery.ResultNotModified:
		// response already written by the engine
	case delivery.ResultForbidden:
		c.JSON(http.StatusForbidden, gin.H{"error": "you are not authorized to access that file"})
	case delivery.ResultPasswordRequired:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "password required"})
	case delivery.ResultNoFile:
		c.JSON(http.StatusNotFound, gin.H{"error": "document has no attached file"})
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	}
}

// serveFeed renders the revision RSS feed. ?key= lets feed readers
// authenticate without a session; a bad key silently falls back to whatever
// session the request carries.
func (h *ServeHandler) serveFeed(c *gin.Context, u *models.User, doc *document.Document) {
	if !h.cfg.Feed.Enabled {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	ctx := c.Request.Context()
	u, err := h.feedAuth.Authenticate(ctx, u, c.Query("key"))
	if err != nil {
		logger.Errorf("feed key lookup: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "feed unavailable"})
		return
	}
	// feeds expose history, so the revision capability is required even for
	// the head entry
	switch h.auth.AuthorizeServe(u, doc, 1) {
	case access.DenyNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	case access.DenyForbidden:
		c.JSON(http.StatusForbidden, gin.H{"error": "you are not authorized to access that feed"})
		return
	}
	revs, err := h.resolver.RevisionQuery(ctx, doc.ID, true)
	if err != nil {
		logger.Errorf("feed revisions for %s: %v", doc.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "feed unavailable"})
		return
	}
	body, err := feed.Render(doc, revs, func(d *document.Document, ordinal int) string {
		return h.permalink.Permalink(d, "", ordinal)
	})
	if err != nil {
		logger.Errorf("feed render for %s: %v", doc.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "feed unavailable"})
		return
	}
	c.Data(http.StatusOK, "application/rss+xml; charset=UTF-8", body)
}

// archive lists published documents, newest first, ten per page.
func (h *ServeHandler) archive(c *gin.Context, u *models.User, page int) {
	if page < 1 {
		page = 1
	}
	q := repository.ListQuery{
		Statuses: []document.Status{document.StatusPublic},
		Limit:    archivePageSize,
		Offset:   (page - 1) * archivePageSize,
	}
	h.auth.FilterList(u, &q)
	docs, err := h.docs.List(c.Request.Context(), q)
	if err != nil {
		logger.Errorf("archive page %d: %v", page, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "archive unavailable"})
		return
	}
	docs = h.auth.FilterResults(u, docs)

	items := make([]gin.H, 0, len(docs))
	for _, d := range docs {
		items = append(items, gin.H{
			"id":        d.ID,
			"slug":      d.Slug,
			"title":     d.Title,
			"excerpt":   d.Excerpt,
			"updatedAt": d.UpdatedAt,
			"permalink": h.permalink.Permalink(d, "", 0),
		})
	}
	c.JSON(http.StatusOK, gin.H{"page": page, "documents": items})
}
