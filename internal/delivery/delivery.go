package delivery

import (
	"compress/gzip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/docvault/docvault/internal/access"
	"github.com/docvault/docvault/internal/document"
	"github.com/docvault/docvault/internal/models"
	"github.com/docvault/docvault/internal/revision"
	"github.com/docvault/docvault/internal/storage"
	"github.com/docvault/docvault/pkg/logger"
	"github.com/docvault/docvault/pkg/metrics"
)

// Result tells the caller how a serve attempt ended. The engine writes the
// response body only for Served and NotModified; denials are rendered by the
// caller so a hidden document is indistinguishable from a missing page.
type Result int

const (
	ResultServed Result = iota
	ResultNotModified
	ResultNotFound
	ResultForbidden
	ResultNoFile
	ResultPasswordRequired
)

var (
	// ErrOutputWritten means response data was already emitted before
	// streaming began; continuing would corrupt the download.
	ErrOutputWritten = errors.New("output already written, file delivery suppressed")
)

// Hooks are the override points around resolution, authorization and header
// computation. All fields are optional.
type Hooks struct {
	// Authorize short-circuits the access decision when non-nil.
	Authorize func(u *models.User, doc *document.Document, ordinal int) access.Decision
	// MimeType overrides content-type detection; return "" to fall through.
	MimeType func(location string) string
	// Headers may adjust the computed header set before it is sent.
	Headers func(h http.Header, location string)
	// PathFilter normalizes the resolved physical location; defaults to
	// NormalizePath.
	PathFilter func(location string) string
	// UseGzip decides whether to negotiate compression; defaults to always
	// (still subject to Accept-Encoding).
	UseGzip func(mimeType string, size int64) bool
}

// Config carries the storage layout the engine resolves against. Explicit
// here rather than read from ambient state so a request always sees one
// consistent view.
type Config struct {
	// UploadDir is the base directory attachment paths were recorded under;
	// BaseDir is where the files live now.
	UploadDir string
	BaseDir   string
	// DispositionInline serves files for in-browser display; false forces a
	// download dialog.
	DispositionInline bool
}

// Engine streams resolved document files with correct caching headers.
type Engine struct {
	store    storage.BlobStore
	resolver *revision.Resolver
	auth     access.Authorizer
	cfg      Config
	hooks    Hooks
}

func NewEngine(store storage.BlobStore, resolver *revision.Resolver, auth access.Authorizer, cfg Config, hooks Hooks) *Engine {
	return &Engine{store: store, resolver: resolver, auth: auth, cfg: cfg, hooks: hooks}
}

// writtenTracker is satisfied by gin's ResponseWriter; it lets the engine
// detect output emitted before streaming starts.
type writtenTracker interface {
	Written() bool
}

// Serve resolves the requested revision and streams its file. Ordinal 0
// means the latest revision. On Served the connection has received the full
// body and no further handler output may follow.
func (e *Engine) Serve(ctx context.Context, w http.ResponseWriter, req *http.Request, u *models.User, doc *document.Document, ordinal int) (Result, error) {
	// password-protected documents fall through to the password prompt
	if doc.Password != "" && req.URL.Query().Get("password") != doc.Password {
		return ResultPasswordRequired, nil
	}

	att, err := e.resolver.Resolve(ctx, doc.ID, ordinal)
	if err != nil {
		switch {
		case errors.Is(err, revision.ErrNoAttachment):
			return ResultNoFile, nil
		case errors.Is(err, revision.ErrNotFound):
			return ResultNotFound, nil
		}
		return ResultNotFound, err
	}

	// the recorded path may predate a storage move; substitute the current
	// base directory, then normalize platform quirks
	location := substituteBase(att.Path, e.cfg.UploadDir, e.cfg.BaseDir)
	if e.hooks.PathFilter != nil {
		location = e.hooks.PathFilter(location)
	} else {
		location = NormalizePath(location)
	}

	info, err := e.store.Stat(ctx, location)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// missing on disk reads exactly like a missing page
			return ResultNotFound, nil
		}
		return ResultNotFound, err
	}

	decision := e.auth.AuthorizeServe(u, doc, ordinal)
	if e.hooks.Authorize != nil {
		decision = e.hooks.Authorize(u, doc, ordinal)
	}
	switch decision {
	case access.DenyNotFound:
		metrics.ServeDenied.WithLabelValues("not_found").Inc()
		return ResultNotFound, nil
	case access.DenyForbidden:
		metrics.ServeDenied.WithLabelValues("forbidden").Inc()
		return ResultForbidden, nil
	}

	headers := e.buildHeaders(doc, att, ordinal, location, info)
	if e.hooks.Headers != nil {
		e.hooks.Headers(headers, location)
	}
	dst := w.Header()
	for k, vs := range headers {
		dst[k] = vs
	}

	if notModified(req, headers.Get("ETag"), info.ModTime) {
		w.WriteHeader(http.StatusNotModified)
		metrics.DocumentsServed.WithLabelValues("not_modified").Inc()
		return ResultNotModified, nil
	}

	// large files may outlive the server's write timeout
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	// corruption guard: any output already sent means the stream cannot be
	// trusted
	if t, ok := w.(writtenTracker); ok && t.Written() {
		return ResultNotFound, ErrOutputWritten
	}

	body, err := e.store.Open(ctx, location)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ResultNotFound, nil
		}
		return ResultNotFound, err
	}
	defer body.Close()

	var out io.Writer = w
	if e.negotiateGzip(req, headers.Get("Content-Type"), info.Size) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		out = gz
	}

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(out, body); err != nil {
		// headers are gone; nothing to do but log
		logger.Errorf("streaming %s: %v", location, err)
		return ResultServed, err
	}
	metrics.DocumentsServed.WithLabelValues("ok").Inc()
	return ResultServed, nil
}

func (e *Engine) buildHeaders(doc *document.Document, att *document.Attachment, ordinal int, location string, info storage.BlobInfo) http.Header {
	h := http.Header{}

	// synthetic filename: slug plus the revision marker, true extension kept
	filename := doc.Slug
	if ordinal > 0 {
		filename += fmt.Sprintf("-revision-%d", ordinal)
	}
	filename += Extension(att.FileName)

	disposition := "attachment"
	if e.cfg.DispositionInline {
		disposition = "inline"
	}
	h.Set("Content-Disposition", disposition+`; filename="`+filename+`"`)

	mimeType := ""
	if e.hooks.MimeType != nil {
		mimeType = e.hooks.MimeType(location)
	}
	if mimeType == "" {
		mimeType = att.MimeType
	}
	if mimeType == "" {
		mimeType = mime.TypeByExtension(path.Ext(location))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)
	h.Set("Content-Length", strconv.FormatInt(info.Size, 10))

	lm := info.ModTime.UTC().Format("Mon, 02 Jan 2006 15:04:05")
	sum := md5.Sum([]byte(lm))
	h.Set("Last-Modified", lm+" GMT")
	h.Set("ETag", `"`+hex.EncodeToString(sum[:])+`"`)
	h.Set("Expires", time.Now().Add(100000000*time.Second).UTC().Format("Mon, 02 Jan 2006 15:04:05")+" GMT")
	return h
}

// notModified implements the validator policy: when the client sends both
// If-Modified-Since and If-None-Match both must match, with only one present
// a single match suffices.
func notModified(req *http.Request, etag string, modTime time.Time) bool {
	clientEtag := req.Header.Get("If-None-Match")
	clientLM := req.Header.Get("If-Modified-Since")

	var clientTime time.Time
	if clientLM != "" {
		if t, err := http.ParseTime(clientLM); err == nil {
			clientTime = t
		}
	}
	mod := modTime.UTC().Truncate(time.Second)
	timeMatch := clientLM != "" && !clientTime.IsZero() && !clientTime.Before(mod)
	etagMatch := clientEtag != "" && clientEtag == etag

	if clientLM != "" && clientEtag != "" {
		return timeMatch && etagMatch
	}
	return timeMatch || etagMatch
}

func (e *Engine) negotiateGzip(req *http.Request, mimeType string, size int64) bool {
	use := true
	if e.hooks.UseGzip != nil {
		use = e.hooks.UseGzip(mimeType, size)
	}
	return use && strings.Contains(req.Header.Get("Accept-Encoding"), "gzip")
}

func substituteBase(location, uploadDir, baseDir string) string {
	if uploadDir == "" || baseDir == "" || uploadDir == baseDir {
		return location
	}
	return strings.Replace(location, uploadDir, baseDir, 1)
}

var driveLetter = regexp.MustCompile(`^[a-zA-Z]:`)

// NormalizePath strips a windows drive letter and flips backslashes so paths
// recorded on one platform resolve on another.
func NormalizePath(p string) string {
	p = driveLetter.ReplaceAllString(p, "")
	return strings.ReplaceAll(p, `\`, "/")
}

// Extension returns the file's dotted extension, or "" when it has none.
func Extension(file string) string {
	ext := path.Ext(file)
	if ext == "." {
		return ""
	}
	return ext
}

// FileType returns the MIME type implied by the file's extension, falling
// back to application/octet-stream for unknown or missing extensions.
func FileType(file string) string {
	if t := mime.TypeByExtension(Extension(file)); t != "" {
		return t
	}
	return "application/octet-stream"
}
