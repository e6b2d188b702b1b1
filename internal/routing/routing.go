package routing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/docvault/docvault/internal/document"
)

// Match is the decoded form of a request path that hit one of the rule
// families.
type Match struct {
	DocumentSlug string
	Year         string
	Month        string
	Revision     int
	Extension    string
	Feed         bool
	Archive      bool
	Page         int
}

type rule struct {
	prefix string
	re     *regexp.Regexp
	decode func(groups []string) Match
}

// Rules maps request paths onto documents, revisions, feeds and archive
// pages. Families are ordered most specific first so a revision path never
// falls through to the plain document rule.
type Rules struct {
	mu    sync.RWMutex
	slug  string
	rules []rule
}

func NewRules(slug string) *Rules {
	r := &Rules{}
	r.Rebuild(slug)
	return r
}

// Slug returns the archive base the rules were built for.
func (r *Rules) Slug() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slug
}

// Rebuild replaces every rule built for the previous base with rules for the
// new one. Rules registered outside the base survive untouched.
func (r *Rules) Rebuild(slug string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.rules[:0]
	for _, ru := range r.rules {
		if !strings.HasPrefix(ru.prefix, r.slug+"/") && ru.prefix != r.slug {
			kept = append(kept, ru)
		}
	}
	r.rules = kept
	r.slug = slug

	base := regexp.QuoteMeta(slug)
	add := func(expr string, decode func(groups []string) Match) {
		r.rules = append(r.rules, rule{
			prefix: slug,
			re:     regexp.MustCompile(expr),
			decode: decode,
		})
	}

	// specific to general: revision, feed, document, paged archive, archive
	add(`^`+base+`/([0-9]{4})/([0-9]{2})/([^./]+)-revision-([0-9]+)\.([A-Za-z0-9]+)/?$`, func(g []string) Match {
		n, _ := strconv.Atoi(g[4])
		return Match{Year: g[1], Month: g[2], DocumentSlug: g[3], Revision: n, Extension: g[5]}
	})
	add(`^`+base+`/([0-9]{4})/([0-9]{2})/([^./]+)\.([A-Za-z0-9]+)/feed/?$`, func(g []string) Match {
		return Match{Year: g[1], Month: g[2], DocumentSlug: g[3], Extension: g[4], Feed: true}
	})
	add(`^`+base+`/([0-9]{4})/([0-9]{2})/([^./]+)/feed/?$`, func(g []string) Match {
		return Match{Year: g[1], Month: g[2], DocumentSlug: g[3], Feed: true}
	})
	add(`^`+base+`/([0-9]{4})/([0-9]{2})/([^./]+)\.([A-Za-z0-9]+)/?$`, func(g []string) Match {
		return Match{Year: g[1], Month: g[2], DocumentSlug: g[3], Extension: g[4]}
	})
	add(`^`+base+`/([0-9]{4})/([0-9]{2})/([^./]+)/?$`, func(g []string) Match {
		return Match{Year: g[1], Month: g[2], DocumentSlug: g[3]}
	})
	add(`^`+base+`/page/([0-9]+)/?$`, func(g []string) Match {
		n, _ := strconv.Atoi(g[1])
		return Match{Archive: true, Page: n}
	})
	add(`^`+base+`/?$`, func(g []string) Match {
		return Match{Archive: true, Page: 1}
	})
}

// Match decodes path against the rule families in order. The path is taken
// without its leading slash.
func (r *Rules) Match(path string) (Match, bool) {
	path = strings.TrimPrefix(path, "/")
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ru := range r.rules {
		if g := ru.re.FindStringSubmatch(path); g != nil {
			return ru.decode(g), true
		}
	}
	return Match{}, false
}

// Permalinker builds public URLs for documents.
type Permalinker struct {
	base   string
	slug   string
	pretty bool
}

// NewPermalinker builds document URLs under base (scheme and host, no
// trailing slash). pretty=false drops to the query fallback form for every
// document.
func NewPermalinker(base, slug string, pretty bool) *Permalinker {
	return &Permalinker{base: strings.TrimRight(base, "/"), slug: slug, pretty: pretty}
}

// Permalink returns the canonical URL for a document's file, ordinal 0 being
// the current revision. Unpublished documents get the query form since no
// pretty path exists for them yet.
func (p *Permalinker) Permalink(doc *document.Document, ext string, ordinal int) string {
	ext = strings.TrimPrefix(ext, ".")
	if !p.pretty || doc.Status == document.StatusPending || doc.Status == document.StatusDraft {
		u := fmt.Sprintf("%s/?p=%s", p.base, doc.ID)
		if ordinal > 0 {
			u += fmt.Sprintf("&revision=%d", ordinal)
		}
		return u
	}
	name := doc.Slug
	if ordinal > 0 {
		name = fmt.Sprintf("%s-revision-%d", doc.Slug, ordinal)
	}
	u := fmt.Sprintf("%s/%s/%s/%s", p.base, p.slug, doc.CreatedAt.UTC().Format("2006/01"), name)
	if ext != "" {
		u += "." + ext
	}
	return u
}

// LatestRevisionURL deeplinks to the newest stored revision. count is the
// number of revisions the document has; zero means nothing to link to.
func (p *Permalinker) LatestRevisionURL(doc *document.Document, ext string, count int) string {
	if count < 1 {
		return ""
	}
	return p.Permalink(doc, ext, count)
}

// FeedLink returns the revision feed URL for a document.
func (p *Permalinker) FeedLink(doc *document.Document) string {
	if !p.pretty || doc.Status == document.StatusPending || doc.Status == document.StatusDraft {
		return fmt.Sprintf("%s/?p=%s&feed=rss2", p.base, doc.ID)
	}
	return fmt.Sprintf("%s/%s/%s/%s/feed/", p.base, p.slug, doc.CreatedAt.UTC().Format("2006/01"), doc.Slug)
}

var extensionSuffix = regexp.MustCompile(`\.[A-Za-z0-9]{1,7}/?$`)

// KeepUnslashed reports whether a path must escape the usual
// trailing-slash canonicalization. File-like paths keep their bare form so
// the extension stays meaningful to clients.
func KeepUnslashed(path string) bool {
	return extensionSuffix.MatchString(path)
}
