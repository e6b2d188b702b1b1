package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"regexp"
	"time"

	"github.com/docvault/docvault/internal/document"
	"github.com/docvault/docvault/internal/models"
	"github.com/docvault/docvault/internal/users"
)

// rss is the minimal RSS 2.0 envelope the revision feed emits.
type rss struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel channel  `xml:"channel"`
}

type channel struct {
	Title         string `xml:"title"`
	Link          string `xml:"link"`
	Description   string `xml:"description"`
	LastBuildDate string `xml:"lastBuildDate"`
	Items         []item `xml:"item"`
}

type item struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description,omitempty"`
	Author      string `xml:"author,omitempty"`
	PubDate     string `xml:"pubDate"`
	GUID        guid   `xml:"guid"`
}

type guid struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// Permalink resolves a revision ordinal to its public URL. Ordinal 0 is the
// current revision.
type Permalink func(doc *document.Document, ordinal int) string

// Render produces the revision feed for one document. Revisions arrive the
// way the resolver returns them, current state first then history newest
// first; the head entry is the live document and history entries carry their
// deeplink ordinals, counting down to revision 1 at the tail.
func Render(doc *document.Document, revisions []*document.Revision, link Permalink) ([]byte, error) {
	ch := channel{
		Title:       doc.Title + " - revisions",
		Link:        link(doc, 0),
		Description: fmt.Sprintf("Revision history for %q", doc.Title),
	}
	if len(revisions) > 0 {
		ch.LastBuildDate = revisions[0].CreatedAt.UTC().Format(time.RFC1123Z)
	}
	for i, rev := range revisions {
		ordinal := 0
		if i > 0 {
			ordinal = len(revisions) - i
		}
		title := fmt.Sprintf("%s - revision %d", doc.Title, ordinal)
		if ordinal == 0 {
			title = doc.Title
		}
		ch.Items = append(ch.Items, item{
			Title:       title,
			Link:        link(doc, ordinal),
			Description: rev.Excerpt,
			Author:      rev.AuthorID,
			PubDate:     rev.CreatedAt.UTC().Format(time.RFC1123Z),
			GUID:        guid{IsPermaLink: false, Value: rev.ID},
		})
	}

	out, err := xml.MarshalIndent(rss{Version: "2.0", Channel: ch}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// SanitizeKey strips everything a feed key cannot contain.
func SanitizeKey(raw string) string {
	return nonAlnum.ReplaceAllString(raw, "")
}

// Auth validates feed requests. Feeds are pull-based and fetched by readers
// that cannot run a login flow, so a per-user bearer key in the URL stands
// in for a session.
type Auth struct {
	users     *users.Service
	keyLength int
}

func NewAuth(u *users.Service, keyLength int) *Auth {
	if keyLength <= 0 {
		keyLength = 32
	}
	return &Auth{users: u, keyLength: keyLength}
}

// Authenticate resolves the effective user for a feed request: a valid key
// impersonates its owner, otherwise the session user (possibly nil) stands.
func (a *Auth) Authenticate(ctx context.Context, sessionUser *models.User, rawKey string) (*models.User, error) {
	key := SanitizeKey(rawKey)
	if len(key) != a.keyLength {
		return sessionUser, nil
	}
	u, err := a.users.GetByFeedKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return sessionUser, nil
	}
	return u, nil
}
