package scraper

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	errs "mediadl/pkg/errors"
	"mediadl/pkg/logger"
	"mediadl/pkg/models"
)

const (
	// CoomerDomain is the ledger domain and credential key for the site
	CoomerDomain = "coomer"

	// pageSize is the offset step of the profile listing API
	pageSize = 50

	dateLayout = "2006-01-02 15:04:05"
)

// PostOptions controls folder naming and content filters
type PostOptions struct {
	IgnoreAds      bool
	SeparatePosts  bool
	IncludeAlbumID bool
}

// Coomer handles a Coomer-style site: profiles, posts, favorites and the
// files they link to.
type Coomer struct {
	primary *url.URL
	api     *url.URL

	fetcher Fetcher
	files   FileHandler
	creds   CredentialSource
	limits  HostLimiter
	spawner Spawner
	opts    PostOptions
	log     logger.Logger
}

func newCoomer(base *url.URL, deps Deps, spawner Spawner, files FileHandler, opts PostOptions, log logger.Logger) *Coomer {
	primary := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
	return &Coomer{
		primary: primary,
		api:     primary.JoinPath("api", "v1"),
		fetcher: deps.Fetcher,
		files:   files,
		creds:   deps.Credentials,
		limits:  deps.Limiter,
		spawner: spawner,
		opts:    opts,
		log:     log.WithField("site", CoomerDomain),
	}
}

// Routes is the decision table for the site
func (c *Coomer) Routes() []Route {
	return []Route{
		{Name: RouteThumbnail, Match: HasSegment("thumbnails", "thumbnail"), Handle: c.thumbnail},
		{Name: RoutePost, Match: HasSegment("post"), Handle: c.post},
		{Name: RouteProfile, Match: HasSegment("onlyfans", "fansly"), Handle: c.profile},
		{Name: RouteFavorites, Match: HasSegment("favorites"), Handle: c.favorites},
		{Name: RouteDirect, Match: Always, Handle: c.direct},
	}
}

func (c *Coomer) wait(ctx context.Context) error {
	return c.limits.Wait(ctx, c.primary.Host)
}

func (c *Coomer) thumbnail(ctx context.Context, item *models.ScrapeItem) error {
	full := *item
	full.URL = stripSegments(item.URL, "thumbnails", "thumbnail")
	return c.direct(ctx, &full)
}

func (c *Coomer) profile(ctx context.Context, item *models.ScrapeItem) error {
	segs := Segments(item.URL)
	if len(segs) < 3 {
		return errs.NewScrapeFailure(http.StatusUnprocessableEntity, "profile URL lacks service and user", item.URL.String())
	}
	service, user := segs[0], segs[2]

	userName, err := c.userName(ctx, item, "span[itemprop=name]")
	if err != nil {
		return err
	}

	listing := c.api.JoinPath(service, "user", user)
	for offset := 0; ; offset += pageSize {
		if err := c.wait(ctx); err != nil {
			return err
		}

		page := *listing
		page.RawQuery = url.Values{"o": {strconv.Itoa(offset)}}.Encode()

		var posts []models.Post
		if err := c.fetcher.FetchJSON(ctx, CoomerDomain, page.String(), item.URL.String(), "", &posts); err != nil {
			return err
		}
		if len(posts) == 0 {
			c.log.DebugWithFields("Profile listing exhausted", map[string]interface{}{
				"user":   user,
				"offset": offset,
			})
			return nil
		}

		for i := range posts {
			c.postContent(item, &posts[i], userName)
		}
	}
}

func (c *Coomer) post(ctx context.Context, item *models.ScrapeItem) error {
	segs := Segments(item.URL)
	if len(segs) < 5 {
		return errs.NewScrapeFailure(http.StatusUnprocessableEntity, "post URL lacks service, user and id", item.URL.String())
	}
	service, user, postID := segs[0], segs[2], segs[4]

	userName, err := c.userName(ctx, item, "a.post__user-name")
	if err != nil {
		return err
	}

	if err := c.wait(ctx); err != nil {
		return err
	}
	var post models.Post
	endpoint := c.api.JoinPath(service, "user", user, "post", postID)
	if err := c.fetcher.FetchJSON(ctx, CoomerDomain, endpoint.String(), item.URL.String(), "", &post); err != nil {
		return err
	}

	c.postContent(item, &post, userName)
	return nil
}

func (c *Coomer) userName(ctx context.Context, item *models.ScrapeItem, selector string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	doc, err := c.fetcher.FetchDocument(ctx, CoomerDomain, item.URL.String(), item.URL.String(), "")
	if err != nil {
		return "", err
	}

	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", errs.NewScrapeFailure(http.StatusUnprocessableEntity, "user name not found on page", item.URL.String())
	}
	return strings.TrimSpace(sel.Text()), nil
}

// postContent spawns one child per file of post. Filters apply here, before
// anything is downloaded.
func (c *Coomer) postContent(item *models.ScrapeItem, post *models.Post, userName string) {
	if c.opts.IgnoreAds && strings.Contains(post.Content, "#ad") {
		c.log.DebugWithFields("Skipping ad post", map[string]interface{}{"post_id": post.ID})
		return
	}

	date := post.Published
	if date == "" {
		date = post.Added
	}
	date = strings.ReplaceAll(date, "T", " ")

	title := post.Title
	if title == "" {
		title = "Untitled"
	}

	var postTitle string
	if c.opts.SeparatePosts {
		postTitle = date + " - " + title
		if c.opts.IncludeAlbumID {
			postTitle = post.ID + " - " + postTitle
		}
	}

	files := make([]models.File, 0, len(post.Attachments)+1)
	if post.File.Present() {
		files = append(files, post.File)
	}
	for _, a := range post.Attachments {
		if a.Present() {
			files = append(files, a)
		}
	}

	parent := postURL(item.URL, post.ID)
	datetime := c.parseDate(date)
	for _, f := range files {
		link := c.primary.JoinPath("data", f.Path)
		link.RawQuery = url.Values{"f": {f.Name}}.Encode()

		child := item.Child(link, models.ChildOptions{
			Title:       userName,
			PartOfAlbum: true,
			AlbumID:     post.ID,
			Datetime:    datetime,
			AddParent:   parent,
		})
		child.AddToParentTitle(postTitle)
		c.spawner.Spawn(child)
	}
}

// postURL is the page of post id; listings link it below the profile URL
func postURL(u *url.URL, id string) *url.URL {
	if HasSegment("post")(Segments(u)) {
		out := *u
		out.RawQuery = ""
		return &out
	}
	out := u.JoinPath("post", id)
	out.RawQuery = ""
	return out
}

func (c *Coomer) parseDate(date string) int64 {
	if i := strings.IndexByte(date, '.'); i >= 0 {
		date = date[:i]
	}
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		c.log.DebugWithFields("Unparseable post date", map[string]interface{}{"date": date})
		return 0
	}
	return t.Unix()
}

func (c *Coomer) favorites(ctx context.Context, item *models.ScrapeItem) error {
	session := c.creds.Session(CoomerDomain)
	if session == "" {
		return &errs.AuthRequiredFailure{Host: c.primary.Host, Origin: item.URL.String()}
	}

	if err := c.wait(ctx); err != nil {
		return err
	}
	endpoint := c.api.JoinPath("account", "favorites")
	endpoint.RawQuery = url.Values{"type": {"artist"}}.Encode()

	var favs []models.Favorite
	if err := c.fetcher.FetchJSON(ctx, CoomerDomain, endpoint.String(), item.URL.String(), session, &favs); err != nil {
		return err
	}

	for _, f := range favs {
		link := c.primary.JoinPath(f.Service, "user", f.ID)
		c.spawner.Spawn(item.Child(link, models.ChildOptions{PartOfAlbum: true}))
	}
	c.log.InfoWithFields("Favorites resolved", map[string]interface{}{"artists": len(favs)})
	return nil
}

func (c *Coomer) direct(ctx context.Context, item *models.ScrapeItem) error {
	name := item.URL.Query().Get("f")
	if name == "" {
		name = path.Base(item.URL.Path)
	}
	filename, ext, err := FilenameAndExt(name)
	if err != nil {
		return errs.NewScrapeFailure(http.StatusUnprocessableEntity, err.Error(), item.URL.String())
	}
	return c.files.HandleFile(ctx, CoomerDomain, item.URL, item, filename, ext)
}
