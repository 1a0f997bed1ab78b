package models

import (
	"net/url"
	"strings"
)

// ScrapeItem is one unit of crawl work. It is built before dispatch and not
// mutated afterwards; children are derived with Child.
type ScrapeItem struct {
	URL              *url.URL
	ParentTitle      string
	Parents          []*url.URL
	AlbumID          string
	PartOfAlbum      bool
	PossibleDatetime int64
}

// NewScrapeItem creates a seed item
func NewScrapeItem(u *url.URL) *ScrapeItem {
	return &ScrapeItem{URL: u}
}

// ChildOptions describes what a child item adds to its parent's context
type ChildOptions struct {
	Title       string
	PartOfAlbum bool
	AlbumID     string
	Datetime    int64
	AddParent   *url.URL
}

// Child derives a new item for u that inherits the title chain and
// breadcrumbs of s.
func (s *ScrapeItem) Child(u *url.URL, opts ChildOptions) *ScrapeItem {
	child := &ScrapeItem{
		URL:              u,
		ParentTitle:      s.ParentTitle,
		Parents:          append([]*url.URL(nil), s.Parents...),
		AlbumID:          s.AlbumID,
		PartOfAlbum:      s.PartOfAlbum || opts.PartOfAlbum,
		PossibleDatetime: s.PossibleDatetime,
	}
	if opts.AddParent != nil {
		child.Parents = append(child.Parents, opts.AddParent)
	}
	child.AddToParentTitle(opts.Title)
	if opts.Datetime != 0 {
		child.PossibleDatetime = opts.Datetime
	}
	if opts.AlbumID != "" {
		child.AlbumID = opts.AlbumID
	}
	return child
}

// AddToParentTitle appends a folder segment to the title chain
func (s *ScrapeItem) AddToParentTitle(title string) {
	title = SanitizeTitle(title)
	if title == "" {
		return
	}
	if s.ParentTitle == "" {
		s.ParentTitle = title
		return
	}
	s.ParentTitle = s.ParentTitle + "/" + title
}

// Referer is the page that linked this item, used as the ledger referer
func (s *ScrapeItem) Referer() string {
	if n := len(s.Parents); n > 0 {
		return s.Parents[n-1].String()
	}
	return s.URL.String()
}

// SanitizeTitle strips characters that cannot appear in a folder name
func SanitizeTitle(title string) string {
	r := strings.NewReplacer("/", "-", "\\", "-", ":", "-", "*", "", "?", "", "\"", "", "<", "", ">", "", "|", "")
	return strings.TrimSpace(r.Replace(title))
}

// MediaItem is a resolved downloadable file. It is a transient view; the
// ledger owns the persisted state.
type MediaItem struct {
	URL              *url.URL
	Referer          string
	Domain           string
	AlbumID          string
	DownloadFolder   string
	Filename         string
	DownloadFilename string
	OriginalFilename string
	Ext              string
	FileSize         int64
	Digest           string
	CompleteFile     string
	Datetime         int64
}

// Post is a post as returned by the Coomer-style API
type Post struct {
	ID          string `json:"id"`
	User        string `json:"user"`
	Service     string `json:"service"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Published   string `json:"published"`
	Added       string `json:"added"`
	File        File   `json:"file"`
	Attachments []File `json:"attachments"`
}

// File is a post attachment; the API sends an empty object when absent
type File struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Present reports whether the API populated this file
func (f File) Present() bool {
	return f.Path != ""
}

// Favorite is an artist entry from the account favorites endpoint
type Favorite struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Service string `json:"service"`
}
