package scraper

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"mediadl/pkg/models"
)

// Route names
const (
	RouteThumbnail = "thumbnail"
	RoutePost      = "post"
	RouteProfile   = "profile"
	RouteFavorites = "favorites"
	RouteDirect    = "direct"
)

// Route maps a URL shape to the handler for it. Routes are evaluated in order
// and the first match wins, so new shapes are added as new rows.
type Route struct {
	Name   string
	Match  func(segments []string) bool
	Handle func(ctx context.Context, item *models.ScrapeItem) error
}

// Segments splits the URL path into its non-empty segments
func Segments(u *url.URL) []string {
	var out []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// HasSegment matches paths containing any of names as a whole segment
func HasSegment(names ...string) func([]string) bool {
	return func(segments []string) bool {
		for _, n := range names {
			if slices.Contains(segments, n) {
				return true
			}
		}
		return false
	}
}

// Always matches every path; it belongs last in a table
func Always(_ []string) bool { return true }

// Classify returns the first route matching u
func Classify(routes []Route, u *url.URL) (Route, bool) {
	segments := Segments(u)
	for _, r := range routes {
		if r.Match(segments) {
			return r, true
		}
	}
	return Route{}, false
}

// stripSegments returns a copy of u without the named path segments
func stripSegments(u *url.URL, names ...string) *url.URL {
	var kept []string
	for _, s := range Segments(u) {
		if !slices.Contains(names, s) {
			kept = append(kept, s)
		}
	}
	out := *u
	out.Path = "/" + strings.Join(kept, "/")
	out.RawPath = ""
	return &out
}
