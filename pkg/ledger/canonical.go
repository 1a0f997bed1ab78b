package ledger

import (
	"net/url"
	"path"
	"strings"
)

// PlaceholderDomain marks rows inserted before the owning crawler was known
const PlaceholderDomain = "no_crawler"

// PathRule rewrites the url_path key for files linked from matching referers
type PathRule struct {
	Name            string
	RefererContains string
	Rewrite         func(u *url.URL) string
}

// Canonicalizer maps raw domains and URLs onto ledger keys
type Canonicalizer struct {
	aliases map[string]string
	rules   []PathRule
}

// NewCanonicalizer builds a rule set. Rules are tried in order and the first
// matching referer wins.
func NewCanonicalizer(aliases map[string]string, rules ...PathRule) *Canonicalizer {
	a := make(map[string]string, len(aliases))
	for k, v := range aliases {
		a[k] = v
	}
	return &Canonicalizer{aliases: a, rules: rules}
}

// DefaultCanonicalizer returns the rules for hosts whose URLs are not stable keys
func DefaultCanonicalizer() *Canonicalizer {
	sharex := map[string]string{}
	for _, d := range []string{
		"img.kiwi", "jpg.church", "jpg.homes", "jpg.fish", "jpg.fishing",
		"jpg.pet", "jpeg.pet", "jpg1.su", "jpg2.su", "jpg3.su",
	} {
		sharex[d] = "sharex"
	}

	return NewCanonicalizer(sharex,
		PathRule{
			Name:            "e-hentai keystamp",
			RefererContains: "e-hentai",
			Rewrite:         stripKeystamp,
		},
		PathRule{
			Name:            "mediafire basename",
			RefererContains: "mediafire",
			Rewrite:         func(u *url.URL) string { return path.Base(u.Path) },
		},
	)
}

// stripKeystamp drops the rotating keystamp segment and everything after it
func stripKeystamp(u *url.URL) string {
	p := u.Path
	if i := strings.Index(p, "keystamp"); i > 0 {
		return p[:i-1]
	}
	return p
}

// Domain returns the ledger domain key
func (c *Canonicalizer) Domain(domain string) string {
	if alias, ok := c.aliases[domain]; ok {
		return alias
	}
	return domain
}

// HostDomain returns the ledger domain for a file host when no crawler
// domain is known. A host or parent host with an alias maps to the alias,
// anything else to its name without the suffix ("coomer" for n1.coomer.su).
func (c *Canonicalizer) HostDomain(host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for h := host; h != ""; {
		if alias, ok := c.aliases[h]; ok {
			return alias
		}
		i := strings.IndexByte(h, '.')
		if i < 0 {
			break
		}
		h = h[i+1:]
	}

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return c.Domain(labels[0])
	}
	return c.Domain(labels[len(labels)-2])
}

// Path returns the ledger url_path key for u as linked from referer
func (c *Canonicalizer) Path(u *url.URL, referer string) string {
	if referer != "" {
		for _, r := range c.rules {
			if strings.Contains(referer, r.RefererContains) {
				return r.Rewrite(u)
			}
		}
	}
	return u.Path
}
