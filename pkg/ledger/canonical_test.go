package ledger

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalDomain(t *testing.T) {
	c := DefaultCanonicalizer()
	for _, d := range []string{"jpg.church", "jpg5.su", "img.kiwi", "jpg3.su"} {
		t.Run(d, func(t *testing.T) {
			want := "sharex"
			if d == "jpg5.su" {
				want = "jpg5.su"
			}
			assert.Equal(t, want, c.Domain(d))
		})
	}
	assert.Equal(t, "coomer", c.Domain("coomer"))
}

func TestHostDomain(t *testing.T) {
	c := DefaultCanonicalizer()
	tests := map[string]string{
		"jpg.church":     "sharex",
		"img.kiwi":       "sharex",
		"JPEG.pet":       "sharex",
		"jpg1.su":        "sharex",
		"simp2.jpg.fish": "sharex",
		"coomer.su":      "coomer",
		"n1.coomer.su":   "coomer",
		"www.Kemono.su":  "kemono",
		"localhost":      "localhost",
	}
	for host, want := range tests {
		assert.Equal(t, want, c.HostDomain(host), host)
	}
}

func TestCanonicalPath(t *testing.T) {
	c := DefaultCanonicalizer()
	tests := []struct {
		name    string
		raw     string
		referer string
		want    string
	}{
		{"plain", "https://coomer.su/data/ab/cd/x.jpg?f=x.jpg", "https://coomer.su/onlyfans/user/a", "/data/ab/cd/x.jpg"},
		{"no referer", "https://coomer.su/x", "", "/x"},
		{"keystamp", "https://abc.hath.network/h/0a1b/keystamp=1700000000-ff;fileindex=1/img.jpg", "https://e-hentai.org/s/0a1b/1-1", "/h/0a1b"},
		{"no keystamp", "https://abc.hath.network/h/0a1b/img.jpg", "https://e-hentai.org/s/0a1b/1-1", "/h/0a1b/img.jpg"},
		{"mediafire", "https://download123.mediafire.com/tok/abc/file.zip", "https://www.mediafire.com/file/abc/file.zip", "file.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, c.Path(u, tt.referer))
		})
	}
}

func TestCustomRules(t *testing.T) {
	c := NewCanonicalizer(map[string]string{"a.example": "example"}, PathRule{
		Name:            "constant",
		RefererContains: "example",
		Rewrite:         func(*url.URL) string { return "/fixed" },
	})
	u, _ := url.Parse("https://a.example/one/two")
	assert.Equal(t, "example", c.Domain("a.example"))
	assert.Equal(t, "/fixed", c.Path(u, "https://example.org/page"))
}
