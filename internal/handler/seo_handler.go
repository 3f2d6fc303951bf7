package handler

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go-content-cache/internal/pubcache"
)

// SeoHandler serves robots.txt and a sitemap of the published tree.
type SeoHandler struct {
	store   *pubcache.ContentStore
	baseURL string
}

// NewSeoHandler creates a new SeoHandler. baseURL is the public root of the site.
func NewSeoHandler(store *pubcache.ContentStore, baseURL string) *SeoHandler {
	return &SeoHandler{store: store, baseURL: strings.TrimRight(baseURL, "/")}
}

// robotsHandler serves a static robots.txt file.
func (h *SeoHandler) robotsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "User-agent: *")
	fmt.Fprintln(w, "Allow: /")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Sitemap: %s/sitemap.xml\n", h.baseURL)
}

const sitemapDateFormat = "2006-01-02"

type sitemapURL struct {
	XMLName xml.Name `xml:"url"`
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// sitemapHandler lists every published item reachable from the roots through
// published parents, depth first.
func (h *SeoHandler) sitemapHandler(w http.ResponseWriter, r *http.Request) {
	reader := h.store.Reader(r.Context())
	sitemap := urlSet{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}

	var walk func(parent int)
	walk = func(parent int) {
		for node := range reader.Children(parent) {
			c := node.Published()
			if c == nil {
				continue
			}
			sitemap.URLs = append(sitemap.URLs, sitemapURL{
				Loc:     h.baseURL + "/content/" + strconv.Itoa(c.ID()),
				LastMod: c.UpdateDate().Format(sitemapDateFormat),
			})
			walk(c.ID())
		}
	}
	walk(pubcache.RootID)

	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(xml.Header))
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(sitemap); err != nil {
		http.Error(w, "Failed to generate sitemap XML", http.StatusInternalServerError)
		return
	}
}
