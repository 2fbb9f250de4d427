// Package page finds the visual elements a bulk run should translate.
package page

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"transhot/pkg/models"
)

// maxPageBytes bounds the HTML read from a page.
const maxPageBytes = 10 << 20

var hiddenStyle = regexp.MustCompile(`(?i)(display\s*:\s*none|visibility\s*:\s*hidden)`)

// imageExtensions are the local file types DiscoverDir returns.
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp"}

// Discover loads the page at pageURL (http(s), file: or a local path) and
// returns its <img> and <video> elements in document order.
func Discover(ctx context.Context, client *http.Client, pageURL string) ([]*models.Element, error) {
	const op = "Discover"

	body, base, err := load(ctx, client, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer body.Close()

	doc, err := html.Parse(io.LimitReader(body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: parse %s: %w", op, pageURL, err)
	}

	return Elements(doc, base, pageURL), nil
}

// Elements walks a parsed document. Relative sources resolve against base,
// or against a <base href> in the document.
func Elements(doc *html.Node, base *url.URL, pageURL string) []*models.Element {
	if b := findBase(doc); b != "" && base != nil {
		if u, err := base.Parse(b); err == nil {
			base = u
		}
	}

	var out []*models.Element
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
			if hidden(n) {
				return
			}
			if el := element(n, base, pageURL); el != nil {
				out = append(out, el)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// DiscoverDir returns an image element for every image file in dir, sorted
// by name.
func DiscoverDir(dir string) ([]*models.Element, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("DiscoverDir: %w", err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("DiscoverDir: %w", err)
	}

	var out []*models.Element
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		path := filepath.Join(abs, e.Name())
		out = append(out, &models.Element{
			Kind:    models.ElementImage,
			Src:     (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(),
			PageURL: (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(),
			Alt:     e.Name(),
		})
	}
	return out, nil
}

func load(ctx context.Context, client *http.Client, pageURL string) (io.ReadCloser, *url.URL, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid page URL: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch %s: %w", pageURL, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
		}
		// redirects change the base
		return resp.Body, resp.Request.URL, nil
	case "file", "":
		path := u.Path
		if u.Scheme == "" {
			path = pageURL
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return f, &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported page scheme %q", u.Scheme)
	}
}

func element(n *html.Node, base *url.URL, pageURL string) *models.Element {
	var kind models.ElementKind
	var src string

	switch n.DataAtom {
	case atom.Img:
		kind = models.ElementImage
		src = attr(n, "src")
		if src == "" || strings.HasPrefix(src, "data:image/gif") {
			// lazy loaders keep the real source elsewhere
			if lazy := attr(n, "data-src"); lazy != "" {
				src = lazy
			}
		}
		if tracking(n) {
			return nil
		}
	case atom.Video:
		// only the poster frame can be snapshotted
		kind = models.ElementVideo
		src = attr(n, "poster")
		if src == "" {
			src = attr(n, "src")
		}
	default:
		return nil
	}

	src = strings.TrimSpace(src)
	if src == "" {
		return nil
	}
	if !strings.HasPrefix(src, "data:") && base != nil {
		if u, err := base.Parse(src); err == nil {
			src = u.String()
		}
	}

	return &models.Element{Kind: kind, Src: src, PageURL: pageURL, Alt: attr(n, "alt")}
}

func attr(n *html.Node, key string) string {
	v, _ := attrOK(n, key)
	return v
}

func hidden(n *html.Node) bool {
	if _, ok := attrOK(n, "hidden"); ok {
		return true
	}
	return hiddenStyle.MatchString(attr(n, "style"))
}

func attrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// tracking reports 1x1 pixel images.
func tracking(n *html.Node) bool {
	w, errW := strconv.Atoi(attr(n, "width"))
	h, errH := strconv.Atoi(attr(n, "height"))
	return errW == nil && errH == nil && w <= 1 && h <= 1
}

func findBase(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Base {
		return attr(n, "href")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBase(c); b != "" {
			return b
		}
	}
	return ""
}
