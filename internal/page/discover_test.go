package page

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transhot/pkg/models"
)

const testPage = `<!doctype html>
<html><head><title>Shop</title><script>var img = "<img src=x.png>";</script></head>
<body>
  <img src="/banners/sale.png" alt="Sale">
  <img src="pixel.gif" width="1" height="1">
  <img src="data:image/gif;base64,R0lGOD" data-src="lazy/hero.webp">
  <div style="display: none"><img src="hidden.png"></div>
  <img hidden src="also-hidden.png">
  <video src="clip.mp4"></video>
  <video src="trailer.mp4" poster="posters/trailer.jpg"></video>
  <img src="https://cdn.example.com/abs.jpg">
  <img src="">
</body></html>`

func TestDiscoverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, testPage)
	}))
	defer srv.Close()

	pageURL := srv.URL + "/products/index.html"
	els, err := Discover(context.Background(), srv.Client(), pageURL)
	require.NoError(t, err)

	srcs := make([]string, len(els))
	for i, el := range els {
		srcs[i] = el.Src
		assert.Equal(t, pageURL, el.PageURL)
	}
	assert.Equal(t, []string{
		srv.URL + "/banners/sale.png",
		srv.URL + "/products/lazy/hero.webp",
		srv.URL + "/products/clip.mp4",
		srv.URL + "/products/posters/trailer.jpg",
		"https://cdn.example.com/abs.jpg",
	}, srcs)

	assert.Equal(t, models.ElementImage, els[0].Kind)
	assert.Equal(t, "Sale", els[0].Alt)
	assert.Equal(t, models.ElementVideo, els[2].Kind)
	assert.Equal(t, models.ElementVideo, els[3].Kind)
}

func TestDiscoverBaseHref(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(path, []byte(`<html><head><base href="https://static.example.com/img/"></head><body><img src="a.png"></body></html>`), 0o644))

	els, err := Discover(context.Background(), nil, path)
	require.NoError(t, err)
	require.Len(t, els, 1)
	assert.Equal(t, "https://static.example.com/img/a.png", els[0].Src)
}

func TestDiscoverStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := Discover(context.Background(), srv.Client(), srv.URL)
	assert.ErrorContains(t, err, "status 404")
}

func TestDiscoverDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.PNG", "a.jpg", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	els, err := DiscoverDir(dir)
	require.NoError(t, err)
	require.Len(t, els, 2)
	assert.Equal(t, "a.jpg", els[0].Alt)
	assert.Equal(t, "b.PNG", els[1].Alt)
	assert.Contains(t, els[0].Src, "file://")
}
