// Package snapshot turns on-page visual elements into content-addressed
// byte snapshots.
//
// Byte retrieval first tries a direct HTTP fetch. When that fails (a
// cross-origin refusal, a non-2xx status) or cannot be trusted (file: URLs
// and local paths), the request is delegated to a PrivilegedFetcher and its
// base64 reply decoded back into bytes. data: URLs are decoded inline.
//
// The hash is the SHA-256 of the exact bytes, so the same image served from
// different URLs shares one cache entry.
package snapshot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"transhot/internal/apierr"
	"transhot/internal/logger"
	"transhot/pkg/models"
)

// MaxPayloadBytes matches the Vision API inline image limit.
const MaxPayloadBytes = 20 * 1024 * 1024

// Extractor produces memoized snapshots of elements.
type Extractor struct {
	client     *http.Client
	privileged PrivilegedFetcher
	memo       *memo
	log        zerolog.Logger
}

// NewExtractor creates an extractor. client is used for direct fetches;
// privileged may be nil, in which case failed direct fetches are final.
func NewExtractor(client *http.Client, privileged PrivilegedFetcher) *Extractor {
	if client == nil {
		client = http.DefaultClient
	}
	return &Extractor{
		client:     client,
		privileged: privileged,
		memo:       newMemo(),
		log:        logger.WithComponent("snapshot"),
	}
}

// Snapshot returns the element's hash and bytes, fetching them at most once
// per element for the life of the extractor.
func (e *Extractor) Snapshot(ctx context.Context, el *models.Element) (*models.Snapshot, error) {
	if el == nil {
		return nil, &UnsupportedElementError{Kind: "nil"}
	}
	switch {
	case el.Kind == models.ElementImage:
	case el.Kind == models.ElementVideo && imageSource(el.Src):
		// poster frame
	default:
		return nil, &UnsupportedElementError{Kind: string(el.Kind), Src: truncateURL(el.Src)}
	}

	if snap, ok := e.memo.load(el); ok {
		return snap, nil
	}

	payload, mimeType, err := e.fetch(ctx, el.Src)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, &FetchError{Op: "decode", URL: el.Src, Err: ErrEmptyPayload}
	}

	snap := &models.Snapshot{
		Hash:     Digest(payload),
		Payload:  payload,
		MimeType: normalizeMime(mimeType, payload),
	}
	if el.Kind == models.ElementVideo && !strings.HasPrefix(snap.MimeType, "image/") {
		return nil, &UnsupportedElementError{Kind: string(el.Kind), Src: truncateURL(el.Src)}
	}
	snap.Width, snap.Height = Dimensions(payload)

	e.memo.store(el, snap)

	e.log.Debug().
		Str("hash", snap.Hash).
		Str("mime_type", snap.MimeType).
		Int("bytes", len(payload)).
		Int("width", snap.Width).
		Int("height", snap.Height).
		Msg("Snapshot created")

	return snap, nil
}

func (e *Extractor) fetch(ctx context.Context, src string) ([]byte, string, error) {
	if len(src) > 5 && strings.EqualFold(src[:5], "data:") {
		payload, mimeType, err := decodeDataURL(src)
		if err != nil {
			return nil, "", &FetchError{Op: "data", URL: truncateURL(src), Err: err}
		}
		return payload, mimeType, nil
	}

	u, err := url.Parse(src)
	if err != nil {
		return e.delegate(ctx, src, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		payload, mimeType, err := e.direct(ctx, src)
		if err == nil {
			return payload, mimeType, nil
		}
		e.log.Debug().Err(err).Str("url", src).Msg("Direct fetch failed, delegating")
		return e.delegate(ctx, src, err)
	default:
		// file: URLs and local paths cannot be verified by a direct fetch
		return e.delegate(ctx, src, nil)
	}
}

func (e *Extractor) direct(ctx context.Context, src string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	payload, err := readLimited(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return payload, resp.Header.Get("Content-Type"), nil
}

func (e *Extractor) delegate(ctx context.Context, src string, directErr error) ([]byte, string, error) {
	if e.privileged == nil {
		if directErr == nil {
			directErr = ErrFetchFailed
		}
		return nil, "", &FetchError{Op: "direct", URL: src, Err: directErr}
	}

	resp, err := e.privileged.Fetch(ctx, FetchRequest{URL: src})
	if err != nil {
		return nil, "", &FetchError{Op: "privileged", URL: src, Err: err}
	}
	payload, err := decodeResponse(resp)
	if err != nil {
		return nil, "", &FetchError{Op: "privileged", URL: src, Err: errors.Join(ErrFetchFailed, err)}
	}
	return payload, resp.MimeType, nil
}

func decodeDataURL(src string) ([]byte, string, error) {
	header, data, found := strings.Cut(src[len("data:"):], ",")
	if !found {
		return nil, "", errors.New("malformed data URL")
	}

	mimeType := header
	isBase64 := false
	if before, found := strings.CutSuffix(header, ";base64"); found {
		mimeType = before
		isBase64 = true
	}

	if isBase64 {
		payload, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data URL: %w", err)
		}
		return payload, mimeType, nil
	}
	decoded, err := url.PathUnescape(data)
	if err != nil {
		return nil, "", err
	}
	return []byte(decoded), mimeType, nil
}

func normalizeMime(declared string, payload []byte) string {
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mediaType, "image/") {
			return mediaType
		}
	}
	return http.DetectContentType(payload)
}

// posterExtensions are the URL path suffixes accepted as a video poster.
var posterExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".avif"}

// imageSource reports whether src names image bytes: an image/* data URL or
// a URL or path with an image extension.
func imageSource(src string) bool {
	if len(src) > 5 && strings.EqualFold(src[:5], "data:") {
		return strings.HasPrefix(strings.ToLower(src[5:]), "image/")
	}
	p := src
	if u, err := url.Parse(src); err == nil {
		p = u.Path
	}
	return slices.Contains(posterExtensions, strings.ToLower(path.Ext(p)))
}

func truncateURL(src string) string {
	return apierr.Excerpt([]byte(src), 64)
}
