package snapshot

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"transhot/internal/logger"
)

// FetchRequest asks the privileged collaborator for the bytes behind URL.
type FetchRequest struct {
	URL string `json:"url"`
}

// FetchResponse carries either base64 bytes or an error message.
type FetchResponse struct {
	Success  bool   `json:"success"`
	Base64   string `json:"base64,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PrivilegedFetcher retrieves bytes the direct path cannot reach
// (cross-origin responses, local file schemes).
type PrivilegedFetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// LocalFetcher is a PrivilegedFetcher with filesystem access and an
// unrestricted HTTP client.
type LocalFetcher struct {
	client *http.Client
	log    zerolog.Logger
}

// NewLocalFetcher creates a privileged fetcher. A nil client uses http.DefaultClient.
func NewLocalFetcher(client *http.Client) *LocalFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &LocalFetcher{
		client: client,
		log:    logger.WithComponent("privileged-fetch"),
	}
}

// Fetch never returns a transport error; failures are reported in the response.
func (f *LocalFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	data, mimeType, err := f.read(ctx, req.URL)
	if err != nil {
		f.log.Debug().Err(err).Str("url", req.URL).Msg("Privileged fetch failed")
		return FetchResponse{Success: false, Error: err.Error()}, nil
	}
	return FetchResponse{
		Success:  true,
		Base64:   base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}, nil
}

func (f *LocalFetcher) read(ctx context.Context, raw string) ([]byte, string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// bare path, including Windows drive letters
		return readFile(raw)
	}

	switch u.Scheme {
	case "file":
		return readFile(u.Path)
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
		if err != nil {
			return nil, "", err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, "", fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		data, err := readLimited(resp.Body)
		return data, resp.Header.Get("Content-Type"), err
	default:
		return nil, "", fmt.Errorf("scheme %q is not supported", u.Scheme)
	}
}

func readFile(path string) ([]byte, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()
	data, err := readLimited(file)
	return data, "", err
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxPayloadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxPayloadBytes {
		return nil, fmt.Errorf("payload exceeds %d bytes", MaxPayloadBytes)
	}
	return data, nil
}

// decodeResponse turns a privileged response back into bytes.
func decodeResponse(resp FetchResponse) ([]byte, error) {
	if !resp.Success {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "privileged fetch reported failure"
		}
		return nil, fmt.Errorf("%s", msg)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Base64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return data, nil
}
