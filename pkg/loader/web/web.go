package web

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader"

	"codeberg.org/readeck/go-readability/v2"
)

const maxBodyBytes = 20 << 20

// WebGraphLoader loads content from web URLs and extracts readable text.
// For HTML pages, it uses readability to extract the main content. Plain
// text and markdown responses are returned as is.
type WebGraphLoader struct {
	client *http.Client
	cache  *loader.Cache
}

// NewWebGraphLoader creates a web loader. A nil client uses
// http.DefaultClient.
func NewWebGraphLoader(client *http.Client) *WebGraphLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebGraphLoader{
		client: client,
		cache:  loader.NewCache(),
	}
}

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid url: missing host")
	}
	return u, nil
}

// GetFileText fetches the URL in file.FilePath and extracts readable text.
func (l *WebGraphLoader) GetFileText(ctx context.Context, file loader.GraphFile) ([]byte, error) {
	return l.cache.Load(loader.CacheKey(file), func() ([]byte, error) {
		return l.fetch(ctx, file.FilePath)
	})
}

func (l *WebGraphLoader) fetch(ctx context.Context, raw string) ([]byte, error) {
	u, err := ValidateURL(raw)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch url: status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		article, err := readability.FromReader(body, u)
		if err != nil {
			return nil, fmt.Errorf("failed to parse html: %w", err)
		}
		var builder strings.Builder
		if err := article.RenderText(&builder); err != nil {
			return nil, fmt.Errorf("failed to render article text: %w", err)
		}
		return []byte(strings.TrimSpace(builder.String()) + "\n"), nil
	case strings.HasPrefix(mediaType, "text/"), mediaType == "":
		return io.ReadAll(body)
	default:
		return nil, fmt.Errorf("%w: %s", loader.ErrUnsupportedFileType, mediaType)
	}
}
