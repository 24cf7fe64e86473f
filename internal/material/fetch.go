// Package material turns a URL into plain text suitable for a tool's
// "file" input.
package material

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/inkforge/inkforge/internal/shared/stringutils"
)

const (
	userAgent       = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36"
	maxRedirects    = 5
	defaultMaxChars = 20000
	maxBodyBytes    = 10 << 20
)

var ErrUnsupportedURL = errors.New("unsupported url")

// Material is the extracted text of one page.
type Material struct {
	URL       string
	Title     string
	Text      string
	Extractor string
	Truncated bool
}

// String renders the material as it is handed to the model.
func (m Material) String() string {
	if m.Title == "" {
		return m.Text
	}
	return m.Title + "\n\n" + m.Text
}

// Fetcher downloads pages and extracts their readable text.
type Fetcher struct {
	maxChars   int
	httpClient *http.Client
}

// NewFetcher creates a Fetcher. maxChars defaults to 20000 runes.
func NewFetcher(maxChars int) *Fetcher {
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &Fetcher{maxChars: maxChars, httpClient: client}
}

// validateURL checks that rawURL is http(s) with a host.
func validateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: only http/https allowed, got %q", ErrUnsupportedURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing domain", ErrUnsupportedURL)
	}
	return u, nil
}

// Fetch downloads rawURL and extracts text. HTML goes through readability,
// JSON is pretty-printed, anything else is returned as-is.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Material, error) {
	u, err := validateURL(rawURL)
	if err != nil {
		return Material{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Material{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Material{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Material{}, fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Material{}, fmt.Errorf("read %s: %w", rawURL, err)
	}

	m := Material{URL: resp.Request.URL.String()}
	ctype := resp.Header.Get("Content-Type")

	switch {
	case strings.Contains(ctype, "application/json"):
		var v any
		if json.Unmarshal(body, &v) == nil {
			formatted, _ := json.MarshalIndent(v, "", "  ")
			m.Text = string(formatted)
		} else {
			m.Text = string(body)
		}
		m.Extractor = "json"

	case strings.Contains(ctype, "text/html") || isHTMLPrefix(body):
		article, err := readability.FromReader(bytes.NewReader(body), u)
		if err == nil && strings.TrimSpace(article.TextContent) != "" {
			m.Title = strings.TrimSpace(article.Title)
			m.Text = normalizeWhitespace(article.TextContent)
		} else {
			m.Text = stripHTMLTags(string(body))
		}
		m.Extractor = "readability"

	default:
		m.Text = string(body)
		m.Extractor = "raw"
	}

	if truncated := stringutils.Prefix(m.Text, f.maxChars); truncated != m.Text {
		m.Text = truncated
		m.Truncated = true
	}
	return m, nil
}

func isHTMLPrefix(b []byte) bool {
	prefix := strings.ToLower(strings.TrimSpace(string(b[:min(256, len(b))])))
	return strings.HasPrefix(prefix, "<!doctype") || strings.HasPrefix(prefix, "<html")
}

var (
	reScript   = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	reStyle    = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	reTags     = regexp.MustCompile(`<[^>]+>`)
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)
)

func stripHTMLTags(text string) string {
	text = reScript.ReplaceAllString(text, "")
	text = reStyle.ReplaceAllString(text, "")
	text = reTags.ReplaceAllString(text, "")
	return normalizeWhitespace(text)
}

func normalizeWhitespace(text string) string {
	text = reSpaces.ReplaceAllString(text, " ")
	text = reNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
