package extract

import (
	"bytes"
	"context"
	"errors"
	"mime"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Handler extracts text from blobs its predicate accepts. A nil Match accepts everything.
type Handler struct {
	Name    string
	Match   func(Blob) bool
	Extract func(context.Context, Blob) (string, error)
}

// ErrBinary is returned by the catch-all handler for content that is not text.
var ErrBinary = errors.New("unsupported binary content")

// DefaultHandlers returns the built-in handler list: html, json, plain text and
// markdown, then a catch-all that accepts any valid UTF-8.
func DefaultHandlers() []Handler {
	return []Handler{
		{Name: "html", Match: matches("text/html", ".html", ".htm"), Extract: extractHTML},
		{Name: "json", Match: matches("application/json", ".json"), Extract: extractJSON},
		{Name: "text", Match: matches("text/plain", ".txt", ".log", ".csv"), Extract: extractText},
		{Name: "markdown", Match: matches("text/markdown", ".md", ".markdown"), Extract: extractText},
		catchAll,
	}
}

var catchAll = Handler{Name: "fallback", Extract: extractFallback}

func mediaType(b Blob) string {
	mt, _, err := mime.ParseMediaType(b.ContentType)
	if err != nil {
		return ""
	}
	return mt
}

func matches(contentType string, extensions ...string) func(Blob) bool {
	return func(b Blob) bool {
		if mediaType(b) == contentType {
			return true
		}
		ext := strings.ToLower(path.Ext(stripQuery(b.URL)))
		for _, e := range extensions {
			if ext == e {
				return true
			}
		}
		return false
	}
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

func extractText(_ context.Context, b Blob) (string, error) {
	if !utf8.Valid(b.Data) {
		return "", errors.New("text is not valid utf-8")
	}
	return string(b.Data), nil
}

func extractJSON(_ context.Context, b Blob) (string, error) {
	if !gjson.ValidBytes(b.Data) {
		return "", errors.New("invalid json document")
	}
	return gjson.ParseBytes(b.Data).Get("@pretty").String(), nil
}

func extractFallback(ctx context.Context, b Blob) (string, error) {
	if len(b.Data) == 0 {
		return "", nil
	}
	if !utf8.Valid(b.Data) || bytes.IndexByte(b.Data, 0) >= 0 {
		return "", ErrBinary
	}
	return extractText(ctx, b)
}

var skippedElements = map[atom.Atom]struct{}{
	atom.Script:   {},
	atom.Style:    {},
	atom.Noscript: {},
	atom.Template: {},
	atom.Head:     {},
}

var blockElements = map[atom.Atom]struct{}{
	atom.P: {}, atom.Div: {}, atom.Br: {}, atom.Li: {}, atom.Tr: {}, atom.Section: {},
	atom.Article: {}, atom.H1: {}, atom.H2: {}, atom.H3: {}, atom.H4: {}, atom.H5: {}, atom.H6: {},
	atom.Pre: {}, atom.Blockquote: {}, atom.Header: {}, atom.Footer: {},
}

func extractHTML(ctx context.Context, b Blob) (string, error) {
	doc, err := html.Parse(bytes.NewReader(b.Data))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(*html.Node) error
	walk = func(n *html.Node) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n.Type == html.ElementNode {
			if _, skip := skippedElements[n.DataAtom]; skip {
				return nil
			}
		}
		if n.Type == html.TextNode {
			if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
				if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := walk(c); err != nil {
				return err
			}
		}
		if n.Type == html.ElementNode {
			if _, block := blockElements[n.DataAtom]; block && sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
				sb.WriteByte('\n')
			}
		}
		return nil
	}
	if err := walk(doc); err != nil {
		return "", err
	}
	return sb.String(), nil
}
