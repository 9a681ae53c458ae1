// Package extract turns attached file references into plain text.
//
// An Extractor fetches every URL through a Fetcher, then hands the bytes to the
// first Handler whose predicate matches. The default handler list ends with a
// catch-all, so every fetched file is handled by exactly one handler. Files are
// processed with bounded concurrency and each file gets its own timeout; one
// failing file never affects the others.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/casualjim/strix/pkg/slogx"
	"github.com/casualjim/strix/pkg/stdx"
	"github.com/fogfish/opts"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxFiles    = 5
	DefaultConcurrency = 2
	DefaultTimeout     = 15 * time.Second
	DefaultMaxChars    = 20_000
)

// Blob is fetched file content.
type Blob struct {
	URL         string
	ContentType string
	Data        []byte
}

// Fetcher loads the bytes behind a file reference.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Blob, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (Blob, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (Blob, error) {
	return f(ctx, url)
}

// File is the outcome of extracting one reference.
type File struct {
	Index     int    `json:"index"`
	URL       string `json:"url"`
	Handler   string `json:"handler,omitempty"`
	Text      string `json:"text,omitempty"`
	Chars     int    `json:"chars"`
	Truncated bool   `json:"truncated,omitempty"`
	Err       string `json:"error,omitempty"`
}

// OK reports whether the file produced text.
func (f File) OK() bool {
	return f.Err == ""
}

// Option configures an Extractor.
type Option = opts.Option[Extractor]

var (
	// WithMaxFiles caps the number of references processed per request.
	WithMaxFiles = opts.ForName[Extractor, int]("maxFiles")
	// WithConcurrency bounds how many files are processed at once.
	WithConcurrency = opts.ForName[Extractor, int]("concurrency")
	// WithTimeout sets the per-file time budget covering fetch and extraction.
	WithTimeout = opts.ForName[Extractor, time.Duration]("timeout")
	// WithMaxChars caps the extracted text per file.
	WithMaxChars = opts.ForName[Extractor, int]("maxChars")
	// WithHandlers replaces the handler list. The list should end with a catch-all.
	WithHandlers = opts.ForName[Extractor, []Handler]("handlers")
)

// Extractor runs fetch and extraction for a set of file references.
type Extractor struct {
	fetcher     Fetcher
	handlers    []Handler
	maxFiles    int
	concurrency int
	timeout     time.Duration
	maxChars    int
}

// New creates an Extractor that loads files with fetcher.
func New(fetcher Fetcher, options ...Option) (*Extractor, error) {
	e := &Extractor{
		fetcher:     fetcher,
		handlers:    DefaultHandlers(),
		maxFiles:    DefaultMaxFiles,
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
		maxChars:    DefaultMaxChars,
	}
	if err := opts.Apply(e, options); err != nil {
		return nil, err
	}

	var errs []error
	if e.fetcher == nil {
		errs = append(errs, errors.New("extract: fetcher is required"))
	}
	if len(e.handlers) == 0 {
		errs = append(errs, errors.New("extract: at least one handler is required"))
	}
	if e.maxFiles <= 0 || e.concurrency <= 0 || e.timeout <= 0 {
		errs = append(errs, errors.New("extract: max files, concurrency and timeout must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return e, nil
}

// MaxFiles returns the per-request file cap.
func (e *Extractor) MaxFiles() int {
	return e.maxFiles
}

// Extract processes up to MaxFiles references. onDone, when set, is called once per
// file as soon as that file finishes; calls may come from several goroutines.
// The result is in reference order. Extract only returns once every worker finished.
func (e *Extractor) Extract(ctx context.Context, urls []string, onDone func(File)) []File {
	if len(urls) > e.maxFiles {
		urls = urls[:e.maxFiles]
	}
	results := make([]File, len(urls))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	var mu sync.Mutex
	for i, url := range urls {
		g.Go(func() error {
			f := e.extractOne(ctx, i, url)
			mu.Lock()
			results[i] = f
			mu.Unlock()
			if onDone != nil {
				onDone(f)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Extractor) extractOne(ctx context.Context, index int, url string) (file File) {
	file = File{Index: index, URL: url}
	defer func() {
		if r := recover(); r != nil {
			file.Err = fmt.Sprintf("extractor panic: %v", r)
			file.Text = ""
		}
	}()

	if strings.TrimSpace(url) == "" {
		file.Err = "empty file reference"
		return file
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	blob, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		file.Err = fmt.Sprintf("fetch failed: %v", err)
		slog.WarnContext(ctx, "file fetch failed", slogx.LoggerName("strix.extract"), slog.String("url", url), slogx.Error(err))
		return file
	}
	if blob.URL == "" {
		blob.URL = url
	}

	h := e.handlerFor(blob)
	file.Handler = h.Name
	text, err := h.Extract(ctx, blob)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		file.Err = fmt.Sprintf("%s extraction failed: %v", h.Name, err)
		return file
	}

	text = strings.TrimSpace(text)
	truncated := stdx.Truncate(text, e.maxChars)
	file.Truncated = truncated != text
	file.Text = truncated
	file.Chars = len([]rune(truncated))
	return file
}

func (e *Extractor) handlerFor(blob Blob) Handler {
	for _, h := range e.handlers {
		if h.Match == nil || h.Match(blob) {
			return h
		}
	}
	return catchAll
}
