// Package retrieval defines the knowledge-base search contract and an in-memory index.
package retrieval

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/casualjim/strix/pkg/textx"
)

// Hit is a ranked search result.
type Hit struct {
	ID      string  `json:"id"`
	Source  string  `json:"source,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Searcher runs similarity search over a knowledge base.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, minScore float64) ([]Hit, error)
}

// Filter drops hits scoring below minScore, sorts the rest by descending score
// and keeps at most maxHits of them. A non-positive maxHits keeps all.
func Filter(hits []Hit, minScore float64, maxHits int) []Hit {
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= minScore {
			out = append(out, h)
		}
	}
	slices.SortStableFunc(out, func(a, b Hit) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if maxHits > 0 && len(out) > maxHits {
		out = out[:maxHits]
	}
	return out
}

// Document is an entry of the in-memory index.
type Document struct {
	ID      string
	Source  string
	Content string
}

// NewMemory creates an index over docs.
func NewMemory(docs ...Document) *Memory {
	m := &Memory{}
	m.Add(docs...)
	return m
}

// Memory scores documents by token coverage of the query. It is meant for tests,
// demos and small local corpora.
type Memory struct {
	mu   sync.RWMutex
	docs []indexed
}

type indexed struct {
	Document
	tokens map[string]struct{}
}

// Add indexes more documents.
func (m *Memory) Add(docs ...Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		m.docs = append(m.docs, indexed{Document: d, tokens: textx.Set(textx.Tokens(d.Content))})
	}
}

// Len reports the number of indexed documents.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *Memory) Search(ctx context.Context, query string, topK int, minScore float64) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	qt := textx.Tokens(query)
	if len(qt) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.docs))
	for _, d := range m.docs {
		score := textx.Coverage(qt, d.tokens)
		if score == 0 {
			continue
		}
		hits = append(hits, Hit{ID: d.ID, Source: d.Source, Content: d.Content, Score: score})
	}
	m.mu.RUnlock()

	return Filter(hits, minScore, topK), nil
}
