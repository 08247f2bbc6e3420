// Package rag retrieves template and rule snippets that are prepended to extraction prompts.
package rag

import (
	"context"
	"math"
	"slices"
	"strings"
	"sync"
	"unicode"
)

// Snippet is one retrievable passage.
type Snippet struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Title  string  `json:"title,omitempty"`
	Text   string  `json:"text"`
	Score  float64 `json:"score,omitempty"`
}

// Store returns the snippets most similar to a query.
type Store interface {
	Search(ctx context.Context, query string, k int) ([]Snippet, error)
}

// MemoryStore ranks snippets by TF-IDF cosine similarity. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	snippets []Snippet
	vectors  []map[string]float64
	df       map[string]int
}

// NewMemoryStore constructs a store preloaded with snippets.
func NewMemoryStore(snippets ...Snippet) *MemoryStore {
	s := &MemoryStore{df: map[string]int{}}
	s.Add(snippets...)
	return s
}

// Add indexes more snippets.
func (s *MemoryStore) Add(snippets ...Snippet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sn := range snippets {
		if strings.TrimSpace(sn.Text) == "" {
			continue
		}
		tf := termFreq(sn.Title + " " + sn.Text)
		for term := range tf {
			s.df[term]++
		}
		s.snippets = append(s.snippets, sn)
		s.vectors = append(s.vectors, tf)
	}
}

// Len returns the number of indexed snippets.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snippets)
}

// Search implements Store. Snippets with no shared terms are never returned.
func (s *MemoryStore) Search(ctx context.Context, query string, k int) ([]Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.snippets) == 0 {
		return nil, nil
	}

	n := float64(len(s.snippets))
	idf := func(term string) float64 {
		return math.Log(1+n/float64(1+s.df[term])) + 1
	}
	q := weigh(termFreq(query), idf)

	type hit struct {
		idx   int
		score float64
	}
	hits := make([]hit, 0, len(s.snippets))
	for i, v := range s.vectors {
		if score := cosine(q, weigh(v, idf)); score > 0 {
			hits = append(hits, hit{idx: i, score: score})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return a.idx - b.idx
		}
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]Snippet, len(hits))
	for i, h := range hits {
		out[i] = s.snippets[h.idx]
		out[i].Score = math.Round(h.score*1000) / 1000
	}
	return out, nil
}

func termFreq(text string) map[string]float64 {
	tf := map[string]float64{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		tf[tok]++
	}
	return tf
}

func weigh(tf map[string]float64, idf func(string) float64) map[string]float64 {
	out := make(map[string]float64, len(tf))
	for term, f := range tf {
		out[term] = f * idf(term)
	}
	return out
}

func cosine(a, b map[string]float64) float64 {
	var dot, na, nb float64
	for term, av := range a {
		na += av * av
		if bv, ok := b[term]; ok {
			dot += av * bv
		}
	}
	for _, bv := range b {
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true, "from": true,
	"are": true, "was": true, "will": true, "shall": true, "should": true, "must": true, "have": true,
	"has": true, "not": true, "but": true, "all": true, "any": true, "can": true, "into": true,
}
