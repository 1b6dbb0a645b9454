package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"consultd/internal/store"
)

const (
	DefaultTopK     = 4
	DefaultMinScore = 0.35
)

// RetrieveOptions narrows and scores the candidate set, per §4.H's
// Retrieve(query, {docIds?, docTitles?, folder?, topK=4, minScore=0.35}).
type RetrieveOptions struct {
	DocIDs    []string
	DocTitles []string
	Folder    string
	TopK      int
	// MinScore is a pointer so an explicit 0 (no floor, per §8 scenario 4)
	// is distinguishable from unset (apply DefaultMinScore).
	MinScore *float64
}

func (o RetrieveOptions) withDefaults() RetrieveOptions {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.MinScore == nil {
		d := DefaultMinScore
		o.MinScore = &d
	}
	return o
}

// Hit is one scored chunk, ready for rendering.
type Hit struct {
	Chunk store.ChunkWithDoc
	Score float64
}

// CandidateStore is the store dependency Retrieve needs.
type CandidateStore interface {
	SearchCandidates(ctx context.Context, f store.SearchCandidateFilter) ([]store.ChunkWithDoc, error)
}

// Embedder is the embedding dependency Retrieve needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, string, error)
}

// Retriever runs the RAG Pipeline's retrieval step.
type Retriever struct {
	store   CandidateStore
	embedder Embedder
}

func NewRetriever(store CandidateStore, embedder Embedder) *Retriever {
	return &Retriever{store: store, embedder: embedder}
}

// Retrieve embeds query, loads and scores candidates, and returns the top
// hits above minScore, per the 4-step algorithm of §4.H.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]Hit, error) {
	opts = opts.withDefaults()

	vectors, _, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	queryVec := vectors[0]

	candidates, err := r.store.SearchCandidates(ctx, store.SearchCandidateFilter{
		DocIDs:    opts.DocIDs,
		DocTitles: opts.DocTitles,
		Folder:    opts.Folder,
	})
	if err != nil {
		return nil, fmt.Errorf("loading search candidates: %w", err)
	}

	hits := make([]Hit, 0, len(candidates))
	for _, c := range candidates {
		vec := DecodeVector(c.EmbeddingBytes())
		score := CosineSimilarity(queryVec, vec)
		if score < *opts.MinScore {
			continue
		}
		hits = append(hits, Hit{Chunk: c, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}
	return hits, nil
}

// RenderContext builds the "Relevant Context (RAG):" block §4.H prescribes.
// Returns "" when there are no hits, so callers can skip merging entirely.
func RenderContext(hits []Hit) string {
	if len(hits) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant Context (RAG):\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "- [%s | %s | chunk #%d] %s\n", h.Chunk.DocTitle, h.Chunk.DocSourceType, h.Chunk.ChunkIndex, h.Chunk.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
