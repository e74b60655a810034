package advisory

import (
	"context"
	"fmt"

	"napomni/internal/domain"
)

// Embedder turns a query into a vector. Implemented by ai.Provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PassageSearcher runs nearest-neighbour search over the corpus.
// Implemented by the postgres store on pgvector.
type PassageSearcher interface {
	SearchPassages(ctx context.Context, userID int64, embedding []float32, limit int) ([]domain.Passage, error)
}

// VectorRetriever retrieves corpus passages by embedding similarity.
type VectorRetriever struct {
	embedder Embedder
	searcher PassageSearcher

	// MinScore drops weakly related passages. Zero keeps everything.
	MinScore float64
}

func NewVectorRetriever(embedder Embedder, searcher PassageSearcher) *VectorRetriever {
	return &VectorRetriever{embedder: embedder, searcher: searcher}
}

func (r *VectorRetriever) Retrieve(ctx context.Context, userID int64, query string, limit int) ([]domain.Passage, error) {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	passages, err := r.searcher.SearchPassages(ctx, userID, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("search passages: %w", err)
	}

	if r.MinScore <= 0 {
		return passages, nil
	}
	filtered := passages[:0]
	for _, p := range passages {
		if p.Score >= r.MinScore {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

var _ Retriever = (*VectorRetriever)(nil)
