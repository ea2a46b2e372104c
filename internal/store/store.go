package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cloo-solutions/lectern/internal/domain"
)

// DefaultDimensions matches the text-embedding-ada-002 output size.
const DefaultDimensions = 1536

// EmbeddingProvider computes the vector for a piece of text. The store embeds
// entries and queries itself, so callers only ever pass text.
type EmbeddingProvider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// VectorAPI is the minimal surface of the vector backend the store needs.
type VectorAPI interface {
	EnsureCollection(ctx context.Context, name string, dimensions uint64) error
	Upsert(ctx context.Context, collection string, point Point) error
	Query(ctx context.Context, collection string, vector []float32, limit uint64, minScore float32) ([]ScoredPoint, error)
	Close() error
}

// Point is one entry in backend form.
type Point struct {
	ID     string
	Text   string
	Vector []float32
}

// ScoredPoint is one query hit in backend form.
type ScoredPoint struct {
	ID    string
	Text  string
	Score float32
}

// SearchResult is one retrieved entry with its relevance score.
type SearchResult struct {
	ID    string
	Text  string
	Score float32
}

// Config holds store settings.
type Config struct {
	Dimensions int
}

// Store persists knowledge entries in named collections and retrieves them by
// vector similarity. Collections are created on first write with a fixed
// dimensionality.
type Store struct {
	api        VectorAPI
	embedder   EmbeddingProvider
	dimensions int

	mu      sync.Mutex
	ensured map[string]bool
}

// NewStore creates a new Store
func NewStore(api VectorAPI, embedder EmbeddingProvider, cfg Config) *Store {
	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Store{
		api:        api,
		embedder:   embedder,
		dimensions: dimensions,
		ensured:    make(map[string]bool),
	}
}

// Add embeds text and writes it to the collection under the given id. Writing
// an existing id overwrites that entry. The collection is created on first
// write. A returned nil means the entry is durably stored.
func (s *Store) Add(ctx context.Context, collection, id, text string) error {
	if strings.TrimSpace(collection) == "" {
		return fmt.Errorf("collection name is required: %w", domain.ErrMissingRequiredField)
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("entry id is required: %w", domain.ErrMissingRequiredField)
	}

	if err := s.ensureCollection(ctx, collection); err != nil {
		return err
	}

	vector, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingFailure,
			fmt.Sprintf("failed to embed entry %s", id), err)
	}

	if err := s.api.Upsert(ctx, collection, Point{ID: id, Text: text, Vector: vector}); err != nil {
		return mapStoreError(err)
	}

	return nil
}

// Search embeds queryText and returns up to limit entries scoring at or above
// minScore, ordered by descending score. No qualifying entries is an empty
// result, not an error; a collection that was never written to is an error.
func (s *Store) Search(ctx context.Context, collection, queryText string, limit int, minScore float32) ([]SearchResult, error) {
	if strings.TrimSpace(collection) == "" {
		return nil, fmt.Errorf("collection name is required: %w", domain.ErrMissingRequiredField)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("search limit must be positive, got %d: %w", limit, domain.ErrMissingRequiredField)
	}

	vector, err := s.embedder.GenerateEmbedding(ctx, queryText)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingFailure,
			"failed to embed query text", err)
	}

	points, err := s.api.Query(ctx, collection, vector, uint64(limit), minScore)
	if err != nil {
		return nil, mapStoreError(err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		results = append(results, SearchResult{
			ID:    point.ID,
			Text:  point.Text,
			Score: point.Score,
		})
	}

	// Backend order is descending by score; make equal scores deterministic
	// by falling back to insertion order, which entry ids carry as a numeric
	// suffix.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		si, iok := entrySeq(results[i].ID)
		sj, jok := entrySeq(results[j].ID)
		if iok && jok {
			return si < sj
		}
		return false
	})

	return results, nil
}

// Close releases the backend connection.
func (s *Store) Close() error {
	return s.api.Close()
}

// ensureCollection creates the collection once per process. The mutex also
// serializes concurrent first writes so only one create is issued.
func (s *Store) ensureCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensured[collection] {
		return nil
	}
	if err := s.api.EnsureCollection(ctx, collection, uint64(s.dimensions)); err != nil {
		return mapStoreError(err)
	}
	s.ensured[collection] = true
	return nil
}

// entrySeq extracts the numeric suffix of an entry id.
func entrySeq(id string) (int64, bool) {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	if i == len(id) {
		return 0, false
	}
	n, err := strconv.ParseInt(id[i:], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// mapStoreError translates backend failures into the domain taxonomy.
// Context cancellation passes through untouched.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewDomainErrorWithCause(domain.ErrCodeTimeout, "knowledge store call timed out", err)
	}

	switch status.Code(err) {
	case codes.NotFound:
		return domain.NewDomainErrorWithCause(domain.ErrCodeCollectionNotFound, "collection not found", err)
	case codes.Unavailable:
		return domain.NewDomainErrorWithCause(domain.ErrCodeStoreUnavailable, "knowledge store unavailable", err)
	case codes.DeadlineExceeded:
		return domain.NewDomainErrorWithCause(domain.ErrCodeTimeout, "knowledge store call timed out", err)
	}

	return domain.NewDomainErrorWithCause(domain.ErrCodeStoreUnavailable, "knowledge store operation failed", err)
}
