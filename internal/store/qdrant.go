package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	// DefaultQdrantPort is the Qdrant gRPC port
	DefaultQdrantPort = 6334

	payloadKeyID   = "id"
	payloadKeyText = "text"
)

// pointNamespace is the fixed UUID namespace for deriving point ids, so an
// entry id always maps to the same point and re-writing it overwrites.
var pointNamespace = uuid.MustParse("2f9c1f6e-55a1-4f2c-9d7b-8c3f5a1e0b42")

// QdrantConfig holds Qdrant connection configuration.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// QdrantAPI adapts the Qdrant gRPC client to the VectorAPI interface.
type QdrantAPI struct {
	client *qdrant.Client
}

// NewQdrantAPI creates a new Qdrant adapter.
func NewQdrantAPI(cfg QdrantConfig) (*QdrantAPI, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultQdrantPort
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantAPI{client: client}, nil
}

// EnsureCollection creates the collection with cosine distance when it does
// not exist yet.
func (a *QdrantAPI) EnsureCollection(ctx context.Context, name string, dimensions uint64) error {
	exists, err := a.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	err = a.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	return nil
}

// Upsert writes one point. Wait is set so the write is durable when the call
// returns. The external entry id rides in the payload because Qdrant point
// ids must be UUIDs or integers.
func (a *QdrantAPI) Upsert(ctx context.Context, collection string, point Point) error {
	wait := true
	_, err := a.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(uuid.NewSHA1(pointNamespace, []byte(point.ID)).String()),
				Vectors: qdrant.NewVectors(point.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					payloadKeyID:   point.ID,
					payloadKeyText: point.Text,
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

// Query runs a nearest-neighbor search and maps the hits back to entry form.
func (a *QdrantAPI) Query(ctx context.Context, collection string, vector []float32, limit uint64, minScore float32) ([]ScoredPoint, error) {
	query := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if minScore > 0 {
		query.ScoreThreshold = &minScore
	}

	points, err := a.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	results := make([]ScoredPoint, 0, len(points))
	for _, point := range points {
		result := ScoredPoint{Score: point.Score}

		if point.Payload != nil {
			if v, ok := point.Payload[payloadKeyID]; ok {
				result.ID = v.GetStringValue()
			}
			if v, ok := point.Payload[payloadKeyText]; ok {
				result.Text = v.GetStringValue()
			}
		}
		if result.ID == "" && point.Id != nil {
			result.ID = point.Id.GetUuid()
		}

		results = append(results, result)
	}

	return results, nil
}

// Close releases the gRPC connection.
func (a *QdrantAPI) Close() error {
	return a.client.Close()
}

// Compile-time check that QdrantAPI implements VectorAPI.
var _ VectorAPI = (*QdrantAPI)(nil)
