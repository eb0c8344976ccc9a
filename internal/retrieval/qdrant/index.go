// Package qdrant mirrors the corpus into a Qdrant collection and retrieves by
// vector similarity.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/capitalize-ai/shop-assistant/internal/embedding"
	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
)

const (
	payloadDocumentID = "document_id"
	payloadContent    = "content"
)

// Config holds Qdrant connection configuration.
type Config struct {
	// URL is the Qdrant gRPC address, e.g. "http://localhost:6334".
	URL string

	// Collection is the collection holding document vectors.
	Collection string

	// APIKey is optional.
	APIKey string
}

// pointsAPI is the subset of *qdrant.Client used by Index.
type pointsAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// Index stores one point per corpus document.
type Index struct {
	api        pointsAPI
	collection string
	embedder   embedding.Provider
	logger     *logger.Logger

	mu    sync.Mutex
	ready bool
}

// New connects to Qdrant.
func New(cfg Config, embedder embedding.Provider, log *logger.Logger) (*Index, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}

	raw := cfg.URL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse qdrant url: %w", err)
	}

	port := 6334
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return newIndex(client, cfg.Collection, embedder, log), nil
}

func newIndex(api pointsAPI, collection string, embedder embedding.Provider, log *logger.Logger) *Index {
	return &Index{
		api:        api,
		collection: collection,
		embedder:   embedder,
		logger:     log,
	}
}

// PointID maps a document id to a Qdrant point id. UUIDs are used as-is;
// other ids map to a stable name-based UUID.
func PointID(documentID string) string {
	if id, err := uuid.Parse(documentID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("shop-assistant/document/"+documentID)).String()
}

// Index embeds docs and upserts them.
func (i *Index) Index(ctx context.Context, docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for n, d := range docs {
		texts[n] = d.Text
	}
	vectors, err := i.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding documents: %w", err)
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	dim := 0
	for n, d := range docs {
		if len(vectors[n]) == 0 {
			continue
		}
		dim = len(vectors[n])
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(d.ID)),
			Vectors: qdrant.NewVectors(vectors[n]...),
			Payload: qdrant.NewValueMap(payload(d)),
		})
	}
	if len(points) == 0 {
		return nil
	}

	if err := i.ensureCollection(ctx, uint64(dim)); err != nil {
		return err
	}

	wait := true
	if _, err := i.api.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}

	i.logger.Debug("documents indexed", zap.String("collection", i.collection), zap.Int("points", len(points)))
	return nil
}

// Remove deletes the points for ids.
func (i *Index) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for n, id := range ids {
		pointIDs[n] = qdrant.NewID(PointID(id))
	}

	wait := true
	if _, err := i.api.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	}); err != nil {
		return fmt.Errorf("qdrant delete failed: %w", err)
	}
	return nil
}

// Search returns up to limit documents nearest to vector.
func (i *Index) Search(ctx context.Context, vector []float32, limit int) ([]model.RetrievalResult, error) {
	l := uint64(limit)
	points, err := i.api.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &l,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	results := make([]model.RetrievalResult, 0, len(points))
	for _, p := range points {
		doc, ok := documentFromPayload(p.GetPayload())
		if !ok {
			continue
		}
		results = append(results, model.RetrievalResult{
			Document:       doc,
			RelevanceScore: float64(p.GetScore()),
		})
	}
	return results, nil
}

// Close releases the connection.
func (i *Index) Close() error {
	return i.api.Close()
}

func (i *Index) ensureCollection(ctx context.Context, dim uint64) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.ready {
		return nil
	}

	exists, err := i.api.CollectionExists(ctx, i.collection)
	if err != nil {
		return fmt.Errorf("checking qdrant collection: %w", err)
	}
	if !exists {
		if err := i.api.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: i.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     dim,
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return fmt.Errorf("creating qdrant collection: %w", err)
		}
		i.logger.Info("qdrant collection created", zap.String("collection", i.collection), zap.Uint64("dimensions", dim))
	}

	i.ready = true
	return nil
}

func payload(d model.Document) map[string]any {
	out := make(map[string]any, len(d.Metadata)+2)
	for k, v := range d.Metadata {
		out[k] = v
	}
	out[payloadDocumentID] = d.ID
	out[payloadContent] = d.Text
	return out
}

func documentFromPayload(p map[string]*qdrant.Value) (model.Document, bool) {
	id := p[payloadDocumentID].GetStringValue()
	if id == "" {
		return model.Document{}, false
	}

	doc := model.Document{
		ID:       id,
		Text:     p[payloadContent].GetStringValue(),
		Metadata: make(map[string]string, len(p)),
	}
	for k, v := range p {
		if k == payloadDocumentID || k == payloadContent {
			continue
		}
		if s, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
			doc.Metadata[k] = s.StringValue
		}
	}
	return doc, true
}
