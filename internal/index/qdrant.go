package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	"github.com/locus-lens/locus/internal/models"
)

// Payload keys
const (
	fieldName        = "name"
	fieldStore       = "store"
	fieldLevel       = "level"
	fieldMall        = "mall"
	fieldFilename    = "filename"
	fieldCategoryTag = "category_tag"
)

// QdrantConfig locates a Qdrant server (gRPC port)
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int
}

// Qdrant is an Index backed by a Qdrant collection
type Qdrant struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrant connects to the server described by cfg.
func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create qdrant client: %v", ErrUnavailable, err)
	}

	return &Qdrant{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}, nil
}

func (q *Qdrant) Exists(ctx context.Context) (bool, error) {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return exists, nil
}

type fieldIndex struct {
	field  string
	kind   qdrant.FieldType
	schema qdrant.PayloadSchemaType
}

var payloadIndexes = []fieldIndex{
	{fieldName, qdrant.FieldType_FieldTypeText, qdrant.PayloadSchemaType_Text},
	{fieldCategoryTag, qdrant.FieldType_FieldTypeText, qdrant.PayloadSchemaType_Text},
	{fieldFilename, qdrant.FieldType_FieldTypeKeyword, qdrant.PayloadSchemaType_Keyword},
}

// missingIndexes returns the payload indexes absent from schema or of the wrong type
func missingIndexes(schema map[string]*qdrant.PayloadSchemaInfo) []fieldIndex {
	var missing []fieldIndex
	for _, idx := range payloadIndexes {
		if info, ok := schema[idx.field]; ok && info.GetDataType() == idx.schema {
			continue
		}
		missing = append(missing, idx)
	}
	return missing
}

// EnsureCollection creates the cosine collection when missing, then creates
// any payload index the collection lacks.
func (q *Qdrant) EnsureCollection(ctx context.Context) (bool, error) {
	exists, err := q.Exists(ctx)
	if err != nil {
		return false, err
	}

	if !exists {
		err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(q.dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return false, fmt.Errorf("%w: failed to create collection %s: %v", ErrUnavailable, q.collection, err)
		}
		slog.Info("Created collection", "collection", q.collection, "dimension", q.dimension)
	}

	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return !exists, fmt.Errorf("%w: failed to read collection %s: %v", ErrUnavailable, q.collection, err)
	}

	for _, idx := range missingIndexes(info.GetPayloadSchema()) {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      idx.field,
			FieldType:      idx.kind.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return !exists, fmt.Errorf("%w: failed to index field %s: %v", ErrUnavailable, idx.field, err)
		}
		slog.Info("Created payload index", "collection", q.collection, "field", idx.field)
	}

	return !exists, nil
}

func (q *Qdrant) Upsert(ctx context.Context, record models.ItemRecord) error {
	if err := checkVector(record.Vector, q.dimension); err != nil {
		return err
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(record.ID),
				Vectors: qdrant.NewVectors(record.Vector...),
				Payload: recordPayload(record),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: failed to upsert %s: %v", ErrUnavailable, record.ID, err)
	}
	return nil
}

func (q *Qdrant) Search(ctx context.Context, vec []float32, category *string, limit int) ([]Hit, error) {
	if err := checkVector(vec, q.dimension); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vec...),
		Filter:         categoryFilter(category),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query failed: %v", ErrUnavailable, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		record := recordFromPayload(p.GetPayload())
		record.ID = p.GetId().GetUuid()
		hits = append(hits, Hit{Score: float64(p.GetScore()), Record: record})
	}
	return hits, nil
}

func (q *Qdrant) HasFilename(ctx context.Context, filename string) (bool, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchKeyword(fieldFilename, filename)},
		},
		Exact: qdrant.PtrOf(true),
	})
	if err != nil {
		return false, fmt.Errorf("%w: count failed: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

func (q *Qdrant) Count(ctx context.Context) (uint64, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count failed: %v", ErrUnavailable, err)
	}
	return n, nil
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}

// categoryFilter matches the category term against the indexed text fields.
// At least one should clause has to match; a nil category means no filter.
func categoryFilter(category *string) *qdrant.Filter {
	if category == nil {
		return nil
	}
	return &qdrant.Filter{
		Should: []*qdrant.Condition{
			qdrant.NewMatchText(fieldName, *category),
			qdrant.NewMatchText(fieldCategoryTag, *category),
		},
	}
}

func recordPayload(r models.ItemRecord) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		fieldName:        qdrant.NewValueString(r.Name),
		fieldStore:       qdrant.NewValueString(r.Store),
		fieldLevel:       qdrant.NewValueString(r.Level),
		fieldMall:        qdrant.NewValueString(r.Mall),
		fieldFilename:    qdrant.NewValueString(r.Filename),
		fieldCategoryTag: qdrant.NewValueNull(),
	}
	if r.CategoryTag != nil {
		payload[fieldCategoryTag] = qdrant.NewValueString(*r.CategoryTag)
	}
	return payload
}

func recordFromPayload(payload map[string]*qdrant.Value) models.ItemRecord {
	r := models.ItemRecord{
		Name:     payload[fieldName].GetStringValue(),
		Store:    payload[fieldStore].GetStringValue(),
		Level:    payload[fieldLevel].GetStringValue(),
		Mall:     payload[fieldMall].GetStringValue(),
		Filename: payload[fieldFilename].GetStringValue(),
	}
	if tag := payload[fieldCategoryTag].GetStringValue(); tag != "" {
		r.CategoryTag = &tag
	}
	return r
}
