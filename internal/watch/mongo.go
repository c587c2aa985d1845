package watch

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/recyclemart/stocksync/internal/model"
)

// MongoSource opens change streams against the categories collection.
// The $match stage drops updates that don't touch the items array so
// irrelevant field churn never reaches the classifier.
type MongoSource struct {
	coll *mongo.Collection
}

// NewMongoSource wraps a categories collection.
func NewMongoSource(coll *mongo.Collection) *MongoSource {
	return &MongoSource{coll: coll}
}

// Open starts a change stream with after- and (when the collection has
// them enabled) before-images attached to update notifications.
func (s *MongoSource) Open(ctx context.Context) (Stream, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "delete"}}}}},
			bson.D{
				{Key: "operationType", Value: "update"},
				{Key: "$expr", Value: bson.D{{Key: "$gt", Value: bson.A{
					bson.D{{Key: "$size", Value: bson.D{{Key: "$filter", Value: bson.D{
						{Key: "input", Value: bson.D{{Key: "$objectToArray", Value: "$updateDescription.updatedFields"}}},
						{Key: "as", Value: "f"},
						{Key: "cond", Value: bson.D{{Key: "$regexMatch", Value: bson.D{
							{Key: "input", Value: "$$f.k"},
							{Key: "regex", Value: "^items"},
						}}}},
					}}}}},
					0,
				}}}},
			},
		}}}}},
	}
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)
	cs, err := s.coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, err
	}
	return &mongoStream{cs: cs}, nil
}

type mongoStream struct {
	cs *mongo.ChangeStream
}

type changeDoc struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument             *model.Category     `bson:"fullDocument"`
	FullDocumentBeforeChange *model.Category     `bson:"fullDocumentBeforeChange"`
	ClusterTime              primitive.Timestamp `bson:"clusterTime"`
	UpdateDescription        struct {
		UpdatedFields bson.M   `bson:"updatedFields"`
		RemovedFields []string `bson:"removedFields"`
	} `bson:"updateDescription"`
}

func (m *mongoStream) Next(ctx context.Context) (Notification, error) {
	if !m.cs.Next(ctx) {
		if err := m.cs.Err(); err != nil {
			return Notification{}, err
		}
		return Notification{}, ErrClosed
	}
	var doc changeDoc
	if err := m.cs.Decode(&doc); err != nil {
		return Notification{}, err
	}
	n := Notification{
		Op:            OpType(doc.OperationType),
		CategoryID:    doc.DocumentKey.ID,
		Before:        doc.FullDocumentBeforeChange,
		After:         doc.FullDocument,
		RemovedFields: doc.UpdateDescription.RemovedFields,
		At:            clusterTime(doc.ClusterTime),
	}
	if len(doc.UpdateDescription.UpdatedFields) > 0 {
		n.UpdatedFields = make(map[string]any, len(doc.UpdateDescription.UpdatedFields))
		for k, v := range doc.UpdateDescription.UpdatedFields {
			n.UpdatedFields[k] = v
		}
	}
	if n.After != nil {
		n.After.ID = doc.DocumentKey.ID
	}
	return n, nil
}

// clusterTime converts a change stream cluster timestamp. The ordinal
// counts operations within one second; folding it in as nanoseconds
// keeps same-second events strictly ordered, which the client cache's
// last-applied guard depends on.
func clusterTime(ts primitive.Timestamp) time.Time {
	return time.Unix(int64(ts.T), int64(ts.I)).UTC()
}

func (m *mongoStream) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = m.cs.Close(ctx)
}

// MongoCatalog is the point-in-time bulk read used to build full-state
// snapshots.
type MongoCatalog struct {
	coll *mongo.Collection
}

// NewMongoCatalog wraps a categories collection.
func NewMongoCatalog(coll *mongo.Collection) *MongoCatalog {
	return &MongoCatalog{coll: coll}
}

// ListCategories reads every category with its items.
func (c *MongoCatalog) ListCategories(ctx context.Context) ([]model.Category, error) {
	cur, err := c.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	var cats []model.Category
	if err := cur.All(ctx, &cats); err != nil {
		return nil, err
	}
	return cats, nil
}
