package dataset

import (
	"context"

	"poetry_server/core/port/out"
	"poetry_server/pkg/apperr"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSource reads the corpus from a MongoDB collection.
type MongoSource struct {
	coll *mongo.Collection
}

var _ out.DatasetSource = (*MongoSource)(nil)

// NewMongoSource creates a source for database.collection.
func NewMongoSource(client *mongo.Client, database, collection string) *MongoSource {
	return &MongoSource{coll: client.Database(database).Collection(collection)}
}

// Name identifies the source in logs.
func (s *MongoSource) Name() string {
	return "mongo:" + s.coll.Database().Name() + "." + s.coll.Name()
}

// Load reads every document in natural order.
func (s *MongoSource) Load(ctx context.Context) (*out.Table, error) {
	cursor, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "$natural", Value: 1}}))
	if err != nil {
		return nil, apperr.ConfigErrorf("query poetry collection: %v", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.D
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, apperr.ConfigErrorf("decode poetry document: %v", err)
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, apperr.ConfigErrorf("iterate poetry collection: %v", err)
	}

	return tableFromDocuments(docs), nil
}

// tableFromDocuments uses the union of field names, in first-seen order, as the
// columns. Only string fields become cells.
func tableFromDocuments(docs []bson.D) *out.Table {
	table := &out.Table{Rows: make([]out.Row, 0, len(docs))}
	seen := make(map[string]bool)

	for _, doc := range docs {
		row := make(out.Row, len(doc))
		for _, elem := range doc {
			if elem.Key == "_id" {
				continue
			}
			if !seen[elem.Key] {
				seen[elem.Key] = true
				table.Columns = append(table.Columns, elem.Key)
			}
			if v, ok := elem.Value.(string); ok {
				row[elem.Key] = v
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}
