package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ DocumentStore = (*MongoStore)(nil)

// MongoStore keeps each collection as a MongoDB collection in one database.
type MongoStore struct {
	db  *mongo.Database
	now func() time.Time
}

// NewMongoStore creates a store backed by the named database.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{
		db:  client.Database(database),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new document.
func (s *MongoStore) Create(ctx context.Context, collection string, fields Fields) (*Document, error) {
	if err := validateFields(fields); err != nil {
		return nil, wrapErr("create", collection, "", err)
	}

	now := s.now().Truncate(time.Millisecond)
	doc := &Document{
		ID:        uuid.New().String(),
		Fields:    copyFields(fields),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.db.Collection(collection).InsertOne(ctx, documentToBSON(doc)); err != nil {
		return nil, wrapErr("create", collection, "", err)
	}
	return doc, nil
}

// List finds documents matching where, oldest first.
func (s *MongoStore) List(ctx context.Context, collection string, where Fields) ([]Document, error) {
	filter := bson.M{}
	for k, v := range where {
		filter[k] = v
	}

	opts := options.Find().SetSort(bson.D{{Key: "_createdAt", Value: 1}})
	cursor, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapErr("list", collection, "", err)
	}

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, wrapErr("list", collection, "", err)
	}

	docs := make([]Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, *documentFromBSON(m))
	}
	return docs, nil
}

// Update sets the given fields and returns the updated document.
func (s *MongoStore) Update(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	if err := validateFields(fields); err != nil {
		return nil, wrapErr("update", collection, id, err)
	}

	set := bson.M{"_updatedAt": s.now()}
	for k, v := range fields {
		set[k] = v
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m bson.M
	err := s.db.Collection(collection).
		FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).
		Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, wrapErr("update", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("update", collection, id, err)
	}
	return documentFromBSON(m), nil
}

// Delete removes the document with the given id.
func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return wrapErr("delete", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return wrapErr("delete", collection, id, ErrNotFound)
	}
	return nil
}

func documentToBSON(doc *Document) bson.M {
	m := bson.M{
		"_id":        doc.ID,
		"_createdAt": doc.CreatedAt,
		"_updatedAt": doc.UpdatedAt,
	}
	for k, v := range doc.Fields {
		m[k] = v
	}
	return m
}

func documentFromBSON(m bson.M) *Document {
	doc := &Document{Fields: Fields{}}
	for k, v := range m {
		switch k {
		case "_id":
			doc.ID = fmt.Sprint(v)
		case "_createdAt":
			doc.CreatedAt = bsonTime(v)
		case "_updatedAt":
			doc.UpdatedAt = bsonTime(v)
		default:
			if strings.HasPrefix(k, systemPrefix) {
				continue
			}
			if s, ok := v.(string); ok {
				doc.Fields[k] = s
			} else if v != nil {
				doc.Fields[k] = fmt.Sprint(v)
			}
		}
	}
	return doc
}

func bsonTime(v any) time.Time {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	}
	return time.Time{}
}
