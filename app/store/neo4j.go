package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

var _ DocumentStore = (*Neo4jStore)(nil)

// Neo4jStore keeps each document as a :Document node. The collection name,
// id and timestamps live in underscore-prefixed properties next to the fields.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	now      func() time.Time
}

// NewNeo4jStore creates a store on top of an open driver. An empty database
// selects the server default.
func NewNeo4jStore(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	return &Neo4jStore{
		driver:   driver,
		database: database,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

// Create adds a new document node.
func (s *Neo4jStore) Create(ctx context.Context, collection string, fields Fields) (*Document, error) {
	if err := validateFields(fields); err != nil {
		return nil, wrapErr("create", collection, "", err)
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	now := s.now()
	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"CREATE (d:Document {_id: $id, _collection: $collection, _createdAt: $now, _updatedAt: $now}) "+
				"SET d += $fields "+
				"RETURN d",
			map[string]any{
				"id":         uuid.New().String(),
				"collection": collection,
				"now":        now,
				"fields":     fieldParams(fields),
			},
		)
		if err != nil {
			return nil, err
		}
		return singleDocument(ctx, res)
	})
	if err != nil {
		return nil, wrapErr("create", collection, "", err)
	}
	return result.(*Document), nil
}

// List returns the collection's documents matching every where entry.
func (s *Neo4jStore) List(ctx context.Context, collection string, where Fields) ([]Document, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	cypher, params := listQuery(collection, where)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}

		docs := []Document{}
		for res.Next(ctx) {
			doc, err := documentFromRecord(res.Record())
			if err != nil {
				return nil, err
			}
			docs = append(docs, *doc)
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		return docs, nil
	})
	if err != nil {
		return nil, wrapErr("list", collection, "", err)
	}
	return result.([]Document), nil
}

// Update merges fields into an existing node.
func (s *Neo4jStore) Update(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	if err := validateFields(fields); err != nil {
		return nil, wrapErr("update", collection, id, err)
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (d:Document {_collection: $collection, _id: $id}) "+
				"SET d += $fields, d._updatedAt = $now "+
				"RETURN d",
			map[string]any{
				"id":         id,
				"collection": collection,
				"now":        s.now(),
				"fields":     fieldParams(fields),
			},
		)
		if err != nil {
			return nil, err
		}
		return singleDocument(ctx, res)
	})
	if err != nil {
		return nil, wrapErr("update", collection, id, err)
	}
	return result.(*Document), nil
}

// Delete removes a node and its relationships.
func (s *Neo4jStore) Delete(ctx context.Context, collection, id string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (d:Document {_collection: $collection, _id: $id}) "+
				"DETACH DELETE d "+
				"RETURN count(d) AS deleted",
			map[string]any{"id": id, "collection": collection},
		)
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, res.Err()
		}
		if deleted, _ := res.Record().Values[0].(int64); deleted == 0 {
			return nil, ErrNotFound
		}
		return nil, nil
	})
	return wrapErr("delete", collection, id, err)
}

// listQuery builds the MATCH for an equality filter. Field names travel as
// parameters through dynamic property access, so no user input reaches the
// query text.
func listQuery(collection string, where Fields) (string, map[string]any) {
	params := map[string]any{"collection": collection}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("MATCH (d:Document {_collection: $collection})")
	for i, k := range keys {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "d[$k%d] = $v%d", i, i)
		params[fmt.Sprintf("k%d", i)] = k
		params[fmt.Sprintf("v%d", i)] = where[k]
	}
	b.WriteString(" RETURN d ORDER BY d._createdAt")
	return b.String(), params
}

func fieldParams(fields Fields) map[string]any {
	params := make(map[string]any, len(fields))
	for k, v := range fields {
		params[k] = v
	}
	return params
}

func singleDocument(ctx context.Context, res neo4j.ResultWithContext) (*Document, error) {
	if res.Next(ctx) {
		return documentFromRecord(res.Record())
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

func documentFromRecord(record *neo4j.Record) (*Document, error) {
	node, ok := record.Values[0].(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected record value %T", record.Values[0])
	}
	return documentFromNode(node), nil
}

// documentFromNode converts node properties into a Document. Non-string
// field values are formatted rather than dropped.
func documentFromNode(node neo4j.Node) *Document {
	doc := &Document{Fields: Fields{}}
	for k, v := range node.Props {
		switch k {
		case "_id":
			doc.ID, _ = v.(string)
		case "_createdAt":
			doc.CreatedAt = asTime(v)
		case "_updatedAt":
			doc.UpdatedAt = asTime(v)
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

func asTime(v any) time.Time {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return time.Time{}
}
