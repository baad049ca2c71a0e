package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	. "github.com/roelfdiedericks/toolgate/internal/logging"
)

var _ Store = (*Mongo)(nil)

// namespaceExists is the server error code for createCollection on an
// existing collection.
const namespaceExists = 48

// Mongo is a Store backed by a MongoDB database. Arguments are converted
// through relaxed extended JSON, so {"$oid": ...} and {"$date": ...} values
// from the model reach the server as ObjectIDs and dates.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// MongoConfig configures NewMongo.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// NewMongo connects and pings the deployment.
func NewMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongo database is required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetConnectTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	L_info("docstore: connected to mongo", "database", cfg.Database)
	return &Mongo{client: client, db: client.Database(cfg.Database)}, nil
}

func (m *Mongo) Find(ctx context.Context, collection string, opts FindOptions) ([]Document, error) {
	filter, err := toBSON(opts.Filter)
	if err != nil {
		return nil, err
	}
	fo := options.Find()
	if len(opts.Sort) > 0 {
		fo.SetSort(sortToBSON(opts.Sort))
	}
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	if len(opts.Projection) > 0 {
		proj, err := toBSON(opts.Projection)
		if err != nil {
			return nil, err
		}
		fo.SetProjection(proj)
	}

	cursor, err := m.db.Collection(collection).Find(ctx, filter, fo)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	return decodeCursor(ctx, cursor)
}

func (m *Mongo) FindOne(ctx context.Context, collection string, filter, projection Document) (Document, error) {
	f, err := toBSON(filter)
	if err != nil {
		return nil, err
	}
	fo := options.FindOne()
	if len(projection) > 0 {
		proj, err := toBSON(projection)
		if err != nil {
			return nil, err
		}
		fo.SetProjection(proj)
	}

	var raw bson.M
	err = m.db.Collection(collection).FindOne(ctx, f, fo).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("findOne: %w", err)
	}
	return fromBSON(raw)
}

func (m *Mongo) Count(ctx context.Context, collection string, filter Document) (int64, error) {
	f, err := toBSON(filter)
	if err != nil {
		return 0, err
	}
	n, err := m.db.Collection(collection).CountDocuments(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (m *Mongo) Aggregate(ctx context.Context, collection string, pipeline []json.RawMessage) ([]Document, error) {
	if err := CheckPipeline(pipeline); err != nil {
		return nil, err
	}
	stages := make(mongo.Pipeline, 0, len(pipeline))
	for i, raw := range pipeline {
		var stage bson.D
		if err := bson.UnmarshalExtJSON(raw, false, &stage); err != nil {
			return nil, fmt.Errorf("%w: stage %d: %v", ErrInvalidPipeline, i, err)
		}
		stages = append(stages, stage)
	}
	cursor, err := m.db.Collection(collection).Aggregate(ctx, stages)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	return decodeCursor(ctx, cursor)
}

func (m *Mongo) ListCollections(ctx context.Context) ([]string, error) {
	names, err := m.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("listCollections: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Mongo) InsertOne(ctx context.Context, collection string, doc Document) (any, error) {
	d, err := toBSON(doc)
	if err != nil {
		return nil, err
	}
	res, err := m.db.Collection(collection).InsertOne(ctx, d)
	if err != nil {
		return nil, wrapWriteError("insertOne", err)
	}
	return plainID(res.InsertedID), nil
}

func (m *Mongo) InsertMany(ctx context.Context, collection string, docs []Document) ([]any, error) {
	batch := make([]any, 0, len(docs))
	for _, doc := range docs {
		d, err := toBSON(doc)
		if err != nil {
			return nil, err
		}
		batch = append(batch, d)
	}
	res, err := m.db.Collection(collection).InsertMany(ctx, batch)
	if err != nil {
		return nil, wrapWriteError("insertMany", err)
	}
	ids := make([]any, len(res.InsertedIDs))
	for i, id := range res.InsertedIDs {
		ids[i] = plainID(id)
	}
	return ids, nil
}

func (m *Mongo) UpdateOne(ctx context.Context, collection string, filter, update Document) (UpdateResult, error) {
	f, u, err := filterAndUpdate(filter, update)
	if err != nil {
		return UpdateResult{}, err
	}
	res, err := m.db.Collection(collection).UpdateOne(ctx, f, u)
	if err != nil {
		return UpdateResult{}, wrapWriteError("updateOne", err)
	}
	return updateResult(res), nil
}

func (m *Mongo) UpdateMany(ctx context.Context, collection string, filter, update Document) (UpdateResult, error) {
	f, u, err := filterAndUpdate(filter, update)
	if err != nil {
		return UpdateResult{}, err
	}
	res, err := m.db.Collection(collection).UpdateMany(ctx, f, u)
	if err != nil {
		return UpdateResult{}, wrapWriteError("updateMany", err)
	}
	return updateResult(res), nil
}

func (m *Mongo) DeleteOne(ctx context.Context, collection string, filter Document) (int64, error) {
	f, err := toBSON(filter)
	if err != nil {
		return 0, err
	}
	res, err := m.db.Collection(collection).DeleteOne(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("deleteOne: %w", err)
	}
	return res.DeletedCount, nil
}

func (m *Mongo) DeleteMany(ctx context.Context, collection string, filter Document) (int64, error) {
	f, err := toBSON(filter)
	if err != nil {
		return 0, err
	}
	res, err := m.db.Collection(collection).DeleteMany(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("deleteMany: %w", err)
	}
	return res.DeletedCount, nil
}

func (m *Mongo) CreateCollection(ctx context.Context, name string) error {
	err := m.db.CreateCollection(ctx, name)
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == namespaceExists {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}
	if err != nil {
		return fmt.Errorf("createCollection: %w", err)
	}
	return nil
}

func (m *Mongo) CreateIndex(ctx context.Context, collection string, spec IndexSpec) (string, error) {
	if len(spec.Keys) == 0 {
		return "", fmt.Errorf("%w: keys are required", ErrInvalidIndex)
	}
	idxOpts := options.Index().SetUnique(spec.Unique)
	if spec.Name != "" {
		idxOpts.SetName(spec.Name)
	}
	name, err := m.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    sortToBSON(spec.Keys),
		Options: idxOpts,
	})
	if err != nil {
		return "", wrapWriteError("createIndex", err)
	}
	return name, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func filterAndUpdate(filter, update Document) (bson.D, bson.D, error) {
	f, err := toBSON(filter)
	if err != nil {
		return nil, nil, err
	}
	u, err := toBSON(update)
	if err != nil {
		return nil, nil, err
	}
	return f, u, nil
}

func updateResult(res *mongo.UpdateResult) UpdateResult {
	return UpdateResult{
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedID:    plainID(res.UpsertedID),
	}
}

func wrapWriteError(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrDuplicateKey, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// toBSON converts a document through relaxed extended JSON.
func toBSON(doc Document) (bson.D, error) {
	if len(doc) == 0 {
		return bson.D{}, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out bson.D
	if err := bson.UnmarshalExtJSON(data, false, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return out, nil
}

func sortToBSON(fields []SortField) bson.D {
	out := make(bson.D, 0, len(fields))
	for _, f := range fields {
		out = append(out, bson.E{Key: f.Field, Value: f.Order})
	}
	return out
}

// fromBSON renders a server document as relaxed extended JSON and decodes
// it into a plain Document.
func fromBSON(raw bson.M) (Document, error) {
	data, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeCursor(ctx context.Context, cursor *mongo.Cursor) ([]Document, error) {
	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}
	out := make([]Document, 0, len(raws))
	for _, r := range raws {
		d, err := fromBSON(r)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// plainID renders ObjectIDs as hex strings for the model.
func plainID(id any) any {
	if oid, ok := id.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return id
}
