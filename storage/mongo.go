package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tasks-api/domain"
)

type collectionAPI interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// Mongo stores tasks as documents in a MongoDB collection.
type Mongo struct {
	client *mongo.Client
	coll   collectionAPI
	now    func() time.Time
}

// NewMongo connects to the given URI. The driver connects lazily, so an
// unreachable server surfaces on the first operation rather than here.
func NewMongo(ctx context.Context, uri, database, collection string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	m := newMongo(client.Database(database).Collection(collection))
	m.client = client
	return m, nil
}

func newMongo(coll collectionAPI) *Mongo {
	return &Mongo{coll: coll, now: nextTimestamp}
}

type taskDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	Completed   bool               `bson:"completed"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d taskDocument) toTask() domain.Task {
	return domain.Task{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		Completed:   d.Completed,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// listFilter matches the filter text literally and case-insensitively
// against title or description.
func listFilter(filter string) bson.M {
	if filter == "" {
		return bson.M{}
	}
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter), Options: "i"}
	return bson.M{"$or": bson.A{
		bson.M{"title": pattern},
		bson.M{"description": pattern},
	}}
}

func (m *Mongo) ListTasks(ctx context.Context, filter string) ([]domain.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := m.coll.Find(ctx, listFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	var docs []taskDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	tasks := make([]domain.Task, 0, len(docs))
	for _, d := range docs {
		tasks = append(tasks, d.toTask())
	}
	return tasks, nil
}

func (m *Mongo) CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error) {
	title, desc, err := in.Normalize()
	if err != nil {
		return domain.Task{}, err
	}
	// BSON dates carry millisecond precision.
	now := m.now().Truncate(time.Millisecond)
	doc := taskDocument{
		ID:          primitive.NewObjectID(),
		Title:       title,
		Description: desc,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return doc.toTask(), nil
}

func (m *Mongo) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return domain.Task{}, err
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.Task{}, domain.ErrNotFound
	}

	set := bson.M{"updatedAt": m.now().Truncate(time.Millisecond)}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Completed != nil {
		set["completed"] = *patch.Completed
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	res := m.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts)
	var doc taskDocument
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	return doc.toTask(), nil
}

func (m *Mongo) DeleteTask(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrNotFound
	}
	res, err := m.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Ping checks the primary is reachable.
func (m *Mongo) Ping(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Ping(ctx, nil)
}

// EnsureIndexes creates the index backing the default list order.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	coll, ok := m.coll.(*mongo.Collection)
	if !ok {
		return nil
	}
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
	})
	return err
}

// Close disconnects the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}
