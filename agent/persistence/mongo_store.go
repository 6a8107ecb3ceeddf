package persistence

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/types"
)

// mongoCheckpoint is the document layout of one checkpoint.
type mongoCheckpoint struct {
	ID        string `bson:"_id"`
	ThreadID  string `bson:"thread_id"`
	Step      int    `bson:"step"`
	Status    string `bson:"status"`
	Payload   string `bson:"payload"`
	CreatedAt int64  `bson:"created_at"`
}

// MongoStore is a MongoDB implementation of CheckpointStore. The state is
// stored as a JSON string so every backend shares one encoding.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore wraps a collection of db. The caller owns the client.
func NewMongoStore(db *mongo.Database, collection string) (*MongoStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: nil database", ErrInvalidInput)
	}
	if collection == "" {
		collection = "checkpoints"
	}
	return &MongoStore{coll: db.Collection(collection)}, nil
}

// EnsureIndexes creates the (thread_id, step) index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "thread_id", Value: 1}, {Key: "step", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Close is a no-op: the client belongs to the caller.
func (s *MongoStore) Close() error { return nil }

// Ping checks the server
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, nil)
}

func checkpointID(threadID string, step int) string {
	return threadID + ":" + strconv.Itoa(step)
}

// Save upserts one checkpoint document
func (s *MongoStore) Save(ctx context.Context, threadID string, step int, state *agent.WorkflowState) error {
	if err := validateKey(threadID, step); err != nil {
		return err
	}
	data, err := encodeState(state)
	if err != nil {
		return err
	}

	doc := mongoCheckpoint{
		ID:        checkpointID(threadID, step),
		ThreadID:  threadID,
		Step:      step,
		Status:    string(state.Status),
		Payload:   string(data),
		CreatedAt: types.Now().UnixMilli(),
	}
	_, err = s.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: doc.ID}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadHistory returns the checkpoints of threadID in step order
func (s *MongoStore) LoadHistory(ctx context.Context, threadID string) ([]*agent.WorkflowState, error) {
	cur, err := s.coll.Find(ctx,
		bson.D{{Key: "thread_id", Value: threadID}},
		options.Find().SetSort(bson.D{{Key: "step", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	var docs []mongoCheckpoint
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}

	history := make([]*agent.WorkflowState, 0, len(docs))
	for _, d := range docs {
		st, err := agent.UnmarshalState([]byte(d.Payload))
		if err != nil {
			return nil, err
		}
		history = append(history, st)
	}
	return history, nil
}

// ListThreads lists threads with their latest checkpoint
func (s *MongoStore) ListThreads(ctx context.Context) ([]ThreadInfo, error) {
	var ids []string
	if err := s.coll.Distinct(ctx, "thread_id", bson.D{}).Decode(&ids); err != nil {
		return nil, err
	}

	infos := make([]ThreadInfo, 0, len(ids))
	for _, id := range ids {
		filter := bson.D{{Key: "thread_id", Value: id}}
		count, err := s.coll.CountDocuments(ctx, filter)
		if err != nil {
			return nil, err
		}
		var last mongoCheckpoint
		err = s.coll.FindOne(ctx, filter,
			options.FindOne().SetSort(bson.D{{Key: "step", Value: -1}}),
		).Decode(&last)
		if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
		infos = append(infos, ThreadInfo{
			ThreadID:  id,
			Status:    agent.Status(last.Status),
			Steps:     int(count),
			UpdatedAt: unixMilli(last.CreatedAt),
		})
	}
	sortThreads(infos)
	return infos, nil
}

// DeleteThread removes every checkpoint document of threadID
func (s *MongoStore) DeleteThread(ctx context.Context, threadID string) error {
	res, err := s.coll.DeleteMany(ctx, bson.D{{Key: "thread_id", Value: threadID}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
