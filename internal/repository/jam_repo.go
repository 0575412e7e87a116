package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"jamsync/internal/model"
)

// JamRepo is the durable store of jam sessions, their participants, queue
// and playback clock. Lookups return nil, nil when nothing is stored.
type JamRepo interface {
	CreateSession(ctx context.Context, session *model.JamSession) error
	GetSession(ctx context.Context, id string) (*model.JamSession, error)
	UpdateSession(ctx context.Context, session *model.JamSession) error

	UpsertParticipant(ctx context.Context, p *model.Participant) error
	ListParticipants(ctx context.Context, jamID string) ([]*model.Participant, error)

	ListQueue(ctx context.Context, jamID string) ([]model.QueueItem, error)
	ReplaceQueue(ctx context.Context, jamID string, items []model.QueueItem) error
	// AppendQueue stores items after the current tail and returns them with
	// their assigned positions.
	AppendQueue(ctx context.Context, jamID string, items []model.QueueItem) ([]model.QueueItem, error)
	// RemoveQueueItem deletes the first occurrence of trackID and closes the
	// gap. It reports whether anything was removed.
	RemoveQueueItem(ctx context.Context, jamID, trackID string) (bool, error)

	GetPlayback(ctx context.Context, jamID string) (*model.PlaybackState, error)
	SavePlayback(ctx context.Context, state *model.PlaybackState) error
}

type jamRepo struct {
	sessions     *mongo.Collection
	participants *mongo.Collection
	queue        *mongo.Collection
	playback     *mongo.Collection
}

func NewMongoJamRepo(client *mongo.Client, database string) JamRepo {
	db := client.Database(database)
	return &jamRepo{
		sessions:     db.Collection("jam_sessions"),
		participants: db.Collection("jam_participants"),
		queue:        db.Collection("jam_queue_items"),
		playback:     db.Collection("jam_playback"),
	}
}

// EnsureIndexes creates the indexes the queries below rely on.
func EnsureIndexes(ctx context.Context, client *mongo.Client, database string) error {
	db := client.Database(database)
	_, err := db.Collection("jam_participants").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "jamId", Value: 1}, {Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("participants index: %w", err)
	}
	_, err = db.Collection("jam_queue_items").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "jamId", Value: 1}, {Key: "position", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("queue index: %w", err)
	}
	return nil
}

func (r *jamRepo) CreateSession(ctx context.Context, session *model.JamSession) error {
	_, err := r.sessions.InsertOne(ctx, session)
	return err
}

func (r *jamRepo) GetSession(ctx context.Context, id string) (*model.JamSession, error) {
	var session model.JamSession
	err := r.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *jamRepo) UpdateSession(ctx context.Context, session *model.JamSession) error {
	_, err := r.sessions.ReplaceOne(ctx, bson.M{"_id": session.ID}, session)
	return err
}

func (r *jamRepo) UpsertParticipant(ctx context.Context, p *model.Participant) error {
	joinedAt := p.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now().UTC()
	}
	_, err := r.participants.UpdateOne(ctx,
		bson.M{"jamId": p.JamID, "userId": p.UserID},
		bson.M{
			"$set":         bson.M{"name": p.Name, "role": p.Role},
			"$setOnInsert": bson.M{"joinedAt": joinedAt},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *jamRepo) ListParticipants(ctx context.Context, jamID string) ([]*model.Participant, error) {
	cursor, err := r.participants.Find(ctx, bson.M{"jamId": jamID},
		options.Find().SetSort(bson.D{{Key: "joinedAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var participants []*model.Participant
	if err := cursor.All(ctx, &participants); err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *jamRepo) ListQueue(ctx context.Context, jamID string) ([]model.QueueItem, error) {
	cursor, err := r.queue.Find(ctx, bson.M{"jamId": jamID},
		options.Find().SetSort(bson.D{{Key: "position", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := []model.QueueItem{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ReplaceQueue writes the new items before pruning the old ones, so the
// queue is never observed empty mid-replace. Without a multi-document
// transaction a reader can briefly see both, and a failed prune leaves the
// old items behind until the next replace.
func (r *jamRepo) ReplaceQueue(ctx context.Context, jamID string, items []model.QueueItem) error {
	writes, ids := queueWrites(jamID, items)
	if len(writes) > 0 {
		if _, err := r.queue.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true)); err != nil {
			return fmt.Errorf("write queue: %w", err)
		}
	}
	if _, err := r.queue.DeleteMany(ctx, bson.M{"jamId": jamID, "_id": bson.M{"$nin": ids}}); err != nil {
		return fmt.Errorf("prune queue: %w", err)
	}
	return nil
}

// queueWrites builds one upsert per item, keyed by queue item id and
// numbered in slice order, plus the ids the queue keeps.
func queueWrites(jamID string, items []model.QueueItem) ([]mongo.WriteModel, []string) {
	writes := make([]mongo.WriteModel, len(items))
	ids := make([]string, len(items))
	for i, item := range items {
		item.JamID = jamID
		item.Position = i
		ids[i] = item.QueueItemID
		writes[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": item.QueueItemID}).
			SetReplacement(item).
			SetUpsert(true)
	}
	return writes, ids
}

func (r *jamRepo) AppendQueue(ctx context.Context, jamID string, items []model.QueueItem) ([]model.QueueItem, error) {
	start, err := r.queue.CountDocuments(ctx, bson.M{"jamId": jamID})
	if err != nil {
		return nil, err
	}
	added := make([]model.QueueItem, len(items))
	docs := make([]interface{}, len(items))
	for i, item := range items {
		item.JamID = jamID
		item.Position = int(start) + i
		added[i] = item
		docs[i] = item
	}
	if len(docs) == 0 {
		return added, nil
	}
	if _, err := r.queue.InsertMany(ctx, docs); err != nil {
		return nil, err
	}
	return added, nil
}

func (r *jamRepo) RemoveQueueItem(ctx context.Context, jamID, trackID string) (bool, error) {
	var item model.QueueItem
	err := r.queue.FindOne(ctx,
		bson.M{"jamId": jamID, "track.id": trackID},
		options.FindOne().SetSort(bson.D{{Key: "position", Value: 1}}),
	).Decode(&item)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return false, nil
		}
		return false, err
	}

	if _, err := r.queue.DeleteOne(ctx, bson.M{"_id": item.QueueItemID}); err != nil {
		return false, err
	}
	_, err = r.queue.UpdateMany(ctx,
		bson.M{"jamId": jamID, "position": bson.M{"$gt": item.Position}},
		bson.M{"$inc": bson.M{"position": -1}},
	)
	if err != nil {
		return true, fmt.Errorf("renumber queue: %w", err)
	}
	return true, nil
}

func (r *jamRepo) GetPlayback(ctx context.Context, jamID string) (*model.PlaybackState, error) {
	var state model.PlaybackState
	err := r.playback.FindOne(ctx, bson.M{"_id": jamID}).Decode(&state)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (r *jamRepo) SavePlayback(ctx context.Context, state *model.PlaybackState) error {
	_, err := r.playback.ReplaceOne(ctx, bson.M{"_id": state.JamID}, state, options.Replace().SetUpsert(true))
	return err
}
