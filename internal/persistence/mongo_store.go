package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jfet97/perform/pkg/api"
)

// MongoStore is a RunStore and EventStore backed by MongoDB. Runs and
// events live in two collections of the same database.
type MongoStore struct {
	runs   *mongo.Collection
	events *mongo.Collection
}

var (
	_ RunStore   = (*MongoStore)(nil)
	_ EventStore = (*MongoStore)(nil)
)

// NewMongoStore creates a Mongo-backed journal.
// dbName defaults to "perform".
func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	if dbName == "" {
		dbName = "perform"
	}

	db := client.Database(dbName)
	return &MongoStore{
		runs:   db.Collection("runs"),
		events: db.Collection("run_events"),
	}
}

type mongoRunDoc struct {
	ID         string `bson:"_id"`
	Name       string `bson:"name"`
	Mode       string `bson:"mode"`
	Status     string `bson:"status"`
	Attempts   int    `bson:"attempts"`
	Restarts   int    `bson:"restarts"`
	Retries    int    `bson:"retries"`
	Recoveries int    `bson:"recoveries"`
	Error      string `bson:"error,omitempty"`
	StartedAt  int64  `bson:"started_at"`
	FinishedAt int64  `bson:"finished_at"`
}

type mongoEventDoc struct {
	RunID   string `bson:"run_id"`
	Seq     int64  `bson:"seq"`
	At      int64  `bson:"at"`
	Type    string `bson:"type"`
	Attempt int    `bson:"attempt"`
	Detail  string `bson:"detail,omitempty"`
}

func toRunDoc(run *api.Run) mongoRunDoc {
	return mongoRunDoc{
		ID:         run.ID,
		Name:       run.Name,
		Mode:       string(run.Mode),
		Status:     string(run.Status),
		Attempts:   run.Attempts,
		Restarts:   run.Restarts,
		Retries:    run.Retries,
		Recoveries: run.Recoveries,
		Error:      errString(run.Err),
		StartedAt:  unixNano(run.StartedAt),
		FinishedAt: unixNano(run.FinishedAt),
	}
}

func (d mongoRunDoc) toRun() *api.Run {
	return &api.Run{
		ID:         d.ID,
		Name:       d.Name,
		Mode:       api.Mode(d.Mode),
		Status:     api.Status(d.Status),
		Attempts:   d.Attempts,
		Restarts:   d.Restarts,
		Retries:    d.Retries,
		Recoveries: d.Recoveries,
		Err:        errFromString(d.Error),
		StartedAt:  fromUnixNano(d.StartedAt),
		FinishedAt: fromUnixNano(d.FinishedAt),
	}
}

func (s *MongoStore) SaveRun(ctx context.Context, run *api.Run) error {
	_, err := s.runs.InsertOne(ctx, toRunDoc(run))
	return err
}

func (s *MongoStore) UpdateRun(ctx context.Context, run *api.Run) error {
	res, err := s.runs.ReplaceOne(ctx, bson.M{"_id": run.ID}, toRunDoc(run))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *MongoStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	var doc mongoRunDoc
	err := s.runs.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return doc.toRun(), nil
}

func (s *MongoStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error) {
	bfilter := bson.M{}
	if filter.Name != "" {
		bfilter["name"] = filter.Name
	}
	if filter.Status != "" {
		bfilter["status"] = string(filter.Status)
	}

	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: 1}})
	cur, err := s.runs.Find(ctx, bfilter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var results []*api.Run
	for cur.Next(ctx) {
		var doc mongoRunDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		results = append(results, doc.toRun())
	}
	return results, cur.Err()
}

func (s *MongoStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.events.InsertOne(ctx, mongoEventDoc{
		RunID:   ev.RunID,
		Seq:     time.Now().UnixNano(),
		At:      at.UnixNano(),
		Type:    string(ev.Type),
		Attempt: ev.Attempt,
		Detail:  ev.Detail,
	})
	return err
}

func (s *MongoStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.events.Find(ctx, bson.M{"run_id": runID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []api.RunEvent
	for cur.Next(ctx) {
		var doc mongoEventDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, api.RunEvent{
			RunID:   doc.RunID,
			At:      time.Unix(0, doc.At),
			Type:    api.EventType(doc.Type),
			Attempt: doc.Attempt,
			Detail:  doc.Detail,
		})
	}
	return out, cur.Err()
}
