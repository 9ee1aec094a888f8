// Package archive stores every improving layout in MongoDB so solutions of
// long runs survive the machine that found them.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/factorygrid/pkg/decode"
	fgio "github.com/matzehuels/factorygrid/pkg/io"
)

// Defaults for [Config].
const (
	DefaultDatabase   = "factorygrid"
	DefaultCollection = "solutions"
)

// ErrNotFound is returned when a run has no archived solution.
var ErrNotFound = errors.New("no archived solution")

// Config configures [Open].
type Config struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// Record is one archived solution.
type Record struct {
	RunID      string         `bson:"run_id"`
	Name       string         `bson:"name"`
	Index      int            `bson:"index"`
	Objective  int64          `bson:"objective"`
	ElapsedMS  int64          `bson:"elapsed_ms"`
	RecordedAt time.Time      `bson:"recorded_at"`
	Layout     *fgio.Document `bson:"layout"`
}

// NewRecord converts a snapshot into a record.
func NewRecord(runID, name string, s *decode.Snapshot) Record {
	return Record{
		RunID:      runID,
		Name:       name,
		Index:      s.Index,
		Objective:  s.Objective,
		ElapsedMS:  s.Elapsed.Milliseconds(),
		RecordedAt: s.Time.UTC(),
		Layout:     fgio.NewDocument(s.Objective, s.Bounds, s.Placements),
	}
}

// Archive is a MongoDB collection of solution records.
type Archive struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
}

// Open connects to MongoDB and ensures the run index exists.
func Open(ctx context.Context, cfg Config) (*Archive, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("empty mongo uri")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	coll := client.Database(cfg.Database).Collection(cfg.Collection)

	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "objective", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Archive{client: client, coll: coll, timeout: cfg.Timeout}, nil
}

// Insert stores one record.
func (a *Archive) Insert(ctx context.Context, r Record) error {
	if _, err := a.coll.InsertOne(ctx, r); err != nil {
		return fmt.Errorf("insert solution: %w", err)
	}
	return nil
}

// Sink returns a decode.Sink archiving each snapshot of a run.
func (a *Archive) Sink(runID, name string) decode.Sink {
	return decode.SinkFunc(func(s *decode.Snapshot) error {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		return a.Insert(ctx, NewRecord(runID, name, s))
	})
}

// Best returns the lowest-objective record of a run.
func (a *Archive) Best(ctx context.Context, runID string) (*Record, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "objective", Value: 1}})
	var r Record
	err := a.coll.FindOne(ctx, bson.M{"run_id": runID}, opts).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("find solution: %w", err)
	}
	return &r, nil
}

// Close disconnects the client.
func (a *Archive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}
