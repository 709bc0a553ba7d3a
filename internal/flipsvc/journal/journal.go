package journal

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/abelt/coinflip-services/internal/comm"
)

const collectionName = "submissions"

// retention keeps processed submission ids around long enough to catch
// any replay inside and well past its validity window.
const retention = 24 * time.Hour

// Journal records every processed submission so duplicates are rejected
// instead of re-applied. Entries expire via a Mongo TTL index.
type Journal struct {
	col *mongo.Collection
}

type entry struct {
	SubmissionID string    `bson:"submission_id"`
	From         string    `bson:"from"`
	Accepted     bool      `bson:"accepted"`
	Code         string    `bson:"code"`
	MatchID      uint64    `bson:"match_id,omitempty"`
	ProcessedAt  time.Time `bson:"processed_at"`
	ExpiresAt    time.Time `bson:"expires_at"`
}

func New(db *mongo.Database) (*Journal, error) {
	col := db.Collection(collectionName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// TTL index, MongoDB reaps entries once expires_at passes.
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"expires_at": 1},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return nil, err
	}

	_, err = col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"submission_id": 1},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}

	return &Journal{col: col}, nil
}

// Seen reports whether a submission id has already been processed.
func (j *Journal) Seen(ctx context.Context, submissionID string) (bool, error) {
	err := j.col.FindOne(ctx, bson.M{"submission_id": submissionID}).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Record journals the verdict for a processed submission.
func (j *Journal) Record(ctx context.Context, sub *comm.Submission, result *comm.SubmissionResult) error {
	now := time.Now()
	_, err := j.col.InsertOne(ctx, entry{
		SubmissionID: sub.ID,
		From:         sub.From,
		Accepted:     result.Accepted,
		Code:         result.Code,
		MatchID:      result.MatchID,
		ProcessedAt:  now,
		ExpiresAt:    now.Add(retention),
	})
	return err
}
