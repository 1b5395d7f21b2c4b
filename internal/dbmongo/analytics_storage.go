package dbmongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"patternpals/internal/common"
)

// AnalyticsStorage appends delivery samples to a capped-growth collection.
// It implements common.AnalyticsSink; the collector above it guarantees
// that failures here never touch the delivery path.
type AnalyticsStorage struct {
	collection *mongo.Collection
}

func NewAnalyticsStorage(mc *MongoClient, collectionName string) *AnalyticsStorage {
	return &AnalyticsStorage{
		collection: mc.Database.Collection(collectionName),
	}
}

func (s *AnalyticsStorage) Insert(ctx context.Context, sample common.DeliverySample) error {
	if _, err := s.collection.InsertOne(ctx, sample); err != nil {
		return fmt.Errorf("failed to insert delivery sample: %w", err)
	}
	return nil
}

// AverageElapsedMs aggregates the mean delivery latency over successful samples.
func (s *AnalyticsStorage) AverageElapsedMs(ctx context.Context) (float64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "success", Value: true}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "avg_elapsed", Value: bson.D{{Key: "$avg", Value: "$elapsed_ms"}}},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate delivery samples: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		AvgElapsed float64 `bson:"avg_elapsed"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("failed to decode aggregation result: %w", err)
	}

	if len(results) == 0 {
		return 0, nil
	}
	return results[0].AvgElapsed, nil
}
