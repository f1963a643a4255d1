package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/pkg/metrics"
)

const commoditiesCollection = "commodities"

// commodityDocument is a stored commodity line. Line keeps declaration order
// within an order.
type commodityDocument struct {
	domain.CommodityLine `bson:",inline"`
	Line                 int `bson:"line"`
}

// CommodityRepository implements domain.CommodityRepository
type CommodityRepository struct {
	collection *mongo.Collection
	metrics    *metrics.Metrics
}

// NewCommodityRepository creates the repository. m may be nil.
func NewCommodityRepository(db *mongo.Database, m *metrics.Metrics) *CommodityRepository {
	return &CommodityRepository{
		collection: db.Collection(commoditiesCollection),
		metrics:    m,
	}
}

// EnsureIndexes creates the order lookup index
func (r *CommodityRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "orderId", Value: 1}, {Key: "line", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create %s indexes: %w", commoditiesCollection, err)
	}
	return nil
}

// GetCommoditiesBulk loads the commodity lines of every order in one $in
// query. Orders without commodities are absent from the result.
func (r *CommodityRepository) GetCommoditiesBulk(ctx context.Context, orderIDs []string) (result map[string][]domain.CommodityLine, err error) {
	result = make(map[string][]domain.CommodityLine)
	if len(orderIDs) == 0 {
		return result, nil
	}
	defer r.observe("find_bulk", time.Now(), &err)

	cursor, err := r.collection.Find(ctx,
		bson.M{"orderId": bson.M{"$in": orderIDs}},
		options.Find().SetSort(bson.D{{Key: "orderId", Value: 1}, {Key: "line", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query commodities: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc commodityDocument
		if err = cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode commodity: %w", err)
		}
		result[doc.OrderID] = append(result[doc.OrderID], doc.CommodityLine)
	}
	if err = cursor.Err(); err != nil {
		return nil, fmt.Errorf("commodity cursor failed: %w", err)
	}
	return result, nil
}

// ReplaceCommodities stores lines as the complete commodity list of orderID
func (r *CommodityRepository) ReplaceCommodities(ctx context.Context, orderID string, lines []domain.CommodityLine) (err error) {
	defer r.observe("replace", time.Now(), &err)

	if _, err = r.collection.DeleteMany(ctx, bson.M{"orderId": orderID}); err != nil {
		return fmt.Errorf("failed to clear commodities of order %s: %w", orderID, err)
	}
	if len(lines) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(lines))
	for i, line := range lines {
		line.OrderID = orderID
		docs = append(docs, commodityDocument{CommodityLine: line, Line: i + 1})
	}
	if _, err = r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to store commodities of order %s: %w", orderID, err)
	}
	return nil
}

func (r *CommodityRepository) observe(operation string, start time.Time, err *error) {
	if r.metrics != nil {
		r.metrics.RecordMongoDBOperation(commoditiesCollection, operation, *err == nil, time.Since(start))
	}
}
