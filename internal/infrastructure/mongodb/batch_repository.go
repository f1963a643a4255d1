package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/pkg/metrics"
	pkgmongo "github.com/wms-platform/shipment-pipeline/pkg/mongodb"
)

const (
	jobsCollection = "batch_jobs"
	rowsCollection = "batch_rows"
)

// BatchJobRepository implements domain.BatchJobRepository. Jobs and rows
// live in separate collections; rows are keyed by (jobId, rowNumber).
type BatchJobRepository struct {
	jobs    *mongo.Collection
	rows    *mongo.Collection
	metrics *metrics.Metrics
}

// NewBatchJobRepository creates the repository. m may be nil.
func NewBatchJobRepository(db *mongo.Database, m *metrics.Metrics) *BatchJobRepository {
	return &BatchJobRepository{
		jobs:    db.Collection(jobsCollection),
		rows:    db.Collection(rowsCollection),
		metrics: m,
	}
}

// EnsureIndexes creates the job and row indexes
func (r *BatchJobRepository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.jobs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "jobId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create %s indexes: %w", jobsCollection, err)
	}

	if _, err := r.rows.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "jobId", Value: 1}, {Key: "rowNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "jobId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "orderId", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create %s indexes: %w", rowsCollection, err)
	}
	return nil
}

// Save upserts the job by jobId
func (r *BatchJobRepository) Save(ctx context.Context, job *domain.BatchJob) (err error) {
	defer r.observe(jobsCollection, "save", time.Now(), &err)

	job.UpdatedAt = pkgmongo.Now()
	doc := *job
	doc.ID = primitive.NilObjectID

	_, err = r.jobs.UpdateOne(ctx,
		bson.M{"jobId": job.JobID},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save batch job %s: %w", job.JobID, err)
	}
	return nil
}

// FindByID returns the job or domain.ErrJobNotFound
func (r *BatchJobRepository) FindByID(ctx context.Context, jobID string) (job *domain.BatchJob, err error) {
	defer r.observe(jobsCollection, "find", time.Now(), &err)

	var j domain.BatchJob
	err = r.jobs.FindOne(ctx, bson.M{"jobId": jobID}).Decode(&j)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find batch job %s: %w", jobID, err)
	}
	return &j, nil
}

// ClaimJob writes the running job only when the stored status is still
// startable, so exactly one run wins a job
func (r *BatchJobRepository) ClaimJob(ctx context.Context, job *domain.BatchJob) (err error) {
	defer r.observe(jobsCollection, "claim", time.Now(), &err)

	job.UpdatedAt = pkgmongo.Now()
	doc := *job
	doc.ID = primitive.NilObjectID

	res, err := r.jobs.UpdateOne(ctx,
		bson.M{"jobId": job.JobID, "status": bson.M{"$in": domain.Startable}},
		bson.M{"$set": doc},
	)
	if err != nil {
		return fmt.Errorf("failed to claim batch job %s: %w", job.JobID, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	stored, err := r.FindByID(ctx, job.JobID)
	if err != nil {
		return err
	}
	if stored.IsTerminal() {
		return domain.ErrJobAlreadyTerminal
	}
	return domain.ErrJobAlreadyRunning
}

// SaveRows upserts rows in one unordered bulk write
func (r *BatchJobRepository) SaveRows(ctx context.Context, rows []*domain.BatchRow) (err error) {
	if len(rows) == 0 {
		return nil
	}
	defer r.observe(rowsCollection, "save_many", time.Now(), &err)

	models := make([]mongo.WriteModel, 0, len(rows))
	for _, row := range rows {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(rowFilter(row)).
			SetUpdate(bson.M{"$set": rowDocument(row)}).
			SetUpsert(true))
	}

	if _, err = r.rows.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to save %d batch rows: %w", len(rows), err)
	}
	return nil
}

// SaveRow upserts one row
func (r *BatchJobRepository) SaveRow(ctx context.Context, row *domain.BatchRow) (err error) {
	defer r.observe(rowsCollection, "save", time.Now(), &err)

	_, err = r.rows.UpdateOne(ctx, rowFilter(row), bson.M{"$set": rowDocument(row)}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save row %d of job %s: %w", row.RowNumber, row.JobID, err)
	}
	return nil
}

// ClaimRow flips a pending row to in_flight with a conditional update
func (r *BatchJobRepository) ClaimRow(ctx context.Context, row *domain.BatchRow) (claimed bool, err error) {
	defer r.observe(rowsCollection, "claim", time.Now(), &err)

	filter := rowFilter(row)
	filter["status"] = domain.RowStatusPending
	res, err := r.rows.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"status": domain.RowStatusInFlight}})
	if err != nil {
		return false, fmt.Errorf("failed to claim row %d of job %s: %w", row.RowNumber, row.JobID, err)
	}
	return res.MatchedCount == 1, nil
}

// FindRows returns every row of the job in row order
func (r *BatchJobRepository) FindRows(ctx context.Context, jobID string) ([]*domain.BatchRow, error) {
	return r.findRows(ctx, "find_all", bson.M{"jobId": jobID})
}

// FindPendingRows returns the job's unprocessed rows in row order
func (r *BatchJobRepository) FindPendingRows(ctx context.Context, jobID string) ([]*domain.BatchRow, error) {
	return r.findRows(ctx, "find_pending", bson.M{"jobId": jobID, "status": domain.RowStatusPending})
}

func (r *BatchJobRepository) findRows(ctx context.Context, operation string, filter bson.M) (rows []*domain.BatchRow, err error) {
	defer r.observe(rowsCollection, operation, time.Now(), &err)

	cursor, err := r.rows.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "rowNumber", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query batch rows: %w", err)
	}
	defer cursor.Close(ctx)

	rows = make([]*domain.BatchRow, 0)
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode batch rows: %w", err)
	}
	return rows, nil
}

func (r *BatchJobRepository) observe(collection, operation string, start time.Time, err *error) {
	if r.metrics != nil {
		r.metrics.RecordMongoDBOperation(collection, operation, *err == nil, time.Since(start))
	}
}

func rowFilter(row *domain.BatchRow) bson.M {
	return bson.M{"jobId": row.JobID, "rowNumber": row.RowNumber}
}

// rowDocument drops _id so an upsert never rewrites the immutable field
func rowDocument(row *domain.BatchRow) domain.BatchRow {
	doc := *row
	doc.ID = primitive.NilObjectID
	return doc
}
