package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/internal/payload"
	"github.com/wms-platform/shipment-pipeline/pkg/logging"
)

var fixedNow = time.Date(2026, time.March, 4, 15, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

type fakeCarrier struct {
	sessionErr error
	createFn   func(req *domain.NormalizedRequest) (*domain.CarrierResult, error)
	rateFn     func(req *domain.NormalizedRequest) (*domain.CarrierResult, error)

	mu      sync.Mutex
	created []string
	rated   []string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func okResult(req *domain.NormalizedRequest, charge string) *domain.CarrierResult {
	return &domain.CarrierResult{
		TrackingNumber: "1Z" + req.OrderID,
		TotalCharges:   domain.Charge{MonetaryValue: charge, CurrencyCode: "USD"},
	}
}

func (f *fakeCarrier) EnsureSession(context.Context) error { return f.sessionErr }

func (f *fakeCarrier) CarrierCode() string { return "UPS" }

func (f *fakeCarrier) CreateShipment(_ context.Context, req *domain.NormalizedRequest) (*domain.CarrierResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	f.created = append(f.created, req.OrderID)
	f.mu.Unlock()

	if f.createFn != nil {
		return f.createFn(req)
	}
	return okResult(req, "12.50"), nil
}

func (f *fakeCarrier) RateShipment(_ context.Context, req *domain.NormalizedRequest) (*domain.CarrierResult, error) {
	f.mu.Lock()
	f.rated = append(f.rated, req.OrderID)
	f.mu.Unlock()

	if f.rateFn != nil {
		return f.rateFn(req)
	}
	return okResult(req, "10.00"), nil
}

func (f *fakeCarrier) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// memRepo keeps stored statuses apart from the shared pointers so claims
// behave like conditional updates
type memRepo struct {
	mu        sync.Mutex
	jobs      map[string]*domain.BatchJob
	jobStatus map[string]domain.JobStatus
	rows      map[string]map[int]*domain.BatchRow
	rowStatus map[string]map[int]domain.RowStatus
	rowSaves  int
	saveRowFn func(row *domain.BatchRow) error
}

func newMemRepo() *memRepo {
	return &memRepo{
		jobs:      make(map[string]*domain.BatchJob),
		jobStatus: make(map[string]domain.JobStatus),
		rows:      make(map[string]map[int]*domain.BatchRow),
		rowStatus: make(map[string]map[int]domain.RowStatus),
	}
}

func (r *memRepo) Save(_ context.Context, job *domain.BatchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.JobID] = job
	r.jobStatus[job.JobID] = job.Status
	return nil
}

func (r *memRepo) ClaimJob(_ context.Context, job *domain.BatchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.jobStatus[job.JobID] {
	case domain.JobStatusRunning:
		return domain.ErrJobAlreadyRunning
	case domain.JobStatusCompleted, domain.JobStatusFailed:
		return domain.ErrJobAlreadyTerminal
	}
	r.jobs[job.JobID] = job
	r.jobStatus[job.JobID] = job.Status
	return nil
}

func (r *memRepo) ClaimRow(_ context.Context, row *domain.BatchRow) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rowStatus[row.JobID][row.RowNumber] != domain.RowStatusPending {
		return false, nil
	}
	r.rowStatus[row.JobID][row.RowNumber] = domain.RowStatusInFlight
	return true, nil
}

func (r *memRepo) storedRowStatus(jobID string, rowNumber int) domain.RowStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rowStatus[jobID][rowNumber]
}

func (r *memRepo) FindByID(_ context.Context, jobID string) (*domain.BatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (r *memRepo) SaveRows(_ context.Context, rows []*domain.BatchRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		r.put(row)
	}
	return nil
}

func (r *memRepo) SaveRow(_ context.Context, row *domain.BatchRow) error {
	if r.saveRowFn != nil {
		if err := r.saveRowFn(row); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rowSaves++
	r.put(row)
	return nil
}

func (r *memRepo) put(row *domain.BatchRow) {
	if r.rows[row.JobID] == nil {
		r.rows[row.JobID] = make(map[int]*domain.BatchRow)
		r.rowStatus[row.JobID] = make(map[int]domain.RowStatus)
	}
	r.rows[row.JobID][row.RowNumber] = row
	r.rowStatus[row.JobID][row.RowNumber] = row.Status
}

func (r *memRepo) FindRows(_ context.Context, jobID string) ([]*domain.BatchRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(jobID, func(*domain.BatchRow) bool { return true }), nil
}

func (r *memRepo) FindPendingRows(_ context.Context, jobID string) ([]*domain.BatchRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(jobID, (*domain.BatchRow).IsPending), nil
}

func (r *memRepo) sorted(jobID string, keep func(*domain.BatchRow) bool) []*domain.BatchRow {
	out := make([]*domain.BatchRow, 0)
	for _, row := range r.rows[jobID] {
		if keep(row) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out
}

type memCommodities struct {
	mu       sync.Mutex
	lines    map[string][]domain.CommodityLine
	err      error
	requests [][]string
}

func (c *memCommodities) GetCommoditiesBulk(_ context.Context, orderIDs []string) (map[string][]domain.CommodityLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, append([]string(nil), orderIDs...))
	if c.err != nil {
		return nil, c.err
	}
	out := make(map[string][]domain.CommodityLine)
	for _, id := range orderIDs {
		if lines, ok := c.lines[id]; ok {
			out[id] = lines
		}
	}
	return out, nil
}

func (c *memCommodities) ReplaceCommodities(_ context.Context, orderID string, lines []domain.CommodityLine) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.lines == nil {
		c.lines = make(map[string][]domain.CommodityLine)
	}
	c.lines[orderID] = lines
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) PublishAll(ctx context.Context, events []domain.DomainEvent) error {
	for _, event := range events {
		if err := p.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, event := range p.events {
		out[i] = event.EventType()
	}
	return out
}

func testShipper() domain.Shipper {
	return domain.Shipper{
		Name:          "Acme Outfitters",
		AttentionName: "Dock Lead",
		Phone:         "(212) 555-0199",
		Address1:      "1 Commerce Way",
		City:          "Newark",
		State:         "NJ",
		PostalCode:    "07102",
		Country:       "US",
		ShipperNumber: "A1B2C3",
	}
}

func domesticOrder(n int) domain.OrderRecord {
	return domain.OrderRecord{
		OrderID:          fmt.Sprintf("ORD-%d", n),
		OrderNumber:      fmt.Sprintf("%d", 1000+n),
		ShipToName:       fmt.Sprintf("Customer %d", n),
		ShipToAddress1:   fmt.Sprintf("%d Market Street", 100+n),
		ShipToCity:       "San Francisco",
		ShipToState:      "CA",
		ShipToPostalCode: "94105",
		ShipToCountry:    "US",
		Weight:           "2.5",
	}
}

func canadaOrder(n int) domain.OrderRecord {
	return domain.OrderRecord{
		OrderID:              fmt.Sprintf("ORD-%d", n),
		OrderNumber:          fmt.Sprintf("%d", 1000+n),
		ServiceCode:          "11",
		ShipToName:           "Maple Imports",
		ShipToAttentionName:  "Jeanne Tremblay",
		ShipToPhone:          "+1 416-555-0100",
		ShipToAddress1:       "100 King St W",
		ShipToCity:           "Toronto",
		ShipToState:          "ON",
		ShipToPostalCode:     "M5X 1A9",
		ShipToCountry:        "CA",
		ShipmentDescription:  "Apparel and accessories",
		Weight:               "4.25",
		InvoiceCurrencyCode:  "USD",
		InvoiceMonetaryValue: "250",
	}
}

func shirts(orderID string) []domain.CommodityLine {
	return []domain.CommodityLine{{
		OrderID:       orderID,
		Description:   "Cotton shirt",
		CommodityCode: "6109100010",
		OriginCountry: "US",
		Quantity:      intPtr(10),
		UnitValue:     "25.00",
	}}
}

type engineFixture struct {
	carrier     *fakeCarrier
	repo        *memRepo
	commodities *memCommodities
	engine      *BatchEngine
}

func newEngineFixture(concurrency int) *engineFixture {
	f := &engineFixture{
		carrier:     &fakeCarrier{},
		repo:        newMemRepo(),
		commodities: &memCommodities{lines: make(map[string][]domain.CommodityLine)},
	}
	builder := payload.NewBuilder(domain.NewLaneResolver([]string{"US-CA", "US-MX"}),
		payload.WithClock(func() time.Time { return fixedNow }))
	f.engine = NewBatchEngine(f.carrier, f.commodities, f.repo, builder, nil, logging.NewNop(), nil,
		EngineConfig{Concurrency: concurrency, MaxPreviewRows: 20})
	return f
}

// newJob builds a job and its rows and registers them with the repository
func (f *engineFixture) newJob(jobID string, orders ...domain.OrderRecord) (*domain.BatchJob, []*domain.BatchRow) {
	job := domain.NewBatchJob(jobID, "", testShipper(), "", len(orders))
	rows := make([]*domain.BatchRow, len(orders))
	for i, order := range orders {
		rows[i] = domain.NewBatchRow(jobID, i+1, order)
	}
	_ = f.repo.Save(context.Background(), job)
	_ = f.repo.SaveRows(context.Background(), rows)
	return job, rows
}
