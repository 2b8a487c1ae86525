package testutils

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"buildhub/db"
	"buildhub/db/memory"
	"buildhub/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Fixture seeds a memory store directly, bypassing the workflow rules, so a
// test can start from any state.
type Fixture struct {
	t     *testing.T
	Store *memory.Store

	mu    sync.Mutex
	clock time.Time
}

func NewFixture(t *testing.T) *Fixture {
	t.Helper()
	return &Fixture{
		t:     t,
		Store: memory.New(),
		clock: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

// tick returns strictly increasing timestamps so list ordering is stable.
func (f *Fixture) tick() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *Fixture) seed(fn func(ctx context.Context, tx db.Tx) error) {
	f.t.Helper()
	ctx := context.Background()
	require.NoError(f.t, f.Store.InTx(ctx, func(tx db.Tx) error { return fn(ctx, tx) }))
}

func (f *Fixture) User(role models.Role) models.User {
	f.t.Helper()
	id := uuid.NewString()
	u := models.User{
		ID:           id,
		Email:        fmt.Sprintf("%s-%s@example.com", role, id[:8]),
		PasswordHash: "x",
		FullName:     string(role) + " " + id[:8],
		Role:         role,
		CreatedAt:    f.tick(),
	}
	f.seed(func(ctx context.Context, tx db.Tx) error { return tx.InsertUser(ctx, &u) })
	return u
}

func (f *Fixture) Project(ownerID string, status models.ProjectStatus) models.Project {
	f.t.Helper()
	at := f.tick()
	p := models.Project{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		Title:          "Kitchen renovation",
		Description:    "Replace cabinets and tiling",
		Location:       "Nairobi",
		RequiredSkills: models.SkillSet{models.SkillCarpenter, models.SkillMason},
		Status:         status,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	f.seed(func(ctx context.Context, tx db.Tx) error { return tx.InsertProject(ctx, &p) })
	return p
}

func (f *Fixture) Bid(projectID, workerID string, rate float64, status models.BidStatus) models.Bid {
	f.t.Helper()
	at := f.tick()
	b := models.Bid{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		WorkerID:     workerID,
		ProposedRate: rate,
		Message:      "available",
		Status:       status,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	f.seed(func(ctx context.Context, tx db.Tx) error { return tx.InsertBid(ctx, &b) })
	return b
}

func (f *Fixture) Material(supplierID string, price float64, available int) models.Material {
	f.t.Helper()
	at := f.tick()
	m := models.Material{
		ID:                uuid.NewString(),
		SupplierID:        supplierID,
		Name:              "Cement",
		Category:          "binders",
		Unit:              "bag",
		PricePerUnit:      price,
		AvailableQuantity: available,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
	f.seed(func(ctx context.Context, tx db.Tx) error { return tx.InsertMaterial(ctx, &m) })
	return m
}

func (f *Fixture) Order(m models.Material, projectID string, quantity int, status models.OrderStatus) models.MaterialOrder {
	f.t.Helper()
	at := f.tick()
	o := models.MaterialOrder{
		ID:              uuid.NewString(),
		MaterialID:      m.ID,
		ProjectID:       projectID,
		Quantity:        quantity,
		TotalPrice:      models.RoundCents(float64(quantity) * m.PricePerUnit),
		DeliveryAddress: "Plot 7, Ngong Road",
		Status:          status,
		// Seeded past-pending orders already hold their stock.
		StockReserved: status == models.OrderConfirmed || status == models.OrderShipped || status == models.OrderDelivered,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	f.seed(func(ctx context.Context, tx db.Tx) error { return tx.InsertOrder(ctx, &o) })
	return o
}

func (f *Fixture) Profile(userID string, hourly, daily *float64) models.WorkerProfile {
	f.t.Helper()
	w := models.WorkerProfile{
		UserID:       userID,
		Skills:       models.SkillSet{models.SkillCarpenter},
		HourlyRate:   hourly,
		DailyRate:    daily,
		Availability: true,
		UpdatedAt:    f.tick(),
	}
	f.seed(func(ctx context.Context, tx db.Tx) error { return tx.UpsertWorkerProfile(ctx, &w) })
	return w
}

func (f *Fixture) GetProject(id string) models.Project {
	f.t.Helper()
	var p models.Project
	f.seed(func(ctx context.Context, tx db.Tx) (err error) { p, err = tx.GetProject(ctx, id); return })
	return p
}

func (f *Fixture) GetBid(id string) models.Bid {
	f.t.Helper()
	var b models.Bid
	f.seed(func(ctx context.Context, tx db.Tx) (err error) { b, err = tx.GetBid(ctx, id); return })
	return b
}

func (f *Fixture) Bids(projectID string) []models.Bid {
	f.t.Helper()
	var bids []models.Bid
	f.seed(func(ctx context.Context, tx db.Tx) (err error) {
		bids, err = tx.ListBids(ctx, db.BidFilter{ProjectIDs: []string{projectID}})
		return
	})
	return bids
}

func (f *Fixture) GetMaterial(id string) models.Material {
	f.t.Helper()
	var m models.Material
	f.seed(func(ctx context.Context, tx db.Tx) (err error) { m, err = tx.GetMaterial(ctx, id); return })
	return m
}

func (f *Fixture) GetOrder(id string) models.MaterialOrder {
	f.t.Helper()
	var o models.MaterialOrder
	f.seed(func(ctx context.Context, tx db.Tx) (err error) { o, err = tx.GetOrder(ctx, id); return })
	return o
}

func Float(v float64) *float64 { return &v }
