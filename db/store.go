package db

import (
	"context"
	"time"

	"buildhub/models"
)

// Store runs units of work against the entity tables. fn either commits as a
// whole or leaves no trace; returning an error from fn rolls back.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the typed surface available inside a transaction. Lock* variants take
// a row lock held until the transaction ends.
type Tx interface {
	InsertUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	// ListUsers and ListWorkerProfiles return the rows for the given ids in no
	// particular order. Unknown ids are skipped; no ids gives no rows.
	ListUsers(ctx context.Context, ids []string) ([]models.User, error)

	InsertProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (models.Project, error)
	LockProject(ctx context.Context, id string) (models.Project, error)
	SetProjectStatus(ctx context.Context, id string, status models.ProjectStatus, at time.Time) error
	ListProjects(ctx context.Context, f ProjectFilter) ([]models.Project, error)

	InsertBid(ctx context.Context, b *models.Bid) error
	GetBid(ctx context.Context, id string) (models.Bid, error)
	LockBid(ctx context.Context, id string) (models.Bid, error)
	SetBidStatus(ctx context.Context, id string, status models.BidStatus, at time.Time) error
	// RejectPendingBids rejects every pending bid on the project except
	// exceptBidID (may be empty) and returns the rows it changed.
	RejectPendingBids(ctx context.Context, projectID, exceptBidID string, at time.Time) ([]models.Bid, error)
	ListBids(ctx context.Context, f BidFilter) ([]models.Bid, error)

	InsertMaterial(ctx context.Context, m *models.Material) error
	GetMaterial(ctx context.Context, id string) (models.Material, error)
	LockMaterial(ctx context.Context, id string) (models.Material, error)
	UpdateMaterial(ctx context.Context, m *models.Material) error
	ListMaterials(ctx context.Context, f MaterialFilter) ([]models.Material, error)

	InsertOrder(ctx context.Context, o *models.MaterialOrder) error
	GetOrder(ctx context.Context, id string) (models.MaterialOrder, error)
	LockOrder(ctx context.Context, id string) (models.MaterialOrder, error)
	SetOrderStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) error
	SetStockReserved(ctx context.Context, id string, reserved bool) error
	ListOrders(ctx context.Context, f OrderFilter) ([]models.MaterialOrder, error)

	GetWorkerProfile(ctx context.Context, userID string) (models.WorkerProfile, error)
	UpsertWorkerProfile(ctx context.Context, w *models.WorkerProfile) error
	ListWorkerProfiles(ctx context.Context, userIDs []string) ([]models.WorkerProfile, error)

	GetOwnerProfile(ctx context.Context, userID string) (models.OwnerProfile, error)
	UpsertOwnerProfile(ctx context.Context, o *models.OwnerProfile) error
	GetSupplierProfile(ctx context.Context, userID string) (models.SupplierProfile, error)
	UpsertSupplierProfile(ctx context.Context, s *models.SupplierProfile) error
}

// Filters: zero-valued fields do not constrain. Results are ordered by
// created_at descending.

type ProjectFilter struct {
	IDs      []string
	OwnerID  string
	Statuses []models.ProjectStatus
	Limit    int
}

type BidFilter struct {
	ProjectIDs []string
	WorkerID   string
	Statuses   []models.BidStatus
}

type MaterialFilter struct {
	IDs        []string
	SupplierID string
}

type OrderFilter struct {
	ProjectIDs  []string
	MaterialIDs []string
	Statuses    []models.OrderStatus
}
