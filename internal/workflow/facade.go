// Package workflow is the single entry point the presentation layer calls.
// It resolves the acting user from a session, bounds every operation in time
// and hands the work to the bid ledger, the project lifecycle and order
// fulfillment. Errors leave this package tagged with a marketerrors kind.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"buildhub/db"
	"buildhub/internal/bids"
	"buildhub/internal/logger"
	"buildhub/internal/marketerrors"
	"buildhub/internal/orders"
	"buildhub/internal/projects"
	"buildhub/models"
)

//go:generate mockgen -destination=mock_identity.go -package=workflow buildhub/internal/workflow IdentityProvider

// IdentityProvider turns a session handle into the acting user id.
type IdentityProvider interface {
	CurrentUser(ctx context.Context, session string) (string, error)
}

type Facade struct {
	store    db.Store
	identity IdentityProvider
	projects *projects.Lifecycle
	bids     *bids.Ledger
	orders   *orders.Fulfillment
	timeout  time.Duration
}

func New(store db.Store, identity IdentityProvider, lifecycle *projects.Lifecycle, ledger *bids.Ledger, fulfillment *orders.Fulfillment, timeout time.Duration) *Facade {
	return &Facade{
		store:    store,
		identity: identity,
		projects: lifecycle,
		bids:     ledger,
		orders:   fulfillment,
		timeout:  timeout,
	}
}

// run resolves the actor, applies the operation timeout and translates the
// outcome. The actor is never cached between calls.
func run[T any](ctx context.Context, f *Facade, op, session string, fn func(ctx context.Context, actor string) (T, error)) (T, error) {
	var zero T
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	actor, err := f.identity.CurrentUser(ctx, session)
	if err != nil {
		return zero, fail(op, "", translate(err))
	}
	out, err := fn(ctx, actor)
	if err != nil {
		return zero, fail(op, actor, translate(err))
	}
	return out, nil
}

// translate guarantees a tagged error. Untagged failures come from the store
// or its driver.
func translate(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if errors.Is(err, marketerrors.ErrTimeout) {
			return err
		}
		return fmt.Errorf("%w: %w", marketerrors.ErrTimeout, err)
	}
	if marketerrors.Kind(err) != nil {
		return err
	}
	return fmt.Errorf("%w: %w", marketerrors.ErrStoreFailure, err)
}

func fail(op, actor string, err error) error {
	fields := map[string]any{
		"op":    op,
		"actor": actor,
		"kind":  marketerrors.Kind(err).Error(),
		"error": err.Error(),
	}
	if marketerrors.IsRetryable(err) {
		logger.Error("workflow: operation failed", fields)
	} else {
		logger.Warn("workflow: operation rejected", fields)
	}
	return err
}

// Projects

func (f *Facade) CreateProject(ctx context.Context, session string, in projects.CreateInput) (models.Project, error) {
	return run(ctx, f, "CreateProject", session, func(ctx context.Context, actor string) (models.Project, error) {
		return f.projects.Create(ctx, actor, in)
	})
}

func (f *Facade) PublishProject(ctx context.Context, session, projectID string) (models.Project, error) {
	return run(ctx, f, "PublishProject", session, func(ctx context.Context, actor string) (models.Project, error) {
		return f.projects.Publish(ctx, actor, projectID)
	})
}

func (f *Facade) CompleteProject(ctx context.Context, session, projectID string) (models.Project, error) {
	return run(ctx, f, "CompleteProject", session, func(ctx context.Context, actor string) (models.Project, error) {
		return f.projects.Complete(ctx, actor, projectID)
	})
}

func (f *Facade) CancelProject(ctx context.Context, session, projectID string) (projects.CancelResult, error) {
	return run(ctx, f, "CancelProject", session, func(ctx context.Context, actor string) (projects.CancelResult, error) {
		return f.projects.Cancel(ctx, actor, projectID)
	})
}

// Bids

func (f *Facade) SubmitBid(ctx context.Context, session string, in bids.SubmitInput) (models.Bid, error) {
	return run(ctx, f, "SubmitBid", session, func(ctx context.Context, actor string) (models.Bid, error) {
		return f.bids.SubmitBid(ctx, actor, in)
	})
}

func (f *Facade) AcceptBid(ctx context.Context, session, bidID string) (bids.AcceptResult, error) {
	return run(ctx, f, "AcceptBid", session, func(ctx context.Context, actor string) (bids.AcceptResult, error) {
		return f.bids.AcceptBid(ctx, actor, bidID)
	})
}

func (f *Facade) RejectBid(ctx context.Context, session, bidID string) (models.Bid, error) {
	return run(ctx, f, "RejectBid", session, func(ctx context.Context, actor string) (models.Bid, error) {
		return f.bids.RejectBid(ctx, actor, bidID)
	})
}

func (f *Facade) ProjectBids(ctx context.Context, session, projectID string) ([]models.Bid, error) {
	return run(ctx, f, "ProjectBids", session, func(ctx context.Context, actor string) ([]models.Bid, error) {
		return f.bids.ProjectBids(ctx, actor, projectID)
	})
}

func (f *Facade) SaveWorkerProfile(ctx context.Context, session string, in bids.ProfileInput) (models.WorkerProfile, error) {
	return run(ctx, f, "SaveWorkerProfile", session, func(ctx context.Context, actor string) (models.WorkerProfile, error) {
		return f.bids.SaveProfile(ctx, actor, in)
	})
}

func (f *Facade) SaveOwnerProfile(ctx context.Context, session string, in projects.OwnerProfileInput) (models.OwnerProfile, error) {
	return run(ctx, f, "SaveOwnerProfile", session, func(ctx context.Context, actor string) (models.OwnerProfile, error) {
		return f.projects.SaveOwnerProfile(ctx, actor, in)
	})
}

func (f *Facade) SaveSupplierProfile(ctx context.Context, session string, in orders.SupplierProfileInput) (models.SupplierProfile, error) {
	return run(ctx, f, "SaveSupplierProfile", session, func(ctx context.Context, actor string) (models.SupplierProfile, error) {
		return f.orders.SaveSupplierProfile(ctx, actor, in)
	})
}

// Materials and orders

func (f *Facade) CreateMaterial(ctx context.Context, session string, in orders.MaterialInput) (models.Material, error) {
	return run(ctx, f, "CreateMaterial", session, func(ctx context.Context, actor string) (models.Material, error) {
		return f.orders.CreateMaterial(ctx, actor, in)
	})
}

func (f *Facade) UpdateMaterial(ctx context.Context, session, materialID string, patch orders.MaterialPatch) (models.Material, error) {
	return run(ctx, f, "UpdateMaterial", session, func(ctx context.Context, actor string) (models.Material, error) {
		return f.orders.UpdateMaterial(ctx, actor, materialID, patch)
	})
}

// Catalogue lists every material; any signed-in user may browse it.
func (f *Facade) Catalogue(ctx context.Context, session string) ([]models.Material, error) {
	return run(ctx, f, "Catalogue", session, func(ctx context.Context, _ string) ([]models.Material, error) {
		return f.orders.ListMaterials(ctx, db.MaterialFilter{})
	})
}

func (f *Facade) PlaceOrder(ctx context.Context, session string, in orders.PlaceInput) (models.MaterialOrder, error) {
	return run(ctx, f, "PlaceOrder", session, func(ctx context.Context, actor string) (models.MaterialOrder, error) {
		return f.orders.PlaceOrder(ctx, actor, in)
	})
}

func (f *Facade) ConfirmOrder(ctx context.Context, session, orderID string) (models.MaterialOrder, error) {
	return run(ctx, f, "ConfirmOrder", session, func(ctx context.Context, actor string) (models.MaterialOrder, error) {
		return f.orders.Confirm(ctx, actor, orderID)
	})
}

func (f *Facade) ShipOrder(ctx context.Context, session, orderID string) (models.MaterialOrder, error) {
	return run(ctx, f, "ShipOrder", session, func(ctx context.Context, actor string) (models.MaterialOrder, error) {
		return f.orders.Ship(ctx, actor, orderID)
	})
}

func (f *Facade) DeliverOrder(ctx context.Context, session, orderID string) (models.MaterialOrder, error) {
	return run(ctx, f, "DeliverOrder", session, func(ctx context.Context, actor string) (models.MaterialOrder, error) {
		return f.orders.Deliver(ctx, actor, orderID)
	})
}

func (f *Facade) CancelOrder(ctx context.Context, session, orderID string) (models.MaterialOrder, error) {
	return run(ctx, f, "CancelOrder", session, func(ctx context.Context, actor string) (models.MaterialOrder, error) {
		return f.orders.CancelOrder(ctx, actor, orderID)
	})
}

func (f *Facade) ProjectOrders(ctx context.Context, session, projectID string) ([]models.MaterialOrder, error) {
	return run(ctx, f, "ProjectOrders", session, func(ctx context.Context, actor string) ([]models.MaterialOrder, error) {
		return f.orders.ProjectOrders(ctx, actor, projectID)
	})
}
