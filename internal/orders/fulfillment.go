// Package orders handles the supplier catalogue and material orders from
// placement to delivery.
package orders

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"buildhub/db"
	"buildhub/internal/config"
	"buildhub/internal/marketerrors"
	"buildhub/models"

	"github.com/google/uuid"
)

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:   {models.OrderConfirmed, models.OrderCancelled},
	models.OrderConfirmed: {models.OrderShipped, models.OrderCancelled},
	models.OrderShipped:   {models.OrderDelivered},
}

func CanTransition(from, to models.OrderStatus) bool {
	return slices.Contains(transitions[from], to)
}

type Fulfillment struct {
	store  db.Store
	policy config.OrderPolicy
	now    func() time.Time
}

func NewFulfillment(store db.Store, policy config.OrderPolicy) *Fulfillment {
	return &Fulfillment{store: store, policy: policy, now: time.Now}
}

type MaterialInput struct {
	Name              string  `json:"name"`
	Category          string  `json:"category"`
	Unit              string  `json:"unit"`
	PricePerUnit      float64 `json:"pricePerUnit"`
	AvailableQuantity int     `json:"availableQuantity"`
	Description       string  `json:"description"`
}

// MaterialPatch changes only the fields that are set.
type MaterialPatch struct {
	Name              *string  `json:"name"`
	Category          *string  `json:"category"`
	Unit              *string  `json:"unit"`
	PricePerUnit      *float64 `json:"pricePerUnit"`
	AvailableQuantity *int     `json:"availableQuantity"`
	Description       *string  `json:"description"`
}

type PlaceInput struct {
	MaterialID      string     `json:"materialId"`
	ProjectID       string     `json:"projectId"`
	Quantity        int        `json:"quantity"`
	DeliveryAddress string     `json:"deliveryAddress"`
	DeliveryDate    *time.Time `json:"deliveryDate"`
}

func (f *Fulfillment) CreateMaterial(ctx context.Context, actor string, in MaterialInput) (models.Material, error) {
	now := f.now().UTC()
	m := models.Material{
		ID:                uuid.NewString(),
		SupplierID:        actor,
		Name:              strings.TrimSpace(in.Name),
		Category:          strings.TrimSpace(in.Category),
		Unit:              strings.TrimSpace(in.Unit),
		PricePerUnit:      in.PricePerUnit,
		AvailableQuantity: in.AvailableQuantity,
		Description:       strings.TrimSpace(in.Description),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := m.Validate(); err != nil {
		return models.Material{}, fmt.Errorf("orders: %w: %v", marketerrors.ErrInvalidInput, err)
	}

	err := f.store.InTx(ctx, func(tx db.Tx) error {
		supplier, err := tx.GetUser(ctx, actor)
		if err != nil {
			return fmt.Errorf("orders: load supplier %s: %w", actor, err)
		}
		if supplier.Role != models.RoleSupplier {
			return fmt.Errorf("orders: %w: only suppliers list materials", marketerrors.ErrUnauthorized)
		}
		return tx.InsertMaterial(ctx, &m)
	})
	if err != nil {
		return models.Material{}, err
	}
	return m, nil
}

// UpdateMaterial applies patch to a supplier's own material. Existing orders
// keep the total they were placed with.
func (f *Fulfillment) UpdateMaterial(ctx context.Context, actor, materialID string, patch MaterialPatch) (models.Material, error) {
	var out models.Material
	err := f.store.InTx(ctx, func(tx db.Tx) error {
		m, err := tx.LockMaterial(ctx, materialID)
		if err != nil {
			return fmt.Errorf("orders: load material %s: %w", materialID, err)
		}
		if m.SupplierID != actor {
			return fmt.Errorf("orders: %w: material %s belongs to another supplier", marketerrors.ErrUnauthorized, materialID)
		}

		if patch.Name != nil {
			m.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Category != nil {
			m.Category = strings.TrimSpace(*patch.Category)
		}
		if patch.Unit != nil {
			m.Unit = strings.TrimSpace(*patch.Unit)
		}
		if patch.PricePerUnit != nil {
			m.PricePerUnit = *patch.PricePerUnit
		}
		if patch.AvailableQuantity != nil {
			m.AvailableQuantity = *patch.AvailableQuantity
		}
		if patch.Description != nil {
			m.Description = strings.TrimSpace(*patch.Description)
		}
		if err := m.Validate(); err != nil {
			return fmt.Errorf("orders: %w: %v", marketerrors.ErrInvalidInput, err)
		}

		m.UpdatedAt = f.now().UTC()
		if err := tx.UpdateMaterial(ctx, &m); err != nil {
			return fmt.Errorf("orders: update material %s: %w", m.ID, err)
		}
		out = m
		return nil
	})
	if err != nil {
		return models.Material{}, err
	}
	return out, nil
}

// PlaceOrder creates a pending order for a project the actor owns. The total
// is fixed at the current unit price.
func (f *Fulfillment) PlaceOrder(ctx context.Context, actor string, in PlaceInput) (models.MaterialOrder, error) {
	if in.Quantity <= 0 {
		return models.MaterialOrder{}, fmt.Errorf("orders: %w: quantity must be positive", marketerrors.ErrInvalidInput)
	}
	address := strings.TrimSpace(in.DeliveryAddress)
	if address == "" {
		return models.MaterialOrder{}, fmt.Errorf("orders: %w: deliveryAddress is required", marketerrors.ErrInvalidInput)
	}

	var out models.MaterialOrder
	err := f.store.InTx(ctx, func(tx db.Tx) error {
		project, err := tx.GetProject(ctx, in.ProjectID)
		if err != nil {
			return fmt.Errorf("orders: load project %s: %w", in.ProjectID, err)
		}
		if project.OwnerID != actor {
			return fmt.Errorf("orders: %w: %s does not own project %s", marketerrors.ErrUnauthorized, actor, project.ID)
		}
		if project.Status.Terminal() {
			return fmt.Errorf("orders: project %s is %s: %w", project.ID, project.Status, marketerrors.ErrInvalidState)
		}

		m, err := tx.LockMaterial(ctx, in.MaterialID)
		if err != nil {
			return fmt.Errorf("orders: load material %s: %w", in.MaterialID, err)
		}
		if f.policy.EnforceStock && in.Quantity > m.AvailableQuantity {
			return fmt.Errorf("orders: %w: %d %s requested, %d available", marketerrors.ErrInsufficientStock, in.Quantity, m.Unit, m.AvailableQuantity)
		}

		now := f.now().UTC()
		out = models.MaterialOrder{
			ID:              uuid.NewString(),
			MaterialID:      m.ID,
			ProjectID:       project.ID,
			Quantity:        in.Quantity,
			TotalPrice:      models.RoundCents(float64(in.Quantity) * m.PricePerUnit),
			DeliveryAddress: address,
			DeliveryDate:    in.DeliveryDate,
			Status:          models.OrderPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return tx.InsertOrder(ctx, &out)
	})
	if err != nil {
		return models.MaterialOrder{}, err
	}
	return out, nil
}

// Confirm accepts a pending order. Under the default policy it also takes the
// quantity out of the material's stock, so a confirmed order always has its
// goods set aside and shipping or delivering it can no longer fail on stock.
func (f *Fulfillment) Confirm(ctx context.Context, actor, orderID string) (models.MaterialOrder, error) {
	return f.advance(ctx, actor, orderID, models.OrderConfirmed)
}

func (f *Fulfillment) Ship(ctx context.Context, actor, orderID string) (models.MaterialOrder, error) {
	return f.advance(ctx, actor, orderID, models.OrderShipped)
}

func (f *Fulfillment) Deliver(ctx context.Context, actor, orderID string) (models.MaterialOrder, error) {
	return f.advance(ctx, actor, orderID, models.OrderDelivered)
}

// CancelOrder is open to the supplier and to the ordering project's owner.
// Stock reserved at confirmation goes back to the material.
func (f *Fulfillment) CancelOrder(ctx context.Context, actor, orderID string) (models.MaterialOrder, error) {
	var out models.MaterialOrder
	err := f.store.InTx(ctx, func(tx db.Tx) error {
		o, m, err := f.lock(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if m.SupplierID != actor {
			project, err := tx.GetProject(ctx, o.ProjectID)
			if err != nil {
				return fmt.Errorf("orders: load project %s: %w", o.ProjectID, err)
			}
			if project.OwnerID != actor {
				return fmt.Errorf("orders: %w: %s cannot cancel %s", marketerrors.ErrUnauthorized, actor, o.ID)
			}
		}
		if !CanTransition(o.Status, models.OrderCancelled) {
			return fmt.Errorf("orders: %s cannot move from %s to %s: %w", o.ID, o.Status, models.OrderCancelled, marketerrors.ErrInvalidState)
		}
		if o.StockReserved {
			if err := f.moveStock(ctx, tx, &m, o.Quantity); err != nil {
				return err
			}
			if err := tx.SetStockReserved(ctx, o.ID, false); err != nil {
				return fmt.Errorf("orders: release reservation of %s: %w", o.ID, err)
			}
			o.StockReserved = false
		}
		out, err = f.transition(ctx, tx, o, models.OrderCancelled)
		return err
	})
	if err != nil {
		return models.MaterialOrder{}, err
	}
	return out, nil
}

func (f *Fulfillment) advance(ctx context.Context, actor, orderID string, to models.OrderStatus) (models.MaterialOrder, error) {
	var out models.MaterialOrder
	err := f.store.InTx(ctx, func(tx db.Tx) error {
		o, m, err := f.lock(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if m.SupplierID != actor {
			return fmt.Errorf("orders: %w: %s does not supply order %s", marketerrors.ErrUnauthorized, actor, o.ID)
		}
		if !CanTransition(o.Status, to) {
			return fmt.Errorf("orders: %s cannot move from %s to %s: %w", o.ID, o.Status, to, marketerrors.ErrInvalidState)
		}

		if to == models.OrderConfirmed && f.policy.ReserveStockOnConfirm {
			if m.AvailableQuantity < o.Quantity {
				return fmt.Errorf("orders: %w: confirming %d, %d in stock", marketerrors.ErrInsufficientStock, o.Quantity, m.AvailableQuantity)
			}
			if err := f.moveStock(ctx, tx, &m, -o.Quantity); err != nil {
				return err
			}
			if err := tx.SetStockReserved(ctx, o.ID, true); err != nil {
				return fmt.Errorf("orders: reserve stock for %s: %w", o.ID, err)
			}
			o.StockReserved = true
		}

		out, err = f.transition(ctx, tx, o, to)
		return err
	})
	if err != nil {
		return models.MaterialOrder{}, err
	}
	return out, nil
}

// moveStock adds delta to the locked material's available quantity.
func (f *Fulfillment) moveStock(ctx context.Context, tx db.Tx, m *models.Material, delta int) error {
	m.AvailableQuantity += delta
	m.UpdatedAt = f.now().UTC()
	if err := tx.UpdateMaterial(ctx, m); err != nil {
		return fmt.Errorf("orders: update stock of %s: %w", m.ID, err)
	}
	return nil
}

// lock takes the order row and then its material row.
func (f *Fulfillment) lock(ctx context.Context, tx db.Tx, orderID string) (models.MaterialOrder, models.Material, error) {
	o, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		return models.MaterialOrder{}, models.Material{}, fmt.Errorf("orders: load %s: %w", orderID, err)
	}
	m, err := tx.LockMaterial(ctx, o.MaterialID)
	if err != nil {
		return models.MaterialOrder{}, models.Material{}, fmt.Errorf("orders: load material %s: %w", o.MaterialID, err)
	}
	return o, m, nil
}

func (f *Fulfillment) transition(ctx context.Context, tx db.Tx, o models.MaterialOrder, to models.OrderStatus) (models.MaterialOrder, error) {
	if !CanTransition(o.Status, to) {
		return models.MaterialOrder{}, fmt.Errorf("orders: %s cannot move from %s to %s: %w", o.ID, o.Status, to, marketerrors.ErrInvalidState)
	}
	at := f.now().UTC()
	if err := tx.SetOrderStatus(ctx, o.ID, to, at); err != nil {
		return models.MaterialOrder{}, fmt.Errorf("orders: set status of %s: %w", o.ID, err)
	}
	o.Status = to
	o.UpdatedAt = at
	return o, nil
}

func (f *Fulfillment) ListMaterials(ctx context.Context, filter db.MaterialFilter) ([]models.Material, error) {
	var out []models.Material
	err := f.store.InTx(ctx, func(tx db.Tx) error {
		var err error
		out, err = tx.ListMaterials(ctx, filter)
		return err
	})
	return out, err
}

// ProjectOrders lists a project's orders for its owner, newest first.
func (f *Fulfillment) ProjectOrders(ctx context.Context, actor, projectID string) ([]models.MaterialOrder, error) {
	var out []models.MaterialOrder
	err := f.store.InTx(ctx, func(tx db.Tx) error {
		project, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return fmt.Errorf("orders: load project %s: %w", projectID, err)
		}
		if project.OwnerID != actor {
			return fmt.Errorf("orders: %w: %s does not own project %s", marketerrors.ErrUnauthorized, actor, project.ID)
		}
		out, err = tx.ListOrders(ctx, db.OrderFilter{ProjectIDs: []string{project.ID}})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type SupplierProfileInput struct {
	BusinessName       string   `json:"businessName"`
	BusinessLicense    string   `json:"businessLicense"`
	DeliveryRadiusKm   *int     `json:"deliveryRadiusKm"`
	MaterialCategories []string `json:"materialCategories"`
}

// SaveSupplierProfile replaces the business details buyers see next to a
// supplier's catalogue.
func (f *Fulfillment) SaveSupplierProfile(ctx context.Context, actor string, in SupplierProfileInput) (models.SupplierProfile, error) {
	sp := models.SupplierProfile{
		UserID:             actor,
		BusinessName:       strings.TrimSpace(in.BusinessName),
		BusinessLicense:    strings.TrimSpace(in.BusinessLicense),
		DeliveryRadiusKm:   in.DeliveryRadiusKm,
		MaterialCategories: categories(in.MaterialCategories),
		UpdatedAt:          f.now().UTC(),
	}
	if err := sp.Validate(); err != nil {
		return models.SupplierProfile{}, fmt.Errorf("orders: %w: %v", marketerrors.ErrInvalidInput, err)
	}

	err := f.store.InTx(ctx, func(tx db.Tx) error {
		user, err := tx.GetUser(ctx, actor)
		if err != nil {
			return fmt.Errorf("orders: load supplier %s: %w", actor, err)
		}
		if user.Role != models.RoleSupplier {
			return fmt.Errorf("orders: %w: only suppliers keep a business profile", marketerrors.ErrUnauthorized)
		}
		return tx.UpsertSupplierProfile(ctx, &sp)
	})
	if err != nil {
		return models.SupplierProfile{}, err
	}
	return sp, nil
}

// categories trims, lowercases and dedupes, keeping first-seen order. The
// result is never nil: the column is NOT NULL.
func categories(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || slices.Contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}
