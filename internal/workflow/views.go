package workflow

import (
	"context"
	"errors"
	"fmt"

	"buildhub/db"
	"buildhub/internal/marketerrors"
	"buildhub/models"
)

// openProjectsLimit caps the job board a worker sees.
const openProjectsLimit = 50

// Dashboard is the read-only projection of the marketplace for one user.
// Which lists are filled depends on the user's role.
type Dashboard struct {
	User            models.User             `json:"user"`
	Projects        []models.Project        `json:"projects"`
	Bids            []BidView               `json:"bids"`
	Materials       []models.Material       `json:"materials"`
	Orders          []OrderView             `json:"orders"`
	Profile         *models.WorkerProfile   `json:"profile,omitempty"`
	OwnerProfile    *models.OwnerProfile    `json:"ownerProfile,omitempty"`
	SupplierProfile *models.SupplierProfile `json:"supplierProfile,omitempty"`
}

// WorkerSummary is what an owner sees about a bidder. Profile fields stay
// zero when the worker never saved a profile.
type WorkerSummary struct {
	FullName        string          `json:"fullName"`
	Skills          models.SkillSet `json:"skills"`
	ExperienceYears int             `json:"experienceYears"`
	HourlyRate      *float64        `json:"hourlyRate,omitempty"`
}

type BidView struct {
	models.Bid
	Worker WorkerSummary `json:"worker"`
}

type ProjectSummary struct {
	Title   string `json:"title"`
	OwnerID string `json:"ownerId"`
}

type MaterialSummary struct {
	Name         string  `json:"name"`
	Unit         string  `json:"unit"`
	PricePerUnit float64 `json:"pricePerUnit"`
}

type OrderView struct {
	models.MaterialOrder
	Project  ProjectSummary  `json:"project"`
	Material MaterialSummary `json:"material"`
}

// Dashboard reads everything in one transaction so the lists agree with each
// other.
func (f *Facade) Dashboard(ctx context.Context, session string) (Dashboard, error) {
	return run(ctx, f, "Dashboard", session, func(ctx context.Context, actor string) (Dashboard, error) {
		var out Dashboard
		err := f.store.InTx(ctx, func(tx db.Tx) error {
			user, err := tx.GetUser(ctx, actor)
			if err != nil {
				return fmt.Errorf("workflow: load user %s: %w", actor, err)
			}
			out = Dashboard{
				User:      user,
				Projects:  []models.Project{},
				Bids:      []BidView{},
				Materials: []models.Material{},
				Orders:    []OrderView{},
			}

			switch user.Role {
			case models.RoleWorker:
				return workerView(ctx, tx, &out)
			case models.RoleOwner:
				return ownerView(ctx, tx, &out)
			case models.RoleSupplier:
				return supplierView(ctx, tx, &out)
			default:
				return fmt.Errorf("workflow: %w: unknown role %q", marketerrors.ErrInvalidState, user.Role)
			}
		})
		return out, err
	})
}

func workerView(ctx context.Context, tx db.Tx, out *Dashboard) error {
	var err error
	out.Projects, err = tx.ListProjects(ctx, db.ProjectFilter{
		Statuses: []models.ProjectStatus{models.ProjectOpen},
		Limit:    openProjectsLimit,
	})
	if err != nil {
		return fmt.Errorf("workflow: list open projects: %w", err)
	}
	bids, err := tx.ListBids(ctx, db.BidFilter{WorkerID: out.User.ID})
	if err != nil {
		return fmt.Errorf("workflow: list bids: %w", err)
	}
	if out.Bids, err = bidViews(ctx, tx, bids); err != nil {
		return err
	}

	profile, err := tx.GetWorkerProfile(ctx, out.User.ID)
	switch {
	case err == nil:
		out.Profile = &profile
	case !errors.Is(err, marketerrors.ErrNotFound):
		return fmt.Errorf("workflow: load profile: %w", err)
	}
	return nil
}

func ownerView(ctx context.Context, tx db.Tx, out *Dashboard) error {
	profile, err := tx.GetOwnerProfile(ctx, out.User.ID)
	switch {
	case err == nil:
		out.OwnerProfile = &profile
	case !errors.Is(err, marketerrors.ErrNotFound):
		return fmt.Errorf("workflow: load owner profile: %w", err)
	}

	out.Projects, err = tx.ListProjects(ctx, db.ProjectFilter{OwnerID: out.User.ID})
	if err != nil {
		return fmt.Errorf("workflow: list projects: %w", err)
	}
	// An empty id list would not constrain the queries below.
	if len(out.Projects) == 0 {
		return nil
	}
	ids := make([]string, len(out.Projects))
	for i, p := range out.Projects {
		ids[i] = p.ID
	}

	bids, err := tx.ListBids(ctx, db.BidFilter{ProjectIDs: ids})
	if err != nil {
		return fmt.Errorf("workflow: list bids: %w", err)
	}
	if out.Bids, err = bidViews(ctx, tx, bids); err != nil {
		return err
	}
	orders, err := tx.ListOrders(ctx, db.OrderFilter{ProjectIDs: ids})
	if err != nil {
		return fmt.Errorf("workflow: list orders: %w", err)
	}
	out.Orders, err = orderViews(ctx, tx, orders)
	return err
}

func supplierView(ctx context.Context, tx db.Tx, out *Dashboard) error {
	profile, err := tx.GetSupplierProfile(ctx, out.User.ID)
	switch {
	case err == nil:
		out.SupplierProfile = &profile
	case !errors.Is(err, marketerrors.ErrNotFound):
		return fmt.Errorf("workflow: load supplier profile: %w", err)
	}

	out.Materials, err = tx.ListMaterials(ctx, db.MaterialFilter{SupplierID: out.User.ID})
	if err != nil {
		return fmt.Errorf("workflow: list materials: %w", err)
	}
	if len(out.Materials) == 0 {
		return nil
	}
	ids := make([]string, len(out.Materials))
	for i, m := range out.Materials {
		ids[i] = m.ID
	}

	orders, err := tx.ListOrders(ctx, db.OrderFilter{MaterialIDs: ids})
	if err != nil {
		return fmt.Errorf("workflow: list orders: %w", err)
	}
	out.Orders, err = orderViews(ctx, tx, orders)
	return err
}

// bidViews joins each bid with its worker in two batch reads.
func bidViews(ctx context.Context, tx db.Tx, bids []models.Bid) ([]BidView, error) {
	out := make([]BidView, 0, len(bids))
	if len(bids) == 0 {
		return out, nil
	}
	ids := uniq(bids, func(b models.Bid) string { return b.WorkerID })

	users, err := tx.ListUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("workflow: list bidders: %w", err)
	}
	profiles, err := tx.ListWorkerProfiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("workflow: list bidder profiles: %w", err)
	}
	summaries := make(map[string]WorkerSummary, len(ids))
	for _, u := range users {
		summaries[u.ID] = WorkerSummary{FullName: u.FullName, Skills: models.SkillSet{}}
	}
	for _, p := range profiles {
		s := summaries[p.UserID]
		s.Skills = p.Skills
		s.ExperienceYears = p.ExperienceYears
		s.HourlyRate = p.HourlyRate
		summaries[p.UserID] = s
	}

	for _, b := range bids {
		out = append(out, BidView{Bid: b, Worker: summaries[b.WorkerID]})
	}
	return out, nil
}

// orderViews joins each order with its project and material in two batch
// reads.
func orderViews(ctx context.Context, tx db.Tx, orders []models.MaterialOrder) ([]OrderView, error) {
	out := make([]OrderView, 0, len(orders))
	if len(orders) == 0 {
		return out, nil
	}

	projects, err := tx.ListProjects(ctx, db.ProjectFilter{
		IDs: uniq(orders, func(o models.MaterialOrder) string { return o.ProjectID }),
	})
	if err != nil {
		return nil, fmt.Errorf("workflow: list ordering projects: %w", err)
	}
	materials, err := tx.ListMaterials(ctx, db.MaterialFilter{
		IDs: uniq(orders, func(o models.MaterialOrder) string { return o.MaterialID }),
	})
	if err != nil {
		return nil, fmt.Errorf("workflow: list ordered materials: %w", err)
	}
	byProject := make(map[string]ProjectSummary, len(projects))
	for _, p := range projects {
		byProject[p.ID] = ProjectSummary{Title: p.Title, OwnerID: p.OwnerID}
	}
	byMaterial := make(map[string]MaterialSummary, len(materials))
	for _, m := range materials {
		byMaterial[m.ID] = MaterialSummary{Name: m.Name, Unit: m.Unit, PricePerUnit: m.PricePerUnit}
	}

	for _, o := range orders {
		out = append(out, OrderView{
			MaterialOrder: o,
			Project:       byProject[o.ProjectID],
			Material:      byMaterial[o.MaterialID],
		})
	}
	return out, nil
}

func uniq[T any](items []T, key func(T) string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		k := key(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
