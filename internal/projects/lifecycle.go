// Package projects owns the project status state machine. No other package
// writes a project's status.
package projects

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"buildhub/db"
	"buildhub/internal/marketerrors"
	"buildhub/models"

	"github.com/google/uuid"
)

// transitions lists every legal edge; completed and cancelled are terminal.
var transitions = map[models.ProjectStatus][]models.ProjectStatus{
	models.ProjectDraft:      {models.ProjectOpen, models.ProjectCancelled},
	models.ProjectOpen:       {models.ProjectInProgress, models.ProjectCancelled},
	models.ProjectInProgress: {models.ProjectCompleted, models.ProjectCancelled},
}

func CanTransition(from, to models.ProjectStatus) bool {
	return slices.Contains(transitions[from], to)
}

type Lifecycle struct {
	store db.Store
	now   func() time.Time
}

func NewLifecycle(store db.Store) *Lifecycle {
	return &Lifecycle{store: store, now: time.Now}
}

type CreateInput struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Location       string          `json:"location"`
	BudgetMin      *float64        `json:"budgetMin"`
	BudgetMax      *float64        `json:"budgetMax"`
	RequiredSkills models.SkillSet `json:"requiredSkills"`
	StartDate      *time.Time      `json:"startDate"`
	EndDate        *time.Time      `json:"endDate"`
}

// CancelResult carries everything Cancel touched.
type CancelResult struct {
	Project      models.Project `json:"project"`
	RejectedBids []models.Bid   `json:"rejectedBids"`
}

// Create stores a new draft project owned by actor.
func (l *Lifecycle) Create(ctx context.Context, actor string, in CreateInput) (models.Project, error) {
	now := l.now().UTC()
	p := models.Project{
		ID:             uuid.NewString(),
		OwnerID:        actor,
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		Location:       strings.TrimSpace(in.Location),
		BudgetMin:      in.BudgetMin,
		BudgetMax:      in.BudgetMax,
		RequiredSkills: in.RequiredSkills.Normalize(),
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		Status:         models.ProjectDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.Validate(); err != nil {
		return models.Project{}, fmt.Errorf("projects: %w: %v", marketerrors.ErrInvalidInput, err)
	}

	err := l.store.InTx(ctx, func(tx db.Tx) error {
		owner, err := tx.GetUser(ctx, actor)
		if err != nil {
			return fmt.Errorf("projects: load owner %s: %w", actor, err)
		}
		if owner.Role != models.RoleOwner {
			return fmt.Errorf("projects: %w: only owners create projects", marketerrors.ErrUnauthorized)
		}
		return tx.InsertProject(ctx, &p)
	})
	if err != nil {
		return models.Project{}, err
	}
	return p, nil
}

func (l *Lifecycle) Publish(ctx context.Context, actor, projectID string) (models.Project, error) {
	var out models.Project
	err := l.store.InTx(ctx, func(tx db.Tx) error {
		p, err := l.lockOwned(ctx, tx, actor, projectID)
		if err != nil {
			return err
		}
		out, err = l.transition(ctx, tx, p, models.ProjectOpen)
		return err
	})
	return out, err
}

// AdvanceOnAcceptance moves an open project to in_progress. It runs inside
// the caller's transaction; the bid ledger is its only caller.
func (l *Lifecycle) AdvanceOnAcceptance(ctx context.Context, tx db.Tx, projectID string) (models.Project, error) {
	p, err := tx.LockProject(ctx, projectID)
	if err != nil {
		return models.Project{}, fmt.Errorf("projects: load %s: %w", projectID, err)
	}
	if p.Status != models.ProjectOpen {
		return models.Project{}, fmt.Errorf("projects: advance %s from %s: %w", projectID, p.Status, marketerrors.ErrInvalidState)
	}
	return l.transition(ctx, tx, p, models.ProjectInProgress)
}

func (l *Lifecycle) Complete(ctx context.Context, actor, projectID string) (models.Project, error) {
	var out models.Project
	err := l.store.InTx(ctx, func(tx db.Tx) error {
		p, err := l.lockOwned(ctx, tx, actor, projectID)
		if err != nil {
			return err
		}
		out, err = l.transition(ctx, tx, p, models.ProjectCompleted)
		return err
	})
	return out, err
}

// Cancel ends a non-terminal project and rejects its pending bids in the
// same transaction.
func (l *Lifecycle) Cancel(ctx context.Context, actor, projectID string) (CancelResult, error) {
	var out CancelResult
	err := l.store.InTx(ctx, func(tx db.Tx) error {
		p, err := l.lockOwned(ctx, tx, actor, projectID)
		if err != nil {
			return err
		}
		if out.Project, err = l.transition(ctx, tx, p, models.ProjectCancelled); err != nil {
			return err
		}
		out.RejectedBids, err = tx.RejectPendingBids(ctx, projectID, "", out.Project.UpdatedAt)
		if err != nil {
			return fmt.Errorf("projects: reject pending bids of %s: %w", projectID, err)
		}
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}
	return out, nil
}

type OwnerProfileInput struct {
	CompanyName string `json:"companyName"`
	CompanyType string `json:"companyType"`
}

// SaveOwnerProfile replaces the company details shown next to an owner's
// projects.
func (l *Lifecycle) SaveOwnerProfile(ctx context.Context, actor string, in OwnerProfileInput) (models.OwnerProfile, error) {
	op := models.OwnerProfile{
		UserID:      actor,
		CompanyName: strings.TrimSpace(in.CompanyName),
		CompanyType: strings.TrimSpace(in.CompanyType),
		UpdatedAt:   l.now().UTC(),
	}
	if err := op.Validate(); err != nil {
		return models.OwnerProfile{}, fmt.Errorf("projects: %w: %v", marketerrors.ErrInvalidInput, err)
	}

	err := l.store.InTx(ctx, func(tx db.Tx) error {
		owner, err := tx.GetUser(ctx, actor)
		if err != nil {
			return fmt.Errorf("projects: load owner %s: %w", actor, err)
		}
		if owner.Role != models.RoleOwner {
			return fmt.Errorf("projects: %w: only owners keep a company profile", marketerrors.ErrUnauthorized)
		}
		return tx.UpsertOwnerProfile(ctx, &op)
	})
	if err != nil {
		return models.OwnerProfile{}, err
	}
	return op, nil
}

func (l *Lifecycle) lockOwned(ctx context.Context, tx db.Tx, actor, projectID string) (models.Project, error) {
	p, err := tx.LockProject(ctx, projectID)
	if err != nil {
		return models.Project{}, fmt.Errorf("projects: load %s: %w", projectID, err)
	}
	if p.OwnerID != actor {
		return models.Project{}, fmt.Errorf("projects: %s is not owned by %s: %w", projectID, actor, marketerrors.ErrUnauthorized)
	}
	return p, nil
}

func (l *Lifecycle) transition(ctx context.Context, tx db.Tx, p models.Project, to models.ProjectStatus) (models.Project, error) {
	if !CanTransition(p.Status, to) {
		return models.Project{}, fmt.Errorf("projects: %s cannot move from %s to %s: %w", p.ID, p.Status, to, marketerrors.ErrInvalidState)
	}
	at := l.now().UTC()
	if err := tx.SetProjectStatus(ctx, p.ID, to, at); err != nil {
		return models.Project{}, fmt.Errorf("projects: set status of %s: %w", p.ID, err)
	}
	p.Status = to
	p.UpdatedAt = at
	return p, nil
}
