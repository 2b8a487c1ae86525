// Package bids keeps the bid ledger: submission, rejection and the
// accept-one-reject-the-rest settlement of a project.
package bids

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"buildhub/db"
	"buildhub/internal/config"
	"buildhub/internal/marketerrors"
	"buildhub/models"

	"github.com/google/uuid"
)

const defaultMessage = "I am interested in this project and available to start immediately."

// Advancer moves a project forward when one of its bids wins. It must run in
// the caller's transaction.
type Advancer interface {
	AdvanceOnAcceptance(ctx context.Context, tx db.Tx, projectID string) (models.Project, error)
}

type Ledger struct {
	store    db.Store
	projects Advancer
	policy   config.BidPolicy
	now      func() time.Time
}

func NewLedger(store db.Store, projects Advancer, policy config.BidPolicy) *Ledger {
	return &Ledger{store: store, projects: projects, policy: policy, now: time.Now}
}

type SubmitInput struct {
	ProjectID    string  `json:"projectId"`
	WorkerID     string  `json:"workerId"`
	ProposedRate float64 `json:"proposedRate"`
	Message      string  `json:"message"`
}

// AcceptResult is the authoritative state after a settlement.
type AcceptResult struct {
	Accepted models.Bid     `json:"accepted"`
	Rejected []models.Bid   `json:"rejected"`
	Project  models.Project `json:"project"`
}

// SubmitBid records a pending bid from actor on an open project. A zero rate
// or empty message is filled from the worker's profile.
func (l *Ledger) SubmitBid(ctx context.Context, actor string, in SubmitInput) (models.Bid, error) {
	if in.WorkerID == "" {
		in.WorkerID = actor
	}
	if in.WorkerID != actor {
		return models.Bid{}, fmt.Errorf("bids: %w: cannot bid as %s", marketerrors.ErrUnauthorized, in.WorkerID)
	}
	if in.ProposedRate < 0 {
		return models.Bid{}, fmt.Errorf("bids: %w: proposedRate must be positive", marketerrors.ErrInvalidInput)
	}
	if !models.HasCents(in.ProposedRate) {
		return models.Bid{}, fmt.Errorf("bids: %w: proposedRate must have at most two decimal places", marketerrors.ErrInvalidInput)
	}

	var out models.Bid
	err := l.store.InTx(ctx, func(tx db.Tx) error {
		worker, err := tx.GetUser(ctx, actor)
		if err != nil {
			return fmt.Errorf("bids: load worker %s: %w", actor, err)
		}
		if worker.Role != models.RoleWorker {
			return fmt.Errorf("bids: %w: only workers bid", marketerrors.ErrUnauthorized)
		}

		project, err := tx.LockProject(ctx, in.ProjectID)
		if err != nil {
			return fmt.Errorf("bids: load project %s: %w", in.ProjectID, err)
		}
		if project.Status != models.ProjectOpen {
			return fmt.Errorf("bids: project %s is %s: %w", project.ID, project.Status, marketerrors.ErrInvalidState)
		}

		if !l.policy.AllowRebid {
			existing, err := tx.ListBids(ctx, db.BidFilter{
				ProjectIDs: []string{project.ID},
				WorkerID:   actor,
				Statuses:   []models.BidStatus{models.BidPending, models.BidAccepted},
			})
			if err != nil {
				return fmt.Errorf("bids: list existing bids: %w", err)
			}
			if len(existing) > 0 {
				return fmt.Errorf("bids: %w: worker %s already bid on %s", marketerrors.ErrDuplicateBid, actor, project.ID)
			}
		}

		rate, message, err := l.defaults(ctx, tx, actor, in.ProposedRate, in.Message)
		if err != nil {
			return err
		}

		now := l.now().UTC()
		out = models.Bid{
			ID:           uuid.NewString(),
			ProjectID:    project.ID,
			WorkerID:     actor,
			ProposedRate: rate,
			Message:      message,
			Status:       models.BidPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return tx.InsertBid(ctx, &out)
	})
	if err != nil {
		return models.Bid{}, err
	}
	return out, nil
}

func (l *Ledger) defaults(ctx context.Context, tx db.Tx, workerID string, rate float64, message string) (float64, string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		message = defaultMessage
	}
	if rate > 0 {
		return rate, message, nil
	}

	profile, err := tx.GetWorkerProfile(ctx, workerID)
	if err != nil && !errors.Is(err, marketerrors.ErrNotFound) {
		return 0, "", fmt.Errorf("bids: load profile of %s: %w", workerID, err)
	}
	switch {
	case profile.HourlyRate != nil && *profile.HourlyRate > 0:
		return *profile.HourlyRate, message, nil
	case profile.DailyRate != nil && *profile.DailyRate > 0:
		return *profile.DailyRate, message, nil
	}
	return 0, "", fmt.Errorf("bids: %w: proposedRate is required when the profile has no rate", marketerrors.ErrInvalidInput)
}

// AcceptBid settles a project on bidID. The project row is locked first so
// concurrent accepts and cancels on the same project queue behind each other.
func (l *Ledger) AcceptBid(ctx context.Context, actor, bidID string) (AcceptResult, error) {
	var out AcceptResult
	err := l.store.InTx(ctx, func(tx db.Tx) error {
		bid, err := tx.GetBid(ctx, bidID)
		if err != nil {
			return fmt.Errorf("bids: load %s: %w", bidID, err)
		}
		project, err := tx.LockProject(ctx, bid.ProjectID)
		if err != nil {
			return fmt.Errorf("bids: lock project %s: %w", bid.ProjectID, err)
		}
		// Re-read under the project lock; a racing accept may have won.
		if bid, err = tx.LockBid(ctx, bidID); err != nil {
			return fmt.Errorf("bids: lock %s: %w", bidID, err)
		}

		if project.OwnerID != actor {
			return fmt.Errorf("bids: %w: %s does not own project %s", marketerrors.ErrUnauthorized, actor, project.ID)
		}
		if bid.Status != models.BidPending {
			return fmt.Errorf("bids: %s is %s: %w", bid.ID, bid.Status, marketerrors.ErrAlreadyResolved)
		}
		if project.Status != models.ProjectOpen {
			return fmt.Errorf("bids: project %s is %s: %w", project.ID, project.Status, marketerrors.ErrInvalidState)
		}

		now := l.now().UTC()
		if err := tx.SetBidStatus(ctx, bid.ID, models.BidAccepted, now); err != nil {
			return fmt.Errorf("bids: accept %s: %w", bid.ID, err)
		}
		bid.Status = models.BidAccepted
		bid.UpdatedAt = now

		rejected, err := tx.RejectPendingBids(ctx, project.ID, bid.ID, now)
		if err != nil {
			return fmt.Errorf("bids: reject siblings of %s: %w", bid.ID, err)
		}
		advanced, err := l.projects.AdvanceOnAcceptance(ctx, tx, project.ID)
		if err != nil {
			return err
		}

		out = AcceptResult{Accepted: bid, Rejected: rejected, Project: advanced}
		return nil
	})
	if err != nil {
		return AcceptResult{}, err
	}
	return out, nil
}

// RejectBid declines one pending bid and leaves the project alone.
func (l *Ledger) RejectBid(ctx context.Context, actor, bidID string) (models.Bid, error) {
	var out models.Bid
	err := l.store.InTx(ctx, func(tx db.Tx) error {
		bid, err := tx.GetBid(ctx, bidID)
		if err != nil {
			return fmt.Errorf("bids: load %s: %w", bidID, err)
		}
		project, err := tx.LockProject(ctx, bid.ProjectID)
		if err != nil {
			return fmt.Errorf("bids: lock project %s: %w", bid.ProjectID, err)
		}
		if bid, err = tx.LockBid(ctx, bidID); err != nil {
			return fmt.Errorf("bids: lock %s: %w", bidID, err)
		}
		if project.OwnerID != actor {
			return fmt.Errorf("bids: %w: %s does not own project %s", marketerrors.ErrUnauthorized, actor, project.ID)
		}
		if bid.Status != models.BidPending {
			return fmt.Errorf("bids: %s is %s: %w", bid.ID, bid.Status, marketerrors.ErrAlreadyResolved)
		}

		now := l.now().UTC()
		if err := tx.SetBidStatus(ctx, bid.ID, models.BidRejected, now); err != nil {
			return fmt.Errorf("bids: reject %s: %w", bid.ID, err)
		}
		bid.Status = models.BidRejected
		bid.UpdatedAt = now
		out = bid
		return nil
	})
	if err != nil {
		return models.Bid{}, err
	}
	return out, nil
}

// ProjectBids lists the bids on a project, newest first. The owner sees every
// bid; a worker sees only their own.
func (l *Ledger) ProjectBids(ctx context.Context, actor, projectID string) ([]models.Bid, error) {
	var out []models.Bid
	err := l.store.InTx(ctx, func(tx db.Tx) error {
		project, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return fmt.Errorf("bids: load project %s: %w", projectID, err)
		}
		filter := db.BidFilter{ProjectIDs: []string{project.ID}}
		if project.OwnerID != actor {
			user, err := tx.GetUser(ctx, actor)
			if err != nil {
				return fmt.Errorf("bids: load user %s: %w", actor, err)
			}
			if user.Role != models.RoleWorker {
				return fmt.Errorf("bids: %w: %s cannot view bids on %s", marketerrors.ErrUnauthorized, actor, project.ID)
			}
			filter.WorkerID = actor
		}
		out, err = tx.ListBids(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type ProfileInput struct {
	Skills          models.SkillSet `json:"skills"`
	ExperienceYears int             `json:"experienceYears"`
	HourlyRate      *float64        `json:"hourlyRate"`
	DailyRate       *float64        `json:"dailyRate"`
	Availability    bool            `json:"availability"`
	Bio             string          `json:"bio"`
}

// SaveProfile replaces the worker's profile, the source of bid defaults.
func (l *Ledger) SaveProfile(ctx context.Context, actor string, in ProfileInput) (models.WorkerProfile, error) {
	w := models.WorkerProfile{
		UserID:          actor,
		Skills:          in.Skills.Normalize(),
		ExperienceYears: in.ExperienceYears,
		HourlyRate:      in.HourlyRate,
		DailyRate:       in.DailyRate,
		Availability:    in.Availability,
		Bio:             strings.TrimSpace(in.Bio),
		UpdatedAt:       l.now().UTC(),
	}
	if err := w.Validate(); err != nil {
		return models.WorkerProfile{}, fmt.Errorf("bids: %w: %v", marketerrors.ErrInvalidInput, err)
	}

	err := l.store.InTx(ctx, func(tx db.Tx) error {
		user, err := tx.GetUser(ctx, actor)
		if err != nil {
			return fmt.Errorf("bids: load user %s: %w", actor, err)
		}
		if user.Role != models.RoleWorker {
			return fmt.Errorf("bids: %w: only workers keep a profile", marketerrors.ErrUnauthorized)
		}
		return tx.UpsertWorkerProfile(ctx, &w)
	})
	if err != nil {
		return models.WorkerProfile{}, err
	}
	return w, nil
}
