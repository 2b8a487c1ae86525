package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"buildhub/db"
	"buildhub/db/memory"
	"buildhub/internal/marketerrors"
	"buildhub/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func seedOwner(t *testing.T, s *memory.Store) models.User {
	t.Helper()
	u := models.User{ID: "owner-1", Email: "owner@example.com", FullName: "Owner", Role: models.RoleOwner, CreatedAt: t0}
	require.NoError(t, s.InTx(context.Background(), func(tx db.Tx) error {
		return tx.InsertUser(context.Background(), &u)
	}))
	return u
}

func TestRollbackLeavesNoTrace(t *testing.T) {
	s := memory.New()
	owner := seedOwner(t, s)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx db.Tx) error {
		p := models.Project{ID: "p1", OwnerID: owner.ID, Title: "t", Status: models.ProjectDraft, CreatedAt: t0}
		require.NoError(t, tx.InsertProject(ctx, &p))
		_, err := tx.GetProject(ctx, "p1")
		require.NoError(t, err, "a transaction sees its own writes")
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.InTx(ctx, func(tx db.Tx) error {
		_, err := tx.GetProject(ctx, "p1")
		return err
	})
	assert.ErrorIs(t, err, marketerrors.ErrNotFound)
}

func TestCommitPublishesWrites(t *testing.T) {
	s := memory.New()
	owner := seedOwner(t, s)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx db.Tx) error {
		p := models.Project{ID: "p1", OwnerID: owner.ID, Title: "t", Status: models.ProjectDraft, CreatedAt: t0}
		if err := tx.InsertProject(ctx, &p); err != nil {
			return err
		}
		return tx.SetProjectStatus(ctx, "p1", models.ProjectOpen, t0.Add(time.Minute))
	}))

	var got models.Project
	require.NoError(t, s.InTx(ctx, func(tx db.Tx) (err error) {
		got, err = tx.GetProject(ctx, "p1")
		return err
	}))
	assert.Equal(t, models.ProjectOpen, got.Status)
	assert.Equal(t, t0.Add(time.Minute), got.UpdatedAt)
}

func TestFaultAbortsTransaction(t *testing.T) {
	s := memory.New()
	owner := seedOwner(t, s)
	ctx := context.Background()

	s.SetFault(func(op string) error {
		if op == "SetProjectStatus" {
			return errors.New("disk on fire")
		}
		return nil
	})
	err := s.InTx(ctx, func(tx db.Tx) error {
		p := models.Project{ID: "p1", OwnerID: owner.ID, Status: models.ProjectDraft, CreatedAt: t0}
		if err := tx.InsertProject(ctx, &p); err != nil {
			return err
		}
		return tx.SetProjectStatus(ctx, "p1", models.ProjectOpen, t0)
	})
	require.ErrorIs(t, err, marketerrors.ErrStoreFailure)

	s.SetFault(nil)
	err = s.InTx(ctx, func(tx db.Tx) error {
		_, err := tx.GetProject(ctx, "p1")
		return err
	})
	assert.ErrorIs(t, err, marketerrors.ErrNotFound)
}

func TestForeignKeys(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	err := s.InTx(ctx, func(tx db.Tx) error {
		return tx.InsertProject(ctx, &models.Project{ID: "p1", OwnerID: "ghost"})
	})
	assert.ErrorIs(t, err, marketerrors.ErrInvalidInput)
}

func TestDuplicateEmailIsCaseInsensitive(t *testing.T) {
	s := memory.New()
	seedOwner(t, s)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx db.Tx) error {
		return tx.InsertUser(ctx, &models.User{ID: "u2", Email: "OWNER@example.com", Role: models.RoleWorker})
	})
	require.ErrorIs(t, err, marketerrors.ErrInvalidInput)

	require.NoError(t, s.InTx(ctx, func(tx db.Tx) error {
		u, err := tx.GetUserByEmail(ctx, "Owner@Example.com")
		if err != nil {
			return err
		}
		assert.Equal(t, "owner-1", u.ID)
		return nil
	}))
}

func TestSingleAcceptedBidPerProject(t *testing.T) {
	s := memory.New()
	owner := seedOwner(t, s)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx db.Tx) error {
		if err := tx.InsertUser(ctx, &models.User{ID: "w1", Email: "w1@example.com", Role: models.RoleWorker}); err != nil {
			return err
		}
		if err := tx.InsertProject(ctx, &models.Project{ID: "p1", OwnerID: owner.ID, Status: models.ProjectOpen}); err != nil {
			return err
		}
		for _, id := range []string{"b1", "b2"} {
			if err := tx.InsertBid(ctx, &models.Bid{ID: id, ProjectID: "p1", WorkerID: "w1", Status: models.BidPending}); err != nil {
				return err
			}
		}
		return tx.SetBidStatus(ctx, "b1", models.BidAccepted, t0)
	}))

	err := s.InTx(ctx, func(tx db.Tx) error {
		return tx.SetBidStatus(ctx, "b2", models.BidAccepted, t0)
	})
	assert.ErrorIs(t, err, marketerrors.ErrInvalidInput)
}

func TestRejectPendingBidsSkipsExceptAndResolved(t *testing.T) {
	s := memory.New()
	owner := seedOwner(t, s)
	ctx := context.Background()

	var rejected []models.Bid
	require.NoError(t, s.InTx(ctx, func(tx db.Tx) error {
		if err := tx.InsertUser(ctx, &models.User{ID: "w1", Email: "w1@example.com", Role: models.RoleWorker}); err != nil {
			return err
		}
		if err := tx.InsertProject(ctx, &models.Project{ID: "p1", OwnerID: owner.ID, Status: models.ProjectOpen}); err != nil {
			return err
		}
		bids := []models.Bid{
			{ID: "keep", Status: models.BidPending, CreatedAt: t0},
			{ID: "old", Status: models.BidPending, CreatedAt: t0.Add(time.Second)},
			{ID: "new", Status: models.BidPending, CreatedAt: t0.Add(2 * time.Second)},
			{ID: "done", Status: models.BidRejected, CreatedAt: t0.Add(3 * time.Second)},
		}
		for i := range bids {
			bids[i].ProjectID, bids[i].WorkerID = "p1", "w1"
			if err := tx.InsertBid(ctx, &bids[i]); err != nil {
				return err
			}
		}
		var err error
		rejected, err = tx.RejectPendingBids(ctx, "p1", "keep", t0.Add(time.Hour))
		return err
	}))

	require.Len(t, rejected, 2)
	assert.Equal(t, "new", rejected[0].ID)
	assert.Equal(t, "old", rejected[1].ID)
	for _, b := range rejected {
		assert.Equal(t, models.BidRejected, b.Status)
		assert.Equal(t, t0.Add(time.Hour), b.UpdatedAt)
	}
}

func TestListProjectsNewestFirstWithLimit(t *testing.T) {
	s := memory.New()
	owner := seedOwner(t, s)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx db.Tx) error {
		for i, id := range []string{"a", "b", "c"} {
			p := models.Project{ID: id, OwnerID: owner.ID, Status: models.ProjectOpen, CreatedAt: t0.Add(time.Duration(i) * time.Minute)}
			if err := tx.InsertProject(ctx, &p); err != nil {
				return err
			}
		}
		return tx.InsertProject(ctx, &models.Project{ID: "d", OwnerID: owner.ID, Status: models.ProjectDraft, CreatedAt: t0.Add(time.Hour)})
	}))

	require.NoError(t, s.InTx(ctx, func(tx db.Tx) error {
		list, err := tx.ListProjects(ctx, db.ProjectFilter{Statuses: []models.ProjectStatus{models.ProjectOpen}, Limit: 2})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "c", list[0].ID)
		assert.Equal(t, "b", list[1].ID)

		all, err := tx.ListProjects(ctx, db.ProjectFilter{OwnerID: owner.ID})
		require.NoError(t, err)
		assert.Len(t, all, 4)
		return nil
	}))
}

func TestSlotWaitHonoursContext(t *testing.T) {
	s := memory.New()
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.InTx(context.Background(), func(tx db.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.InTx(ctx, func(tx db.Tx) error {
		t.Error("fn must not run without the slot")
		return nil
	})
	assert.ErrorIs(t, err, marketerrors.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
}

func TestCancelledContextDiscardsWrites(t *testing.T) {
	s := memory.New()
	owner := seedOwner(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	err := s.InTx(ctx, func(tx db.Tx) error {
		if err := tx.InsertProject(ctx, &models.Project{ID: "p1", OwnerID: owner.ID}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, marketerrors.ErrTimeout)

	err = s.InTx(context.Background(), func(tx db.Tx) error {
		_, err := tx.GetProject(context.Background(), "p1")
		return err
	})
	assert.ErrorIs(t, err, marketerrors.ErrNotFound)
}

func TestBatchReadsByID(t *testing.T) {
	s := memory.New()
	owner := seedOwner(t, s)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx db.Tx) error {
		for _, id := range []string{"a", "b", "c"} {
			if err := tx.InsertProject(ctx, &models.Project{ID: id, OwnerID: owner.ID, Status: models.ProjectOpen, CreatedAt: t0}); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.InTx(ctx, func(tx db.Tx) error {
		users, err := tx.ListUsers(ctx, []string{owner.ID, "ghost"})
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, owner.ID, users[0].ID)

		none, err := tx.ListUsers(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, none)

		list, err := tx.ListProjects(ctx, db.ProjectFilter{IDs: []string{"a", "c", "ghost"}})
		require.NoError(t, err)
		ids := []string{}
		for _, p := range list {
			ids = append(ids, p.ID)
		}
		assert.ElementsMatch(t, []string{"a", "c"}, ids)
		return nil
	}))
}
