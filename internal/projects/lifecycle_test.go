package projects

import (
	"context"
	"errors"
	"strings"
	"testing"

	"buildhub/db"
	"buildhub/internal/marketerrors"
	"buildhub/internal/testutils"
	"buildhub/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []models.ProjectStatus{
	models.ProjectDraft,
	models.ProjectOpen,
	models.ProjectInProgress,
	models.ProjectCompleted,
	models.ProjectCancelled,
}

func TestCanTransition(t *testing.T) {
	t.Parallel()
	legal := map[[2]models.ProjectStatus]bool{
		{models.ProjectDraft, models.ProjectOpen}:           true,
		{models.ProjectDraft, models.ProjectCancelled}:      true,
		{models.ProjectOpen, models.ProjectInProgress}:      true,
		{models.ProjectOpen, models.ProjectCancelled}:       true,
		{models.ProjectInProgress, models.ProjectCompleted}: true,
		{models.ProjectInProgress, models.ProjectCancelled}: true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			assert.Equal(t, legal[[2]models.ProjectStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	for _, s := range []models.ProjectStatus{models.ProjectCompleted, models.ProjectCancelled} {
		for _, to := range allStatuses {
			assert.False(t, CanTransition(s, to), "terminal %s must not move to %s", s, to)
		}
	}
}

func TestCreate(t *testing.T) {
	t.Parallel()
	fx := testutils.NewFixture(t)
	lc := NewLifecycle(fx.Store)
	ctx := context.Background()
	owner := fx.User(models.RoleOwner)
	worker := fx.User(models.RoleWorker)

	in := CreateInput{
		Title:          "  Roof repair ",
		Description:    "Fix leaking roof",
		Location:       "Mombasa",
		BudgetMin:      testutils.Float(100),
		BudgetMax:      testutils.Float(500),
		RequiredSkills: models.SkillSet{"Carpenter", "mason", "carpenter"},
	}
	p, err := lc.Create(ctx, owner.ID, in)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectDraft, p.Status)
	assert.Equal(t, "Roof repair", p.Title)
	assert.Equal(t, models.SkillSet{models.SkillCarpenter, models.SkillMason}, p.RequiredSkills)
	assert.Equal(t, p, fx.GetProject(p.ID))

	_, err = lc.Create(ctx, worker.ID, in)
	require.ErrorIs(t, err, marketerrors.ErrUnauthorized)

	bad := in
	bad.BudgetMin = testutils.Float(900)
	_, err = lc.Create(ctx, owner.ID, bad)
	require.ErrorIs(t, err, marketerrors.ErrInvalidInput)

	bad = in
	bad.RequiredSkills = models.SkillSet{"astronaut"}
	_, err = lc.Create(ctx, owner.ID, bad)
	require.ErrorIs(t, err, marketerrors.ErrInvalidInput)
}

func TestTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name    string
		from    models.ProjectStatus
		op      func(lc *Lifecycle, actor, id string) (models.ProjectStatus, error)
		want    models.ProjectStatus
		wantErr error
	}{
		{
			name: "publish_draft",
			from: models.ProjectDraft,
			op:   publish,
			want: models.ProjectOpen,
		},
		{
			name:    "publish_open",
			from:    models.ProjectOpen,
			op:      publish,
			wantErr: marketerrors.ErrInvalidState,
		},
		{
			name: "complete_in_progress",
			from: models.ProjectInProgress,
			op:   complete,
			want: models.ProjectCompleted,
		},
		{
			name:    "complete_open",
			from:    models.ProjectOpen,
			op:      complete,
			wantErr: marketerrors.ErrInvalidState,
		},
		{
			name: "cancel_draft",
			from: models.ProjectDraft,
			op:   cancel,
			want: models.ProjectCancelled,
		},
		{
			name: "cancel_in_progress",
			from: models.ProjectInProgress,
			op:   cancel,
			want: models.ProjectCancelled,
		},
		{
			name:    "cancel_completed",
			from:    models.ProjectCompleted,
			op:      cancel,
			wantErr: marketerrors.ErrInvalidState,
		},
		{
			name:    "cancel_cancelled",
			from:    models.ProjectCancelled,
			op:      cancel,
			wantErr: marketerrors.ErrInvalidState,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fx := testutils.NewFixture(t)
			lc := NewLifecycle(fx.Store)
			owner := fx.User(models.RoleOwner)
			p := fx.Project(owner.ID, tc.from)

			got, err := tc.op(lc, owner.ID, p.ID)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, tc.from, fx.GetProject(p.ID).Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			stored := fx.GetProject(p.ID)
			assert.Equal(t, tc.want, stored.Status)
			assert.True(t, stored.UpdatedAt.After(p.UpdatedAt) || stored.UpdatedAt.Equal(p.UpdatedAt))
		})
	}

	t.Run("not_owner", func(t *testing.T) {
		t.Parallel()
		fx := testutils.NewFixture(t)
		lc := NewLifecycle(fx.Store)
		owner := fx.User(models.RoleOwner)
		other := fx.User(models.RoleOwner)
		p := fx.Project(owner.ID, models.ProjectDraft)

		for _, op := range []func(*Lifecycle, string, string) (models.ProjectStatus, error){publish, complete, cancel} {
			_, err := op(lc, other.ID, p.ID)
			require.ErrorIs(t, err, marketerrors.ErrUnauthorized)
		}
		assert.Equal(t, models.ProjectDraft, fx.GetProject(p.ID).Status)
	})

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		fx := testutils.NewFixture(t)
		_, err := NewLifecycle(fx.Store).Publish(ctx, "owner", "nope")
		require.ErrorIs(t, err, marketerrors.ErrNotFound)
	})
}

func TestCancelRejectsPendingBids(t *testing.T) {
	t.Parallel()
	fx := testutils.NewFixture(t)
	lc := NewLifecycle(fx.Store)
	owner := fx.User(models.RoleOwner)
	p := fx.Project(owner.ID, models.ProjectOpen)
	w1, w2, w3 := fx.User(models.RoleWorker), fx.User(models.RoleWorker), fx.User(models.RoleWorker)
	b1 := fx.Bid(p.ID, w1.ID, 10, models.BidPending)
	b2 := fx.Bid(p.ID, w2.ID, 12, models.BidPending)
	b3 := fx.Bid(p.ID, w3.ID, 15, models.BidRejected)

	res, err := lc.Cancel(context.Background(), owner.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectCancelled, res.Project.Status)
	require.Len(t, res.RejectedBids, 2)

	for _, id := range []string{b1.ID, b2.ID, b3.ID} {
		assert.Equal(t, models.BidRejected, fx.GetBid(id).Status)
	}
}

func TestCancelIsAtomic(t *testing.T) {
	t.Parallel()
	fx := testutils.NewFixture(t)
	lc := NewLifecycle(fx.Store)
	owner := fx.User(models.RoleOwner)
	p := fx.Project(owner.ID, models.ProjectOpen)
	b := fx.Bid(p.ID, fx.User(models.RoleWorker).ID, 10, models.BidPending)

	fx.Store.SetFault(func(op string) error {
		if op == "RejectPendingBids" {
			return errors.New("disk full")
		}
		return nil
	})
	_, err := lc.Cancel(context.Background(), owner.ID, p.ID)
	require.ErrorIs(t, err, marketerrors.ErrStoreFailure)
	fx.Store.SetFault(nil)

	assert.Equal(t, models.ProjectOpen, fx.GetProject(p.ID).Status)
	assert.Equal(t, models.BidPending, fx.GetBid(b.ID).Status)
}

func TestAdvanceOnAcceptanceRequiresOpen(t *testing.T) {
	t.Parallel()
	fx := testutils.NewFixture(t)
	lc := NewLifecycle(fx.Store)
	owner := fx.User(models.RoleOwner)
	draft := fx.Project(owner.ID, models.ProjectDraft)
	open := fx.Project(owner.ID, models.ProjectOpen)
	ctx := context.Background()

	err := fx.Store.InTx(ctx, func(tx db.Tx) error {
		_, err := lc.AdvanceOnAcceptance(ctx, tx, draft.ID)
		return err
	})
	require.ErrorIs(t, err, marketerrors.ErrInvalidState)

	err = fx.Store.InTx(ctx, func(tx db.Tx) error {
		p, err := lc.AdvanceOnAcceptance(ctx, tx, open.ID)
		if err == nil {
			assert.Equal(t, models.ProjectInProgress, p.Status)
		}
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectInProgress, fx.GetProject(open.ID).Status)
}

func publish(lc *Lifecycle, actor, id string) (models.ProjectStatus, error) {
	p, err := lc.Publish(context.Background(), actor, id)
	return p.Status, err
}

func complete(lc *Lifecycle, actor, id string) (models.ProjectStatus, error) {
	p, err := lc.Complete(context.Background(), actor, id)
	return p.Status, err
}

func cancel(lc *Lifecycle, actor, id string) (models.ProjectStatus, error) {
	res, err := lc.Cancel(context.Background(), actor, id)
	return res.Project.Status, err
}

func TestSaveOwnerProfile(t *testing.T) {
	t.Parallel()
	fx := testutils.NewFixture(t)
	lc := NewLifecycle(fx.Store)
	ctx := context.Background()
	owner := fx.User(models.RoleOwner)

	op, err := lc.SaveOwnerProfile(ctx, owner.ID, OwnerProfileInput{CompanyName: " Acme Homes ", CompanyType: "developer"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Homes", op.CompanyName)

	var stored models.OwnerProfile
	require.NoError(t, fx.Store.InTx(ctx, func(tx db.Tx) (err error) {
		stored, err = tx.GetOwnerProfile(ctx, owner.ID)
		return err
	}))
	assert.Equal(t, op, stored)

	_, err = lc.SaveOwnerProfile(ctx, fx.User(models.RoleWorker).ID, OwnerProfileInput{CompanyName: "Acme"})
	require.ErrorIs(t, err, marketerrors.ErrUnauthorized)

	_, err = lc.SaveOwnerProfile(ctx, owner.ID, OwnerProfileInput{CompanyName: strings.Repeat("a", 201)})
	require.ErrorIs(t, err, marketerrors.ErrInvalidInput)
}
