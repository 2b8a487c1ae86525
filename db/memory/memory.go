// Package memory provides an in-memory db.Store used by tests and by
// STORE=memory dev runs. Transactions are fully serialized and run against a
// private copy of the state that replaces the live state only on commit.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"buildhub/db"
	"buildhub/internal/marketerrors"
	"buildhub/models"
)

var _ db.Store = (*Store)(nil)

// FaultFunc is consulted before every write with the operation name (the Tx
// method name). A non-nil result aborts that write and the transaction.
type FaultFunc func(op string) error

type state struct {
	users     map[string]models.User
	projects  map[string]models.Project
	bids      map[string]models.Bid
	materials map[string]models.Material
	orders    map[string]models.MaterialOrder
	profiles  map[string]models.WorkerProfile
	owners    map[string]models.OwnerProfile
	suppliers map[string]models.SupplierProfile
}

func newState() *state {
	return &state{
		users:     make(map[string]models.User),
		projects:  make(map[string]models.Project),
		bids:      make(map[string]models.Bid),
		materials: make(map[string]models.Material),
		orders:    make(map[string]models.MaterialOrder),
		profiles:  make(map[string]models.WorkerProfile),
		owners:    make(map[string]models.OwnerProfile),
		suppliers: make(map[string]models.SupplierProfile),
	}
}

// clone copies every map. Entity values are copied by value; slice and
// pointer fields are never mutated in place by the store, so sharing them
// between generations is safe.
func (s *state) clone() *state {
	return &state{
		users:     cloneMap(s.users),
		projects:  cloneMap(s.projects),
		bids:      cloneMap(s.bids),
		materials: cloneMap(s.materials),
		orders:    cloneMap(s.orders),
		profiles:  cloneMap(s.profiles),
		owners:    cloneMap(s.owners),
		suppliers: cloneMap(s.suppliers),
	}
}

func cloneMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type Store struct {
	slot  chan struct{}
	state *state
	fault FaultFunc
}

func New() *Store {
	return &Store{
		slot:  make(chan struct{}, 1),
		state: newState(),
	}
}

// SetFault installs (or clears, with nil) the write fault hook.
func (s *Store) SetFault(fn FaultFunc) {
	s.slot <- struct{}{}
	s.fault = fn
	<-s.slot
}

func (s *Store) InTx(ctx context.Context, fn func(tx db.Tx) error) error {
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for transaction slot: %w", marketerrors.ErrTimeout, ctx.Err())
	}
	defer func() { <-s.slot }()

	tx := &memTx{st: s.state.clone(), fault: s.fault}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: before commit: %w", marketerrors.ErrTimeout, err)
	}
	s.state = tx.st
	return nil
}

type memTx struct {
	st    *state
	fault FaultFunc
}

func (t *memTx) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", marketerrors.ErrTimeout, op, err)
	}
	if t.fault != nil {
		if err := t.fault(op); err != nil {
			return fmt.Errorf("%w: %s: %w", marketerrors.ErrStoreFailure, op, err)
		}
	}
	return nil
}

func (t *memTx) read(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", marketerrors.ErrTimeout, op, err)
	}
	return nil
}

func notFound(table, id string) error {
	return fmt.Errorf("%w: %s %s", marketerrors.ErrNotFound, table, id)
}

func missingRef(table, id string) error {
	return fmt.Errorf("%w: foreign key: %s %s does not exist", marketerrors.ErrInvalidInput, table, id)
}

func newestFirst[T any](items []T, createdAt func(T) time.Time, id func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := createdAt(items[i]), createdAt(items[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return id(items[i]) > id(items[j])
	})
}

func matches[T ~string](allowed []T, v T) bool {
	return len(allowed) == 0 || slices.Contains(allowed, v)
}

// Users

func (t *memTx) InsertUser(ctx context.Context, u *models.User) error {
	if err := t.check(ctx, "InsertUser"); err != nil {
		return err
	}
	if _, ok := t.st.users[u.ID]; ok {
		return fmt.Errorf("%w: duplicate user id %s", marketerrors.ErrInvalidInput, u.ID)
	}
	email := strings.ToLower(u.Email)
	for _, existing := range t.st.users {
		if strings.ToLower(existing.Email) == email {
			return fmt.Errorf("%w: duplicate email %s", marketerrors.ErrInvalidInput, u.Email)
		}
	}
	t.st.users[u.ID] = *u
	return nil
}

func (t *memTx) GetUser(ctx context.Context, id string) (models.User, error) {
	if err := t.read(ctx, "GetUser"); err != nil {
		return models.User{}, err
	}
	u, ok := t.st.users[id]
	if !ok {
		return models.User{}, notFound("user", id)
	}
	return u, nil
}

func (t *memTx) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	if err := t.read(ctx, "GetUserByEmail"); err != nil {
		return models.User{}, err
	}
	for _, u := range t.st.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return models.User{}, notFound("user", email)
}

func (t *memTx) ListUsers(ctx context.Context, ids []string) ([]models.User, error) {
	if err := t.read(ctx, "ListUsers"); err != nil {
		return nil, err
	}
	out := []models.User{}
	for _, id := range ids {
		if u, ok := t.st.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// Projects

func (t *memTx) InsertProject(ctx context.Context, p *models.Project) error {
	if err := t.check(ctx, "InsertProject"); err != nil {
		return err
	}
	if _, ok := t.st.users[p.OwnerID]; !ok {
		return missingRef("user", p.OwnerID)
	}
	t.st.projects[p.ID] = *p
	return nil
}

func (t *memTx) GetProject(ctx context.Context, id string) (models.Project, error) {
	if err := t.read(ctx, "GetProject"); err != nil {
		return models.Project{}, err
	}
	p, ok := t.st.projects[id]
	if !ok {
		return models.Project{}, notFound("project", id)
	}
	return p, nil
}

// LockProject is a plain read: the whole transaction already holds the store.
func (t *memTx) LockProject(ctx context.Context, id string) (models.Project, error) {
	return t.GetProject(ctx, id)
}

func (t *memTx) SetProjectStatus(ctx context.Context, id string, status models.ProjectStatus, at time.Time) error {
	if err := t.check(ctx, "SetProjectStatus"); err != nil {
		return err
	}
	p, ok := t.st.projects[id]
	if !ok {
		return notFound("project", id)
	}
	p.Status = status
	p.UpdatedAt = at
	t.st.projects[id] = p
	return nil
}

func (t *memTx) ListProjects(ctx context.Context, f db.ProjectFilter) ([]models.Project, error) {
	if err := t.read(ctx, "ListProjects"); err != nil {
		return nil, err
	}
	out := []models.Project{}
	for _, p := range t.st.projects {
		if !matches(f.IDs, p.ID) {
			continue
		}
		if f.OwnerID != "" && p.OwnerID != f.OwnerID {
			continue
		}
		if !matches(f.Statuses, p.Status) {
			continue
		}
		out = append(out, p)
	}
	newestFirst(out, func(p models.Project) time.Time { return p.CreatedAt }, func(p models.Project) string { return p.ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Bids

func (t *memTx) InsertBid(ctx context.Context, b *models.Bid) error {
	if err := t.check(ctx, "InsertBid"); err != nil {
		return err
	}
	if _, ok := t.st.projects[b.ProjectID]; !ok {
		return missingRef("project", b.ProjectID)
	}
	if _, ok := t.st.users[b.WorkerID]; !ok {
		return missingRef("user", b.WorkerID)
	}
	t.st.bids[b.ID] = *b
	return nil
}

func (t *memTx) GetBid(ctx context.Context, id string) (models.Bid, error) {
	if err := t.read(ctx, "GetBid"); err != nil {
		return models.Bid{}, err
	}
	b, ok := t.st.bids[id]
	if !ok {
		return models.Bid{}, notFound("bid", id)
	}
	return b, nil
}

func (t *memTx) LockBid(ctx context.Context, id string) (models.Bid, error) {
	return t.GetBid(ctx, id)
}

func (t *memTx) SetBidStatus(ctx context.Context, id string, status models.BidStatus, at time.Time) error {
	if err := t.check(ctx, "SetBidStatus"); err != nil {
		return err
	}
	b, ok := t.st.bids[id]
	if !ok {
		return notFound("bid", id)
	}
	if status == models.BidAccepted {
		// Mirrors the partial unique index on bids(project_id) WHERE accepted.
		for _, other := range t.st.bids {
			if other.ID != id && other.ProjectID == b.ProjectID && other.Status == models.BidAccepted {
				return fmt.Errorf("%w: project %s already has accepted bid %s", marketerrors.ErrInvalidInput, b.ProjectID, other.ID)
			}
		}
	}
	b.Status = status
	b.UpdatedAt = at
	t.st.bids[id] = b
	return nil
}

func (t *memTx) RejectPendingBids(ctx context.Context, projectID, exceptBidID string, at time.Time) ([]models.Bid, error) {
	if err := t.check(ctx, "RejectPendingBids"); err != nil {
		return nil, err
	}
	rejected := []models.Bid{}
	for id, b := range t.st.bids {
		if b.ProjectID != projectID || b.Status != models.BidPending || id == exceptBidID {
			continue
		}
		b.Status = models.BidRejected
		b.UpdatedAt = at
		t.st.bids[id] = b
		rejected = append(rejected, b)
	}
	newestFirst(rejected, func(b models.Bid) time.Time { return b.CreatedAt }, func(b models.Bid) string { return b.ID })
	return rejected, nil
}

func (t *memTx) ListBids(ctx context.Context, f db.BidFilter) ([]models.Bid, error) {
	if err := t.read(ctx, "ListBids"); err != nil {
		return nil, err
	}
	out := []models.Bid{}
	for _, b := range t.st.bids {
		if !matches(f.ProjectIDs, b.ProjectID) {
			continue
		}
		if f.WorkerID != "" && b.WorkerID != f.WorkerID {
			continue
		}
		if !matches(f.Statuses, b.Status) {
			continue
		}
		out = append(out, b)
	}
	newestFirst(out, func(b models.Bid) time.Time { return b.CreatedAt }, func(b models.Bid) string { return b.ID })
	return out, nil
}

// Materials

func (t *memTx) InsertMaterial(ctx context.Context, m *models.Material) error {
	if err := t.check(ctx, "InsertMaterial"); err != nil {
		return err
	}
	if _, ok := t.st.users[m.SupplierID]; !ok {
		return missingRef("user", m.SupplierID)
	}
	t.st.materials[m.ID] = *m
	return nil
}

func (t *memTx) GetMaterial(ctx context.Context, id string) (models.Material, error) {
	if err := t.read(ctx, "GetMaterial"); err != nil {
		return models.Material{}, err
	}
	m, ok := t.st.materials[id]
	if !ok {
		return models.Material{}, notFound("material", id)
	}
	return m, nil
}

func (t *memTx) LockMaterial(ctx context.Context, id string) (models.Material, error) {
	return t.GetMaterial(ctx, id)
}

func (t *memTx) UpdateMaterial(ctx context.Context, m *models.Material) error {
	if err := t.check(ctx, "UpdateMaterial"); err != nil {
		return err
	}
	current, ok := t.st.materials[m.ID]
	if !ok {
		return notFound("material", m.ID)
	}
	current.Name = m.Name
	current.Category = m.Category
	current.Unit = m.Unit
	current.PricePerUnit = m.PricePerUnit
	current.AvailableQuantity = m.AvailableQuantity
	current.Description = m.Description
	current.UpdatedAt = m.UpdatedAt
	t.st.materials[m.ID] = current
	return nil
}

func (t *memTx) ListMaterials(ctx context.Context, f db.MaterialFilter) ([]models.Material, error) {
	if err := t.read(ctx, "ListMaterials"); err != nil {
		return nil, err
	}
	out := []models.Material{}
	for _, m := range t.st.materials {
		if !matches(f.IDs, m.ID) {
			continue
		}
		if f.SupplierID != "" && m.SupplierID != f.SupplierID {
			continue
		}
		out = append(out, m)
	}
	newestFirst(out, func(m models.Material) time.Time { return m.CreatedAt }, func(m models.Material) string { return m.ID })
	return out, nil
}

// Orders

func (t *memTx) InsertOrder(ctx context.Context, o *models.MaterialOrder) error {
	if err := t.check(ctx, "InsertOrder"); err != nil {
		return err
	}
	if _, ok := t.st.materials[o.MaterialID]; !ok {
		return missingRef("material", o.MaterialID)
	}
	if _, ok := t.st.projects[o.ProjectID]; !ok {
		return missingRef("project", o.ProjectID)
	}
	t.st.orders[o.ID] = *o
	return nil
}

func (t *memTx) GetOrder(ctx context.Context, id string) (models.MaterialOrder, error) {
	if err := t.read(ctx, "GetOrder"); err != nil {
		return models.MaterialOrder{}, err
	}
	o, ok := t.st.orders[id]
	if !ok {
		return models.MaterialOrder{}, notFound("order", id)
	}
	return o, nil
}

func (t *memTx) LockOrder(ctx context.Context, id string) (models.MaterialOrder, error) {
	return t.GetOrder(ctx, id)
}

func (t *memTx) SetOrderStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) error {
	if err := t.check(ctx, "SetOrderStatus"); err != nil {
		return err
	}
	o, ok := t.st.orders[id]
	if !ok {
		return notFound("order", id)
	}
	o.Status = status
	o.UpdatedAt = at
	t.st.orders[id] = o
	return nil
}

func (t *memTx) SetStockReserved(ctx context.Context, id string, reserved bool) error {
	if err := t.check(ctx, "SetStockReserved"); err != nil {
		return err
	}
	o, ok := t.st.orders[id]
	if !ok {
		return notFound("order", id)
	}
	o.StockReserved = reserved
	t.st.orders[id] = o
	return nil
}

func (t *memTx) ListOrders(ctx context.Context, f db.OrderFilter) ([]models.MaterialOrder, error) {
	if err := t.read(ctx, "ListOrders"); err != nil {
		return nil, err
	}
	out := []models.MaterialOrder{}
	for _, o := range t.st.orders {
		if !matches(f.ProjectIDs, o.ProjectID) || !matches(f.MaterialIDs, o.MaterialID) {
			continue
		}
		if !matches(f.Statuses, o.Status) {
			continue
		}
		out = append(out, o)
	}
	newestFirst(out, func(o models.MaterialOrder) time.Time { return o.CreatedAt }, func(o models.MaterialOrder) string { return o.ID })
	return out, nil
}

// Worker profiles

func (t *memTx) GetWorkerProfile(ctx context.Context, userID string) (models.WorkerProfile, error) {
	if err := t.read(ctx, "GetWorkerProfile"); err != nil {
		return models.WorkerProfile{}, err
	}
	w, ok := t.st.profiles[userID]
	if !ok {
		return models.WorkerProfile{}, notFound("worker profile", userID)
	}
	return w, nil
}

func (t *memTx) UpsertWorkerProfile(ctx context.Context, w *models.WorkerProfile) error {
	if err := t.check(ctx, "UpsertWorkerProfile"); err != nil {
		return err
	}
	if _, ok := t.st.users[w.UserID]; !ok {
		return missingRef("user", w.UserID)
	}
	t.st.profiles[w.UserID] = *w
	return nil
}

func (t *memTx) ListWorkerProfiles(ctx context.Context, userIDs []string) ([]models.WorkerProfile, error) {
	if err := t.read(ctx, "ListWorkerProfiles"); err != nil {
		return nil, err
	}
	out := []models.WorkerProfile{}
	for _, id := range userIDs {
		if w, ok := t.st.profiles[id]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

// Owner and supplier profiles

func (t *memTx) GetOwnerProfile(ctx context.Context, userID string) (models.OwnerProfile, error) {
	if err := t.read(ctx, "GetOwnerProfile"); err != nil {
		return models.OwnerProfile{}, err
	}
	o, ok := t.st.owners[userID]
	if !ok {
		return models.OwnerProfile{}, notFound("owner profile", userID)
	}
	return o, nil
}

func (t *memTx) UpsertOwnerProfile(ctx context.Context, o *models.OwnerProfile) error {
	if err := t.check(ctx, "UpsertOwnerProfile"); err != nil {
		return err
	}
	if _, ok := t.st.users[o.UserID]; !ok {
		return missingRef("user", o.UserID)
	}
	t.st.owners[o.UserID] = *o
	return nil
}

func (t *memTx) GetSupplierProfile(ctx context.Context, userID string) (models.SupplierProfile, error) {
	if err := t.read(ctx, "GetSupplierProfile"); err != nil {
		return models.SupplierProfile{}, err
	}
	sp, ok := t.st.suppliers[userID]
	if !ok {
		return models.SupplierProfile{}, notFound("supplier profile", userID)
	}
	return sp, nil
}

func (t *memTx) UpsertSupplierProfile(ctx context.Context, sp *models.SupplierProfile) error {
	if err := t.check(ctx, "UpsertSupplierProfile"); err != nil {
		return err
	}
	if _, ok := t.st.users[sp.UserID]; !ok {
		return missingRef("user", sp.UserID)
	}
	t.st.suppliers[sp.UserID] = *sp
	return nil
}
