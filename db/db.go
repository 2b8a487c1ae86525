package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"buildhub/models"

	"github.com/jmoiron/sqlx"
)

// Storage is the PostgreSQL Store. It works with either registered driver
// ("postgres" from lib/pq or "pgx" from pgx stdlib); sqlx picks $N bindvars
// for both.
type Storage struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

func NewStorage(db *sqlx.DB, lockTimeout time.Duration) *Storage {
	return &Storage{db: db, lockTimeout: lockTimeout}
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapError(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if s.lockTimeout > 0 {
		// SET does not take bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())
		if _, err = sqlTx.ExecContext(ctx, stmt); err != nil {
			return mapError(fmt.Errorf("set lock_timeout: %w", err))
		}
	}

	if err = fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type pgTx struct {
	tx *sqlx.Tx
}

// where accumulates AND-ed predicates with positional args.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *where) in(column string, values []string) {
	if len(values) == 0 {
		return
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		w.args = append(w.args, v)
		placeholders[i] = fmt.Sprintf("$%d", len(w.args))
	}
	w.clauses = append(w.clauses, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func toStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

// Users

func (t *pgTx) InsertUser(ctx context.Context, u *models.User) error {
	query := `
        INSERT INTO users (id, email, password_hash, full_name, phone, location, role, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := t.tx.ExecContext(ctx, query,
		u.ID, u.Email, u.PasswordHash, u.FullName, u.Phone, u.Location, u.Role, u.CreatedAt)
	return mapError(err)
}

func (t *pgTx) GetUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := t.tx.GetContext(ctx, &u, `SELECT * FROM users WHERE id=$1`, id)
	return u, mapError(err)
}

func (t *pgTx) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := t.tx.GetContext(ctx, &u, `SELECT * FROM users WHERE email=$1`, email)
	return u, mapError(err)
}

func (t *pgTx) ListUsers(ctx context.Context, ids []string) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	w := &where{}
	w.in("id", ids)
	if err := t.tx.SelectContext(ctx, &users, `SELECT * FROM users`+w.String(), w.args...); err != nil {
		return nil, mapError(err)
	}
	return users, nil
}

// Projects

const projectColumns = `id, owner_id, title, description, location, budget_min, budget_max,
        required_skills, start_date, end_date, status, created_at, updated_at`

func (t *pgTx) InsertProject(ctx context.Context, p *models.Project) error {
	query := `
        INSERT INTO projects (` + projectColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := t.tx.ExecContext(ctx, query,
		p.ID, p.OwnerID, p.Title, p.Description, p.Location, p.BudgetMin, p.BudgetMax,
		p.RequiredSkills, p.StartDate, p.EndDate, p.Status, p.CreatedAt, p.UpdatedAt)
	return mapError(err)
}

func (t *pgTx) GetProject(ctx context.Context, id string) (models.Project, error) {
	var p models.Project
	err := t.tx.GetContext(ctx, &p, `SELECT `+projectColumns+` FROM projects WHERE id=$1`, id)
	return p, mapError(err)
}

func (t *pgTx) LockProject(ctx context.Context, id string) (models.Project, error) {
	var p models.Project
	err := t.tx.GetContext(ctx, &p, `SELECT `+projectColumns+` FROM projects WHERE id=$1 FOR UPDATE`, id)
	return p, mapError(err)
}

func (t *pgTx) SetProjectStatus(ctx context.Context, id string, status models.ProjectStatus, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE projects SET status=$1, updated_at=$2 WHERE id=$3`, status, at, id)
	return mustAffect(res, err)
}

func (t *pgTx) ListProjects(ctx context.Context, f ProjectFilter) ([]models.Project, error) {
	w := &where{}
	w.in("id", f.IDs)
	if f.OwnerID != "" {
		w.add("owner_id = $%d", f.OwnerID)
	}
	w.in("status", toStrings(f.Statuses))

	query := `SELECT ` + projectColumns + ` FROM projects` + w.String() + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	projects := []models.Project{}
	if err := t.tx.SelectContext(ctx, &projects, query, w.args...); err != nil {
		return nil, mapError(err)
	}
	return projects, nil
}

// Bids

func (t *pgTx) InsertBid(ctx context.Context, b *models.Bid) error {
	query := `
        INSERT INTO bids (id, project_id, worker_id, proposed_rate, message, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := t.tx.ExecContext(ctx, query,
		b.ID, b.ProjectID, b.WorkerID, b.ProposedRate, b.Message, b.Status, b.CreatedAt, b.UpdatedAt)
	return mapError(err)
}

func (t *pgTx) GetBid(ctx context.Context, id string) (models.Bid, error) {
	var b models.Bid
	err := t.tx.GetContext(ctx, &b, `SELECT * FROM bids WHERE id=$1`, id)
	return b, mapError(err)
}

func (t *pgTx) LockBid(ctx context.Context, id string) (models.Bid, error) {
	var b models.Bid
	err := t.tx.GetContext(ctx, &b, `SELECT * FROM bids WHERE id=$1 FOR UPDATE`, id)
	return b, mapError(err)
}

func (t *pgTx) SetBidStatus(ctx context.Context, id string, status models.BidStatus, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE bids SET status=$1, updated_at=$2 WHERE id=$3`, status, at, id)
	return mustAffect(res, err)
}

func (t *pgTx) RejectPendingBids(ctx context.Context, projectID, exceptBidID string, at time.Time) ([]models.Bid, error) {
	query := `
        UPDATE bids SET status=$1, updated_at=$2
        WHERE project_id=$3 AND status=$4 AND id <> $5
        RETURNING *`
	rejected := []models.Bid{}
	err := t.tx.SelectContext(ctx, &rejected, query,
		models.BidRejected, at, projectID, models.BidPending, exceptBidID)
	if err != nil {
		return nil, mapError(err)
	}
	return rejected, nil
}

func (t *pgTx) ListBids(ctx context.Context, f BidFilter) ([]models.Bid, error) {
	w := &where{}
	w.in("project_id", f.ProjectIDs)
	if f.WorkerID != "" {
		w.add("worker_id = $%d", f.WorkerID)
	}
	w.in("status", toStrings(f.Statuses))

	bids := []models.Bid{}
	if err := t.tx.SelectContext(ctx, &bids, `SELECT * FROM bids`+w.String()+` ORDER BY created_at DESC`, w.args...); err != nil {
		return nil, mapError(err)
	}
	return bids, nil
}

// Materials

func (t *pgTx) InsertMaterial(ctx context.Context, m *models.Material) error {
	query := `
        INSERT INTO materials
            (id, supplier_id, name, category, unit, price_per_unit, available_quantity, description, created_at, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := t.tx.ExecContext(ctx, query,
		m.ID, m.SupplierID, m.Name, m.Category, m.Unit, m.PricePerUnit, m.AvailableQuantity,
		m.Description, m.CreatedAt, m.UpdatedAt)
	return mapError(err)
}

func (t *pgTx) GetMaterial(ctx context.Context, id string) (models.Material, error) {
	var m models.Material
	err := t.tx.GetContext(ctx, &m, `SELECT * FROM materials WHERE id=$1`, id)
	return m, mapError(err)
}

func (t *pgTx) LockMaterial(ctx context.Context, id string) (models.Material, error) {
	var m models.Material
	err := t.tx.GetContext(ctx, &m, `SELECT * FROM materials WHERE id=$1 FOR UPDATE`, id)
	return m, mapError(err)
}

// UpdateMaterial writes the mutable listing fields; supplier_id is left alone.
func (t *pgTx) UpdateMaterial(ctx context.Context, m *models.Material) error {
	query := `
        UPDATE materials
        SET name=$1, category=$2, unit=$3, price_per_unit=$4, available_quantity=$5, description=$6, updated_at=$7
        WHERE id=$8`
	res, err := t.tx.ExecContext(ctx, query,
		m.Name, m.Category, m.Unit, m.PricePerUnit, m.AvailableQuantity, m.Description, m.UpdatedAt, m.ID)
	return mustAffect(res, err)
}

func (t *pgTx) ListMaterials(ctx context.Context, f MaterialFilter) ([]models.Material, error) {
	w := &where{}
	w.in("id", f.IDs)
	if f.SupplierID != "" {
		w.add("supplier_id = $%d", f.SupplierID)
	}
	materials := []models.Material{}
	if err := t.tx.SelectContext(ctx, &materials, `SELECT * FROM materials`+w.String()+` ORDER BY created_at DESC`, w.args...); err != nil {
		return nil, mapError(err)
	}
	return materials, nil
}

// Orders

func (t *pgTx) InsertOrder(ctx context.Context, o *models.MaterialOrder) error {
	query := `
        INSERT INTO material_orders
            (id, material_id, project_id, quantity, total_price, delivery_address, delivery_date, status,
             stock_reserved, created_at, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := t.tx.ExecContext(ctx, query,
		o.ID, o.MaterialID, o.ProjectID, o.Quantity, o.TotalPrice, o.DeliveryAddress, o.DeliveryDate,
		o.Status, o.StockReserved, o.CreatedAt, o.UpdatedAt)
	return mapError(err)
}

func (t *pgTx) GetOrder(ctx context.Context, id string) (models.MaterialOrder, error) {
	var o models.MaterialOrder
	err := t.tx.GetContext(ctx, &o, `SELECT * FROM material_orders WHERE id=$1`, id)
	return o, mapError(err)
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (models.MaterialOrder, error) {
	var o models.MaterialOrder
	err := t.tx.GetContext(ctx, &o, `SELECT * FROM material_orders WHERE id=$1 FOR UPDATE`, id)
	return o, mapError(err)
}

func (t *pgTx) SetOrderStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE material_orders SET status=$1, updated_at=$2 WHERE id=$3`, status, at, id)
	return mustAffect(res, err)
}

func (t *pgTx) SetStockReserved(ctx context.Context, id string, reserved bool) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE material_orders SET stock_reserved=$1 WHERE id=$2`, reserved, id)
	return mustAffect(res, err)
}

func (t *pgTx) ListOrders(ctx context.Context, f OrderFilter) ([]models.MaterialOrder, error) {
	w := &where{}
	w.in("project_id", f.ProjectIDs)
	w.in("material_id", f.MaterialIDs)
	w.in("status", toStrings(f.Statuses))

	orders := []models.MaterialOrder{}
	if err := t.tx.SelectContext(ctx, &orders, `SELECT * FROM material_orders`+w.String()+` ORDER BY created_at DESC`, w.args...); err != nil {
		return nil, mapError(err)
	}
	return orders, nil
}

// Worker profiles

func (t *pgTx) GetWorkerProfile(ctx context.Context, userID string) (models.WorkerProfile, error) {
	var w models.WorkerProfile
	err := t.tx.GetContext(ctx, &w, `SELECT * FROM worker_profiles WHERE user_id=$1`, userID)
	return w, mapError(err)
}

func (t *pgTx) UpsertWorkerProfile(ctx context.Context, w *models.WorkerProfile) error {
	query := `
        INSERT INTO worker_profiles
            (user_id, skills, experience_years, hourly_rate, daily_rate, availability, bio, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (user_id) DO UPDATE SET
            skills = EXCLUDED.skills,
            experience_years = EXCLUDED.experience_years,
            hourly_rate = EXCLUDED.hourly_rate,
            daily_rate = EXCLUDED.daily_rate,
            availability = EXCLUDED.availability,
            bio = EXCLUDED.bio,
            updated_at = EXCLUDED.updated_at`
	_, err := t.tx.ExecContext(ctx, query,
		w.UserID, w.Skills, w.ExperienceYears, w.HourlyRate, w.DailyRate, w.Availability, w.Bio, w.UpdatedAt)
	return mapError(err)
}

func (t *pgTx) ListWorkerProfiles(ctx context.Context, userIDs []string) ([]models.WorkerProfile, error) {
	profiles := []models.WorkerProfile{}
	if len(userIDs) == 0 {
		return profiles, nil
	}
	w := &where{}
	w.in("user_id", userIDs)
	if err := t.tx.SelectContext(ctx, &profiles, `SELECT * FROM worker_profiles`+w.String(), w.args...); err != nil {
		return nil, mapError(err)
	}
	return profiles, nil
}

// Owner and supplier profiles

func (t *pgTx) GetOwnerProfile(ctx context.Context, userID string) (models.OwnerProfile, error) {
	var o models.OwnerProfile
	err := t.tx.GetContext(ctx, &o, `SELECT * FROM owner_profiles WHERE user_id=$1`, userID)
	return o, mapError(err)
}

func (t *pgTx) UpsertOwnerProfile(ctx context.Context, o *models.OwnerProfile) error {
	query := `
        INSERT INTO owner_profiles (user_id, company_name, company_type, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id) DO UPDATE SET
            company_name = EXCLUDED.company_name,
            company_type = EXCLUDED.company_type,
            updated_at = EXCLUDED.updated_at`
	_, err := t.tx.ExecContext(ctx, query, o.UserID, o.CompanyName, o.CompanyType, o.UpdatedAt)
	return mapError(err)
}

func (t *pgTx) GetSupplierProfile(ctx context.Context, userID string) (models.SupplierProfile, error) {
	var sp models.SupplierProfile
	err := t.tx.GetContext(ctx, &sp, `SELECT * FROM supplier_profiles WHERE user_id=$1`, userID)
	return sp, mapError(err)
}

func (t *pgTx) UpsertSupplierProfile(ctx context.Context, sp *models.SupplierProfile) error {
	query := `
        INSERT INTO supplier_profiles
            (user_id, business_name, business_license, delivery_radius_km, material_categories, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id) DO UPDATE SET
            business_name = EXCLUDED.business_name,
            business_license = EXCLUDED.business_license,
            delivery_radius_km = EXCLUDED.delivery_radius_km,
            material_categories = EXCLUDED.material_categories,
            updated_at = EXCLUDED.updated_at`
	_, err := t.tx.ExecContext(ctx, query,
		sp.UserID, sp.BusinessName, sp.BusinessLicense, sp.DeliveryRadiusKm, sp.MaterialCategories, sp.UpdatedAt)
	return mapError(err)
}

func mustAffect(res sql.Result, err error) error {
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}
