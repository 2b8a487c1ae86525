package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

// HasCents reports whether v is stored by a NUMERIC(_, 2) column without
// rounding.
func HasCents(v float64) bool {
	c := v * 100
	return math.Abs(c-math.Round(c)) < 1e-6
}

// RoundCents rounds a money amount to the nearest cent.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

type Role string

const (
	RoleWorker   Role = "worker"
	RoleOwner    Role = "owner"
	RoleSupplier Role = "supplier"
)

func ValidRole(r Role) bool {
	switch r {
	case RoleWorker, RoleOwner, RoleSupplier:
		return true
	default:
		return false
	}
}

type Skill string

const (
	SkillLaborer     Skill = "laborer"
	SkillMason       Skill = "mason"
	SkillElectrician Skill = "electrician"
	SkillCarpenter   Skill = "carpenter"
	SkillPlumber     Skill = "plumber"
	SkillPainter     Skill = "painter"
	SkillWelder      Skill = "welder"
)

func ValidSkill(s Skill) bool {
	switch s {
	case SkillLaborer, SkillMason, SkillElectrician, SkillCarpenter, SkillPlumber, SkillPainter, SkillWelder:
		return true
	default:
		return false
	}
}

// SkillSet is stored as a postgres text[] column.
type SkillSet []Skill

// Normalize drops duplicates and sorts the set.
func (s SkillSet) Normalize() SkillSet {
	seen := make(map[Skill]struct{}, len(s))
	out := make(SkillSet, 0, len(s))
	for _, sk := range s {
		sk = Skill(strings.ToLower(strings.TrimSpace(string(sk))))
		if _, ok := seen[sk]; ok {
			continue
		}
		seen[sk] = struct{}{}
		out = append(out, sk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s SkillSet) Validate() error {
	for _, sk := range s {
		if !ValidSkill(sk) {
			return fmt.Errorf("unknown skill %q", sk)
		}
	}
	return nil
}

func (s SkillSet) Value() (driver.Value, error) {
	arr := make(pq.StringArray, len(s))
	for i, sk := range s {
		arr[i] = string(sk)
	}
	return arr.Value()
}

func (s *SkillSet) Scan(src any) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	out := make(SkillSet, len(arr))
	for i, v := range arr {
		out[i] = Skill(v)
	}
	*s = out
	return nil
}

type ProjectStatus string

const (
	ProjectDraft      ProjectStatus = "draft"
	ProjectOpen       ProjectStatus = "open"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectCancelled  ProjectStatus = "cancelled"
)

func (s ProjectStatus) Terminal() bool {
	return s == ProjectCompleted || s == ProjectCancelled
}

type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// User is the account record behind the identity provider.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FullName     string    `db:"full_name" json:"fullName"`
	Phone        string    `db:"phone" json:"phone"`
	Location     string    `db:"location" json:"location"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

type Project struct {
	ID             string        `db:"id" json:"id"`
	OwnerID        string        `db:"owner_id" json:"ownerId"`
	Title          string        `db:"title" json:"title"`
	Description    string        `db:"description" json:"description"`
	Location       string        `db:"location" json:"location"`
	BudgetMin      *float64      `db:"budget_min" json:"budgetMin,omitempty"`
	BudgetMax      *float64      `db:"budget_max" json:"budgetMax,omitempty"`
	RequiredSkills SkillSet      `db:"required_skills" json:"requiredSkills"`
	StartDate      *time.Time    `db:"start_date" json:"startDate,omitempty"`
	EndDate        *time.Time    `db:"end_date" json:"endDate,omitempty"`
	Status         ProjectStatus `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}

// Validate checks the owner-supplied fields of a project.
func (p Project) Validate() error {
	if strings.TrimSpace(p.OwnerID) == "" {
		return errors.New("owner is required")
	}
	if strings.TrimSpace(p.Title) == "" || len(p.Title) > 200 {
		return errors.New("title is required and max length 200")
	}
	if strings.TrimSpace(p.Description) == "" {
		return errors.New("description is required")
	}
	if strings.TrimSpace(p.Location) == "" {
		return errors.New("location is required")
	}
	if p.BudgetMin != nil && *p.BudgetMin < 0 {
		return errors.New("budgetMin must be non-negative")
	}
	if p.BudgetMax != nil && *p.BudgetMax < 0 {
		return errors.New("budgetMax must be non-negative")
	}
	if (p.BudgetMin != nil && !HasCents(*p.BudgetMin)) || (p.BudgetMax != nil && !HasCents(*p.BudgetMax)) {
		return errors.New("budget must have at most two decimal places")
	}
	if p.BudgetMin != nil && p.BudgetMax != nil && *p.BudgetMin > *p.BudgetMax {
		return errors.New("budgetMin must not exceed budgetMax")
	}
	if p.StartDate != nil && p.EndDate != nil && p.StartDate.After(*p.EndDate) {
		return errors.New("startDate must not be after endDate")
	}
	return p.RequiredSkills.Validate()
}

type Bid struct {
	ID           string    `db:"id" json:"id"`
	ProjectID    string    `db:"project_id" json:"projectId"`
	WorkerID     string    `db:"worker_id" json:"workerId"`
	ProposedRate float64   `db:"proposed_rate" json:"proposedRate"`
	Message      string    `db:"message" json:"message"`
	Status       BidStatus `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

type Material struct {
	ID                string    `db:"id" json:"id"`
	SupplierID        string    `db:"supplier_id" json:"supplierId"`
	Name              string    `db:"name" json:"name"`
	Category          string    `db:"category" json:"category"`
	Unit              string    `db:"unit" json:"unit"`
	PricePerUnit      float64   `db:"price_per_unit" json:"pricePerUnit"`
	AvailableQuantity int       `db:"available_quantity" json:"availableQuantity"`
	Description       string    `db:"description" json:"description"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

func (m Material) Validate() error {
	if strings.TrimSpace(m.SupplierID) == "" {
		return errors.New("supplier is required")
	}
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(m.Category) == "" {
		return errors.New("category is required")
	}
	if strings.TrimSpace(m.Unit) == "" {
		return errors.New("unit is required")
	}
	if m.PricePerUnit <= 0 {
		return errors.New("pricePerUnit must be positive")
	}
	if !HasCents(m.PricePerUnit) {
		return errors.New("pricePerUnit must have at most two decimal places")
	}
	if m.AvailableQuantity < 0 {
		return errors.New("availableQuantity must be non-negative")
	}
	return nil
}

type MaterialOrder struct {
	ID              string      `db:"id" json:"id"`
	MaterialID      string      `db:"material_id" json:"materialId"`
	ProjectID       string      `db:"project_id" json:"projectId"`
	Quantity        int         `db:"quantity" json:"quantity"`
	TotalPrice      float64     `db:"total_price" json:"totalPrice"`
	DeliveryAddress string      `db:"delivery_address" json:"deliveryAddress"`
	DeliveryDate    *time.Time  `db:"delivery_date" json:"deliveryDate,omitempty"`
	Status          OrderStatus `db:"status" json:"status"`
	// StockReserved is set while the order's quantity is held out of the
	// material's available stock.
	StockReserved bool      `db:"stock_reserved" json:"stockReserved"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

type WorkerProfile struct {
	UserID          string    `db:"user_id" json:"userId"`
	Skills          SkillSet  `db:"skills" json:"skills"`
	ExperienceYears int       `db:"experience_years" json:"experienceYears"`
	HourlyRate      *float64  `db:"hourly_rate" json:"hourlyRate,omitempty"`
	DailyRate       *float64  `db:"daily_rate" json:"dailyRate,omitempty"`
	Availability    bool      `db:"availability" json:"availability"`
	Bio             string    `db:"bio" json:"bio"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

func (w WorkerProfile) Validate() error {
	if strings.TrimSpace(w.UserID) == "" {
		return errors.New("user is required")
	}
	if w.ExperienceYears < 0 {
		return errors.New("experienceYears must be non-negative")
	}
	if w.HourlyRate != nil && *w.HourlyRate <= 0 {
		return errors.New("hourlyRate must be positive")
	}
	if w.DailyRate != nil && *w.DailyRate <= 0 {
		return errors.New("dailyRate must be positive")
	}
	if (w.HourlyRate != nil && !HasCents(*w.HourlyRate)) || (w.DailyRate != nil && !HasCents(*w.DailyRate)) {
		return errors.New("rates must have at most two decimal places")
	}
	return w.Skills.Validate()
}

// OwnerProfile describes the company behind a project owner.
type OwnerProfile struct {
	UserID      string    `db:"user_id" json:"userId"`
	CompanyName string    `db:"company_name" json:"companyName"`
	CompanyType string    `db:"company_type" json:"companyType"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

func (o OwnerProfile) Validate() error {
	if strings.TrimSpace(o.UserID) == "" {
		return errors.New("user is required")
	}
	if len(o.CompanyName) > 200 {
		return errors.New("companyName max length 200")
	}
	return nil
}

type SupplierProfile struct {
	UserID             string         `db:"user_id" json:"userId"`
	BusinessName       string         `db:"business_name" json:"businessName"`
	BusinessLicense    string         `db:"business_license" json:"businessLicense"`
	DeliveryRadiusKm   *int           `db:"delivery_radius_km" json:"deliveryRadiusKm,omitempty"`
	MaterialCategories pq.StringArray `db:"material_categories" json:"materialCategories"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updatedAt"`
}

func (s SupplierProfile) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return errors.New("user is required")
	}
	if strings.TrimSpace(s.BusinessName) == "" {
		return errors.New("businessName is required")
	}
	if s.DeliveryRadiusKm != nil && *s.DeliveryRadiusKm < 0 {
		return errors.New("deliveryRadiusKm must be non-negative")
	}
	return nil
}
