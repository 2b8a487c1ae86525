package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"buildhub/internal/auth"
	"buildhub/internal/bids"
	"buildhub/internal/logger"
	"buildhub/internal/marketerrors"
	"buildhub/internal/orders"
	"buildhub/internal/projects"
	"buildhub/internal/workflow"
	"buildhub/models"
)

const maxBodyBytes = 1 << 20

// Workflow is the slice of the workflow facade the HTTP layer calls.
type Workflow interface {
	CreateProject(ctx context.Context, session string, in projects.CreateInput) (models.Project, error)
	PublishProject(ctx context.Context, session, projectID string) (models.Project, error)
	CompleteProject(ctx context.Context, session, projectID string) (models.Project, error)
	CancelProject(ctx context.Context, session, projectID string) (projects.CancelResult, error)

	SubmitBid(ctx context.Context, session string, in bids.SubmitInput) (models.Bid, error)
	AcceptBid(ctx context.Context, session, bidID string) (bids.AcceptResult, error)
	RejectBid(ctx context.Context, session, bidID string) (models.Bid, error)
	ProjectBids(ctx context.Context, session, projectID string) ([]models.Bid, error)
	SaveWorkerProfile(ctx context.Context, session string, in bids.ProfileInput) (models.WorkerProfile, error)
	SaveOwnerProfile(ctx context.Context, session string, in projects.OwnerProfileInput) (models.OwnerProfile, error)
	SaveSupplierProfile(ctx context.Context, session string, in orders.SupplierProfileInput) (models.SupplierProfile, error)

	CreateMaterial(ctx context.Context, session string, in orders.MaterialInput) (models.Material, error)
	UpdateMaterial(ctx context.Context, session, materialID string, patch orders.MaterialPatch) (models.Material, error)
	Catalogue(ctx context.Context, session string) ([]models.Material, error)
	PlaceOrder(ctx context.Context, session string, in orders.PlaceInput) (models.MaterialOrder, error)
	ConfirmOrder(ctx context.Context, session, orderID string) (models.MaterialOrder, error)
	ShipOrder(ctx context.Context, session, orderID string) (models.MaterialOrder, error)
	DeliverOrder(ctx context.Context, session, orderID string) (models.MaterialOrder, error)
	CancelOrder(ctx context.Context, session, orderID string) (models.MaterialOrder, error)
	ProjectOrders(ctx context.Context, session, projectID string) ([]models.MaterialOrder, error)

	Dashboard(ctx context.Context, session string) (workflow.Dashboard, error)
}

// Accounts covers sign-up and sessions.
type Accounts interface {
	Register(ctx context.Context, in auth.RegisterInput) (models.User, error)
	Authenticate(ctx context.Context, cred auth.Credential) (string, string, error)
	Revoke(ctx context.Context, session string) error
}

type Handler struct {
	flow     Workflow
	accounts Accounts
}

func NewHandler(flow Workflow, accounts Accounts) *Handler {
	return &Handler{flow: flow, accounts: accounts}
}

// PingHandler answers "ok" for liveness checks.
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		logger.Warn("Failed to write ping response", map[string]any{"error": err.Error()})
	}
}

// decode reads a size-limited JSON body into dst. Malformed input is tagged
// as invalid input so it maps to 400.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read request body", marketerrors.ErrInvalidInput)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: invalid JSON format", marketerrors.ErrInvalidInput)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; all that is left is to record the failure.
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", map[string]any{"status": status, "error": err.Error()})
	}
}
