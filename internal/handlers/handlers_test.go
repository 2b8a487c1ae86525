package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"buildhub/internal/auth"
	"buildhub/internal/bids"
	"buildhub/internal/config"
	"buildhub/internal/handlers"
	"buildhub/internal/logger"
	"buildhub/internal/marketerrors"
	"buildhub/internal/orders"
	"buildhub/internal/projects"
	"buildhub/internal/testutils"
	"buildhub/internal/workflow"
	"buildhub/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type app struct {
	fx      *testutils.Fixture
	handler *handlers.Handler
	server  http.Handler
}

func newApp(t *testing.T) *app {
	t.Helper()
	fx := testutils.NewFixture(t)
	policy := config.DefaultPolicy()
	provider := auth.NewProvider(fx.Store, []byte("handler-test-secret-123"), time.Hour, auth.WithBcryptCost(bcrypt.MinCost))
	lc := projects.NewLifecycle(fx.Store)
	flow := workflow.New(fx.Store, provider, lc,
		bids.NewLedger(fx.Store, lc, policy.Bids),
		orders.NewFulfillment(fx.Store, policy.Orders),
		time.Second,
	)
	h := handlers.NewHandler(flow, provider)
	return &app{fx: fx, handler: h, server: h.Routes()}
}

func (a *app) do(t *testing.T, method, path, session string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if session != "" {
		testutils.WithBearer(req, session)
	}
	rec := httptest.NewRecorder()
	a.server.ServeHTTP(rec, req)
	return rec
}

// signUp registers a user over HTTP and returns its id and session.
func (a *app) signUp(t *testing.T, role models.Role) (string, string) {
	t.Helper()
	email := fmt.Sprintf("%s-%d@example.com", role, time.Now().UnixNano())
	rec := a.do(t, http.MethodPost, "/api/auth/register", "", auth.RegisterInput{
		Email: email, Password: "s3cret-pass", FullName: "Test " + string(role), Role: role,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/api/auth/login", "", auth.Credential{Email: email, Password: "s3cret-pass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		UserID  string `json:"userId"`
		Session string `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.UserID, out.Session
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestPingHandler(t *testing.T) {
	t.Parallel()
	a := newApp(t)
	rec := a.do(t, http.MethodGet, "/api/ping", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

// brokenWriter accepts headers but fails every body write.
type brokenWriter struct {
	header http.Header
	status int
}

func (w *brokenWriter) Header() http.Header       { return w.header }
func (w *brokenWriter) WriteHeader(status int)    { w.status = status }
func (w *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset by peer") }

// Not parallel: it swaps the global log output.
func TestResponseWriteFailuresAreLogged(t *testing.T) {
	var logs bytes.Buffer
	logger.SetOutput(&logs)
	t.Cleanup(func() { logger.SetOutput(io.Discard) })

	a := newApp(t)
	_, session := a.signUp(t, models.RoleOwner)

	w := &brokenWriter{header: http.Header{}}
	a.handler.PingHandler(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assert.Equal(t, http.StatusOK, w.status)
	assert.Contains(t, logs.String(), "Failed to write ping response")

	logs.Reset()
	w = &brokenWriter{header: http.Header{}}
	req := testutils.WithBearer(httptest.NewRequest(http.MethodGet, "/api/materials", nil), session)
	handlers.RequireSession(http.HandlerFunc(a.handler.CatalogueHandler)).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.status)
	assert.Contains(t, logs.String(), "Failed to encode response")
}

func TestBidSettlementOverHTTP(t *testing.T) {
	t.Parallel()
	a := newApp(t)
	_, owner := a.signUp(t, models.RoleOwner)
	_, worker := a.signUp(t, models.RoleWorker)
	_, rival := a.signUp(t, models.RoleWorker)

	rec := a.do(t, http.MethodPost, "/api/projects", owner, projects.CreateInput{
		Title: "Bathroom tiling", Description: "20 square metres", Location: "Eldoret",
		RequiredSkills: models.SkillSet{models.SkillMason},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	project := decodeBody[models.Project](t, rec)
	require.Equal(t, models.ProjectDraft, project.Status)

	rec = a.do(t, http.MethodPost, "/api/projects/"+project.ID+"/bids", worker, map[string]any{"proposedRate": 30})
	require.Equal(t, http.StatusConflict, rec.Code, "draft projects take no bids")

	rec = a.do(t, http.MethodPost, "/api/projects/"+project.ID+"/publish", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/api/projects/"+project.ID+"/bids", worker, map[string]any{"proposedRate": 30})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bid := decodeBody[models.Bid](t, rec)
	require.Equal(t, models.BidPending, bid.Status)

	rec = a.do(t, http.MethodPost, "/api/projects/"+project.ID+"/bids", worker, map[string]any{"proposedRate": 28})
	require.Equal(t, http.StatusConflict, rec.Code, "second active bid")

	rec = a.do(t, http.MethodPost, "/api/projects/"+project.ID+"/bids", rival, map[string]any{"proposedRate": 35, "message": "can start today"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rivalBid := decodeBody[models.Bid](t, rec)

	rec = a.do(t, http.MethodPost, "/api/bids/"+bid.ID+"/accept", worker, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/bids/"+bid.ID+"/accept", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[bids.AcceptResult](t, rec)
	assert.Equal(t, models.BidAccepted, res.Accepted.Status)
	assert.Equal(t, models.ProjectInProgress, res.Project.Status)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, rivalBid.ID, res.Rejected[0].ID)

	rec = a.do(t, http.MethodPost, "/api/bids/"+rivalBid.ID+"/accept", owner, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/projects/"+project.ID+"/bids", rival, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decodeBody[[]models.Bid](t, rec)
	require.Len(t, mine, 1)
	assert.Equal(t, models.BidRejected, mine[0].Status)

	rec = a.do(t, http.MethodPost, "/api/bids/missing/accept", owner, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderFlowOverHTTP(t *testing.T) {
	t.Parallel()
	a := newApp(t)
	ownerID, owner := a.signUp(t, models.RoleOwner)
	_, supplier := a.signUp(t, models.RoleSupplier)
	project := a.fx.Project(ownerID, models.ProjectInProgress)

	rec := a.do(t, http.MethodPost, "/api/materials", supplier, orders.MaterialInput{
		Name: "Timber", Category: "wood", Unit: "plank", PricePerUnit: 25, AvailableQuantity: 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	material := decodeBody[models.Material](t, rec)

	rec = a.do(t, http.MethodGet, "/api/materials", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]models.Material](t, rec), 1)

	rec = a.do(t, http.MethodPost, "/api/orders", owner, orders.PlaceInput{
		MaterialID: material.ID, ProjectID: project.ID, Quantity: 10, DeliveryAddress: "Yard 3",
	})
	require.Equal(t, http.StatusConflict, rec.Code, "quantity 10 exceeds stock 5")

	rec = a.do(t, http.MethodPost, "/api/orders", owner, orders.PlaceInput{
		MaterialID: material.ID, ProjectID: project.ID, Quantity: 4, DeliveryAddress: "Yard 3",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decodeBody[models.MaterialOrder](t, rec)
	assert.Equal(t, 100.0, order.TotalPrice)

	rec = a.do(t, http.MethodPatch, "/api/materials/"+material.ID, supplier, map[string]any{"pricePerUnit": 50})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/api/orders/"+order.ID+"/ship", supplier, nil)
	require.Equal(t, http.StatusConflict, rec.Code, "ship must follow confirm")

	for _, step := range []string{"confirm", "ship", "deliver"} {
		rec = a.do(t, http.MethodPost, "/api/orders/"+order.ID+"/"+step, supplier, nil)
		require.Equal(t, http.StatusOK, rec.Code, step+": "+rec.Body.String())
	}
	order = decodeBody[models.MaterialOrder](t, rec)
	assert.Equal(t, models.OrderDelivered, order.Status)
	assert.Equal(t, 100.0, order.TotalPrice)
	assert.Equal(t, 1, a.fx.GetMaterial(material.ID).AvailableQuantity)

	rec = a.do(t, http.MethodPost, "/api/orders/"+order.ID+"/cancel", owner, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/projects/"+project.ID+"/orders", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]models.MaterialOrder](t, rec), 1)

	rec = a.do(t, http.MethodPut, "/api/suppliers/me/profile", owner, orders.SupplierProfileInput{BusinessName: "Not mine"})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	rec = a.do(t, http.MethodPut, "/api/suppliers/me/profile", supplier, orders.SupplierProfileInput{
		BusinessName: "Timber Yard", MaterialCategories: []string{"wood"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/api/dashboard", supplier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decodeBody[workflow.Dashboard](t, rec)
	require.Len(t, d.Materials, 1)
	require.Len(t, d.Orders, 1)
	assert.Equal(t, project.Title, d.Orders[0].Project.Title)
	assert.Equal(t, "Timber", d.Orders[0].Material.Name)
	assert.Equal(t, 50.0, d.Orders[0].Material.PricePerUnit, "current catalogue price")
	assert.Equal(t, 100.0, d.Orders[0].TotalPrice, "price snapshot at placement")
	require.NotNil(t, d.SupplierProfile)
	assert.Equal(t, "Timber Yard", d.SupplierProfile.BusinessName)

	rec = a.do(t, http.MethodPut, "/api/owners/me/profile", owner, projects.OwnerProfileInput{CompanyName: "Yard Builders"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(t, http.MethodGet, "/api/dashboard", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d = decodeBody[workflow.Dashboard](t, rec)
	require.NotNil(t, d.OwnerProfile)
	assert.Equal(t, "Yard Builders", d.OwnerProfile.CompanyName)
	require.Len(t, d.Orders, 1)
	assert.Equal(t, "plank", d.Orders[0].Material.Unit)
}

func TestSessionsOverHTTP(t *testing.T) {
	t.Parallel()
	a := newApp(t)
	_, worker := a.signUp(t, models.RoleWorker)

	rec := a.do(t, http.MethodGet, "/api/dashboard", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/dashboard", "forged.token.value", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodPut, "/api/workers/me/profile", worker, bids.ProfileInput{
		Skills: models.SkillSet{models.SkillPainter}, HourlyRate: testutils.Float(15), Availability: true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/api/dashboard", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decodeBody[workflow.Dashboard](t, rec)
	require.NotNil(t, d.Profile)
	assert.Equal(t, models.RoleWorker, d.User.Role)

	rec = a.do(t, http.MethodPost, "/api/auth/logout", worker, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/dashboard", worker, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/auth/login", "", auth.Credential{Email: "nobody@example.com", Password: "whatever1"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInvalidPayloads(t *testing.T) {
	t.Parallel()
	a := newApp(t)
	_, owner := a.signUp(t, models.RoleOwner)

	req := httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader("{not json"))
	testutils.WithBearer(req, owner)
	rec := httptest.NewRecorder()
	a.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[handlers.ErrorResponse](t, rec)
	assert.Equal(t, http.StatusBadRequest, body.Status)

	rec = a.do(t, http.MethodPost, "/api/projects", owner, projects.CreateInput{Title: "", Description: "x", Location: "y"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/auth/register", "", auth.RegisterInput{Email: "bad", Password: "s3cret-pass", FullName: "A", Role: models.RoleOwner})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// Handlers can be called directly with the chi params and the session
// middleware, without the router.
func TestCancelProjectHandlerDirect(t *testing.T) {
	t.Parallel()
	a := newApp(t)
	ownerID, owner := a.signUp(t, models.RoleOwner)
	p := a.fx.Project(ownerID, models.ProjectOpen)
	pending := a.fx.Bid(p.ID, a.fx.User(models.RoleWorker).ID, 40, models.BidPending)

	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+p.ID+"/cancel", nil)
	req = testutils.WithChiURLParams(testutils.WithBearer(req, owner), map[string]string{"projectId": p.ID})
	rec := httptest.NewRecorder()
	handlers.RequireSession(http.HandlerFunc(a.handler.CancelProjectHandler)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[projects.CancelResult](t, rec)
	assert.Equal(t, models.ProjectCancelled, res.Project.Status)
	require.Len(t, res.RejectedBids, 1)
	assert.Equal(t, models.BidRejected, a.fx.GetBid(pending.ID).Status)
}

func TestMapErrorToHTTP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want int
	}{
		{marketerrors.ErrNotFound, http.StatusNotFound},
		{marketerrors.ErrInvalidState, http.StatusConflict},
		{marketerrors.ErrAlreadyResolved, http.StatusConflict},
		{marketerrors.ErrDuplicateBid, http.StatusConflict},
		{marketerrors.ErrInsufficientStock, http.StatusConflict},
		{marketerrors.ErrUnauthorized, http.StatusForbidden},
		{marketerrors.ErrUnauthenticated, http.StatusUnauthorized},
		{marketerrors.ErrInvalidInput, http.StatusBadRequest},
		{marketerrors.ErrTimeout, http.StatusGatewayTimeout},
		{marketerrors.ErrStoreFailure, http.StatusServiceUnavailable},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		wrapped := fmt.Errorf("layer: %w", tc.err)
		status, msg := handlers.MapErrorToHTTP(wrapped)
		assert.Equal(t, tc.want, status, tc.err.Error())
		assert.NotEmpty(t, msg)
	}
}
