package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shawn/vesta-provisioner/internal/api"
	"github.com/shawn/vesta-provisioner/internal/auth"
	"github.com/shawn/vesta-provisioner/internal/cache"
	"github.com/shawn/vesta-provisioner/internal/calllog"
	"github.com/shawn/vesta-provisioner/internal/lock"
	"github.com/shawn/vesta-provisioner/internal/provision"
	"github.com/shawn/vesta-provisioner/internal/reconciler"
	"github.com/shawn/vesta-provisioner/internal/registry"
	"github.com/shawn/vesta-provisioner/internal/secret"
	"github.com/shawn/vesta-provisioner/internal/servers"
	"github.com/shawn/vesta-provisioner/internal/vesta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	h      *api.Handler
	reg    *registry.MockClient
	locker *lock.MockLocker
	usage  *cache.MockUsage
	panel  *vesta.MockCaller
	box    *secret.Box
	pool   *provision.Pool
}

func newFixture(t *testing.T, signer *auth.Signer) *fixture {
	t.Helper()
	dir, err := servers.NewDirectory([]servers.Server{{
		ID: "eu", Name: "EU", HostName: "eu.example.com", Port: 8083, UserName: "admin", Password: "pw",
	}})
	require.NoError(t, err)

	f := &fixture{
		reg:    registry.NewMock(),
		locker: lock.NewMock(),
		usage:  cache.NewMock(),
		panel:  vesta.NewMockCaller(),
	}
	f.box, err = secret.NewBox("test-key")
	require.NoError(t, err)

	f.pool = provision.NewPool(dir, nil, provision.Options{}, func(servers.Server) vesta.Caller { return f.panel })
	f.h = api.New(f.reg, f.pool, f.locker, f.usage, f.box, signer, api.Config{LockTTL: time.Minute})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.h.Router().ServeHTTP(rec, req)
	return rec
}

// seed stores an active service whose password is sealed with the fixture's box
func (f *fixture) seed(t *testing.T, id, username, password string) {
	t.Helper()
	sealed, err := f.box.Seal(password)
	require.NoError(t, err)
	require.NoError(t, f.reg.CreateService(context.Background(), &registry.ServiceRecord{
		ServiceID: id,
		ServerID:  "eu",
		Status:    registry.StatusActive,
		Domain:    username + ".example.com",
		Username:  username,
		Password:  sealed,
		Package:   "default",
		CreatedAt: time.Now().UTC(),
	}))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListServers_HidesCredentials(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/servers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "eu.example.com")
	assert.NotContains(t, rec.Body.String(), `"pw"`)
}

func TestCreateService(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/services", map[string]any{
		"domain":       "example.com",
		"package":      "default",
		"email":        "owner@example.com",
		"shell_access": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Service registry.ServiceRecord `json:"service"`
		Fields  provision.Fields       `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, registry.StatusActive, resp.Service.Status)
	assert.Equal(t, "eu", resp.Service.ServerID)
	assert.Empty(t, resp.Service.Password, "password redacted")

	sealed, ok := resp.Fields.Get(provision.FieldPassword)
	require.True(t, ok)
	plain, err := f.box.Open(sealed)
	require.NoError(t, err, "returned password is sealed")
	assert.GreaterOrEqual(t, len(plain), 10)

	stored, err := f.reg.GetService(context.Background(), resp.Service.ServiceID)
	require.NoError(t, err)
	assert.Equal(t, resp.Service.Username, stored.Username)
	assert.True(t, stored.ShellAccess)
	assert.NotEqual(t, plain, stored.Password)

	assert.Equal(t, []string{vesta.CmdListUser, vesta.CmdAddUser, vesta.CmdAddDomain, vesta.CmdChangeUserShell}, f.panel.Commands())
}

func TestCreateService_ValidationFailure(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/services", map[string]any{
		"domain":  "testsite.com",
		"package": "default",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), provision.FieldDomain)
	assert.Empty(t, f.panel.Calls(), "nothing sent to the panel")

	all, _ := f.reg.ListAll(context.Background())
	assert.Empty(t, all, "pending record removed")
}

func TestCreateService_UnknownServer(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/services", map[string]any{
		"server_id": "apac",
		"domain":    "example.com",
		"package":   "default",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateService_PartialKeepsRecord(t *testing.T) {
	f := newFixture(t, nil)
	f.panel.Respond(vesta.CmdAddDomain, "Error: domain exists")

	rec := f.do(t, http.MethodPost, "/services", map[string]any{
		"domain":  "example.com",
		"package": "default",
	})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), provision.APIInternalMessage)

	all, _ := f.reg.ListAll(context.Background())
	require.Len(t, all, 1)
	assert.Equal(t, registry.StatusPending, all[0].Status)
	assert.NotEmpty(t, all[0].Username)
}

func TestCreateService_WithoutModule(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/services", map[string]any{
		"domain":     "example.com",
		"package":    "default",
		"use_module": false,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, f.panel.Calls())

	var resp struct {
		Service registry.ServiceRecord `json:"service"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Service.Detached)

	// No panel account exists, so drift checks must leave it active
	reconciler.New(f.reg, f.pool, f.usage, 0).Reconcile(context.Background())

	got, err := f.reg.GetService(context.Background(), resp.Service.ServiceID)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusActive, got.Status)
	assert.Empty(t, f.panel.Calls())
}

func TestGetAndListServices(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "svc-1", "alice", "alicepass1")
	f.seed(t, "svc-2", "bob", "bobpass12")
	require.NoError(t, f.reg.UpdateStatus(context.Background(), "svc-2", registry.StatusSuspended))

	rec := f.do(t, http.MethodGet, "/services/svc-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got registry.ServiceRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "alice", got.Username)
	assert.Empty(t, got.Password)

	rec = f.do(t, http.MethodGet, "/services?status=suspended", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []registry.ServiceRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "svc-2", list[0].ServiceID)

	rec = f.do(t, http.MethodGet, "/services/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListServices_Empty(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/services", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestUpdateService_PasswordAndShell(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "svc-1", "alice", "alicepass1")

	rec := f.do(t, http.MethodPatch, "/services/svc-1", map[string]any{
		"password":     "newpassword9",
		"shell_access": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	calls := f.panel.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, vesta.CmdChangeUserPassword, calls[0].Command)
	assert.Equal(t, []string{"alice", "newpassword9"}, calls[0].Args)
	assert.Equal(t, vesta.CmdChangeUserShell, calls[1].Command)

	stored, _ := f.reg.GetService(context.Background(), "svc-1")
	plain, err := f.box.Open(stored.Password)
	require.NoError(t, err)
	assert.Equal(t, "newpassword9", plain)
	assert.True(t, stored.ShellAccess)
}

func TestUpdateService_NoChangeSendsNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "svc-1", "alice", "alicepass1")

	rec := f.do(t, http.MethodPatch, "/services/svc-1", map[string]any{"password": "alicepass1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.panel.Calls())
}

func TestUpdateService_ShortPassword(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "svc-1", "alice", "alicepass1")

	rec := f.do(t, http.MethodPatch, "/services/svc-1", map[string]any{"password": "short"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSuspendUnsuspend(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "svc-1", "alice", "alicepass1")

	rec := f.do(t, http.MethodPost, "/services/svc-1/suspend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored, _ := f.reg.GetService(context.Background(), "svc-1")
	assert.Equal(t, registry.StatusSuspended, stored.Status)

	rec = f.do(t, http.MethodPost, "/services/svc-1/unsuspend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored, _ = f.reg.GetService(context.Background(), "svc-1")
	assert.Equal(t, registry.StatusActive, stored.Status)

	assert.Equal(t, []string{vesta.CmdSuspendUser, vesta.CmdUnsuspendUser}, f.panel.Commands())
}

func TestSuspend_PanelRejects(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "svc-1", "alice", "alicepass1")
	f.panel.Respond(vesta.CmdSuspendUser, "Error: user doesn't exist")

	rec := f.do(t, http.MethodPost, "/services/svc-1/suspend", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	stored, _ := f.reg.GetService(context.Background(), "svc-1")
	assert.Equal(t, registry.StatusActive, stored.Status, "status unchanged on failure")
}

func TestMutation_LockContention(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "svc-1", "alice", "alicepass1")

	ok, err := f.locker.AcquireServiceLock(context.Background(), "svc-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	rec := f.do(t, http.MethodPost, "/services/svc-1/suspend", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, f.panel.Calls())
}

func TestMutation_ReleasesLock(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "svc-1", "alice", "alicepass1")

	f.do(t, http.MethodPost, "/services/svc-1/suspend", nil)
	ok, _ := f.locker.AcquireServiceLock(context.Background(), "svc-1", time.Minute)
	assert.True(t, ok, "lock released after the request")
}

func TestChangePackage(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "svc-1", "alice", "alicepass1")

	rec := f.do(t, http.MethodPut, "/services/svc-1/package", map[string]string{"package": "gold"})
	require.Equal(t, http.StatusOK, rec.Code)
	stored, _ := f.reg.GetService(context.Background(), "svc-1")
	assert.Equal(t, "gold", stored.Package)
	assert.Equal(t, []string{"alice", "gold"}, f.panel.Calls()[0].Args)

	rec = f.do(t, http.MethodPut, "/services/svc-1/package", map[string]string{"package": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCancelService(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "svc-1", "alice", "alicepass1")
	require.NoError(t, f.usage.Set(context.Background(), "svc-1", vesta.Usage{"U_DISK": "3"}))

	rec := f.do(t, http.MethodDelete, "/services/svc-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, _ := f.reg.GetService(context.Background(), "svc-1")
	assert.Equal(t, registry.StatusCanceled, stored.Status)
	_, hit, _ := f.usage.Get(context.Background(), "svc-1")
	assert.False(t, hit)

	// Second cancel is a no-op
	rec = f.do(t, http.MethodDelete, "/services/svc-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{vesta.CmdDeleteUser}, f.panel.Commands())

	rec = f.do(t, http.MethodDelete, "/services/ghost", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestUsage_CachesListing(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "svc-1", "alice", "alicepass1")
	f.panel.Respond(vesta.CmdListUser, `{"alice":{"U_DISK":"12","DISK_QUOTA":"1000"}}`)

	rec := f.do(t, http.MethodGet, "/services/svc-1/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"))
	var u vesta.Usage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&u))
	assert.Equal(t, "12", u.String("U_DISK"))

	rec = f.do(t, http.MethodGet, "/services/svc-1/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
	assert.Len(t, f.panel.Calls(), 1)
}

func TestUsage_PanelDown(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "svc-1", "alice", "alicepass1")
	f.panel.Fail(vesta.CmdListUser, errors.New("connection refused"))

	rec := f.do(t, http.MethodGet, "/services/svc-1/usage", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAuth_RequiresBearer(t *testing.T) {
	signer := auth.NewSigner("jwt-secret", time.Hour)
	f := newFixture(t, signer)

	rec := f.do(t, http.MethodGet, "/services", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays public
	rec = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	token, err := signer.Sign("billing")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/services", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	f.h.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

type history struct {
	target string
	limit  int
}

func (h *history) Recent(_ context.Context, target string, limit int) ([]calllog.Entry, error) {
	h.target, h.limit = target, limit
	return []calllog.Entry{{Target: target, Command: vesta.CmdAddUser, Success: true}}, nil
}

func TestListCalls(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/servers/eu/calls", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "disabled without a store")

	hist := &history{}
	f.h.WithCallHistory(hist)
	rec = f.do(t, http.MethodGet, "/servers/eu/calls?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "eu.example.com", hist.target)
	assert.Equal(t, 5, hist.limit)
	assert.Contains(t, rec.Body.String(), vesta.CmdAddUser)

	rec = f.do(t, http.MethodGet, "/servers/apac/calls", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
