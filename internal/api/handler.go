package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shawn/vesta-provisioner/internal/auth"
	"github.com/shawn/vesta-provisioner/internal/cache"
	"github.com/shawn/vesta-provisioner/internal/calllog"
	"github.com/shawn/vesta-provisioner/internal/lock"
	"github.com/shawn/vesta-provisioner/internal/metrics"
	"github.com/shawn/vesta-provisioner/internal/provision"
	"github.com/shawn/vesta-provisioner/internal/registry"
	"github.com/shawn/vesta-provisioner/internal/secret"
)

// Config holds API configuration
type Config struct {
	LockTTL time.Duration
}

// CallHistory reads back recorded panel commands
type CallHistory interface {
	Recent(ctx context.Context, target string, limit int) ([]calllog.Entry, error)
}

// Handler is the provisioner HTTP handler
type Handler struct {
	reg    registry.Client
	pool   *provision.Pool
	lock   lock.Locker
	usage  cache.Usage  // nil disables usage caching
	box    *secret.Box  // nil means passwords are not persisted
	signer *auth.Signer // nil disables authentication
	calls  CallHistory
	cfg    Config
}

func New(reg registry.Client, pool *provision.Pool, locker lock.Locker, usage cache.Usage, box *secret.Box, signer *auth.Signer, cfg Config) *Handler {
	if cfg.LockTTL == 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Handler{reg: reg, pool: pool, lock: locker, usage: usage, box: box, signer: signer, cfg: cfg}
}

// WithCallHistory enables GET /servers/{serverID}/calls
func (h *Handler) WithCallHistory(calls CallHistory) *Handler {
	h.calls = calls
	return h
}

// Router returns the chi router with all routes registered
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if h.signer != nil {
			r.Use(h.signer.Middleware)
		}
		r.Get("/servers", h.ListServers)
		r.Get("/servers/{serverID}/calls", h.ListCalls)
		r.Post("/services", h.CreateService)
		r.Get("/services", h.ListServices)
		r.Get("/services/{serviceID}", h.GetService)
		r.Patch("/services/{serviceID}", h.UpdateService)
		r.Delete("/services/{serviceID}", h.CancelService)
		r.Post("/services/{serviceID}/suspend", h.SuspendService)
		r.Post("/services/{serviceID}/unsuspend", h.UnsuspendService)
		r.Put("/services/{serviceID}/package", h.ChangePackage)
		r.Get("/services/{serviceID}/usage", h.Usage)
	})

	return r
}

// Healthz returns 200 OK
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ListServers returns the configured panels without credentials
func (h *Handler) ListServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.Servers())
}

// ListCalls returns the most recent commands sent to one panel
func (h *Handler) ListCalls(w http.ResponseWriter, r *http.Request) {
	if h.calls == nil {
		http.Error(w, "call history not configured", http.StatusNotFound)
		return
	}
	s, err := h.pool.Select(chi.URLParam(r, "serverID"))
	if err != nil {
		writeError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.calls.Recent(r.Context(), s.HostName, limit)
	if err != nil {
		slog.Error("list calls failed", "server", s.ID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []calllog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type createRequest struct {
	ServerID    string `json:"server_id"`
	Domain      string `json:"domain"`
	Package     string `json:"package"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	ShellAccess bool   `json:"shell_access"`
	UseModule   *bool  `json:"use_module"`
}

type createResponse struct {
	Service *registry.ServiceRecord `json:"service"`
	// Fields carries the persisted values with encrypted ones sealed.
	Fields provision.Fields `json:"fields"`
}

// CreateService provisions a new hosting account and records it
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	p, serverID, err := h.pool.For(req.ServerID)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now().UTC()
	rec := &registry.ServiceRecord{
		ServiceID: uuid.NewString(),
		ServerID:  serverID,
		Status:    registry.StatusPending,
		Domain:    req.Domain,
		Package:   req.Package,
		Email:     req.Email,
		Detached:  !boolOr(req.UseModule, true),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.reg.CreateService(ctx, rec); err != nil {
		slog.Error("create service record failed", "service", rec.ServiceID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	fields, err := p.AddService(ctx, provision.AddRequest{
		Domain:  req.Domain,
		Package: req.Package,
		Contact: provision.Contact{
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		},
		ShellAccess: req.ShellAccess,
		UseModule:   boolOr(req.UseModule, true),
		Username:    req.Username,
	})
	if err != nil {
		h.abandon(ctx, rec, err)
		writeError(w, err)
		return
	}

	sealed, err := h.applyFields(rec, fields)
	if err != nil {
		slog.Error("seal credentials failed", "service", rec.ServiceID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	rec.ShellAccess = req.ShellAccess
	rec.Status = registry.StatusActive
	if err := h.reg.PutService(ctx, rec); err != nil {
		slog.Error("activate service record failed", "service", rec.ServiceID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	slog.Info("service created", "service", rec.ServiceID, "server", serverID, "username", rec.Username)

	rec.Password = ""
	writeJSON(w, http.StatusCreated, createResponse{Service: rec, Fields: sealed})
}

// abandon cleans up the pending record after a failed create. A partially
// provisioned account that was not rolled back keeps its record so the
// operator can find the username.
func (h *Handler) abandon(ctx context.Context, rec *registry.ServiceRecord, cause error) {
	var pe *provision.PartialError
	if errors.As(cause, &pe) && !pe.RolledBack {
		rec.Username = pe.Username
		if err := h.reg.PutService(ctx, rec); err != nil {
			slog.Error("record partial service failed", "service", rec.ServiceID, "err", err)
		}
		return
	}
	if err := h.reg.DeleteService(ctx, rec.ServiceID); err != nil {
		slog.Error("delete pending service failed", "service", rec.ServiceID, "err", err)
	}
}

// applyFields copies operation output onto rec, storing the password sealed.
func (h *Handler) applyFields(rec *registry.ServiceRecord, fields provision.Fields) (provision.Fields, error) {
	if v, ok := fields.Get(provision.FieldDomain); ok {
		rec.Domain = v
	}
	if v, ok := fields.Get(provision.FieldUsername); ok {
		rec.Username = v
	}
	if h.box == nil {
		rec.Password = ""
		return redactFields(fields), nil
	}
	sealed, err := h.box.SealFields(fields)
	if err != nil {
		return nil, err
	}
	rec.Password, _ = sealed.Get(provision.FieldPassword)
	return sealed, nil
}

func redactFields(fields provision.Fields) provision.Fields {
	out := make(provision.Fields, 0, len(fields))
	for _, f := range fields {
		if f.Encrypted {
			f.Value = ""
		}
		out = append(out, f)
	}
	return out
}

// ListServices returns all services, optionally filtered by ?status=
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	var (
		records []*registry.ServiceRecord
		err     error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		records, err = h.reg.ListByStatus(r.Context(), registry.ServiceStatus(status))
	} else {
		records, err = h.reg.ListAll(r.Context())
	}
	if err != nil {
		slog.Error("list services failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*registry.ServiceRecord{}
	}
	for _, rec := range records {
		rec.Password = ""
	}
	writeJSON(w, http.StatusOK, records)
}

// GetService returns one service (password redacted)
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.find(w, r)
	if !ok {
		return
	}
	rec.Password = ""
	writeJSON(w, http.StatusOK, rec)
}

type updateRequest struct {
	Domain      string `json:"domain"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	ShellAccess *bool  `json:"shell_access"`
	UseModule   *bool  `json:"use_module"`
}

// UpdateService changes credentials or shell access
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	h.mutate(w, r, func(ctx context.Context, rec *registry.ServiceRecord, p *provision.Provisioner) error {
		current, err := h.current(rec)
		if err != nil {
			return err
		}
		fields, err := p.EditService(ctx, current, provision.EditRequest{
			Domain:      req.Domain,
			Username:    req.Username,
			Password:    req.Password,
			ShellAccess: req.ShellAccess,
			UseModule:   boolOr(req.UseModule, true),
		})
		if err != nil {
			return err
		}
		if _, err := h.applyFields(rec, fields); err != nil {
			return err
		}
		if req.ShellAccess != nil {
			rec.ShellAccess = *req.ShellAccess
		}
		return h.reg.PutService(ctx, rec)
	})
}

// current rebuilds what was persisted for rec, opening the sealed password.
func (h *Handler) current(rec *registry.ServiceRecord) (provision.Service, error) {
	svc := provision.Service{
		Domain:      rec.Domain,
		Username:    rec.Username,
		Package:     rec.Package,
		ShellAccess: rec.ShellAccess,
	}
	if h.box != nil && rec.Password != "" {
		pw, err := h.box.Open(rec.Password)
		if err != nil {
			return svc, err
		}
		svc.Password = pw
	}
	return svc, nil
}

// SuspendService suspends the panel account
func (h *Handler) SuspendService(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, rec *registry.ServiceRecord, p *provision.Provisioner) error {
		if err := p.SuspendService(ctx, rec.Username); err != nil {
			return err
		}
		rec.Status = registry.StatusSuspended
		return h.reg.UpdateStatus(ctx, rec.ServiceID, registry.StatusSuspended)
	})
}

// UnsuspendService reactivates the panel account
func (h *Handler) UnsuspendService(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, rec *registry.ServiceRecord, p *provision.Provisioner) error {
		if err := p.UnsuspendService(ctx, rec.Username); err != nil {
			return err
		}
		rec.Status = registry.StatusActive
		return h.reg.UpdateStatus(ctx, rec.ServiceID, registry.StatusActive)
	})
}

// ChangePackage moves the account to another hosting package
func (h *Handler) ChangePackage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Package string `json:"package"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	h.mutate(w, r, func(ctx context.Context, rec *registry.ServiceRecord, p *provision.Provisioner) error {
		if err := p.ChangeServicePackage(ctx, rec.Username, req.Package); err != nil {
			return err
		}
		rec.Package = req.Package
		return h.reg.UpdatePackage(ctx, rec.ServiceID, req.Package)
	})
}

// CancelService deletes the panel account and marks the service canceled
func (h *Handler) CancelService(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")
	rec, err := h.reg.GetService(r.Context(), serviceID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rec == nil || rec.Status == registry.StatusCanceled {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.mutate(w, r, func(ctx context.Context, rec *registry.ServiceRecord, p *provision.Provisioner) error {
		if err := p.CancelService(ctx, rec.Username); err != nil {
			return err
		}
		if h.usage != nil {
			if err := h.usage.Delete(ctx, rec.ServiceID); err != nil {
				slog.Warn("cancel service: failed to clear usage cache", "service", rec.ServiceID, "err", err)
			}
		}
		rec.Status = registry.StatusCanceled
		return h.reg.UpdateStatus(ctx, rec.ServiceID, registry.StatusCanceled)
	})
}

// Usage returns the panel counters, served from cache when fresh
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.find(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if h.usage != nil {
		u, hit, err := h.usage.Get(ctx, rec.ServiceID)
		if err != nil {
			slog.Warn("usage cache read failed", "service", rec.ServiceID, "err", err)
		}
		if hit {
			w.Header().Set("X-Cache", "hit")
			writeJSON(w, http.StatusOK, u)
			return
		}
	}

	p, _, err := h.pool.For(rec.ServerID)
	if err != nil {
		writeError(w, err)
		return
	}
	u, err := p.ServiceUsage(ctx, rec.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.usage != nil {
		if err := h.usage.Set(ctx, rec.ServiceID, u); err != nil {
			slog.Warn("usage cache write failed", "service", rec.ServiceID, "err", err)
		}
	}
	w.Header().Set("X-Cache", "miss")
	writeJSON(w, http.StatusOK, u)
}

// find loads the service named in the URL, writing 404 when absent
func (h *Handler) find(w http.ResponseWriter, r *http.Request) (*registry.ServiceRecord, bool) {
	serviceID := chi.URLParam(r, "serviceID")
	rec, err := h.reg.GetService(r.Context(), serviceID)
	if err != nil {
		slog.Error("get service failed", "service", serviceID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	if rec == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return nil, false
	}
	return rec, true
}

// mutate runs fn under the per-service lock and responds with the updated record
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, rec *registry.ServiceRecord, p *provision.Provisioner) error) {
	ctx := r.Context()
	serviceID := chi.URLParam(r, "serviceID")

	acquired, err := h.lock.AcquireServiceLock(ctx, serviceID, h.cfg.LockTTL)
	if err != nil {
		slog.Error("acquire service lock failed", "service", serviceID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !acquired {
		http.Error(w, "service is being modified", http.StatusConflict)
		return
	}
	defer h.lock.ReleaseServiceLock(context.WithoutCancel(ctx), serviceID)

	rec, ok := h.find(w, r)
	if !ok {
		return
	}
	p, _, err := h.pool.For(rec.ServerID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := fn(ctx, rec, p); err != nil {
		slog.Error("service operation failed", "service", serviceID, "path", r.URL.Path, "err", err)
		writeError(w, err)
		return
	}
	if rec.Status == registry.StatusCanceled {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	rec.Password = ""
	writeJSON(w, http.StatusOK, rec)
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeError maps provisioning failures onto status codes. Panel failures
// surface the generic message billing frontends show to customers.
func writeError(w http.ResponseWriter, err error) {
	var (
		ve *provision.ValidationError
		pe *provision.PartialError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation failed", Fields: ve.Fields})
	case errors.Is(err, provision.ErrUnknownServer):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, provision.ErrUsernameExhausted):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, registry.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.As(err, &pe), errors.Is(err, provision.ErrAPIInternal):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: provision.APIInternalMessage})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
