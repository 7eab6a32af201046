package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/roomify/apiserver/internal/authz"
	"github.com/roomify/apiserver/internal/services"
	"github.com/roomify/apiserver/internal/store"
	"github.com/roomify/apiserver/types"
)

const (
	staffResource  = "StaffHandler"
	rosterResource = "RosterHandler"
)

// StaffHandler provides manager-only staff administration and the
// department roster.
type StaffHandler struct {
	staff  *services.StaffService
	logger *slog.Logger
}

func NewStaffHandler(staff *services.StaffService, logger *slog.Logger) *StaffHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StaffHandler{staff: staff, logger: logger}
}

// StaffRouter registers /staff routes. Callers must mount it behind the
// authenticator.
func StaffRouter(r chi.Router, handler *StaffHandler, eval *authz.Evaluator) {
	manager := func(operation string) func(http.Handler) http.Handler {
		return guard(eval, staffResource, operation).Roles(string(types.RoleManager)).Handler
	}

	r.With(manager("Create")).Post("/", handler.Create)
	r.With(manager("List")).Get("/", handler.List)
	r.Route("/{accountID}", func(r chi.Router) {
		r.With(manager("Get")).Get("/", handler.Get)
		r.With(manager("Update")).Put("/", handler.Update)
		r.With(manager("Activate")).Patch("/activate", handler.Activate)
		r.With(manager("Deactivate")).Patch("/deactivate", handler.Deactivate)
		r.With(manager("Unlock")).Patch("/unlock", handler.Unlock)
	})
}

// DepartmentRouter registers /departments routes. Only staff of the named
// department may read its roster.
func DepartmentRouter(r chi.Router, handler *StaffHandler, eval *authz.Evaluator) {
	roster := guard(eval, rosterResource, "List").
		Roles(string(types.RoleStaff)).
		SameDepartment(func(r *http.Request) string {
			return chi.URLParam(r, "department")
		})

	r.With(roster.Handler).Get("/{department}/staff", handler.Roster)
}

func guard(eval *authz.Evaluator, resource, operation string) *authz.Guard {
	return eval.Guard(resource, operation).OnDeny(Forbidden)
}

func (h *StaffHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateStaffRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request")
		return
	}

	actor, _ := authz.IdentityFrom(r.Context())
	account, err := h.staff.Create(r.Context(), actor, services.CreateStaffInput{
		Email:      req.Email,
		Name:       req.Name,
		Department: req.Department,
		Password:   req.Password,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (h *StaffHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAccountFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	accounts, err := h.staff.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []types.Account{}
	}
	writeJSON(w, http.StatusOK, AccountListResponse{Items: accounts, Total: len(accounts)})
}

func (h *StaffHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "accountID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid account id")
		return
	}

	account, err := h.staff.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *StaffHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "accountID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid account id")
		return
	}
	var req UpdateStaffRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request")
		return
	}

	actor, _ := authz.IdentityFrom(r.Context())
	account, err := h.staff.Update(r.Context(), actor, id, services.UpdateStaffInput{
		Name:       req.Name,
		Department: req.Department,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *StaffHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *StaffHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *StaffHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := pathID(r, "accountID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid account id")
		return
	}

	actor, _ := authz.IdentityFrom(r.Context())
	account, err := h.staff.SetActive(r.Context(), actor, id, active)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *StaffHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "accountID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid account id")
		return
	}

	actor, _ := authz.IdentityFrom(r.Context())
	if _, err := h.staff.Unlock(r.Context(), actor, id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StaffHandler) Roster(w http.ResponseWriter, r *http.Request) {
	department := types.NormalizeDepartment(chi.URLParam(r, "department"))
	accounts, err := h.staff.Roster(r.Context(), department)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	members := make([]RosterMember, 0, len(accounts))
	for _, account := range accounts {
		members = append(members, RosterMember{
			ID:    account.ID,
			Name:  account.Name,
			Email: account.Email,
			Role:  account.Role,
		})
	}
	writeJSON(w, http.StatusOK, RosterResponse{Department: department, Members: members})
}

func (h *StaffHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "account not found")
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrEmailExists):
		writeError(w, r, http.StatusConflict, "Email already exists")
	case errors.Is(err, services.ErrSelfDeactivation):
		writeError(w, r, http.StatusConflict, "You cannot deactivate your own account")
	default:
		h.logger.Error("staff operation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func parseAccountFilter(r *http.Request) (types.AccountFilter, error) {
	query := r.URL.Query()
	filter := types.AccountFilter{
		Search:     strings.TrimSpace(query.Get("search")),
		Department: types.NormalizeDepartment(query.Get("department")),
	}

	if raw := strings.TrimSpace(query.Get("role")); raw != "" {
		role, ok := types.ParseRole(raw)
		if !ok {
			return types.AccountFilter{}, errors.New("invalid role")
		}
		filter.Role = role
	}
	if raw := strings.TrimSpace(query.Get("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return types.AccountFilter{}, errors.New("invalid active flag")
		}
		filter.Active = &active
	}
	return filter, nil
}

type CreateStaffRequest struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Password   string `json:"password"`
}

type UpdateStaffRequest struct {
	Name       string `json:"name"`
	Department string `json:"department"`
}

type AccountListResponse struct {
	Items []types.Account `json:"items"`
	Total int             `json:"total"`
}

type RosterMember struct {
	ID    int64      `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Role  types.Role `json:"role"`
}

type RosterResponse struct {
	Department string         `json:"department"`
	Members    []RosterMember `json:"members"`
}
