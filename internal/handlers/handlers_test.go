package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/roomify/apiserver/internal/authz"
	"github.com/roomify/apiserver/internal/services"
	"github.com/roomify/apiserver/internal/store/storetest"
	"github.com/roomify/apiserver/internal/token"
	"github.com/roomify/apiserver/types"
)

const testSecret = "handlers-test-secret-long-enough-for-hs256"

type recordingAudit struct {
	mu        sync.Mutex
	actions   []string
	decisions []types.AuthorizationDecision
}

func (a *recordingAudit) Record(_ context.Context, _, action, _ string, _ map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

func (a *recordingAudit) RecordDecision(_ context.Context, decision types.AuthorizationDecision) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.decisions = append(a.decisions, decision)
}

func (a *recordingAudit) decisionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.decisions)
}

type fixture struct {
	router   http.Handler
	accounts *storetest.Accounts
	codec    *token.Codec
	audit    *recordingAudit
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts ...AuthenticatorOption) *fixture {
	t.Helper()

	codec, err := token.NewCodec(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	logger := discardLogger()
	accounts := storetest.NewAccounts()
	audit := &recordingAudit{}
	lockout := services.NewLockoutService(accounts, audit, services.DefaultLockoutPolicy)
	auth := services.NewAuthService(accounts, lockout, codec, audit, services.WithAuthLogger(logger))
	status := services.NewAccountStatusCache(accounts, time.Minute)
	staff := services.NewStaffService(accounts, lockout, audit, status)
	eval := authz.NewEvaluator(audit)

	authn := NewAuthenticator(codec, append([]AuthenticatorOption{WithAuthenticatorLogger(logger)}, opts...)...)
	staffHandler := NewStaffHandler(staff, logger)

	r := chi.NewRouter()
	r.Get("/healthz", Healthz)
	r.Route("/auth", func(r chi.Router) {
		AuthRouter(r, NewAuthHandler(auth, logger), authn.Middleware, nil)
	})
	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware)
		r.Route("/staff", func(r chi.Router) {
			StaffRouter(r, staffHandler, eval)
		})
		r.Route("/departments", func(r chi.Router) {
			DepartmentRouter(r, staffHandler, eval)
		})
	})

	return &fixture{router: r, accounts: accounts, codec: codec, audit: audit}
}

func (f *fixture) do(t *testing.T, method, path, authorization, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/auth/login", "", `{"email":"`+email+`","password":"`+password+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", email, rec.Code, rec.Body.String())
	}
	var resp LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return "Bearer " + resp.Token
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func TestHealthzIsPublic(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthenticatorRejections(t *testing.T) {
	f := newFixture(t)

	past, err := token.NewCodec(testSecret, time.Minute, token.WithClock(func() time.Time {
		return time.Now().Add(-time.Hour)
	}))
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	expired, _ := past.Issue("admin@roomify.com", types.RoleManager)

	other, _ := token.NewCodec("another-secret-that-is-long-enough-too", time.Hour)
	foreign, _ := other.Issue("admin@roomify.com", types.RoleManager)

	noSubject, _ := f.codec.Issue("  ", types.RoleManager)

	cases := []struct {
		name   string
		header string
		want   string
	}{
		{name: "no header", header: "", want: msgMissingToken},
		{name: "bare scheme", header: "Bearer", want: msgMissingToken},
		{name: "blank token", header: "Bearer    ", want: msgMissingToken},
		{name: "other scheme", header: "Basic YWRtaW46cGFzcw==", want: msgMissingToken},
		{name: "garbage", header: "Bearer not.a.token", want: msgInvalidToken},
		{name: "foreign secret", header: "Bearer " + foreign, want: msgInvalidToken},
		{name: "expired", header: "Bearer " + expired, want: msgTokenExpired},
		{name: "blank subject", header: "Bearer " + noSubject, want: msgInvalidSubject},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/auth/me", tc.header, "")
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			resp := decodeError(t, rec)
			if resp.Message != tc.want {
				t.Fatalf("expected message %q, got %q", tc.want, resp.Message)
			}
			if resp.Status != http.StatusUnauthorized || resp.Error != "Unauthorized" || resp.Path != "/auth/me" {
				t.Fatalf("unexpected error body: %+v", resp)
			}
		})
	}
}

func TestManagerLoginAndGuards(t *testing.T) {
	f := newFixture(t)
	f.accounts.Seed("admin@roomify.com", "password123", types.RoleManager, "management")

	rec := f.do(t, http.MethodPost, "/auth/login", "", `{"email":"admin@roomify.com","password":"password123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var login LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&login); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if login.Token == "" || login.Type != "Bearer" || login.Email != "admin@roomify.com" || login.SubjectID == 0 {
		t.Fatalf("unexpected login response: %+v", login)
	}
	if len(login.Roles) != 1 || login.Roles[0] != "MANAGER" {
		t.Fatalf("expected roles [MANAGER], got %v", login.Roles)
	}

	bearer := "Bearer " + login.Token
	if rec := f.do(t, http.MethodGet, "/staff", bearer, ""); rec.Code != http.StatusOK {
		t.Fatalf("manager endpoint: expected 200, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/departments/MANAGEMENT/staff", bearer, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("staff endpoint: expected 403, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Message != "Access Denied" {
		t.Fatalf("expected Access Denied, got %q", resp.Message)
	}

	if got := f.audit.decisionCount(); got != 2 {
		t.Fatalf("expected one decision per guarded request, got %d", got)
	}

	rec = f.do(t, http.MethodGet, "/auth/me", bearer, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", rec.Code)
	}
	var me IdentityResponse
	if err := json.NewDecoder(rec.Body).Decode(&me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Subject != "admin@roomify.com" || me.Role != types.RoleManager || me.Department != "MANAGEMENT" {
		t.Fatalf("unexpected identity: %+v", me)
	}
	if len(me.Authorities) != 1 || me.Authorities[0] != "ROLE_MANAGER" {
		t.Fatalf("unexpected authorities: %v", me.Authorities)
	}
}

func TestLoginFailuresAndLockout(t *testing.T) {
	f := newFixture(t)
	f.accounts.Seed("user@roomify.com", "password123", types.RoleStaff, "")

	if rec := f.do(t, http.MethodPost, "/auth/login", "", `{"email":`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/auth/login", "", `{"email":"nobody@roomify.com","password":"password123"}`)
	if rec.Code != http.StatusUnauthorized || decodeError(t, rec).Message != msgBadCredentials {
		t.Fatalf("unknown account should get generic failure")
	}

	for i := 0; i < 5; i++ {
		rec := f.do(t, http.MethodPost, "/auth/login", "", `{"email":"user@roomify.com","password":"wrong-password"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
		if msg := decodeError(t, rec).Message; msg != msgBadCredentials {
			t.Fatalf("attempt %d: expected %q, got %q", i+1, msgBadCredentials, msg)
		}
	}

	rec = f.do(t, http.MethodPost, "/auth/login", "", `{"email":"user@roomify.com","password":"password123"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected locked account to be rejected, got %d", rec.Code)
	}
	if msg := decodeError(t, rec).Message; msg != msgAccountLocked {
		t.Fatalf("expected %q, got %q", msgAccountLocked, msg)
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	original, _ := f.codec.Issue("staff@roomify.com", types.RoleStaff, token.WithDepartment("housekeeping"))

	rec := f.do(t, http.MethodPost, "/auth/refresh", "", `{"token":"`+original+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp RefreshResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	verified, err := f.codec.Verify(resp.Token)
	if err != nil {
		t.Fatalf("refreshed token does not verify: %v", err)
	}
	if verified.Subject != "staff@roomify.com" || verified.Role != "STAFF" || resp.Type != "Bearer" {
		t.Fatalf("unexpected refreshed token: %+v", verified)
	}

	noRole, _ := f.codec.Issue("staff@roomify.com", "")
	cases := []struct {
		body string
		want string
	}{
		{body: `{"token":"garbage"}`, want: msgInvalidToken},
		{body: `{"token":""}`, want: msgMissingToken},
		{body: `{"token":"` + noRole + `"}`, want: msgInvalidRole},
	}
	for _, tc := range cases {
		rec := f.do(t, http.MethodPost, "/auth/refresh", "", tc.body)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", tc.body, rec.Code)
		}
		if msg := decodeError(t, rec).Message; msg != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.body, tc.want, msg)
		}
	}
}

func TestStaffAdministration(t *testing.T) {
	f := newFixture(t)
	admin := f.accounts.Seed("admin@roomify.com", "password123", types.RoleManager, "management")
	manager := f.login(t, "admin@roomify.com", "password123")

	body := `{"email":"desk@roomify.com","name":"Desk Clerk","department":"front desk","password":"password123"}`
	rec := f.do(t, http.MethodPost, "/staff", manager, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created types.Account
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Role != types.RoleStaff || created.Department != "FRONT DESK" || !created.Active {
		t.Fatalf("unexpected account: %+v", created)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("password hash leaked: %s", rec.Body.String())
	}

	if rec := f.do(t, http.MethodPost, "/staff", manager, body); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/staff", manager, `{"email":"bad","password":"password123"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid email: expected 400, got %d", rec.Code)
	}

	staff := f.login(t, "desk@roomify.com", "password123")
	if rec := f.do(t, http.MethodGet, "/staff", staff, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("staff listing: expected 403, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/departments/front%20desk/staff", staff, ""); rec.Code != http.StatusOK {
		t.Fatalf("own roster: expected 200, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/departments/housekeeping/staff", staff, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("other roster: expected 403, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPatch, "/staff/"+itoa(admin.ID)+"/deactivate", manager, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("self deactivation: expected 409, got %d", rec.Code)
	}
	if msg := decodeError(t, rec).Message; msg != "You cannot deactivate your own account" {
		t.Fatalf("unexpected message %q", msg)
	}

	rec = f.do(t, http.MethodPut, "/staff/"+itoa(created.ID), manager, `{"name":"Night Auditor","department":"housekeeping"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var edited types.Account
	if err := json.NewDecoder(rec.Body).Decode(&edited); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if edited.Name != "Night Auditor" || edited.Department != "HOUSEKEEPING" {
		t.Fatalf("unexpected account after update: %+v", edited)
	}
	if rec := f.do(t, http.MethodPut, "/staff/"+itoa(created.ID), manager, `{"name":"","department":"housekeeping"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank name: expected 400, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPut, "/staff/"+itoa(created.ID), staff, `{"name":"Me","department":"management"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("staff update: expected 403, got %d", rec.Code)
	}

	if rec := f.do(t, http.MethodPatch, "/staff/"+itoa(created.ID)+"/deactivate", manager, ""); rec.Code != http.StatusOK {
		t.Fatalf("deactivate: expected 200, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPatch, "/staff/"+itoa(created.ID)+"/unlock", manager, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("unlock: expected 204, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/staff/abc", manager, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/staff/999", manager, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: expected 404, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/staff?active=false", manager, "")
	var list AccountListResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || list.Items[0].Email != "desk@roomify.com" {
		t.Fatalf("unexpected inactive listing: %+v", list)
	}
	if rec := f.do(t, http.MethodGet, "/staff?role=janitor", manager, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad role filter: expected 400, got %d", rec.Code)
	}
}

func TestTokenWithoutRoleHasNoPermissions(t *testing.T) {
	f := newFixture(t)
	signed, _ := f.codec.Issue("ghost@roomify.com", "")

	if rec := f.do(t, http.MethodGet, "/auth/me", "Bearer "+signed, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected authentication to pass, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/staff", "Bearer "+signed, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without a role, got %d", rec.Code)
	}
}

func TestAuthenticatorRejectsInactiveAccounts(t *testing.T) {
	accounts := storetest.NewAccounts()
	f := newFixture(t, WithActiveAccounts(services.NewAccountStatusCache(accounts, time.Minute)))
	active := accounts.Seed("on@roomify.com", "password123", types.RoleStaff, "")
	inactive := accounts.Seed("off@roomify.com", "password123", types.RoleStaff, "")
	if _, err := accounts.SetActive(context.Background(), inactive.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	good, _ := f.codec.Issue(active.Email, types.RoleStaff)
	if rec := f.do(t, http.MethodGet, "/auth/me", "Bearer "+good, ""); rec.Code != http.StatusOK {
		t.Fatalf("active account: expected 200, got %d", rec.Code)
	}

	stale, _ := f.codec.Issue(inactive.Email, types.RoleStaff)
	rec := f.do(t, http.MethodGet, "/auth/me", "Bearer "+stale, "")
	if rec.Code != http.StatusUnauthorized || decodeError(t, rec).Message != msgInactive {
		t.Fatalf("inactive account: expected 401 %q, got %d", msgInactive, rec.Code)
	}
}

func TestLoginLimiter(t *testing.T) {
	limiter := NewLoginLimiter(1, 1)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("192.0.2.1:1000"); code != http.StatusNoContent {
		t.Fatalf("first request: expected 204, got %d", code)
	}
	if code := send("192.0.2.1:1001"); code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", code)
	}
	if code := send("192.0.2.2:1000"); code != http.StatusNoContent {
		t.Fatalf("other client: expected 204, got %d", code)
	}

	var disabled *LoginLimiter
	if !disabled.Allow("192.0.2.1") || NewLoginLimiter(0, 10) != nil {
		t.Fatalf("expected a disabled limiter to allow everything")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
