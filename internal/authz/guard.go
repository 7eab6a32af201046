package authz

import (
	"net/http"

	"github.com/roomify/apiserver/types"
)

// Guard wraps a handler with an explicit authorization requirement. Build
// one per protected route:
//
//	r.With(eval.Guard("StaffHandler", "Deactivate").Roles("MANAGER").Handler).
//		Patch("/staff/{id}/deactivate", h.Deactivate)
type Guard struct {
	evaluator  *Evaluator
	req        Requirement
	department func(*http.Request) string
	deny       http.HandlerFunc
}

// Guard starts a requirement for operation declared by resource. With no
// further predicates it admits any authenticated identity.
func (e *Evaluator) Guard(resource, operation string) *Guard {
	return &Guard{
		evaluator: e,
		req:       Requirement{Resource: resource, Operation: operation},
		deny:      Forbidden,
	}
}

// Roles restricts the operation to the given roles. Names may carry the
// ROLE_ prefix.
func (g *Guard) Roles(roles ...string) *Guard {
	g.req.Roles = append(g.req.Roles, roles...)
	return g
}

// SameDepartment requires the caller's department to match the one named
// by the request. An empty target skips the check.
func (g *Guard) SameDepartment(target func(*http.Request) string) *Guard {
	g.req.SameDepartment = true
	g.department = target
	return g
}

// OnDeny replaces the response written for denied requests.
func (g *Guard) OnDeny(deny http.HandlerFunc) *Guard {
	if deny != nil {
		g.deny = deny
	}
	return g
}

// Requirement returns the requirement built so far.
func (g *Guard) Requirement() Requirement {
	return g.req
}

// Handler is the middleware form of the guard.
func (g *Guard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var target string
		if g.department != nil {
			target = g.department(r)
		}

		var caller *types.Identity
		if identity, ok := IdentityFrom(r.Context()); ok {
			caller = &identity
		}

		decision := g.evaluator.Authorize(r.Context(), caller, g.req, target)
		if !decision.Authorized {
			g.deny(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandlerFunc guards a single handler function.
func (g *Guard) HandlerFunc(next http.HandlerFunc) http.HandlerFunc {
	return g.Handler(next).ServeHTTP
}

// Forbidden is the default deny response. The reason is never disclosed.
func Forbidden(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Access Denied", http.StatusForbidden)
}
