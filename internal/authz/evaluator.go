// Package authz decides whether an authenticated identity may run a guarded
// operation. Every decision, allow or deny, is forwarded to the audit trail
// exactly once.
package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/roomify/apiserver/internal/metrics"
	"github.com/roomify/apiserver/types"
)

// DecisionRecorder receives every authorization decision.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, decision types.AuthorizationDecision)
}

// Requirement is what a guarded operation declares about its callers.
type Requirement struct {
	// Resource names the component declaring the operation.
	Resource  string
	Operation string
	// Roles lists accepted roles in either spelling; empty accepts any
	// authenticated identity.
	Roles          []string
	SameDepartment bool
}

// Evaluator checks requirements against identities. It holds no mutable
// state and is safe for concurrent use.
type Evaluator struct {
	recorder DecisionRecorder
}

func NewEvaluator(recorder DecisionRecorder) *Evaluator {
	return &Evaluator{recorder: recorder}
}

// Authorize evaluates req for identity. A nil identity is anonymous.
// targetDepartment is only compared when req.SameDepartment is set and it
// is non-empty.
func (e *Evaluator) Authorize(ctx context.Context, identity *types.Identity, req Requirement, targetDepartment string) types.AuthorizationDecision {
	decision := evaluate(identity, req, targetDepartment)

	outcome := "denied"
	if decision.Authorized {
		outcome = "authorized"
	}
	metrics.AuthzDecisions.WithLabelValues(outcome).Inc()
	e.recorder.RecordDecision(ctx, decision)
	return decision
}

func evaluate(identity *types.Identity, req Requirement, targetDepartment string) types.AuthorizationDecision {
	decision := types.AuthorizationDecision{
		Actor:     types.ActorAnonymous,
		Operation: req.Operation,
		Resource:  req.Resource,
	}
	if identity == nil || strings.TrimSpace(identity.Subject) == "" {
		decision.Reason = "Unauthenticated access attempt"
		return decision
	}

	decision.Actor = identity.Subject
	decision.Department = types.NormalizeDepartment(identity.Department)

	if required := normalizeRoles(req.Roles); len(required) > 0 {
		actual, _ := types.ParseRole(string(identity.Role))
		if !containsRole(required, actual) {
			decision.Reason = fmt.Sprintf("Role mismatch. Required: %v, Actual: %s", required, orNone(string(actual)))
			return decision
		}
	}

	if req.SameDepartment {
		if target := types.NormalizeDepartment(targetDepartment); target != "" && target != decision.Department {
			decision.Reason = fmt.Sprintf("Department mismatch. User: %s, Target: %s", orNone(decision.Department), target)
			return decision
		}
	}

	decision.Authorized = true
	decision.Reason = "Access Granted"
	return decision
}

func normalizeRoles(raw []string) []types.Role {
	roles := make([]types.Role, 0, len(raw))
	for _, name := range raw {
		if role, ok := types.ParseRole(name); ok {
			roles = append(roles, role)
		}
	}
	return roles
}

func containsRole(roles []types.Role, role types.Role) bool {
	if role == "" {
		return false
	}
	for _, candidate := range roles {
		if candidate == role {
			return true
		}
	}
	return false
}

func orNone(value string) string {
	if value == "" {
		return "NONE"
	}
	return value
}
