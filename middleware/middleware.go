// Package middleware provides HTTP authorization middleware for Gatehouse.
package middleware

import (
	"encoding/json"
	"errors"

	"github.com/xraph/forge"

	"github.com/xraph/gatehouse"
	"github.com/xraph/gatehouse/permission"
)

// Require enforces one permission. The user is resolved from the request
// context (Authsome) and the tenant from the Forge scope; a denied check
// short-circuits the handler with the decision's outcome.
func Require(eng *gatehouse.Engine, p permission.Permission) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			req := requestFrom(ctx, p)
			decision, err := eng.CheckPermission(ctx.Context(), req)
			if err != nil && decision == nil {
				return denyResponse(ctx, gatehouse.OutcomeDenied, "access denied")
			}
			if !decision.Allowed {
				return denyResponse(ctx, decision.Outcome, decision.Reason)
			}
			return next(ctx)
		}
	}
}

// RequireAny allows the request if ANY of the permissions is granted.
func RequireAny(eng *gatehouse.Engine, perms ...permission.Permission) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			var last *gatehouse.AccessDecision
			for _, p := range perms {
				decision, err := eng.CheckPermission(ctx.Context(), requestFrom(ctx, p))
				if err == nil && decision.Allowed {
					return next(ctx)
				}
				if decision != nil {
					last = decision
				}
			}
			if last != nil {
				return denyResponse(ctx, last.Outcome, last.Reason)
			}
			return denyResponse(ctx, gatehouse.OutcomeDenied, "access denied")
		}
	}
}

// RequireAll allows the request only if ALL permissions are granted.
func RequireAll(eng *gatehouse.Engine, perms ...permission.Permission) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			for _, p := range perms {
				err := eng.Enforce(ctx.Context(), requestFrom(ctx, p))
				if err != nil {
					if errors.Is(err, gatehouse.ErrAccessDenied) {
						return denyResponse(ctx, gatehouse.OutcomeDenied, "access denied")
					}
					return denyResponse(ctx, gatehouse.OutcomeDenied, "authorization system error")
				}
			}
			return next(ctx)
		}
	}
}

// requestFrom builds an access request from the HTTP context.
// The user comes from Authsome; the tenant from the Forge scope.
func requestFrom(ctx forge.Context, p permission.Permission) *gatehouse.AccessRequest {
	req := &gatehouse.AccessRequest{
		UserID:     forge.UserIDFromContext(ctx.Context()),
		Permission: p,
	}
	if s, ok := forge.ScopeFrom(ctx.Context()); ok {
		req.TenantID = s.OrgID()
	}
	if resourceID := ctx.Param("id"); resourceID != "" {
		req.Resource = &gatehouse.Resource{ID: resourceID}
	}
	return req
}

func denyResponse(ctx forge.Context, outcome gatehouse.Outcome, reason string) error {
	ctx.SetHeader("Content-Type", "application/json")
	status := 403
	if outcome == gatehouse.OutcomeUpgradeRequired {
		status = 402
	}
	if outcome == gatehouse.OutcomeQuotaExceeded {
		status = 429
	}
	ctx.Response().WriteHeader(status)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{
		"error":   reason,
		"outcome": string(outcome),
	})
}
